// Answerqa is the operator CLI for the answerd daemon.
//
// It seeds the chunk corpus from JSONL files and asks questions over the
// daemon's HTTP API.
//
// Usage:
//
//	answerqa ingest chunks.jsonl
//	answerqa ask "what is the stemi protocol"
//	answerqa --addr http://answerd.internal:8480 ask "pharmacy extension"
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"

	// daemon base URL, shared by all subcommands
	addr string
)

func main() {
	root := &cobra.Command{
		Use:     "answerqa",
		Short:   "Query and seed the answerd daemon",
		Version: version,
	}
	root.PersistentFlags().StringVar(&addr, "addr", "http://localhost:8480", "answerd base URL")

	root.AddCommand(newIngestCmd())
	root.AddCommand(newAskCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
