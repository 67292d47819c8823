package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/caretext/answerd/internal/httpapi"
	"github.com/caretext/answerd/internal/pipeline"
)

func newAskCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask the daemon a question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd, strings.Join(args, " "), asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw JSON response")
	return cmd
}

func runAsk(cmd *cobra.Command, question string, asJSON bool) error {
	body, err := json.Marshal(httpapi.QueryRequest{Query: question})
	if err != nil {
		return fmt.Errorf("marshaling query: %w", err)
	}

	client := &http.Client{Timeout: 2 * time.Minute}
	resp, err := client.Post(addr+"/api/v1/query", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("querying %s: %w", addr, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("query rejected: status %d: %s", resp.StatusCode, string(raw))
	}

	if asJSON {
		fmt.Fprintln(cmd.OutOrStdout(), string(raw))
		return nil
	}

	var answer pipeline.AnswerResponse
	if err := json.Unmarshal(raw, &answer); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	printAnswer(cmd, &answer)
	return nil
}

func printAnswer(cmd *cobra.Command, answer *pipeline.AnswerResponse) {
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, answer.AnswerText)
	fmt.Fprintf(out, "\nintent: %s  confidence: %.2f\n", answer.Intent, answer.Confidence)

	if len(answer.Sources) > 0 {
		fmt.Fprintln(out, "sources:")
		for _, s := range answer.Sources {
			fmt.Fprintf(out, "  - %s\n", s)
		}
	}

	for _, src := range answer.HighlightedSources {
		page := ""
		if src.PageNumber != nil {
			page = fmt.Sprintf(" p.%d", *src.PageNumber)
		}
		fmt.Fprintf(out, "  [%s%s] %s\n", src.DocumentName, page, src.TextSnippet)
	}

	for _, w := range answer.Warnings {
		fmt.Fprintf(out, "warning: %s\n", w)
	}
}
