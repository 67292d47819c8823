package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/caretext/answerd/internal/chunkstore"
	"github.com/caretext/answerd/internal/httpapi"
)

const ingestBatchSize = 100

func newIngestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <chunks.jsonl>",
		Short: "Seed the corpus from a JSONL file of chunks",
		Long: `Reads one chunk JSON object per line and posts them to the daemon
in batches. Chunks without embeddings are embedded server-side.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd, args[0])
		},
	}
}

func runIngest(cmd *cobra.Command, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	client := &http.Client{Timeout: 5 * time.Minute}

	var batch []chunkstore.Chunk
	total := 0
	lineNo := 0

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var chunk chunkstore.Chunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
		batch = append(batch, chunk)

		if len(batch) == ingestBatchSize {
			if err := postChunks(client, batch); err != nil {
				return err
			}
			total += len(batch)
			batch = batch[:0]
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	if len(batch) > 0 {
		if err := postChunks(client, batch); err != nil {
			return err
		}
		total += len(batch)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "ingested %d chunks\n", total)
	return nil
}

func postChunks(client *http.Client, chunks []chunkstore.Chunk) error {
	body, err := json.Marshal(httpapi.IngestRequest{Chunks: chunks})
	if err != nil {
		return fmt.Errorf("marshaling chunks: %w", err)
	}

	resp, err := client.Post(addr+"/api/v1/chunks", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("posting chunks: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("ingest rejected: status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
