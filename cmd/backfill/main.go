// Package main implements the backfill tool. It exports the engine state to
// a JSON file or imports a previously exported file, letting operators move
// fleets between environments or restore after a restart.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	var (
		apiURL     = flag.String("api", "http://localhost:8080", "compliance API base URL")
		exportPath = flag.String("export", "", "write current state to this file")
		importPath = flag.String("import", "", "load state from this file")
	)
	flag.Parse()

	if (*exportPath == "") == (*importPath == "") {
		fmt.Fprintln(os.Stderr, "usage: backfill -api URL (-export FILE | -import FILE)")
		os.Exit(2)
	}

	client := &http.Client{Timeout: 60 * time.Second}

	var err error
	if *exportPath != "" {
		err = exportState(client, *apiURL, *exportPath, logger)
	} else {
		err = importState(client, *apiURL, *importPath, logger)
	}
	if err != nil {
		logger.Error("backfill failed", "err", err)
		os.Exit(1)
	}
}

func exportState(client *http.Client, apiURL, path string, log *slog.Logger) error {
	resp, err := client.Get(apiURL + "/api/state")
	if err != nil {
		return fmt.Errorf("fetch state: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch state: unexpected status %d", resp.StatusCode)
	}

	// Re-indent so exports are diffable.
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read state: %w", err)
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return fmt.Errorf("state is not valid JSON: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	log.Info("state exported", "path", path, "bytes", buf.Len())
	return nil
}

func importState(client *http.Client, apiURL, path string, log *slog.Logger) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if !json.Valid(raw) {
		return fmt.Errorf("%s is not valid JSON", path)
	}

	resp, err := client.Post(apiURL+"/api/state", "application/json", bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("post state: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("import rejected with status %d: %s", resp.StatusCode, body)
	}
	log.Info("state imported", "path", path, "bytes", len(raw))
	return nil
}
