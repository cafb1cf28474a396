// Package main provides a CLI tool to submit a CSV record set as a
// classification run and poll it to its terminal state.
//
// Usage:
//
//	go run scripts/submit_run.go -file /path/to/feedback.csv -api-url http://localhost:8080 -api-key YOUR_API_KEY
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// Config holds the CLI configuration
type Config struct {
	FilePath     string
	APIBaseURL   string
	APIKey       string
	ExecutionID  string
	PollInterval time.Duration
	Timeout      time.Duration
}

// StartRunRequest matches the POST /v1/runs request body.
type StartRunRequest struct {
	SourcePath  string `json:"source_path"`
	ExecutionID string `json:"execution_id,omitempty"`
}

// RunStatus matches the run status payload inside the {"data": ...} envelope.
type RunStatus struct {
	ExecutionID string `json:"execution_id"`
	State       string `json:"state"`
	Outcome     *struct {
		State string `json:"state"`
		Stats struct {
			Total   int `json:"total"`
			Success int `json:"success"`
			Failure int `json:"failure"`
		} `json:"stats"`
		Error string `json:"error,omitempty"`
	} `json:"outcome,omitempty"`
}

type dataEnvelope struct {
	Data RunStatus `json:"data"`
}

func main() {
	cfg := parseFlags()

	if _, err := os.Stat(cfg.FilePath); err != nil {
		fmt.Fprintf(os.Stderr, "record set not readable: %v\n", err)
		os.Exit(1)
	}

	client := &http.Client{Timeout: 30 * time.Second}

	run, err := submitRun(client, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "submit failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Run %s accepted (state %s), polling every %s...\n", run.ExecutionID, run.State, cfg.PollInterval)

	final, err := pollRun(client, cfg, run.ExecutionID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "poll failed: %v\n", err)
		os.Exit(1)
	}

	printOutcome(final)

	if final.State != "succeeded" {
		os.Exit(1)
	}
}

func parseFlags() Config {
	cfg := Config{}
	flag.StringVar(&cfg.FilePath, "file", "", "Path to the CSV record set (required)")
	flag.StringVar(&cfg.APIBaseURL, "api-url", "http://localhost:8080", "API base URL")
	flag.StringVar(&cfg.APIKey, "api-key", os.Getenv("API_KEY"), "API key (or API_KEY env var)")
	flag.StringVar(&cfg.ExecutionID, "execution-id", "", "Execution id (generated when empty)")
	flag.DurationVar(&cfg.PollInterval, "poll-interval", 2*time.Second, "Status poll interval")
	flag.DurationVar(&cfg.Timeout, "timeout", 30*time.Minute, "Give up after this long")
	flag.Parse()

	if cfg.FilePath == "" {
		fmt.Fprintln(os.Stderr, "-file is required")
		flag.Usage()
		os.Exit(2)
	}

	if cfg.APIKey == "" {
		fmt.Fprintln(os.Stderr, "-api-key (or API_KEY env var) is required")
		os.Exit(2)
	}

	return cfg
}

func submitRun(client *http.Client, cfg Config) (*RunStatus, error) {
	body, err := json.Marshal(StartRunRequest{SourcePath: cfg.FilePath, ExecutionID: cfg.ExecutionID})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, cfg.APIBaseURL+"/v1/runs", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+cfg.APIKey)

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusAccepted {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(raw))
	}

	var envelope dataEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &envelope.Data, nil
}

func pollRun(client *http.Client, cfg Config, executionID string) (*RunStatus, error) {
	deadline := time.Now().Add(cfg.Timeout)

	for {
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("run %s not terminal after %s", executionID, cfg.Timeout)
		}

		time.Sleep(cfg.PollInterval)

		status, err := fetchStatus(client, cfg, executionID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "status check failed, retrying: %v\n", err)
			continue
		}

		fmt.Printf("  state=%s\n", status.State)

		if status.State == "succeeded" || status.State == "failed" {
			return status, nil
		}
	}
}

func fetchStatus(client *http.Client, cfg Config, executionID string) (*RunStatus, error) {
	req, err := http.NewRequest(http.MethodGet, cfg.APIBaseURL+"/v1/runs/"+executionID, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+cfg.APIKey)

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(raw))
	}

	var envelope dataEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &envelope.Data, nil
}

func printOutcome(status *RunStatus) {
	fmt.Printf("\nRun %s finished: %s\n", status.ExecutionID, status.State)

	if status.Outcome == nil {
		return
	}

	fmt.Printf("  Total:   %d\n", status.Outcome.Stats.Total)
	fmt.Printf("  Success: %d\n", status.Outcome.Stats.Success)
	fmt.Printf("  Failure: %d\n", status.Outcome.Stats.Failure)

	if status.Outcome.Error != "" {
		fmt.Printf("  Error:   %s\n", status.Outcome.Error)
	}
}
