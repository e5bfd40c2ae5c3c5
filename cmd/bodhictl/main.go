package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

const version = "0.1.0"

var serverURL string

func main() {
	rootCmd := &cobra.Command{
		Use:   "bodhictl",
		Short: "Bodhi CLI - interact with a bodhid server",
		Long: `bodhictl is a command-line interface for a running bodhid server.
All output is structured JSON (pipe through jq for human-readable formatting).`,
		Version: version,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", getDefaultServer(), "bodhid server URL")

	// Add subcommands
	rootCmd.AddCommand(newWisdomCommand())
	rootCmd.AddCommand(newHomeCommand())
	rootCmd.AddCommand(newJournalCommand())
	rootCmd.AddCommand(newStatsCommand())
	rootCmd.AddCommand(newClearCacheCommand())
	rootCmd.AddCommand(newRuntimeCommand())
	rootCmd.AddCommand(newHealthCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func getDefaultServer() string {
	if server := os.Getenv("BODHI_SERVER"); server != "" {
		return server
	}
	return "http://localhost:8080"
}

// --- HTTP client ---

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func newClient() *Client {
	return &Client{
		BaseURL: serverURL,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) do(method, path string, params url.Values, data interface{}) ([]byte, error) {
	u := fmt.Sprintf("%s%s", c.BaseURL, path)
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	var body io.Reader
	if data != nil {
		jsonData, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal data: %w", err)
		}
		body = strings.NewReader(string(jsonData))
	}

	req, err := http.NewRequest(method, u, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if data != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := resp.Header.Get("Retry-After")
		return nil, fmt.Errorf("refresh is cooling down, retry in %ss: %s", retryAfter, string(respBody))
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("server error (%d): %s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}

func (c *Client) get(path string, params url.Values) ([]byte, error) {
	return c.do("GET", path, params, nil)
}

func (c *Client) post(path string, data interface{}) ([]byte, error) {
	return c.do("POST", path, nil, data)
}

func (c *Client) delete(path string) ([]byte, error) {
	return c.do("DELETE", path, nil, nil)
}

// streamSSE reads an SSE stream and prints each event's data field as JSON.
func (c *Client) streamSSE(path string) error {
	u := fmt.Sprintf("%s%s", c.BaseURL, path)
	resp, err := c.HTTP.Get(u)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "data: ") {
			fmt.Println(line[6:])
		}
	}
	return scanner.Err()
}

// outputJSON prints raw JSON data, pretty-printed.
func outputJSON(data []byte) {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		// Not valid JSON, print raw
		fmt.Println(string(data))
		return
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}

// --- Wisdom commands ---

func newWisdomCommand() *cobra.Command {
	var (
		kind  string
		force bool
	)
	cmd := &cobra.Command{
		Use:   "wisdom",
		Short: "Fetch the current wisdom",
		Example: `  bodhictl wisdom
  bodhictl wisdom --kind=journal_prompt
  bodhictl wisdom --force`,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()

			if force {
				// A forced refresh always targets the daily thought.
				data, err := client.post("/v1/wisdom/refresh", nil)
				if err != nil {
					return err
				}
				outputJSON(data)
				return nil
			}

			params := url.Values{}
			if kind != "" {
				params.Set("kind", kind)
			}
			data, err := client.get("/v1/wisdom", params)
			if err != nil {
				return err
			}
			outputJSON(data)
			return nil
		},
	}
	cmd.Flags().StringVarP(&kind, "kind", "k", "", "Prompt kind: daily_thought, journal_prompt, encouragement")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Force a fresh generation (subject to the cooldown)")
	return cmd
}

// --- Home commands ---

func newHomeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "home",
		Short: "Show the home snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			data, err := client.get("/v1/home", nil)
			if err != nil {
				return err
			}
			outputJSON(data)
			return nil
		},
	}
	cmd.AddCommand(newHomeWatchCommand())
	return cmd
}

func newHomeWatchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stream home snapshots in real-time (SSE)",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			return client.streamSSE("/v1/home/stream")
		},
	}
}

// --- Journal commands ---

func newJournalCommand() *cobra.Command {
	var mood string
	cmd := &cobra.Command{
		Use:     "journal <text>",
		Short:   "Record a journal entry",
		Args:    cobra.ExactArgs(1),
		Example: `  bodhictl journal "sat for ten minutes before sunrise" --mood=calm`,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			body := map[string]interface{}{
				"body": args[0],
			}
			if mood != "" {
				body["mood"] = mood
			}
			data, err := client.post("/v1/activity/journal", body)
			if err != nil {
				return err
			}
			outputJSON(data)
			return nil
		},
	}
	cmd.Flags().StringVarP(&mood, "mood", "m", "", "Mood word to log with the entry")
	return cmd
}

// --- Stats commands ---

func newStatsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show pipeline usage statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			data, err := client.get("/debug/ai/stats", nil)
			if err != nil {
				return err
			}
			outputJSON(data)
			return nil
		},
	}
	cmd.AddCommand(newStatsResetCommand())
	return cmd
}

func newStatsResetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Zero the pipeline usage counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			data, err := client.post("/debug/ai/stats/reset", nil)
			if err != nil {
				return err
			}
			outputJSON(data)
			return nil
		},
	}
}

// --- Cache / debug commands ---

func newClearCacheCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear-cache",
		Short: "Drop all cached wisdom (usage counters survive)",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			data, err := client.delete("/debug/ai/cache")
			if err != nil {
				return err
			}
			outputJSON(data)
			return nil
		},
	}
}

func newRuntimeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "runtime",
		Short: "Show server runtime stats (uptime, memory, goroutines)",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			data, err := client.get("/debug/runtime", nil)
			if err != nil {
				return err
			}
			outputJSON(data)
			return nil
		},
	}
}

func newHealthCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check server health",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			data, err := client.get("/healthz", nil)
			if err != nil {
				return err
			}
			outputJSON(data)
			return nil
		},
	}
}
