package main

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
)

func TestGetDefaultServer(t *testing.T) {
	t.Setenv("BODHI_SERVER", "http://wisdom.internal:9090")
	if got := getDefaultServer(); got != "http://wisdom.internal:9090" {
		t.Errorf("getDefaultServer() = %q, want env value", got)
	}

	t.Setenv("BODHI_SERVER", "")
	if got := getDefaultServer(); got != "http://localhost:8080" {
		t.Errorf("getDefaultServer() = %q, want default", got)
	}
}

func TestClient_Do(t *testing.T) {
	var (
		gotMethod      string
		gotPath        string
		gotQuery       string
		gotContentType string
		gotBody        string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotContentType = r.Header.Get("Content-Type")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	client := &Client{BaseURL: srv.URL, HTTP: &http.Client{Timeout: 5 * time.Second}}

	params := url.Values{}
	params.Set("kind", "journal_prompt")
	resp, err := client.get("/v1/wisdom", params)
	if err != nil {
		t.Fatalf("get() error: %v", err)
	}
	if string(resp) != `{"ok":true}` {
		t.Errorf("get() body = %q", resp)
	}
	if gotMethod != "GET" || gotPath != "/v1/wisdom" {
		t.Errorf("request = %s %s, want GET /v1/wisdom", gotMethod, gotPath)
	}
	if gotQuery != "kind=journal_prompt" {
		t.Errorf("query = %q, want kind=journal_prompt", gotQuery)
	}

	if _, err := client.post("/v1/activity/journal", map[string]string{"body": "sat for ten minutes"}); err != nil {
		t.Fatalf("post() error: %v", err)
	}
	if gotContentType != "application/json" {
		t.Errorf("post Content-Type = %q, want application/json", gotContentType)
	}
	if !strings.Contains(gotBody, "sat for ten minutes") {
		t.Errorf("post body = %q, missing payload", gotBody)
	}

	if _, err := client.delete("/debug/ai/cache"); err != nil {
		t.Fatalf("delete() error: %v", err)
	}
	if gotMethod != "DELETE" {
		t.Errorf("method = %q, want DELETE", gotMethod)
	}
	if gotContentType != "" {
		t.Errorf("delete sent Content-Type %q, want none", gotContentType)
	}
}

func TestClient_Do_CooldownError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "20")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"rate_limited"}`))
	}))
	defer srv.Close()

	client := &Client{BaseURL: srv.URL, HTTP: &http.Client{Timeout: 5 * time.Second}}

	_, err := client.post("/v1/wisdom/refresh", nil)
	if err == nil {
		t.Fatal("expected cooldown error, got nil")
	}
	if !strings.Contains(err.Error(), "cooling down") {
		t.Errorf("error = %v, want a friendly cooldown message", err)
	}
	if !strings.Contains(err.Error(), "20s") {
		t.Errorf("error = %v, want the Retry-After value surfaced", err)
	}
}

func TestClient_Do_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := &Client{BaseURL: srv.URL, HTTP: &http.Client{Timeout: 5 * time.Second}}

	_, err := client.get("/healthz", nil)
	if err == nil {
		t.Fatal("expected server error, got nil")
	}
	if !strings.Contains(err.Error(), "server error (500)") {
		t.Errorf("error = %v, want status surfaced", err)
	}
}

func TestCommandTree(t *testing.T) {
	tests := []struct {
		name  string
		cmd   *cobra.Command
		flags []string
	}{
		{"wisdom", newWisdomCommand(), []string{"kind", "force"}},
		{"home", newHomeCommand(), nil},
		{"journal", newJournalCommand(), []string{"mood"}},
		{"stats", newStatsCommand(), nil},
		{"clear-cache", newClearCacheCommand(), nil},
		{"runtime", newRuntimeCommand(), nil},
		{"health", newHealthCommand(), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !strings.HasPrefix(tt.cmd.Use, tt.name) {
				t.Errorf("Use = %q, want prefix %q", tt.cmd.Use, tt.name)
			}
			for _, flag := range tt.flags {
				if tt.cmd.Flags().Lookup(flag) == nil {
					t.Errorf("missing --%s flag", flag)
				}
			}
		})
	}
}

func TestWisdomCommand_Shorthands(t *testing.T) {
	cmd := newWisdomCommand()
	if f := cmd.Flags().ShorthandLookup("k"); f == nil || f.Name != "kind" {
		t.Error("-k should be shorthand for --kind")
	}
	if f := cmd.Flags().ShorthandLookup("f"); f == nil || f.Name != "force" {
		t.Error("-f should be shorthand for --force")
	}
}

func TestJournalCommand_RequiresText(t *testing.T) {
	cmd := newJournalCommand()
	if err := cmd.Args(cmd, []string{}); err == nil {
		t.Error("journal with no arguments should be rejected")
	}
	if err := cmd.Args(cmd, []string{"wrote three pages"}); err != nil {
		t.Errorf("journal with one argument rejected: %v", err)
	}
}

func TestHomeCommand_HasWatchSubcommand(t *testing.T) {
	cmd := newHomeCommand()
	for _, sub := range cmd.Commands() {
		if sub.Use == "watch" {
			return
		}
	}
	t.Error("home should carry a watch subcommand")
}
