package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	// Save original env vars
	origPort := os.Getenv("BODHI_SERVER__PORT")
	defer func() {
		if origPort != "" {
			os.Setenv("BODHI_SERVER__PORT", origPort)
		} else {
			os.Unsetenv("BODHI_SERVER__PORT")
		}
	}()

	t.Run("defaults", func(t *testing.T) {
		os.Unsetenv("BODHI_SERVER__PORT")

		cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}

		if cfg.Server.Port != 8080 {
			t.Errorf("Load() port = %v, want 8080", cfg.Server.Port)
		}
		if cfg.Cache.Backend != "memory" {
			t.Errorf("Load() cache backend = %q, want %q", cfg.Cache.Backend, "memory")
		}
		if got := cfg.Cache.TTLDuration(); got != 24*time.Hour {
			t.Errorf("TTLDuration() = %v, want 24h", got)
		}
		if got := cfg.Throttle.CooldownDuration(); got != 30*time.Second {
			t.Errorf("CooldownDuration() = %v, want 30s", got)
		}
		if got := cfg.Generation.TimeoutDuration(); got != 20*time.Second {
			t.Errorf("TimeoutDuration() = %v, want 20s", got)
		}
	})

	t.Run("env var port override", func(t *testing.T) {
		os.Setenv("BODHI_SERVER__PORT", "9000")
		defer os.Unsetenv("BODHI_SERVER__PORT")

		cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}

		if cfg.Server.Port != 9000 {
			t.Errorf("Load() port = %v, want 9000", cfg.Server.Port)
		}
	})

	t.Run("yaml file with credential substitution", func(t *testing.T) {
		os.Setenv("TEST_WISDOM_KEY", "sk-test-123")
		defer os.Unsetenv("TEST_WISDOM_KEY")

		path := filepath.Join(t.TempDir(), "config.yaml")
		data := `
server:
  port: 8181
providers:
  - name: primary
    type: openai
    api_key: ${TEST_WISDOM_KEY}
    model: gpt-4o-mini
generation:
  timeout: 5s
`
		if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
			t.Fatalf("write config: %v", err)
		}

		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}

		if cfg.Server.Port != 8181 {
			t.Errorf("port = %d, want 8181", cfg.Server.Port)
		}
		if len(cfg.Providers) != 1 {
			t.Fatalf("providers = %d, want 1", len(cfg.Providers))
		}
		if cfg.Providers[0].APIKey != "sk-test-123" {
			t.Errorf("api key = %q, want substituted value", cfg.Providers[0].APIKey)
		}
		if got := cfg.Generation.TimeoutDuration(); got != 5*time.Second {
			t.Errorf("TimeoutDuration() = %v, want 5s", got)
		}

		p := cfg.DefaultProvider()
		if p == nil || p.Name != "primary" {
			t.Errorf("DefaultProvider() = %+v, want primary", p)
		}
	})

	t.Run("unsubstituted credential leaves provider unconfigured", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		data := `
providers:
  - name: primary
    type: openai
    api_key: ${BODHI_TEST_UNDEFINED_KEY}
`
		if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
			t.Fatalf("write config: %v", err)
		}

		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}

		if cfg.Providers[0].Configured() {
			t.Errorf("Configured() = true for empty substituted key, want false")
		}
		if cfg.DefaultProvider() != nil {
			t.Errorf("DefaultProvider() = %+v, want nil", cfg.DefaultProvider())
		}
	})
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Server:     ServerConfig{Port: 8080},
			Generation: GenerationConfig{Timeout: "20s", MaxTokens: 512, PromptTokenBudget: 768},
			Cache:      CacheConfig{Backend: "memory", TTL: "24h"},
			Throttle:   ThrottleConfig{Cooldown: "30s"},
			Activity:   ActivityConfig{Path: "bodhi.db"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}, wantErr: false},
		{name: "bad port", mutate: func(c *Config) { c.Server.Port = 0 }, wantErr: true},
		{name: "bad cache backend", mutate: func(c *Config) { c.Cache.Backend = "memcached" }, wantErr: true},
		{name: "bad provider type", mutate: func(c *Config) {
			c.Providers = []ProviderConfig{{Name: "p", Type: "cohere"}}
		}, wantErr: true},
		{name: "unparseable cooldown", mutate: func(c *Config) { c.Throttle.Cooldown = "soon" }, wantErr: true},
		{name: "redis backend without addr", mutate: func(c *Config) { c.Cache.Backend = "redis" }, wantErr: true},
		{name: "unknown default provider", mutate: func(c *Config) { c.Generation.Provider = "ghost" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSubstituteEnvVars(t *testing.T) {
	// Set test env var
	os.Setenv("TEST_VAR", "test-value")
	defer os.Unsetenv("TEST_VAR")

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "simple substitution",
			input: "${TEST_VAR}",
			want:  "test-value",
		},
		{
			name:  "substitution in string",
			input: "prefix-${TEST_VAR}-suffix",
			want:  "prefix-test-value-suffix",
		},
		{
			name:  "no substitution",
			input: "plain-string",
			want:  "plain-string",
		},
		{
			name:  "undefined var",
			input: "${UNDEFINED_VAR}",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := substituteEnvVars(tt.input)
			if got != tt.want {
				t.Errorf("substituteEnvVars() = %v, want %v", got, tt.want)
			}
		})
	}
}
