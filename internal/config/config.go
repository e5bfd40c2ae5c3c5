// Package config loads service configuration from config.yaml and the
// environment, with ${VAR} substitution for credentials.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Providers  []ProviderConfig `koanf:"providers" validate:"dive"`
	Generation GenerationConfig `koanf:"generation"`
	Cache      CacheConfig      `koanf:"cache"`
	Throttle   ThrottleConfig   `koanf:"throttle"`
	Activity   ActivityConfig   `koanf:"activity"`
	Scheduler  SchedulerConfig  `koanf:"scheduler"`
	Telemetry  TelemetryConfig  `koanf:"telemetry"`
}

type ServerConfig struct {
	Port int `koanf:"port" validate:"min=1,max=65535"`
}

type ProviderConfig struct {
	Name    string `koanf:"name" validate:"required"`
	Type    string `koanf:"type" validate:"required,oneof=openai anthropic"`
	APIKey  string `koanf:"api_key"`
	BaseURL string `koanf:"base_url" validate:"omitempty,url"`
	Model   string `koanf:"model"`
}

// Configured reports whether the provider has a usable credential after
// ${VAR} substitution.
func (p ProviderConfig) Configured() bool {
	return strings.TrimSpace(p.APIKey) != ""
}

type GenerationConfig struct {
	// Provider optionally names the default provider. Empty means the first
	// entry with a credential wins.
	Provider string `koanf:"provider"`
	// Timeout is a duration string like "20s" bounding each generation call.
	Timeout   string `koanf:"timeout"`
	MaxTokens int    `koanf:"max_tokens" validate:"min=1"`
	// PromptTokenBudget caps the rendered prompt size; context fields are
	// dropped before the template is.
	PromptTokenBudget int `koanf:"prompt_token_budget" validate:"min=1"`
}

// TimeoutDuration parses the generation timeout. Validation guarantees it
// parses, so callers may ignore the fallback after startup.
func (g GenerationConfig) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(g.Timeout)
	if err != nil {
		return 20 * time.Second
	}
	return d
}

type CacheConfig struct {
	Backend string      `koanf:"backend" validate:"oneof=memory redis"`
	TTL     string      `koanf:"ttl"`
	Redis   RedisConfig `koanf:"redis"`
}

// TTLDuration parses the cache TTL.
func (c CacheConfig) TTLDuration() time.Duration {
	d, err := time.ParseDuration(c.TTL)
	if err != nil {
		return 24 * time.Hour
	}
	return d
}

type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

type ThrottleConfig struct {
	Cooldown string `koanf:"cooldown"`
}

// CooldownDuration parses the forced-refresh cooldown.
func (t ThrottleConfig) CooldownDuration() time.Duration {
	d, err := time.ParseDuration(t.Cooldown)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

type ActivityConfig struct {
	// Path is the sqlite database file holding profile and journal activity.
	Path string `koanf:"path" validate:"required"`
}

type SchedulerConfig struct {
	Enabled bool `koanf:"enabled"`
	// PrewarmSpec is a cron expression for the daily slot prewarm.
	PrewarmSpec string `koanf:"prewarm_spec"`
	// SweepSpec is a cron expression for the expired-entry sweep.
	SweepSpec string `koanf:"sweep_spec"`
}

type TelemetryConfig struct {
	// Tracing turns on the stdout span exporter. Development only.
	Tracing bool `koanf:"tracing"`
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads configuration from path (default config.yaml), overlays
// BODHI_-prefixed environment variables, applies defaults, substitutes
// ${VAR} references in credentials, and validates the result.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path == "" {
		path = "config.yaml"
	}

	// Try to load from the config file first
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		// File not found is OK, we'll use env vars
		if !os.IsNotExist(err) {
			return nil, err
		}
	}

	// Load environment variables (can override file config)
	if err := k.Load(env.Provider("BODHI_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "BODHI_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	setDefaults(k)

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	// Substitute environment variables in credentials
	for i := range cfg.Providers {
		cfg.Providers[i].APIKey = substituteEnvVars(cfg.Providers[i].APIKey)
	}
	cfg.Cache.Redis.Password = substituteEnvVars(cfg.Cache.Redis.Password)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(k *koanf.Koanf) {
	defaults := map[string]any{
		"server.port":                    8080,
		"generation.timeout":             "20s",
		"generation.max_tokens":          512,
		"generation.prompt_token_budget": 768,
		"cache.backend":                  "memory",
		"cache.ttl":                      "24h",
		"throttle.cooldown":              "30s",
		"activity.path":                  "bodhi.db",
		"scheduler.enabled":              true,
		"scheduler.prewarm_spec":         "5 0 * * *",
		"scheduler.sweep_spec":           "0 * * * *",
		"telemetry.tracing":              false,
	}
	for key, val := range defaults {
		if !k.Exists(key) {
			k.Set(key, val)
		}
	}
}

// Validate checks struct constraints plus the duration fields koanf keeps as
// strings.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	for field, val := range map[string]string{
		"generation.timeout": c.Generation.Timeout,
		"cache.ttl":          c.Cache.TTL,
		"throttle.cooldown":  c.Throttle.Cooldown,
	} {
		if _, err := time.ParseDuration(val); err != nil {
			return fmt.Errorf("invalid config: %s: %w", field, err)
		}
	}

	if c.Cache.Backend == "redis" && c.Cache.Redis.Addr == "" {
		return fmt.Errorf("invalid config: cache.redis.addr is required for the redis backend")
	}

	if c.Generation.Provider != "" && c.findProvider(c.Generation.Provider) == nil {
		return fmt.Errorf("invalid config: generation.provider %q is not defined", c.Generation.Provider)
	}

	return nil
}

// DefaultProvider returns the provider generation should use: the named
// default if set, otherwise the first entry with a credential. Nil means
// generation is not configured.
func (c *Config) DefaultProvider() *ProviderConfig {
	if c.Generation.Provider != "" {
		if p := c.findProvider(c.Generation.Provider); p != nil && p.Configured() {
			return p
		}
		return nil
	}
	for i := range c.Providers {
		if c.Providers[i].Configured() {
			return &c.Providers[i]
		}
	}
	return nil
}

func (c *Config) findProvider(name string) *ProviderConfig {
	for i := range c.Providers {
		if c.Providers[i].Name == name {
			return &c.Providers[i]
		}
	}
	return nil
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
