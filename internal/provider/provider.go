// Package provider abstracts the external text-generation services. Clients
// normalize transport and API failures into the domain error taxonomy so the
// pipeline can treat every provider the same way.
package provider

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/prodyapp/bodhi/internal/config"
)

// Request is a single generation call. The prompt is fully rendered before it
// reaches a client; clients add no context of their own.
type Request struct {
	System    string
	Prompt    string
	MaxTokens int
}

// Generation is a successful provider response.
type Generation struct {
	Text         string
	Model        string
	InputTokens  int
	OutputTokens int
}

// Client is a single upstream generation service.
type Client interface {
	// Name returns the configured provider name, used in stats and errors.
	Name() string
	// Generate performs one bounded generation call. Failures are always
	// *domain.GenError values.
	Generate(ctx context.Context, req *Request) (*Generation, error)
}

// Factory builds a client from its config entry.
type Factory func(cfg config.ProviderConfig) (Client, error)

var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]Factory)
)

// RegisterFactory registers a client factory for a provider type. Provider
// subpackages expose explicit registration functions wired from main and
// tests; there are no init side effects.
func RegisterFactory(providerType string, factory Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[providerType] = factory
}

// IsRegistered reports whether a factory exists for the provider type.
func IsRegistered(providerType string) bool {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	_, ok := factories[providerType]
	return ok
}

// ClearFactories removes all registered factories (for testing only).
func ClearFactories() {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories = make(map[string]Factory)
}

// Registry holds the configured clients and knows which one is the default.
type Registry struct {
	mu          sync.RWMutex
	clients     map[string]Client
	defaultName string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]Client)}
}

// Register adds a client. The first registered client becomes the default
// until SetDefault overrides it.
func (r *Registry) Register(c Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.clients[c.Name()] = c
	if r.defaultName == "" {
		r.defaultName = c.Name()
	}
}

// Get returns the named client.
func (r *Registry) Get(name string) (Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.clients[name]
	return c, ok
}

// Default returns the default client, or false when none is configured.
func (r *Registry) Default() (Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.clients[r.defaultName]
	return c, ok
}

// SetDefault marks the named client as the default.
func (r *Registry) SetDefault(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.clients[name]; !ok {
		return fmt.Errorf("provider %q is not registered", name)
	}
	r.defaultName = name
	return nil
}

// Names returns the registered provider names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	return names
}

// FromConfig builds a registry from the configured providers, skipping
// entries without credentials. An empty registry is valid: the pipeline
// treats it as generation-not-configured.
func FromConfig(cfg *config.Config) (*Registry, error) {
	reg := NewRegistry()

	for _, pc := range cfg.Providers {
		if !pc.Configured() {
			continue
		}

		factoriesMu.RLock()
		factory, ok := factories[pc.Type]
		factoriesMu.RUnlock()
		if !ok {
			return nil, fmt.Errorf("no factory registered for provider type %q", pc.Type)
		}

		client, err := factory(pc)
		if err != nil {
			return nil, fmt.Errorf("build provider %q: %w", pc.Name, err)
		}
		reg.Register(client)
	}

	if def := cfg.DefaultProvider(); def != nil {
		if err := reg.SetDefault(def.Name); err != nil {
			return nil, err
		}
	}

	return reg, nil
}

var keyPattern = regexp.MustCompile(`\b(sk-[A-Za-z0-9_-]{8,}|sk-ant-[A-Za-z0-9_-]{8,})\b`)

// Redact strips credential material from upstream error messages. Providers
// sometimes echo key fragments in authentication errors; nothing downstream
// (logs, stats, debug endpoints) may see them.
func Redact(message, apiKey string) string {
	if apiKey != "" {
		message = strings.ReplaceAll(message, apiKey, "[redacted]")
	}
	return keyPattern.ReplaceAllString(message, "[redacted]")
}
