package anthropic

import (
	"github.com/prodyapp/bodhi/internal/config"
	"github.com/prodyapp/bodhi/internal/provider"
)

// ProviderType is the provider type identifier used in configuration.
const ProviderType = "anthropic"

// RegisterProviderFactory registers the anthropic client factory. Called
// explicitly from main and tests; no init side effects.
func RegisterProviderFactory() {
	if provider.IsRegistered(ProviderType) {
		return
	}
	provider.RegisterFactory(ProviderType, func(cfg config.ProviderConfig) (provider.Client, error) {
		return CreateFromConfig(cfg)
	})
}

// CreateFromConfig creates a new Anthropic client from configuration.
func CreateFromConfig(cfg config.ProviderConfig) (*Client, error) {
	opts := []ClientOption{WithName(cfg.Name)}
	if cfg.BaseURL != "" {
		opts = append(opts, WithBaseURL(cfg.BaseURL))
	}
	if cfg.Model != "" {
		opts = append(opts, WithModel(cfg.Model))
	}
	return NewClient(cfg.APIKey, opts...), nil
}
