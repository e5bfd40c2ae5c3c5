package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prodyapp/bodhi/internal/cache"
	"github.com/prodyapp/bodhi/internal/corpus"
	"github.com/prodyapp/bodhi/internal/domain"
	"github.com/prodyapp/bodhi/internal/metrics"
	"github.com/prodyapp/bodhi/internal/prompt"
	"github.com/prodyapp/bodhi/internal/provider"
)

// defaultTimeout bounds a single generation call, including any provider
// retries.
const defaultTimeout = 20 * time.Second

// Option is a functional option for configuring a Pipeline.
type Option func(*Pipeline) error

// WithRegistry sets the provider registry. An empty or absent registry is
// valid: requests resolve through the corpus as not-configured.
func WithRegistry(reg *provider.Registry) Option {
	return func(p *Pipeline) error {
		p.registry = reg
		return nil
	}
}

// WithCache sets the wisdom cache (required).
func WithCache(c cache.Cache) Option {
	return func(p *Pipeline) error {
		p.cache = c
		return nil
	}
}

// WithCorpus sets the fallback corpus (required). It is validated during New.
func WithCorpus(c *corpus.Corpus) Option {
	return func(p *Pipeline) error {
		p.corpus = c
		return nil
	}
}

// WithBuilder sets a custom prompt builder.
func WithBuilder(b *prompt.Builder) Option {
	return func(p *Pipeline) error {
		p.builder = b
		return nil
	}
}

// WithStats injects the stats tracker. Useful when a debug surface shares it.
func WithStats(s *Stats) Option {
	return func(p *Pipeline) error {
		p.stats = s
		return nil
	}
}

// WithMetrics sets the Prometheus metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) error {
		p.metrics = m
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		p.logger = logger
		return nil
	}
}

// WithTimeout sets the per-generation timeout bound.
func WithTimeout(d time.Duration) Option {
	return func(p *Pipeline) error {
		if d <= 0 {
			return fmt.Errorf("generation timeout must be positive, got %v", d)
		}
		p.timeout = d
		return nil
	}
}

// WithClock overrides the time source (for testing).
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) error {
		p.now = now
		return nil
	}
}

// Pipeline orchestrates cache, generation, and fallback for wisdom requests.
type Pipeline struct {
	regMu    sync.RWMutex
	registry *provider.Registry
	cache    cache.Cache
	corpus   *corpus.Corpus
	builder  *prompt.Builder
	stats    *Stats
	metrics  *metrics.Metrics
	logger   *slog.Logger
	timeout  time.Duration
	now      func() time.Time
}

// New creates a pipeline. The cache and corpus are required; the corpus must
// pass validation so the fallback tier can never come up empty at call time.
func New(opts ...Option) (*Pipeline, error) {
	p := &Pipeline{
		builder: prompt.NewBuilder(),
		stats:   NewStats(),
		logger:  slog.Default(),
		timeout: defaultTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}

	if p.cache == nil {
		return nil, fmt.Errorf("pipeline requires a cache")
	}
	if p.corpus == nil {
		return nil, fmt.Errorf("pipeline requires a fallback corpus")
	}
	if err := p.corpus.Validate(); err != nil {
		return nil, fmt.Errorf("fallback corpus: %w", err)
	}
	if p.metrics == nil {
		p.metrics = metrics.New()
	}

	return p, nil
}

// GetDailyWisdom resolves the daily-thought slot.
func (p *Pipeline) GetDailyWisdom(ctx context.Context, force bool) domain.Outcome {
	return p.Get(ctx, domain.KindDailyThought, domain.PromptContext{}, force)
}

// Get resolves one wisdom request. It never returns an error: every failure
// is absorbed into a fallback outcome tagged with its reason.
func (p *Pipeline) Get(ctx context.Context, kind domain.PromptKind, pctx domain.PromptContext, force bool) domain.Outcome {
	slot := kind.SlotKey()

	if !force {
		if entry, ok := p.cache.Get(ctx, slot); ok {
			p.stats.RecordCacheHit()
			p.metrics.CacheHits.Inc()
			p.metrics.RecordWisdomRequest(string(kind), "success", "cache")
			return domain.SuccessOutcome(entry.Result, "", true)
		}
	}

	// Forced refreshes bypass the consult but still count as misses.
	p.stats.RecordCacheMiss()
	p.metrics.CacheMisses.Inc()

	client, ok := p.client()
	if !ok {
		// No credential means no call was attempted; lastError stays unset.
		return p.fallback(kind, domain.ErrKindNotConfigured)
	}

	req := p.builder.Build(kind, pctx)

	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := p.now()
	gen, err := client.Generate(callCtx, req)
	at := p.now()
	latency := at.Sub(start)

	p.stats.RecordCall(client.Name(), kind, latency, at)

	if err != nil {
		reason := domain.KindOf(err)
		if reason == domain.ErrKindRateLimited {
			p.stats.RecordRateLimit()
		}
		p.stats.RecordError(err.Error())
		p.metrics.RecordGenerationError(client.Name(), string(reason))
		p.logger.Warn("generation failed",
			slog.String("kind", string(kind)),
			slog.String("provider", client.Name()),
			slog.String("reason", string(reason)),
			slog.String("error", err.Error()),
		)
		return p.fallback(kind, reason)
	}

	result, perr := prompt.ParseResponse(gen.Text)
	if perr != nil {
		p.stats.RecordError("unusable model response: " + perr.Error())
		p.metrics.RecordGenerationError(client.Name(), string(domain.ErrKindProvider))
		p.logger.Warn("unusable model response",
			slog.String("kind", string(kind)),
			slog.String("provider", client.Name()),
			slog.String("error", perr.Error()),
		)
		return p.fallback(kind, domain.ErrKindProvider)
	}

	if err := p.cache.Put(ctx, slot, result); err != nil {
		// Serving the fresh result matters more than caching it.
		p.logger.Warn("cache write failed",
			slog.String("slot", slot),
			slog.String("error", err.Error()),
		)
	}

	p.metrics.RecordGeneration(client.Name(), string(kind), latency.Seconds(), gen.InputTokens, gen.OutputTokens)
	p.metrics.RecordWisdomRequest(string(kind), "success", "generated")
	p.logger.Info("wisdom generated",
		slog.String("kind", string(kind)),
		slog.String("provider", client.Name()),
		slog.String("model", gen.Model),
		slog.Int64("latency_ms", latency.Milliseconds()),
	)

	return domain.SuccessOutcome(result, client.Name(), false)
}

// IsConfigured reports whether a generation provider with a credential is
// available.
func (p *Pipeline) IsConfigured() bool {
	_, ok := p.client()
	return ok
}

// Stats returns a copy of the usage counters.
func (p *Pipeline) Stats() UsageStats {
	return p.stats.Snapshot()
}

// ResetStats zeroes the usage counters.
func (p *Pipeline) ResetStats() {
	p.stats.Reset()
}

// ClearCache drops all cached wisdom. The usage counters are left untouched.
func (p *Pipeline) ClearCache(ctx context.Context) error {
	return p.cache.Clear(ctx)
}

// SetRegistry swaps the provider registry. The config watcher uses it to
// apply credential changes without a restart; in-flight calls finish on
// the client they started with.
func (p *Pipeline) SetRegistry(reg *provider.Registry) {
	p.regMu.Lock()
	defer p.regMu.Unlock()
	p.registry = reg
}

func (p *Pipeline) client() (provider.Client, bool) {
	p.regMu.RLock()
	reg := p.registry
	p.regMu.RUnlock()

	if reg == nil {
		return nil, false
	}
	return reg.Default()
}

// fallback resolves through the corpus, tagging the outcome with why
// generation did not produce a result.
func (p *Pipeline) fallback(kind domain.PromptKind, reason domain.ErrorKind) domain.Outcome {
	p.metrics.RecordWisdomRequest(string(kind), "fallback", "corpus")
	result := p.corpus.Pick(kind)
	return domain.FallbackOutcome(result, reason)
}
