// Package scheduler runs the background jobs that keep the wisdom cache
// in shape: a daily prewarm shortly after the slot rolls over, so the
// first morning request is a hit, and an hourly sweep of expired
// entries.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	rcron "github.com/robfig/cron/v3"

	"github.com/prodyapp/bodhi/internal/activity"
	"github.com/prodyapp/bodhi/internal/cache"
	"github.com/prodyapp/bodhi/internal/domain"
)

const defaultJobTimeout = 2 * time.Minute

// Warmer is the slice of the pipeline the prewarm job needs. A passive
// Get on a cold slot generates and caches; on a warm slot it is a no-op.
type Warmer interface {
	Get(ctx context.Context, kind domain.PromptKind, pctx domain.PromptContext, force bool) domain.Outcome
	IsConfigured() bool
}

// SummaryReader supplies the personalization for prewarmed generations,
// so the cached entry matches what a live request would have produced.
type SummaryReader interface {
	Summary(ctx context.Context) (activity.Summary, error)
}

type Scheduler struct {
	cron    *rcron.Cron
	warmer  Warmer
	source  SummaryReader
	cache   cache.Cache
	logger  *slog.Logger
	kinds   []domain.PromptKind
	timeout time.Duration
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// WithKinds limits which prompt kinds the prewarm covers. Defaults to
// all of them.
func WithKinds(kinds ...domain.PromptKind) Option {
	return func(s *Scheduler) {
		s.kinds = kinds
	}
}

// WithJobTimeout bounds each job run.
func WithJobTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		s.timeout = d
	}
}

// New registers the prewarm and sweep jobs under the given cron specs.
// An invalid spec is a startup error, not a silent no-op.
func New(warmer Warmer, source SummaryReader, c cache.Cache, prewarmSpec, sweepSpec string, opts ...Option) (*Scheduler, error) {
	if warmer == nil {
		return nil, fmt.Errorf("warmer is required")
	}
	if source == nil {
		return nil, fmt.Errorf("activity source is required")
	}
	if c == nil {
		return nil, fmt.Errorf("cache is required")
	}

	s := &Scheduler{
		cron:    rcron.New(),
		warmer:  warmer,
		source:  source,
		cache:   c,
		logger:  slog.Default(),
		kinds:   domain.Kinds(),
		timeout: defaultJobTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}

	if _, err := s.cron.AddFunc(prewarmSpec, s.runPrewarm); err != nil {
		return nil, fmt.Errorf("invalid prewarm spec %q: %w", prewarmSpec, err)
	}
	if _, err := s.cron.AddFunc(sweepSpec, s.runSweep); err != nil {
		return nil, fmt.Errorf("invalid sweep spec %q: %w", sweepSpec, err)
	}

	return s, nil
}

// Start begins dispatching jobs on their schedules.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started")
}

// Stop halts scheduling and waits briefly for a running job to finish.
func (s *Scheduler) Stop() {
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(5 * time.Second):
		s.logger.Warn("scheduler stop timed out waiting for a running job")
	}
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) runPrewarm() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	s.prewarm(ctx)
}

func (s *Scheduler) runSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	s.sweep(ctx)
}

// prewarm issues a passive request per kind. Without a configured
// provider there is nothing to warm; the corpus needs no cache.
func (s *Scheduler) prewarm(ctx context.Context) {
	if !s.warmer.IsConfigured() {
		s.logger.Debug("prewarm skipped, no provider configured")
		return
	}

	pctx := s.promptContext(ctx)
	for _, kind := range s.kinds {
		outcome := s.warmer.Get(ctx, kind, pctx, false)
		s.logger.Info("prewarm completed",
			slog.String("kind", string(kind)),
			slog.String("outcome", string(outcome.Status)),
			slog.Bool("from_cache", outcome.FromCache))
	}
}

func (s *Scheduler) sweep(ctx context.Context) {
	removed := s.cache.Sweep(ctx)
	if removed > 0 {
		s.logger.Info("cache sweep completed", slog.Int("removed", removed))
	} else {
		s.logger.Debug("cache sweep completed, nothing expired")
	}
}

func (s *Scheduler) promptContext(ctx context.Context) domain.PromptContext {
	summary, err := s.source.Summary(ctx)
	if err != nil {
		s.logger.Warn("activity summary unavailable for prewarm",
			slog.String("error", err.Error()))
		return domain.PromptContext{}
	}
	return domain.PromptContext{
		DisplayName: summary.Profile.DisplayName,
		StreakDays:  summary.Profile.StreakDays,
		Mood:        summary.LatestMood,
		WeekEntries: summary.WeekEntries,
	}
}
