package aggregator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prodyapp/bodhi/internal/activity"
	"github.com/prodyapp/bodhi/internal/domain"
	"github.com/prodyapp/bodhi/internal/metrics"
	"github.com/prodyapp/bodhi/internal/throttle"
)

// DefaultGracePeriod is how long the combining loop stays warm after
// the last observer leaves.
const DefaultGracePeriod = 5 * time.Second

// WisdomFetcher resolves a wisdom request. *pipeline.Pipeline satisfies it.
type WisdomFetcher interface {
	Get(ctx context.Context, kind domain.PromptKind, pctx domain.PromptContext, force bool) domain.Outcome
}

// ActivitySource supplies the journaling-activity side of a snapshot
// and signals when it changes. *activity.Store satisfies it.
type ActivitySource interface {
	Summary(ctx context.Context) (activity.Summary, error)
	Watch() <-chan struct{}
	Unwatch(ch <-chan struct{})
}

// RefreshResult reports the outcome of a forced refresh request.
// RetryIn is how long until the next forced refresh will be accepted,
// whether or not this one was.
type RefreshResult struct {
	Allowed bool
	RetryIn time.Duration
	Outcome domain.Outcome
}

type fetchRequest struct {
	force bool
	reply chan domain.Outcome
}

type fetchResult struct {
	gen     uint64
	outcome domain.Outcome
}

// Aggregator owns the home snapshot stream.
type Aggregator struct {
	fetcher WisdomFetcher
	source  ActivitySource
	limiter *throttle.Throttle
	kind    domain.PromptKind
	grace   time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu         sync.Mutex
	running    bool
	loopCtx    context.Context
	loopCancel context.CancelFunc
	trigger    chan fetchRequest
	subs       map[chan Snapshot]struct{}
	graceTimer *time.Timer
	last       Snapshot
	lastSet    bool
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Aggregator) {
		a.logger = logger
	}
}

// WithMetrics sets the metrics registry.
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Aggregator) {
		a.metrics = m
	}
}

// WithGracePeriod overrides how long the loop survives without observers.
func WithGracePeriod(d time.Duration) Option {
	return func(a *Aggregator) {
		a.grace = d
	}
}

// WithKind sets the wisdom kind the home stream resolves.
func WithKind(kind domain.PromptKind) Option {
	return func(a *Aggregator) {
		a.kind = kind
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		a.now = now
	}
}

// New creates an Aggregator. The fetcher, source, and throttle are required.
func New(fetcher WisdomFetcher, source ActivitySource, limiter *throttle.Throttle, opts ...Option) (*Aggregator, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("wisdom fetcher is required")
	}
	if source == nil {
		return nil, fmt.Errorf("activity source is required")
	}
	if limiter == nil {
		return nil, fmt.Errorf("refresh throttle is required")
	}

	a := &Aggregator{
		fetcher: fetcher,
		source:  source,
		limiter: limiter,
		kind:    domain.KindDailyThought,
		grace:   DefaultGracePeriod,
		logger:  slog.Default(),
		now:     time.Now,
		subs:    make(map[chan Snapshot]struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.metrics == nil {
		a.metrics = metrics.New()
	}
	return a, nil
}

// Subscribe registers an observer and returns its snapshot channel plus
// a release function. The first subscriber starts the combining loop
// with a passive wisdom load. The channel conflates: a slow reader
// always finds the newest snapshot, never a backlog.
func (a *Aggregator) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	a.mu.Lock()
	a.subs[ch] = struct{}{}
	if a.graceTimer != nil {
		a.graceTimer.Stop()
		a.graceTimer = nil
	}
	if !a.running {
		a.startLocked()
	}
	last, lastSet := a.last, a.lastSet
	a.mu.Unlock()

	if lastSet {
		ch <- last
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			a.unsubscribe(ch)
		})
	}
	return ch, release
}

// Observe returns the first settled snapshot (one not mid-fetch),
// subscribing just long enough to get it.
func (a *Aggregator) Observe(ctx context.Context) (Snapshot, error) {
	ch, release := a.Subscribe()
	defer release()

	for {
		select {
		case snap := <-ch:
			if !snap.Loading {
				return snap, nil
			}
		case <-ctx.Done():
			return Snapshot{}, ctx.Err()
		}
	}
}

// Current returns the most recently published snapshot, if any.
func (a *Aggregator) Current() (Snapshot, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.last, a.lastSet
}

// Refresh forces a new generation, subject to the cooldown. When the
// loop is live the request goes through its trigger channel so the
// fetch supersedes any in-flight one; when idle it resolves directly.
func (a *Aggregator) Refresh(ctx context.Context) RefreshResult {
	if !a.limiter.TryConsume() {
		a.metrics.RefreshThrottled.Inc()
		return RefreshResult{Allowed: false, RetryIn: a.limiter.Remaining()}
	}

	a.mu.Lock()
	running, trigger, loopCtx := a.running, a.trigger, a.loopCtx
	a.mu.Unlock()

	if running {
		req := fetchRequest{force: true, reply: make(chan domain.Outcome, 1)}
		select {
		case trigger <- req:
			select {
			case outcome := <-req.reply:
				return RefreshResult{Allowed: true, RetryIn: a.limiter.Remaining(), Outcome: outcome}
			case <-loopCtx.Done():
				// Torn down mid-request; resolve directly below.
			case <-ctx.Done():
				return RefreshResult{Allowed: true, RetryIn: a.limiter.Remaining(), Outcome: domain.ErrorOutcome(domain.ErrKindTimeout)}
			}
		case <-loopCtx.Done():
		case <-ctx.Done():
			return RefreshResult{Allowed: true, RetryIn: a.limiter.Remaining(), Outcome: domain.ErrorOutcome(domain.ErrKindTimeout)}
		}
	}

	return RefreshResult{Allowed: true, RetryIn: a.limiter.Remaining(), Outcome: a.fetchOnce(ctx, true)}
}

// fetchOnce resolves a wisdom request outside the loop.
func (a *Aggregator) fetchOnce(ctx context.Context, force bool) domain.Outcome {
	summary, err := a.source.Summary(ctx)
	if err != nil {
		a.logger.Warn("activity summary unavailable for prompt context",
			slog.String("error", err.Error()))
	}
	return a.fetcher.Get(ctx, a.kind, promptContext(summary), force)
}

func (a *Aggregator) unsubscribe(ch chan Snapshot) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.subs, ch)
	if len(a.subs) > 0 || !a.running {
		return
	}
	if a.graceTimer != nil {
		a.graceTimer.Stop()
	}
	a.graceTimer = time.AfterFunc(a.grace, a.teardown)
}

func (a *Aggregator) teardown() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.subs) > 0 || !a.running {
		return
	}
	a.loopCancel()
	a.running = false
	a.graceTimer = nil
	a.logger.Debug("home stream torn down")
}

func (a *Aggregator) startLocked() {
	ctx, cancel := context.WithCancel(context.Background())
	a.loopCtx, a.loopCancel = ctx, cancel
	a.trigger = make(chan fetchRequest, 8)
	a.running = true

	go a.run(ctx, a.trigger)

	// Initial passive load; the buffer is fresh so this cannot block.
	a.trigger <- fetchRequest{}
	a.logger.Debug("home stream started")
}

// run is the combining loop. All snapshot state lives in its locals;
// fetches run on their own goroutines and report back through results.
func (a *Aggregator) run(ctx context.Context, trigger <-chan fetchRequest) {
	feed := a.source.Watch()
	defer a.source.Unwatch(feed)

	results := make(chan fetchResult, 4)
	cooldown := time.NewTimer(time.Hour)
	if !cooldown.Stop() {
		<-cooldown.C
	}
	defer cooldown.Stop()

	var (
		rev         uint64
		gen         uint64
		fetchCancel context.CancelFunc
		loading     bool
		loadError   bool
		wisdom      *WisdomView
		summary     activity.Summary
		replies     []chan domain.Outcome
	)
	defer func() {
		if fetchCancel != nil {
			fetchCancel()
		}
	}()

	readSummary := func() {
		fresh, err := a.source.Summary(ctx)
		if err != nil {
			if ctx.Err() == nil {
				a.logger.Warn("activity summary read failed",
					slog.String("error", err.Error()))
			}
			loadError = true
			return
		}
		summary = fresh
		loadError = false
	}

	emit := func() {
		rev++
		remaining := a.limiter.Remaining()
		snap := Snapshot{
			Revision:     rev,
			DisplayName:  summary.Profile.DisplayName,
			StreakDays:   summary.Profile.StreakDays,
			WeekEntries:  summary.WeekEntries,
			TodayEntries: summary.TodayEntries,
			Mood:         summary.LatestMood,
			Wisdom:       wisdom,
			CanRefresh:   remaining == 0,
			RefreshInMS:  remaining.Milliseconds(),
			Loading:      loading,
			LoadError:    loadError,
			At:           a.now(),
		}
		a.publish(snap)

		// Wake again when the cooldown lapses so observers see the
		// refresh action re-enable without another source change.
		if remaining > 0 {
			if !cooldown.Stop() {
				select {
				case <-cooldown.C:
				default:
				}
			}
			cooldown.Reset(remaining + 50*time.Millisecond)
		}
	}

	startFetch := func(req fetchRequest) {
		gen++
		if fetchCancel != nil {
			// Latest wins: the superseded fetch is cancelled and its
			// eventual result discarded by the generation check.
			fetchCancel()
		}
		fctx, cancel := context.WithCancel(ctx)
		fetchCancel = cancel
		loading = true
		if req.reply != nil {
			replies = append(replies, req.reply)
		}

		pctx := promptContext(summary)
		go func(gen uint64, force bool) {
			outcome := a.fetcher.Get(fctx, a.kind, pctx, force)
			select {
			case results <- fetchResult{gen: gen, outcome: outcome}:
			case <-ctx.Done():
			}
		}(gen, req.force)
	}

	readSummary()

	for {
		select {
		case <-ctx.Done():
			return

		case req := <-trigger:
			startFetch(req)
			emit()

		case _, ok := <-feed:
			if !ok {
				return
			}
			readSummary()
			emit()

		case res := <-results:
			if res.gen != gen {
				// A stale fetch finished after being superseded.
				continue
			}
			loading = false
			wisdom = viewFromOutcome(a.kind, res.outcome)
			if fetchCancel != nil {
				fetchCancel()
				fetchCancel = nil
			}
			for _, reply := range replies {
				select {
				case reply <- res.outcome:
				default:
				}
			}
			replies = nil
			emit()

		case <-cooldown.C:
			emit()
		}
	}
}

// publish records the snapshot and fans it out, replacing any unread
// previous snapshot on each subscriber channel.
func (a *Aggregator) publish(snap Snapshot) {
	a.mu.Lock()
	a.last = snap
	a.lastSet = true
	subs := make([]chan Snapshot, 0, len(a.subs))
	for ch := range a.subs {
		subs = append(subs, ch)
	}
	a.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
	a.metrics.SnapshotsPublished.Inc()
}

func promptContext(summary activity.Summary) domain.PromptContext {
	return domain.PromptContext{
		DisplayName: summary.Profile.DisplayName,
		StreakDays:  summary.Profile.StreakDays,
		Mood:        summary.LatestMood,
		WeekEntries: summary.WeekEntries,
	}
}
