package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/prodyapp/bodhi/internal/activity"
	"github.com/prodyapp/bodhi/internal/aggregator"
	"github.com/prodyapp/bodhi/internal/cache"
	"github.com/prodyapp/bodhi/internal/config"
	"github.com/prodyapp/bodhi/internal/corpus"
	"github.com/prodyapp/bodhi/internal/metrics"
	"github.com/prodyapp/bodhi/internal/pipeline"
	"github.com/prodyapp/bodhi/internal/prompt"
	"github.com/prodyapp/bodhi/internal/provider"
	"github.com/prodyapp/bodhi/internal/registration"
	"github.com/prodyapp/bodhi/internal/scheduler"
	"github.com/prodyapp/bodhi/internal/server"
	"github.com/prodyapp/bodhi/internal/telemetry"
	"github.com/prodyapp/bodhi/internal/throttle"
)

// version is stamped by the build; "dev" for local runs.
var version = "dev"

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	// Initialize structured logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	configPath := os.Getenv("BODHI_CONFIG")
	if configPath == "" {
		configPath = "config.yaml"
	}

	watcher, err := config.NewWatcher(configPath, logger)
	if err != nil {
		log.Fatalf("Failed to create config watcher: %v", err)
	}

	ctx := context.Background()
	cfg, err := watcher.Load(ctx)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize OpenTelemetry
	shutdownTracer, err := telemetry.Init("bodhi", version, cfg.Telemetry.Tracing, logger)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
	}()

	// Register built-in generation providers
	registration.RegisterBuiltins()

	registry, err := provider.FromConfig(cfg)
	if err != nil {
		log.Fatalf("Failed to build providers: %v", err)
	}

	wisdomCache, err := buildCache(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("Failed to build cache: %v", err)
	}
	defer wisdomCache.Close()

	m := metrics.New()

	pipe, err := pipeline.New(
		pipeline.WithRegistry(registry),
		pipeline.WithCache(wisdomCache),
		pipeline.WithCorpus(corpus.New()),
		pipeline.WithBuilder(prompt.NewBuilder(
			prompt.WithMaxPromptTokens(cfg.Generation.PromptTokenBudget),
			prompt.WithCompletionTokens(cfg.Generation.MaxTokens),
		)),
		pipeline.WithTimeout(cfg.Generation.TimeoutDuration()),
		pipeline.WithMetrics(m),
		pipeline.WithLogger(logger),
	)
	if err != nil {
		log.Fatalf("Failed to build pipeline: %v", err)
	}

	journal, err := activity.New(cfg.Activity.Path, activity.WithLogger(logger))
	if err != nil {
		log.Fatalf("Failed to open activity store: %v", err)
	}
	defer journal.Close()

	limiter := throttle.New(throttle.WithCooldown(cfg.Throttle.CooldownDuration()))

	agg, err := aggregator.New(pipe, journal, limiter,
		aggregator.WithLogger(logger),
		aggregator.WithMetrics(m),
	)
	if err != nil {
		log.Fatalf("Failed to build aggregator: %v", err)
	}

	srv, err := server.New(server.Config{
		Addr:            fmt.Sprintf(":%d", cfg.Server.Port),
		Pipeline:        pipe,
		Aggregator:      agg,
		Activity:        journal,
		Logger:          logger,
		Metrics:         m,
		RefreshCooldown: cfg.Throttle.CooldownDuration(),
	})
	if err != nil {
		log.Fatalf("Failed to build server: %v", err)
	}

	if cfg.Scheduler.Enabled {
		sched, err := scheduler.New(pipe, journal, wisdomCache,
			cfg.Scheduler.PrewarmSpec, cfg.Scheduler.SweepSpec,
			scheduler.WithLogger(logger),
		)
		if err != nil {
			log.Fatalf("Failed to build scheduler: %v", err)
		}
		sched.Start()
		defer sched.Stop()
	}

	// Reload providers on config edits; everything else needs a restart.
	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	if _, statErr := os.Stat(configPath); statErr == nil {
		err := watcher.Watch(watchCtx, func(fresh *config.Config) {
			reg, err := provider.FromConfig(fresh)
			if err != nil {
				logger.Error("provider reload failed, keeping previous providers",
					slog.String("error", err.Error()))
				return
			}
			pipe.SetRegistry(reg)
			logger.Info("providers reloaded", slog.Int("count", len(reg.Names())))
		})
		if err != nil {
			logger.Warn("config watch unavailable", slog.String("error", err.Error()))
		}
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start()
	}()

	logger.Info("bodhi started",
		slog.Int("port", cfg.Server.Port),
		slog.String("cache_backend", cfg.Cache.Backend),
		slog.Bool("generation_configured", pipe.IsConfigured()),
		slog.Bool("scheduler", cfg.Scheduler.Enabled),
	)

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		if err != nil {
			log.Fatalf("Server failed: %v", err)
		}
		return
	case <-sigChan:
	}

	logger.Info("Shutdown signal received, stopping...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Shutdown complete")
}

// buildCache selects the configured backend. Redis is pinged once so a
// bad address fails at startup, not on the first request.
func buildCache(ctx context.Context, cfg *config.Config, logger *slog.Logger) (cache.Cache, error) {
	ttl := cfg.Cache.TTLDuration()

	if cfg.Cache.Backend == "redis" {
		rc := cache.NewRedis(cfg.Cache.Redis.Addr, cfg.Cache.Redis.Password, cfg.Cache.Redis.DB, ttl,
			cache.WithRedisLogger(logger))
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rc.Ping(pingCtx); err != nil {
			rc.Close()
			return nil, fmt.Errorf("redis at %s: %w", cfg.Cache.Redis.Addr, err)
		}
		return rc, nil
	}

	return cache.NewMemory(ttl), nil
}
