package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/prodyapp/bodhi/internal/domain"
)

const redisKeyPrefix = "bodhi:wisdom:"

// Redis is the shared cache backend for multi-instance deployments. Entries
// are JSON-encoded and expire server-side via EX; reads still double-check
// ProducedAt so all backends agree on rolling-TTL semantics.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger
}

var _ Cache = (*Redis)(nil)

// RedisOption configures a Redis cache.
type RedisOption func(*Redis)

// WithRedisClock substitutes the time source.
func WithRedisClock(now func() time.Time) RedisOption {
	return func(r *Redis) {
		r.now = now
	}
}

// WithRedisLogger sets the logger for backend errors.
func WithRedisLogger(logger *slog.Logger) RedisOption {
	return func(r *Redis) {
		r.logger = logger
	}
}

// NewRedis connects a shared cache backend.
func NewRedis(addr, password string, db int, ttl time.Duration, opts ...RedisOption) *Redis {
	r := &Redis{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		ttl:    ttl,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Ping verifies connectivity. Called once at startup so a bad address fails
// fast instead of degrading every request.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Get(ctx context.Context, slot string) (*Entry, bool) {
	data, err := r.client.Get(ctx, redisKeyPrefix+slot).Bytes()
	if err != nil {
		if err != redis.Nil {
			r.logger.Error("cache read failed", slog.String("slot", slot), slog.String("error", err.Error()))
		}
		return nil, false
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		r.logger.Error("cache entry corrupt, dropping", slog.String("slot", slot), slog.String("error", err.Error()))
		r.client.Del(ctx, redisKeyPrefix+slot)
		return nil, false
	}

	if entry.Expired(r.ttl, r.now()) {
		r.client.Del(ctx, redisKeyPrefix+slot)
		return nil, false
	}

	return &entry, true
}

func (r *Redis) Put(ctx context.Context, slot string, result domain.WisdomResult) error {
	entry := Entry{
		Result:     result,
		ProducedAt: r.now(),
		SlotKey:    slot,
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	return r.client.Set(ctx, redisKeyPrefix+slot, data, r.ttl).Err()
}

func (r *Redis) Clear(ctx context.Context) error {
	iter := r.client.Scan(ctx, 0, redisKeyPrefix+"*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return r.client.Del(ctx, keys...).Err()
}

// Sweep is a no-op for redis; the server expires entries itself.
func (r *Redis) Sweep(ctx context.Context) int {
	return 0
}

func (r *Redis) Close() error {
	return r.client.Close()
}
