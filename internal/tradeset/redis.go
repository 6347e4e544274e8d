package tradeset

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds connection parameters for the shared set.
type RedisConfig struct {
	Addr       string
	Password   string
	DB         int
	TLSEnabled bool
	Key        string        // set name; defaults to "sports-value-bot:traded"
	TTL        time.Duration // refreshed on each insert; 0 keeps the set forever
}

// ScopedKey suffixes base with day's date ("base:2006-01-02").
func ScopedKey(base string, day time.Time) string {
	return base + ":" + day.Format("2006-01-02")
}

// Redis shares the set between replicas. SADD is atomic, so two replicas
// racing on one key see exactly one insert.
type Redis struct {
	rdb *redis.Client
	key string
	ttl time.Duration
}

// NewRedis connects and pings.
func NewRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	opts := &redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("tradeset/redis: ping: %w", err)
	}

	key := cfg.Key
	if key == "" {
		key = "sports-value-bot:traded"
	}
	return &Redis{rdb: rdb, key: key, ttl: cfg.TTL}, nil
}

// TryAdd inserts key and reports whether it was absent. The insert and the
// TTL refresh run in one MULTI, so a claimed key always has its expiry.
func (r *Redis) TryAdd(ctx context.Context, key string) (bool, error) {
	var add *redis.IntCmd
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		add = pipe.SAdd(ctx, r.key, key)
		if r.ttl > 0 {
			pipe.Expire(ctx, r.key, r.ttl)
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("tradeset/redis: add %s: %w", key, err)
	}
	return add.Val() == 1, nil
}

// Contains reports whether key was added.
func (r *Redis) Contains(ctx context.Context, key string) (bool, error) {
	ok, err := r.rdb.SIsMember(ctx, r.key, key).Result()
	if err != nil {
		return false, fmt.Errorf("tradeset/redis: check %s: %w", key, err)
	}
	return ok, nil
}

// Len returns the number of keys.
func (r *Redis) Len(ctx context.Context) (int64, error) {
	n, err := r.rdb.SCard(ctx, r.key).Result()
	if err != nil {
		return 0, fmt.Errorf("tradeset/redis: count: %w", err)
	}
	return n, nil
}

// Close closes the connection.
func (r *Redis) Close() error {
	return r.rdb.Close()
}
