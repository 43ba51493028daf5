package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/atlasnotes/conceptmap-backend/internal/domain"
	"github.com/atlasnotes/conceptmap-backend/internal/platform/logger"
)

// Redis stores processing results as JSON under a key prefix with a TTL.
type Redis struct {
	log    *logger.Logger
	rdb    *goredis.Client
	prefix string
	ttl    time.Duration
}

// NewRedis reads REDIS_ADDR / REDIS_CACHE_PREFIX. Returns (nil, nil) when
// REDIS_ADDR is unset so callers can fall back to the in-process cache.
func NewRedis(log *logger.Logger, ttl time.Duration) (*Redis, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, nil
	}
	prefix := strings.TrimSpace(os.Getenv("REDIS_CACHE_PREFIX"))
	if prefix == "" {
		prefix = "conceptmap:result"
	}
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &Redis{
		log:    log.With("client", "RedisResultCache"),
		rdb:    rdb,
		prefix: prefix,
		ttl:    ttl,
	}, nil
}

func (r *Redis) key(k Key) string {
	return r.prefix + ":" + k.String()
}

func (r *Redis) Get(ctx context.Context, key Key) (*domain.ProcessingResult, bool, error) {
	raw, err := r.rdb.Get(ctx, r.key(key)).Bytes()
	if err == goredis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	var res domain.ProcessingResult
	if err := json.Unmarshal(raw, &res); err != nil {
		// A corrupt entry is a miss, not a failure; it gets overwritten.
		r.log.Warn("corrupt cache entry dropped", "key", key.String(), "error", err.Error())
		return nil, false, nil
	}
	return &res, true, nil
}

func (r *Redis) Put(ctx context.Context, key Key, result *domain.ProcessingResult) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	if err := r.rdb.Set(ctx, r.key(key), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (r *Redis) Close() error {
	if r == nil || r.rdb == nil {
		return nil
	}
	return r.rdb.Close()
}
