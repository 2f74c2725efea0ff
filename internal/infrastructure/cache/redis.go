package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"stigwatch/internal/config"
	"stigwatch/pkg/logger"
)

// RedisCache wraps the Redis client with typed operations
type RedisCache struct {
	client    *redis.Client
	keyPrefix string
	logger    *logger.Logger
}

// NewRedis creates a new Redis client
func NewRedis(ctx context.Context, cfg config.RedisConfig, log *logger.Logger) (*RedisCache, error) {
	log = log.WithComponent("redis")
	log.Info().Str("host", cfg.Host).Int("port", cfg.Port).Msg("connecting to Redis")

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	log.Info().Msg("connected to Redis successfully")

	return &RedisCache{
		client:    client,
		keyPrefix: cfg.KeyPrefix,
		logger:    log,
	}, nil
}

// Close closes the Redis connection
func (c *RedisCache) Close() error {
	c.logger.Info().Msg("closing Redis connection")
	return c.client.Close()
}

// Ping checks the Redis connection
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// key prepends the namespace prefix to a key
func (c *RedisCache) key(k string) string {
	return c.keyPrefix + k
}

// GetJSON retrieves and unmarshals a JSON value. found is false on a miss.
func (c *RedisCache) GetJSON(ctx context.Context, key string, dest any) (found bool, err error) {
	data, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("failed to unmarshal cached value: %w", err)
	}
	return true, nil
}

// SetJSON marshals and stores a value with a TTL
func (c *RedisCache) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	return c.client.Set(ctx, c.key(key), data, ttl).Err()
}

// Delete removes keys from cache
func (c *RedisCache) Delete(ctx context.Context, keys ...string) error {
	prefixedKeys := make([]string, len(keys))
	for i, k := range keys {
		prefixedKeys[i] = c.key(k)
	}
	return c.client.Del(ctx, prefixedKeys...).Err()
}

// Cache key prefixes
const (
	KeyReportPrefix    = "report:"
	KeyReportIndex     = "reports:"
	KeyRateLimitPrefix = "rate_limit:"
	KeyLockPrefix      = "lock:"
)

// ReportKey is the cache key of one compliance report variant
func ReportKey(systemID, impact, majorControl string) string {
	if impact == "" {
		impact = "all"
	}
	if majorControl == "" {
		majorControl = "all"
	}
	return KeyReportPrefix + systemID + ":" + strings.ToLower(impact) + ":" + strings.ToUpper(majorControl)
}

// GetReport loads a cached report variant into dest. found is false on a
// miss.
func (c *RedisCache) GetReport(ctx context.Context, systemID, impact, majorControl string, dest any) (bool, error) {
	return c.GetJSON(ctx, ReportKey(systemID, impact, majorControl), dest)
}

// SetReport caches a report and records its key in the system's index so
// InvalidateSystem can find every variant.
func (c *RedisCache) SetReport(ctx context.Context, systemID, impact, majorControl string, report any, ttl time.Duration) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	key := ReportKey(systemID, impact, majorControl)
	index := c.key(KeyReportIndex + systemID)
	pipe := c.client.TxPipeline()
	pipe.Set(ctx, c.key(key), data, ttl)
	pipe.SAdd(ctx, index, key)
	pipe.Expire(ctx, index, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to cache report: %w", err)
	}
	return nil
}

// InvalidateSystem drops every cached report of a system
func (c *RedisCache) InvalidateSystem(ctx context.Context, systemID string) error {
	index := c.key(KeyReportIndex + systemID)
	keys, err := c.client.SMembers(ctx, index).Result()
	if err != nil {
		return fmt.Errorf("failed to read report index: %w", err)
	}

	toDelete := []string{index}
	for _, k := range keys {
		toDelete = append(toDelete, c.key(k))
	}
	if err := c.client.Del(ctx, toDelete...).Err(); err != nil {
		return fmt.Errorf("failed to invalidate reports: %w", err)
	}

	c.logger.WithSystemID(systemID).Debug().Int("reports", len(keys)).Msg("invalidated cached reports")
	return nil
}

// AcquireLock attempts to acquire a distributed lock
func (c *RedisCache) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error) {
	return c.client.SetNX(ctx, c.key(KeyLockPrefix+lockKey), "locked", ttl).Result()
}

// RefreshLock extends the TTL of a held lock
func (c *RedisCache) RefreshLock(ctx context.Context, lockKey string, ttl time.Duration) error {
	return c.client.Expire(ctx, c.key(KeyLockPrefix+lockKey), ttl).Err()
}

// ReleaseLock releases a distributed lock
func (c *RedisCache) ReleaseLock(ctx context.Context, lockKey string) error {
	return c.Delete(ctx, KeyLockPrefix+lockKey)
}

// CheckRateLimit checks and increments the rate limit counter
// Returns (allowed, remaining, resetTime, error)
func (c *RedisCache) CheckRateLimit(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, time.Time, error) {
	now := time.Now()
	windowKey := fmt.Sprintf("%s%s:%d", KeyRateLimitPrefix, key, now.Unix()/int64(window.Seconds()))

	pipe := c.client.Pipeline()
	incr := pipe.Incr(ctx, c.key(windowKey))
	pipe.Expire(ctx, c.key(windowKey), window)
	_, err := pipe.Exec(ctx)
	if err != nil {
		return false, 0, time.Time{}, err
	}

	count := incr.Val()
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}

	resetTime := now.Add(window)

	return count <= limit, remaining, resetTime, nil
}
