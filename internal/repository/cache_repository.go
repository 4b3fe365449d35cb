package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/sma-wellbeing-api/pkg/errors"
)

// Report cache keys are namespaced per school so invalidation can target one
// tenant without touching the others.
const reportKeyPrefix = "wellbeing:report"

// ReportCacheKey identifies one assembled report variant.
func ReportCacheKey(schoolID, timeRange, grade string) string {
	return fmt.Sprintf("%s:%s:%s:%s", reportKeyPrefix, schoolID, timeRange, grade)
}

// SchoolReportPattern matches every cached report variant for a school.
func SchoolReportPattern(schoolID string) string {
	return fmt.Sprintf("%s:%s:*", reportKeyPrefix, schoolID)
}

// CacheRepository wraps Redis access for cached wellbeing report payloads.
// A nil client degrades to a no-op cache so the API keeps serving without Redis.
type CacheRepository struct {
	client *redis.Client
	logger *zap.Logger
}

// NewCacheRepository constructs a cache repository.
func NewCacheRepository(client *redis.Client, logger *zap.Logger) *CacheRepository {
	return &CacheRepository{client: client, logger: logger}
}

// Get retrieves and unmarshals the cached value into the provided destination.
func (r *CacheRepository) Get(ctx context.Context, key string, dest interface{}) error {
	if r.client == nil {
		return appErrors.ErrCacheMiss
	}

	raw, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return appErrors.ErrCacheMiss
		}
		return fmt.Errorf("redis get %s: %w", key, err)
	}

	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("unmarshal cache value for %s: %w", key, err)
	}

	return nil
}

// Set marshals the provided value and stores it with the given TTL.
func (r *CacheRepository) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if r.client == nil {
		return nil
	}

	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value for %s: %w", key, err)
	}

	if err := r.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}

	return nil
}

// DeleteByPattern removes cached entries matching the provided pattern.
func (r *CacheRepository) DeleteByPattern(ctx context.Context, pattern string) error {
	if r.client == nil {
		return nil
	}

	iter := r.client.Scan(ctx, 0, pattern, 0).Iterator()
	var stale []string
	for iter.Next(ctx) {
		stale = append(stale, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan pattern %s: %w", pattern, err)
	}
	if len(stale) == 0 {
		return nil
	}

	if err := r.client.Del(ctx, stale...).Err(); err != nil {
		return fmt.Errorf("redis delete %d keys for pattern %s: %w", len(stale), pattern, err)
	}
	r.logger.Debug("evicted cached reports", zap.String("pattern", pattern), zap.Int("keys", len(stale)))

	return nil
}

// Close releases the underlying Redis connection if present.
func (r *CacheRepository) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}
