package repository

import (
	"context"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/EasyBudget/internal/pkg/cache"
)

// queueRepository implements the QueueRepository interface
type queueRepository struct {
	// Note: This repository doesn't use GORM DB since it operates on Redis
	client redis.Cmdable
}

// NewQueueRepository creates a queue repository on the shared cache client
func NewQueueRepository() QueueRepository {
	return &queueRepository{}
}

// NewQueueRepositoryWithClient creates a queue repository on a given client
func NewQueueRepositoryWithClient(client redis.Cmdable) QueueRepository {
	return &queueRepository{client: client}
}

func (r *queueRepository) rdb() redis.Cmdable {
	if r.client != nil {
		return r.client
	}
	return cache.GetClient()
}

// GetTTL retrieves the time-to-live for a specific key
func (r *queueRepository) GetTTL(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := r.rdb().TTL(ctx, key).Result()
	if err != nil {
		return -1, err
	}
	return ttl, nil
}

// GetListLength returns the length of a Redis list
func (r *queueRepository) GetListLength(ctx context.Context, key string) (int64, error) {
	return r.rdb().LLen(ctx, key).Result()
}

// GetSortedSetLength returns the cardinality of a Redis sorted set
func (r *queueRepository) GetSortedSetLength(ctx context.Context, key string) (int64, error) {
	return r.rdb().ZCard(ctx, key).Result()
}

// FindKeysByPatterns retrieves keys for the provided Redis match patterns using SCAN.
func (r *queueRepository) FindKeysByPatterns(ctx context.Context, patterns []string) ([]string, error) {
	uniqueKeys := make(map[string]struct{})

	for _, pattern := range patterns {
		if pattern == "" {
			continue
		}

		var cursor uint64
		for {
			keys, nextCursor, err := r.rdb().Scan(ctx, cursor, pattern, 500).Result()
			if err != nil {
				return nil, err
			}

			for _, key := range keys {
				uniqueKeys[key] = struct{}{}
			}

			cursor = nextCursor
			if cursor == 0 {
				break
			}
		}
	}

	keys := make([]string, 0, len(uniqueKeys))
	for key := range uniqueKeys {
		keys = append(keys, key)
	}

	sort.Strings(keys)
	return keys, nil
}

// DeleteKeys deletes keys in batches and returns the total number of deleted keys.
func (r *queueRepository) DeleteKeys(ctx context.Context, keys []string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}

	const batchSize = 500
	var totalDeleted int64

	for i := 0; i < len(keys); i += batchSize {
		end := i + batchSize
		if end > len(keys) {
			end = len(keys)
		}

		deleted, err := r.rdb().Del(ctx, keys[i:end]...).Result()
		if err != nil {
			return totalDeleted, err
		}
		totalDeleted += deleted
	}

	return totalDeleted, nil
}
