package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/ride-search/internal/models"
)

// KV is the subset of redis commands RedisCache needs; *redis.Client
// satisfies it.
type KV interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// RedisCache stores pages as JSON blobs that expire after ttl.
type RedisCache struct {
	client KV
	ttl    time.Duration
}

func NewRedisCache(client KV, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func (r *RedisCache) Get(ctx context.Context, key string) (models.SearchResultPage, bool, error) {
	raw, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.SearchResultPage{}, false, nil
	}
	if err != nil {
		return models.SearchResultPage{}, false, err
	}
	var page models.SearchResultPage
	if err := json.Unmarshal(raw, &page); err != nil {
		return models.SearchResultPage{}, false, fmt.Errorf("decode cached page %s: %w", key, err)
	}
	return page, true, nil
}

func (r *RedisCache) Set(ctx context.Context, key string, page models.SearchResultPage) error {
	b, err := json.Marshal(page)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, key, b, r.ttl).Err()
}
