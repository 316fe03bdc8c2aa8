// Package stats keeps route popularity counters in redis.
package stats

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/ride-search/internal/models"
)

const (
	// RoutesKey is the sorted set of route keys scored by search count.
	RoutesKey      = "search:routes"
	routeKeyPrefix = "search:route:"
)

// RedisClient is the subset of redis commands used here; *redis.Client
// satisfies it.
type RedisClient interface {
	ZIncrBy(ctx context.Context, key string, increment float64, member string) *redis.FloatCmd
	ZRevRangeWithScores(ctx context.Context, key string, start, stop int64) *redis.ZSliceCmd
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	HMGet(ctx context.Context, key string, fields ...string) *redis.SliceCmd
}

type RouteStats struct {
	client RedisClient
}

func NewRouteStats(client RedisClient) *RouteStats {
	return &RouteStats{client: client}
}

// Record counts one search of e's route. The metadata hash is written before
// the counter, so a call that fails on the hash write has not counted yet. A
// counter write that reaches the server but reports an error is counted again
// on retry.
func (s *RouteStats) Record(ctx context.Context, e models.SearchEvent) error {
	key := e.RouteKey()
	if key == "|" {
		return nil
	}
	at := e.At
	if at.IsZero() {
		at = time.Now()
	}
	if err := s.client.HSet(ctx, routeKeyPrefix+key,
		"origin", e.Origin,
		"destination", e.Destination,
		"last_seen", at.UTC().Format(time.RFC3339),
	).Err(); err != nil {
		return fmt.Errorf("hset route %s: %w", key, err)
	}
	if err := s.client.ZIncrBy(ctx, RoutesKey, 1, key).Err(); err != nil {
		return fmt.Errorf("zincrby route %s: %w", key, err)
	}
	return nil
}

// Top returns up to limit routes, most searched first.
func (s *RouteStats) Top(ctx context.Context, limit int) ([]models.RouteCount, error) {
	if limit <= 0 {
		return []models.RouteCount{}, nil
	}
	zs, err := s.client.ZRevRangeWithScores(ctx, RoutesKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]models.RouteCount, 0, len(zs))
	for _, z := range zs {
		key := fmt.Sprint(z.Member)
		rc := models.RouteCount{Searches: int64(z.Score)}
		vals, err := s.client.HMGet(ctx, routeKeyPrefix+key, "origin", "destination").Result()
		if err == nil && len(vals) == 2 {
			rc.Origin, _ = vals[0].(string)
			rc.Destination, _ = vals[1].(string)
		}
		if rc.Origin == "" && rc.Destination == "" {
			rc.Origin, rc.Destination, _ = strings.Cut(key, "|")
		}
		out = append(out, rc)
	}
	return out, nil
}
