package stats

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/ride-search/internal/models"
)

// fakeRedis keeps sorted set scores and hashes in maps.
type fakeRedis struct {
	scores  map[string]float64
	hashes  map[string]map[string]string
	hsetErr error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{scores: map[string]float64{}, hashes: map[string]map[string]string{}}
}

func (f *fakeRedis) ZIncrBy(_ context.Context, _ string, inc float64, member string) *redis.FloatCmd {
	f.scores[member] += inc
	return redis.NewFloatResult(f.scores[member], nil)
}

func (f *fakeRedis) ZRevRangeWithScores(_ context.Context, _ string, start, stop int64) *redis.ZSliceCmd {
	zs := make([]redis.Z, 0, len(f.scores))
	for m, s := range f.scores {
		zs = append(zs, redis.Z{Member: m, Score: s})
	}
	sort.Slice(zs, func(i, j int) bool { return zs[i].Score > zs[j].Score })
	if stop+1 < int64(len(zs)) {
		zs = zs[:stop+1]
	}
	return redis.NewZSliceCmdResult(zs[start:], nil)
}

func (f *fakeRedis) HSet(_ context.Context, key string, values ...interface{}) *redis.IntCmd {
	if f.hsetErr != nil {
		return redis.NewIntResult(0, f.hsetErr)
	}
	h, ok := f.hashes[key]
	if !ok {
		h = map[string]string{}
		f.hashes[key] = h
	}
	for i := 0; i+1 < len(values); i += 2 {
		h[values[i].(string)] = values[i+1].(string)
	}
	return redis.NewIntResult(int64(len(values)/2), nil)
}

func (f *fakeRedis) HMGet(_ context.Context, key string, fields ...string) *redis.SliceCmd {
	out := make([]interface{}, len(fields))
	for i, field := range fields {
		if v, ok := f.hashes[key][field]; ok {
			out[i] = v
		}
	}
	return redis.NewSliceResult(out, nil)
}

func TestRecordAndTop(t *testing.T) {
	r := newFakeRedis()
	s := NewRouteStats(r)
	ctx := context.Background()
	at := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Record(ctx, models.SearchEvent{Origin: "Waterloo", Destination: "Toronto", At: at}))
	}
	require.NoError(t, s.Record(ctx, models.SearchEvent{Origin: "Guelph", Destination: "Kitchener", At: at}))
	require.NoError(t, s.Record(ctx, models.SearchEvent{}))

	assert.Equal(t, "2025-06-01T09:00:00Z", r.hashes["search:route:waterloo|toronto"]["last_seen"])

	top, err := s.Top(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []models.RouteCount{{Origin: "Waterloo", Destination: "Toronto", Searches: 3}}, top)

	top, err = s.Top(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, top, 2)

	top, err = s.Top(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, top)
}

func TestRecordDoesNotCountWhenHashFails(t *testing.T) {
	r := newFakeRedis()
	r.hsetErr = errors.New("readonly")
	err := NewRouteStats(r).Record(context.Background(), models.SearchEvent{Origin: "A", Destination: "B"})
	require.Error(t, err)
	assert.Empty(t, r.scores)
}

func TestTopFallsBackToRouteKey(t *testing.T) {
	r := newFakeRedis()
	r.scores["a|b"] = 2
	top, err := NewRouteStats(r).Top(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, []models.RouteCount{{Origin: "a", Destination: "b", Searches: 2}}, top)
}
