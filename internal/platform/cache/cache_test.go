package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, "test", time.Minute)
}

func TestFetchJSONPopulatesOnMiss(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	key, err := c.BuildKey(ctx, "report", "2024")
	require.NoError(t, err)

	calls := 0
	loader := func(context.Context) (interface{}, error) {
		calls++
		return map[string]float64{"total": 42}, nil
	}

	var first map[string]float64
	require.NoError(t, c.FetchJSON(ctx, key, &first, loader))
	require.Equal(t, 42.0, first["total"])
	require.Equal(t, 1, calls)

	var second map[string]float64
	require.NoError(t, c.FetchJSON(ctx, key, &second, loader))
	require.Equal(t, 42.0, second["total"])
	require.Equal(t, 1, calls)
}

func TestBumpInvalidatesKeys(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	before, err := c.BuildKey(ctx, "report")
	require.NoError(t, err)
	require.NoError(t, c.Bump(ctx))
	after, err := c.BuildKey(ctx, "report")
	require.NoError(t, err)
	require.NotEqual(t, before, after)
}

func TestNilCacheDegradesToLoader(t *testing.T) {
	var c *Cache
	ctx := context.Background()

	key, err := c.BuildKey(ctx, "a", "b")
	require.NoError(t, err)
	require.Equal(t, "a:b", key)

	var out map[string]int
	err = c.FetchJSON(ctx, key, &out, func(context.Context) (interface{}, error) {
		return map[string]int{"n": 7}, nil
	})
	require.NoError(t, err)
	require.Equal(t, 7, out["n"])
	require.NoError(t, c.Bump(ctx))
}
