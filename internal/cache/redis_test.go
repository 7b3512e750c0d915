package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) (*RedisClient, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rc := NewFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = rc.Close() })
	return rc, mr
}

func TestLeaseExclusive(t *testing.T) {
	rc, _ := setupRedis(t)
	ctx := context.Background()

	first, err := rc.Acquire(ctx, "cascade:user:u1", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := rc.Acquire(ctx, "cascade:user:u1", time.Minute)
	require.NoError(t, err)
	assert.Nil(t, second)

	require.NoError(t, first.Release(ctx))

	third, err := rc.Acquire(ctx, "cascade:user:u1", time.Minute)
	require.NoError(t, err)
	assert.NotNil(t, third)
}

func TestLeaseExpiryDoesNotReleaseNewHolder(t *testing.T) {
	rc, mr := setupRedis(t)
	ctx := context.Background()

	stale, err := rc.Acquire(ctx, "k", time.Second)
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	fresh, err := rc.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, fresh)

	require.NoError(t, stale.Release(ctx))
	assert.True(t, mr.Exists("k"))

	var nilLease *Lease
	assert.NoError(t, nilLease.Release(ctx))
}

func TestMarkOnce(t *testing.T) {
	rc, mr := setupRedis(t)
	ctx := context.Background()

	ok, err := rc.MarkOnce(ctx, "report:posts/p1", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = rc.MarkOnce(ctx, "report:posts/p1", time.Hour)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, rc.Forget(ctx, "report:posts/p1"))
	assert.False(t, mr.Exists("report:posts/p1"))
}

func TestRedisUnavailable(t *testing.T) {
	rc, mr := setupRedis(t)
	mr.Close()
	_, err := rc.Acquire(context.Background(), "k", time.Second)
	assert.Error(t, err)
}

func TestJSONRoundTrip(t *testing.T) {
	rc, mr := setupRedis(t)
	ctx := context.Background()

	type report struct {
		ID      string   `json:"id"`
		Planned []string `json:"planned"`
	}
	require.NoError(t, rc.PutJSON(ctx, "report:user:u1", report{ID: "u1", Planned: []string{"/feed/u1"}}, time.Hour))

	var got report
	ok, err := rc.GetJSON(ctx, "report:user:u1", &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"/feed/u1"}, got.Planned)

	ok, err = rc.GetJSON(ctx, "report:user:u2", &got)
	require.NoError(t, err)
	assert.False(t, ok)

	mr.FastForward(2 * time.Hour)
	ok, _ = rc.GetJSON(ctx, "report:user:u1", &got)
	assert.False(t, ok)
}
