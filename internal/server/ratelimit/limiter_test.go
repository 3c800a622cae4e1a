package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestAllow_FixedWindow(t *testing.T) {
	mr, rdb := newTestRedis(t)
	l := New(rdb, map[string]Rule{"login": {Limit: 2, Window: time.Minute}})
	ctx := context.Background()

	d, err := l.Allow(ctx, "login", "203.0.113.7")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Remaining)

	d, err = l.Allow(ctx, "login", "203.0.113.7")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)

	d, err = l.Allow(ctx, "login", "203.0.113.7")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, time.Minute, d.RetryAfter)

	assert.Equal(t, time.Minute, mr.TTL("rl:login:203.0.113.7"))

	// Other clients have their own window.
	d, err = l.Allow(ctx, "login", "198.51.100.1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	mr.FastForward(time.Minute)
	d, err = l.Allow(ctx, "login", "203.0.113.7")
	require.NoError(t, err)
	assert.True(t, d.Allowed, "window resets after expiry")
}

func TestAllow_UnknownOperation(t *testing.T) {
	_, rdb := newTestRedis(t)
	l := New(rdb, map[string]Rule{})

	for i := 0; i < 10; i++ {
		d, err := l.Allow(context.Background(), "refresh", "k")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	}
}

func TestAllow_RedisDown(t *testing.T) {
	mr, rdb := newTestRedis(t)
	l := New(rdb, map[string]Rule{"register": {Limit: 1, Window: time.Hour}})
	mr.Close()

	d, err := l.Allow(context.Background(), "register", "k")
	assert.True(t, errors.Is(err, ErrRedisUnavailable))
	assert.True(t, d.Allowed, "failures allow the request")
	assert.Error(t, l.Ping(context.Background()))
}

func TestAllow_CounterWithoutExpiryGetsNewWindow(t *testing.T) {
	mr, rdb := newTestRedis(t)
	l := New(rdb, map[string]Rule{"login": {Limit: 2, Window: time.Minute}})
	ctx := context.Background()

	// A counter left behind by an INCR whose EXPIRE never landed.
	require.NoError(t, mr.Set("rl:login:203.0.113.7", "5"))
	assert.Zero(t, mr.TTL("rl:login:203.0.113.7"))

	d, err := l.Allow(ctx, "login", "203.0.113.7")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, time.Minute, d.RetryAfter)
	assert.Equal(t, time.Minute, mr.TTL("rl:login:203.0.113.7"))

	mr.FastForward(time.Minute)
	d, err = l.Allow(ctx, "login", "203.0.113.7")
	require.NoError(t, err)
	assert.True(t, d.Allowed, "client is not locked out forever")
}
