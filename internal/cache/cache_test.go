package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilLockerGrantsLock(t *testing.T) {
	var l *Locker
	assert.Nil(t, NewLocker(nil))
	assert.False(t, l.Enabled())

	token, ok, err := l.TryLock(context.Background(), "k", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, token)
	assert.NoError(t, l.Release(context.Background(), "k", token))
}

func TestLockerValidatesArguments(t *testing.T) {
	var l *Locker
	_, _, err := l.TryLock(context.Background(), "", time.Second)
	assert.ErrorIs(t, err, ErrLockKeyEmpty)
	_, _, err = l.TryLock(context.Background(), "k", 0)
	assert.ErrorIs(t, err, ErrLockTTLInvalid)
}

func TestNilJSONCacheMisses(t *testing.T) {
	c := NewJSONCache(nil)
	var out map[string]int
	found, err := c.Get(context.Background(), "k", &out)
	require.NoError(t, err)
	assert.False(t, found)
	assert.NoError(t, c.Set(context.Background(), "k", map[string]int{"a": 1}, time.Minute))
}

func redisForTest(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	return client
}

func TestLockerAgainstRedis(t *testing.T) {
	client := redisForTest(t)
	ctx := context.Background()
	l := NewLocker(client)
	key := "storepulse:test:lock:" + uuid.NewString()

	token, ok, err := l.TryLock(ctx, key, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = l.TryLock(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, l.Release(ctx, key, "someone-else"))
	_, ok, _ = l.TryLock(ctx, key, time.Minute)
	assert.False(t, ok)

	require.NoError(t, l.Release(ctx, key, token))
	_, ok, err = l.TryLock(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	client.Del(ctx, key)
}

func TestJSONCacheAgainstRedis(t *testing.T) {
	client := redisForTest(t)
	ctx := context.Background()
	c := NewJSONCache(client)
	key := "storepulse:test:json:" + uuid.NewString()
	t.Cleanup(func() { client.Del(ctx, key) })

	require.NoError(t, c.Set(ctx, key, map[string]int{"visits": 3}, time.Minute))
	var out map[string]int
	found, err := c.Get(ctx, key, &out)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 3, out["visits"])
}
