package runlock

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocal_ExclusiveUntilReleased(t *testing.T) {
	ctx := context.Background()
	l := NewLocal()

	release, ok, err := l.TryAcquire(ctx, "sync")
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = l.TryAcquire(ctx, "sync")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = l.TryAcquire(ctx, "report")
	require.NoError(t, err)
	assert.True(t, ok, "keys are independent")

	release()
	release()
	_, ok, err = l.TryAcquire(ctx, "sync")
	require.NoError(t, err)
	assert.True(t, ok)
}

func setupRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	require.NoError(t, client.Ping(context.Background()).Err())
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	return client, mr
}

func TestRedis_ExclusiveAcrossHolders(t *testing.T) {
	ctx := context.Background()
	client, mr := setupRedis(t)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	a := NewRedis(client, time.Minute, log)
	b := NewRedis(client, time.Minute, log)

	release, ok, err := a.TryAcquire(ctx, "sync")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, mr.Exists(keyPrefix+"sync"))
	assert.Equal(t, time.Minute, mr.TTL(keyPrefix+"sync"))

	_, ok, err = b.TryAcquire(ctx, "sync")
	require.NoError(t, err)
	assert.False(t, ok)

	release()
	assert.False(t, mr.Exists(keyPrefix+"sync"))

	_, ok, err = b.TryAcquire(ctx, "sync")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedis_ReleaseKeepsForeignLock(t *testing.T) {
	ctx := context.Background()
	client, mr := setupRedis(t)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	lock := NewRedis(client, time.Second, log)

	release, ok, err := lock.TryAcquire(ctx, "sync")
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)
	_, ok, err = NewRedis(client, time.Minute, log).TryAcquire(ctx, "sync")
	require.NoError(t, err)
	require.True(t, ok)

	release()
	assert.True(t, mr.Exists(keyPrefix+"sync"))
}

func TestRedis_HolderExtendsTTL(t *testing.T) {
	ctx := context.Background()
	client, mr := setupRedis(t)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	lock := NewRedis(client, time.Minute, log)
	lock.refresh = 10 * time.Millisecond

	release, ok, err := lock.TryAcquire(ctx, "sync")
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(50 * time.Second)
	assert.Eventually(t, func() bool {
		return mr.TTL(keyPrefix+"sync") == time.Minute
	}, time.Second, 5*time.Millisecond)

	mr.FastForward(50 * time.Second)
	assert.Eventually(t, func() bool {
		return mr.TTL(keyPrefix+"sync") == time.Minute
	}, time.Second, 5*time.Millisecond)
	_, ok, err = NewRedis(client, time.Minute, log).TryAcquire(ctx, "sync")
	require.NoError(t, err)
	assert.False(t, ok)

	release()
	assert.False(t, mr.Exists(keyPrefix+"sync"))
}

func TestRedis_ExtendIgnoresForeignToken(t *testing.T) {
	client, mr := setupRedis(t)
	lock := NewRedis(client, time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil)))

	require.NoError(t, mr.Set(keyPrefix+"sync", "someone-else"))
	mr.SetTTL(keyPrefix+"sync", 10*time.Second)

	held, err := lock.extend(keyPrefix+"sync", "mine")
	require.NoError(t, err)
	assert.False(t, held)
	assert.Equal(t, 10*time.Second, mr.TTL(keyPrefix+"sync"))
}

func TestRedis_UnavailableIsError(t *testing.T) {
	client, mr := setupRedis(t)
	mr.Close()
	_, ok, err := NewRedis(client, time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil))).TryAcquire(context.Background(), "sync")
	assert.Error(t, err)
	assert.False(t, ok)
}
