package shared

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestLocker(t *testing.T, wait time.Duration) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisLocker(client, time.Second, wait, nil), mr
}

func TestRedisLockerRejectsSecondHolder(t *testing.T) {
	locker, mr := newTestLocker(t, 0)
	key := DocumentLockKey(7)

	err := locker.WithLock(context.Background(), key, func(ctx context.Context) error {
		require.True(t, mr.Exists(key))
		inner := locker.WithLock(ctx, key, func(context.Context) error {
			t.Fatal("second holder must not run")
			return nil
		})
		require.ErrorIs(t, inner, ErrLocked)

		other := locker.WithLock(ctx, DocumentLockKey(8), func(context.Context) error { return nil })
		require.NoError(t, other)
		return nil
	})
	require.NoError(t, err)
	require.False(t, mr.Exists(key))
}

func TestRedisLockerWaitsForRelease(t *testing.T) {
	locker, _ := newTestLocker(t, 2*time.Second)
	key := AttemptLockKey("a1")

	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- locker.WithLock(context.Background(), key, func(context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	time.AfterFunc(100*time.Millisecond, func() { close(release) })
	ran := false
	err := locker.WithLock(context.Background(), key, func(context.Context) error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	require.True(t, ran)
	require.NoError(t, <-done)
}

func TestLocalLockerHonoursContext(t *testing.T) {
	locker := NewLocalLocker()
	key := DocumentLockKey(1)

	err := locker.WithLock(context.Background(), key, func(context.Context) error {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		return locker.WithLock(ctx, key, func(context.Context) error { return nil })
	})
	require.ErrorIs(t, err, ErrLocked)

	require.NoError(t, locker.WithLock(context.Background(), key, func(context.Context) error { return nil }))
}
