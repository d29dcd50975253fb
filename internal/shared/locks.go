package shared

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// DocumentLockKey builds redis keys for per-document transition sections.
func DocumentLockKey(documentID int64) string {
	return fmt.Sprintf("doclife:document:%d:lock", documentID)
}

// AttemptLockKey guards reconciliation of a single finalize attempt.
func AttemptLockKey(attemptID string) string {
	return fmt.Sprintf("doclife:attempt:%s:lock", attemptID)
}

// Locker serialises work on a key across instances.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(context.Context) error) error
}

// RedisLocker implements Locker with redislock.
type RedisLocker struct {
	client *redislock.Client
	ttl    time.Duration
	wait   time.Duration
	logger *slog.Logger
}

// NewRedisLocker constructs the locker. ttl bounds how long a crashed holder blocks
// others, wait bounds how long a caller queues for the lock.
func NewRedisLocker(client *redis.Client, ttl, wait time.Duration, logger *slog.Logger) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisLocker{client: redislock.New(client), ttl: ttl, wait: wait, logger: logger}
}

// WithLock runs fn while holding key. The lock is refreshed once when fn outlives
// half of the ttl.
func (l *RedisLocker) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	if l == nil || l.client == nil {
		return errors.New("locker not initialised")
	}
	obtainCtx := ctx
	opts := &redislock.Options{}
	if l.wait > 0 {
		var cancel context.CancelFunc
		obtainCtx, cancel = context.WithTimeout(ctx, l.wait)
		defer cancel()
		opts.RetryStrategy = redislock.LinearBackoff(50 * time.Millisecond)
	}
	lock, err := l.client.Obtain(obtainCtx, key, l.ttl, opts)
	if errors.Is(err, redislock.ErrNotObtained) || (errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil) {
		l.logger.Warn("lock busy", slog.String("key", key))
		return fmt.Errorf("%w: %s", ErrLocked, key)
	}
	if err != nil {
		return fmt.Errorf("shared: obtain lock %s: %w", key, err)
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := lock.Release(releaseCtx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			l.logger.Warn("lock release", slog.String("key", key), slog.Any("error", err))
		}
	}()

	done := make(chan struct{})
	defer close(done)
	go func() {
		timer := time.NewTimer(l.ttl / 2)
		defer timer.Stop()
		select {
		case <-done:
		case <-timer.C:
			if err := lock.Refresh(context.WithoutCancel(ctx), l.ttl, nil); err != nil {
				l.logger.Warn("lock refresh", slog.String("key", key), slog.Any("error", err))
			}
		}
	}()

	return fn(ctx)
}

// LocalLocker is a process-local Locker used by tests and single-instance setups.
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

// NewLocalLocker constructs an in-process locker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{slots: make(map[string]chan struct{})}
}

// WithLock runs fn while holding key within this process.
func (l *LocalLocker) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	l.mu.Lock()
	ch, ok := l.slots[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[key] = ch
	}
	l.mu.Unlock()
	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("%w: %s", ErrLocked, key)
	}
	defer func() { <-ch }()
	return fn(ctx)
}
