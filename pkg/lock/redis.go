// Package lock provides the Redis lock that keeps statistics recomputation to
// one instance at a time.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"exportestimator/pkg/logger"
)

const (
	// KeyPrefix namespaces every lock key.
	KeyPrefix = "estimator:lock:"

	DefaultTTL            = 30 * time.Second
	DefaultRenewInterval  = 10 * time.Second
	DefaultMaxHold        = 2 * time.Hour
	defaultAcquireTimeout = 5 * time.Second
	defaultPollInterval   = 500 * time.Millisecond
)

// ErrNotAcquired is returned by Acquire when the wait elapses.
var ErrNotAcquired = errors.New("lock not acquired")

const unlockScript = `
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`

const renewScript = `
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("pexpire", KEYS[1], ARGV[2])
	else
		return 0
	end
`

// Locker is a lock held by at most one instance.
type Locker interface {
	TryLock(ctx context.Context) (bool, error)
	Unlock(ctx context.Context) error
	IsHeld() bool
}

// Options tunes a RedisLock.
type Options struct {
	TTL           time.Duration
	RenewInterval time.Duration
	MaxHold       time.Duration
}

// RedisLock is a SET NX lock with background renewal. A nil client runs in
// single-instance mode where TryLock always succeeds.
type RedisLock struct {
	client *redis.Client
	key    string
	token  string
	opts   Options

	mu           sync.Mutex
	held         bool
	acquiredAt   time.Time
	stopRenew    chan struct{}
	renewStopped bool
}

// New creates a lock named name.
func New(client *redis.Client, name string, opts Options) *RedisLock {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.RenewInterval <= 0 || opts.RenewInterval >= opts.TTL {
		opts.RenewInterval = opts.TTL / 3
	}
	if opts.MaxHold <= 0 {
		opts.MaxHold = DefaultMaxHold
	}
	return &RedisLock{
		client: client,
		key:    KeyPrefix + name,
		token:  uuid.NewString(),
		opts:   opts,
	}
}

// Key returns the Redis key of the lock.
func (l *RedisLock) Key() string { return l.key }

// TryLock acquires the lock without waiting.
func (l *RedisLock) TryLock(ctx context.Context) (bool, error) {
	if l.client == nil {
		l.mu.Lock()
		l.held = true
		l.mu.Unlock()
		return true, nil
	}

	acquireCtx, cancel := context.WithTimeout(ctx, defaultAcquireTimeout)
	defer cancel()

	acquired, err := l.client.SetNX(acquireCtx, l.key, l.token, l.opts.TTL).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock %s: %w", l.key, err)
	}
	if !acquired {
		logger.DebugCtx(ctx, "lock %s already held by another instance", l.key)
		return false, nil
	}

	l.mu.Lock()
	l.held = true
	l.acquiredAt = time.Now()
	l.stopRenew = make(chan struct{})
	l.renewStopped = false
	stop := l.stopRenew
	l.mu.Unlock()

	go l.renew(ctx, stop)

	logger.DebugCtx(ctx, "lock %s acquired", l.key)
	return true, nil
}

// Acquire retries TryLock until it succeeds, wait elapses or ctx is done.
func (l *RedisLock) Acquire(ctx context.Context, wait time.Duration) error {
	deadline := time.Now().Add(wait)
	ticker := time.NewTicker(defaultPollInterval)
	defer ticker.Stop()

	for {
		ok, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: %s after %s", ErrNotAcquired, l.key, wait)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Unlock releases the lock if this instance still owns it.
func (l *RedisLock) Unlock(ctx context.Context) error {
	l.mu.Lock()
	if !l.held && (l.stopRenew == nil || l.renewStopped) {
		l.mu.Unlock()
		return nil
	}
	if l.client == nil {
		l.held = false
		l.mu.Unlock()
		return nil
	}
	if l.stopRenew != nil && !l.renewStopped {
		l.renewStopped = true
		close(l.stopRenew)
	}
	l.mu.Unlock()

	result, err := l.client.Eval(ctx, unlockScript, []string{l.key}, l.token).Int64()
	if err != nil {
		return fmt.Errorf("failed to release lock %s: %w", l.key, err)
	}

	l.mu.Lock()
	l.held = false
	l.mu.Unlock()

	if result == 1 {
		logger.DebugCtx(ctx, "lock %s released", l.key)
	} else {
		logger.WarnCtx(ctx, "lock %s was already released or taken over", l.key)
	}
	return nil
}

// IsHeld reports whether this instance holds the lock.
func (l *RedisLock) IsHeld() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held
}

func (l *RedisLock) renew(ctx context.Context, stop <-chan struct{}) {
	ticker := time.NewTicker(l.opts.RenewInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.mu.Lock()
			hold := time.Since(l.acquiredAt)
			l.mu.Unlock()

			if hold > l.opts.MaxHold {
				logger.WarnCtx(ctx, "lock %s held for %.0f seconds, no longer renewing", l.key, hold.Seconds())
				l.markLost()
				return
			}

			result, err := l.client.Eval(ctx, renewScript, []string{l.key}, l.token, l.opts.TTL.Milliseconds()).Int64()
			if err != nil {
				logger.WarnCtx(ctx, "failed to renew lock %s: %v", l.key, err)
				l.markLost()
				return
			}
			if result == 0 {
				logger.WarnCtx(ctx, "lock %s lost before renewal", l.key)
				l.markLost()
				return
			}
		}
	}
}

func (l *RedisLock) markLost() {
	l.mu.Lock()
	l.held = false
	l.mu.Unlock()
}
