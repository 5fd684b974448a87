package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"exportestimator/pkg/aggregate"
	"exportestimator/pkg/lock"
	"exportestimator/pkg/logger"
)

const (
	// KeyPrefix is prepended to the grouping name to form the cache key.
	KeyPrefix = "DATA_STATISTICS_BY_"

	DefaultTTL      = 24 * time.Hour
	DefaultLockWait = 30 * time.Second
)

// ComputeFunc runs one aggregation pass for grouping.
type ComputeFunc func(ctx context.Context, grouping aggregate.GroupingStrategy) (*aggregate.Tree, error)

// Guard serialises recomputation across instances.
type Guard interface {
	Acquire(ctx context.Context, wait time.Duration) error
	Unlock(ctx context.Context) error
}

// GuardFunc returns the guard for a cache key.
type GuardFunc func(key string) Guard

// StatisticsOptions tunes a StatisticsCache.
type StatisticsOptions struct {
	TTL      time.Duration
	LockWait time.Duration
	// Guard is optional. Without it only the in-process mutex applies.
	Guard GuardFunc
}

// StatisticsCache serves aggregate trees per grouping, recomputing them on
// miss or when forced. A failed or cancelled pass never writes the cache.
type StatisticsCache struct {
	store   Store
	compute ComputeFunc
	opts    StatisticsOptions

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewStatisticsCache creates a StatisticsCache.
func NewStatisticsCache(store Store, compute ComputeFunc, opts StatisticsOptions) *StatisticsCache {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.LockWait <= 0 {
		opts.LockWait = DefaultLockWait
	}
	return &StatisticsCache{
		store:   store,
		compute: compute,
		opts:    opts,
		locks:   make(map[string]*sync.Mutex),
	}
}

// Key returns the cache key of a grouping.
func Key(grouping string) string {
	return KeyPrefix + grouping
}

// Get returns the tree for grouping, from the cache unless force is set.
func (c *StatisticsCache) Get(ctx context.Context, grouping aggregate.GroupingStrategy, force bool) (*aggregate.Tree, error) {
	if grouping == nil {
		return nil, errors.New("grouping strategy is required")
	}
	key := Key(grouping.Name())

	if !force {
		if tree, ok := c.load(ctx, key); ok {
			return tree, nil
		}
	}

	mu := c.keyLock(key)
	mu.Lock()
	defer mu.Unlock()

	// A concurrent caller may have filled the entry while we waited.
	if !force {
		if tree, ok := c.load(ctx, key); ok {
			return tree, nil
		}
	}

	if c.opts.Guard != nil {
		guard := c.opts.Guard(key)
		err := guard.Acquire(ctx, c.opts.LockWait)
		switch {
		case err == nil:
			defer func() {
				if err := guard.Unlock(context.WithoutCancel(ctx)); err != nil {
					logger.WarnCtx(ctx, "failed to release statistics lock for %s: %v", key, err)
				}
			}()
			if !force {
				if tree, ok := c.load(ctx, key); ok {
					return tree, nil
				}
			}
		case errors.Is(err, lock.ErrNotAcquired):
			logger.WarnCtx(ctx, "statistics for %s are being computed elsewhere, computing anyway", key)
		default:
			return nil, fmt.Errorf("failed to lock statistics %s: %w", key, err)
		}
	}

	return c.refresh(ctx, key, grouping)
}

// Invalidate drops the cached tree of grouping.
func (c *StatisticsCache) Invalidate(ctx context.Context, grouping string) error {
	return c.store.Delete(ctx, Key(grouping))
}

func (c *StatisticsCache) refresh(ctx context.Context, key string, grouping aggregate.GroupingStrategy) (*aggregate.Tree, error) {
	start := time.Now()
	tree, err := c.compute(ctx, grouping)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("statistics pass for %s cancelled: %w", key, err)
	}

	data, err := tree.Encode()
	if err != nil {
		return nil, fmt.Errorf("failed to encode statistics %s: %w", key, err)
	}
	if err := c.store.Set(ctx, key, data, c.opts.TTL); err != nil {
		logger.WarnCtx(ctx, "failed to cache statistics %s: %v", key, err)
	} else {
		logger.InfoCtx(ctx, "cached statistics %s (%d bytes, computed in %s)", key, len(data), time.Since(start).Round(time.Millisecond))
	}
	return tree, nil
}

// load reads and decodes key. Misses, store failures and corrupt entries
// all report false.
func (c *StatisticsCache) load(ctx context.Context, key string) (*aggregate.Tree, bool) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			logger.WarnCtx(ctx, "failed to read statistics %s: %v", key, err)
		}
		return nil, false
	}
	tree, err := aggregate.DecodeTree(data)
	if err != nil {
		logger.WarnCtx(ctx, "discarding corrupt statistics %s: %v", key, err)
		return nil, false
	}
	return tree, true
}

func (c *StatisticsCache) keyLock(key string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	mu, ok := c.locks[key]
	if !ok {
		mu = &sync.Mutex{}
		c.locks[key] = mu
	}
	return mu
}
