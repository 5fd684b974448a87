package cache

import (
	"fmt"

	"github.com/go-redis/redis/v8"

	"exportestimator/pkg/config"
)

// NewStore creates the store selected by cfg. The returned close function
// releases the store's own resources; the Redis client is left open.
func NewStore(cfg config.CacheConfig, client *redis.Client) (Store, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Backend {
	case config.CacheBackendRedis, "":
		if client == nil {
			return nil, nil, fmt.Errorf("cache backend %q requires redis", config.CacheBackendRedis)
		}
		return NewFallbackStore(NewRedisStore(client), nil), noop, nil
	case config.CacheBackendBadger:
		store, err := NewBadgerStore(BadgerConfig{Path: cfg.BadgerPath})
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	case config.CacheBackendMemory:
		return NewMemoryStore(), noop, nil
	default:
		return nil, nil, fmt.Errorf("unsupported cache backend: %s", cfg.Backend)
	}
}
