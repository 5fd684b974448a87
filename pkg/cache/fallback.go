package cache

import (
	"context"
	"errors"
	"time"

	"exportestimator/pkg/logger"
)

// FallbackStore writes to both stores and reads from the primary first,
// using the secondary when the primary misses or fails. It keeps statistics
// served while Redis is unavailable.
type FallbackStore struct {
	primary   Store
	secondary Store
}

// NewFallbackStore creates a FallbackStore. A nil secondary becomes a
// MemoryStore.
func NewFallbackStore(primary, secondary Store) *FallbackStore {
	if secondary == nil {
		secondary = NewMemoryStore()
	}
	return &FallbackStore{primary: primary, secondary: secondary}
}

func (s *FallbackStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.primary.Get(ctx, key)
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		logger.WarnCtx(ctx, "primary cache read failed, using fallback: %v", err)
	}
	return s.secondary.Get(ctx, key)
}

// Set succeeds when at least one store accepted the value.
func (s *FallbackStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	primaryErr := s.primary.Set(ctx, key, value, ttl)
	if primaryErr != nil {
		logger.WarnCtx(ctx, "primary cache write failed: %v", primaryErr)
	}
	if err := s.secondary.Set(ctx, key, value, ttl); err != nil {
		if primaryErr != nil {
			return errors.Join(primaryErr, err)
		}
		logger.WarnCtx(ctx, "fallback cache write failed: %v", err)
	}
	return nil
}

func (s *FallbackStore) Delete(ctx context.Context, key string) error {
	return errors.Join(s.primary.Delete(ctx, key), s.secondary.Delete(ctx, key))
}
