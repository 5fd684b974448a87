package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exportestimator/pkg/config"
)

func newRedisStore(t *testing.T) (*miniredis.Miniredis, *RedisStore) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, NewRedisStore(client)
}

func newBadgerStore(t *testing.T) *BadgerStore {
	s, err := NewBadgerStore(BadgerConfig{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStores_RoundTrip(t *testing.T) {
	_, rs := newRedisStore(t)
	stores := map[string]Store{
		"memory":   NewMemoryStore(),
		"redis":    rs,
		"badger":   newBadgerStore(t),
		"fallback": NewFallbackStore(NewMemoryStore(), nil),
	}

	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := store.Get(ctx, "missing")
			assert.ErrorIs(t, err, ErrCacheMiss)

			require.NoError(t, store.Set(ctx, "k", []byte(`{"run_count":1}`), time.Hour))
			got, err := store.Get(ctx, "k")
			require.NoError(t, err)
			assert.Equal(t, `{"run_count":1}`, string(got))

			require.NoError(t, store.Set(ctx, "k", []byte("v2"), time.Hour))
			got, err = store.Get(ctx, "k")
			require.NoError(t, err)
			assert.Equal(t, "v2", string(got))

			require.NoError(t, store.Delete(ctx, "k"))
			_, err = store.Get(ctx, "k")
			assert.ErrorIs(t, err, ErrCacheMiss)
		})
	}
}

func TestMemoryStore_Expiry(t *testing.T) {
	s := NewMemoryStore()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "ttl", []byte("a"), time.Minute))
	require.NoError(t, s.Set(ctx, "forever", []byte("b"), 0))

	now = now.Add(2 * time.Minute)
	_, err := s.Get(ctx, "ttl")
	assert.ErrorIs(t, err, ErrCacheMiss)

	got, err := s.Get(ctx, "forever")
	require.NoError(t, err)
	assert.Equal(t, "b", string(got))
	assert.Equal(t, 1, s.Len())
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	value := []byte("abc")
	require.NoError(t, s.Set(ctx, "k", value, 0))
	value[0] = 'x'

	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}

func TestRedisStore_Expiry(t *testing.T) {
	mr, s := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", []byte("v"), time.Minute))
	assert.Equal(t, time.Minute, mr.TTL("k"))

	mr.FastForward(2 * time.Minute)
	_, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisStore_Unavailable(t *testing.T) {
	mr, s := newRedisStore(t)
	mr.Close()

	_, err := s.Get(context.Background(), "k")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrCacheMiss))
}

func TestFallbackStore_ServesWhenPrimaryIsDown(t *testing.T) {
	mr, primary := newRedisStore(t)
	secondary := NewMemoryStore()
	s := NewFallbackStore(primary, secondary)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", []byte("v"), time.Hour))
	assert.True(t, mr.Exists("k"))
	assert.Equal(t, 1, secondary.Len())

	mr.Close()

	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", string(got))

	require.NoError(t, s.Set(ctx, "other", []byte("w"), time.Hour), "one healthy store is enough")
}

func TestNewStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	tests := []struct {
		name    string
		cfg     config.CacheConfig
		client  *redis.Client
		want    any
		wantErr bool
	}{
		{"redis", config.CacheConfig{Backend: config.CacheBackendRedis}, client, &FallbackStore{}, false},
		{"default is redis", config.CacheConfig{}, client, &FallbackStore{}, false},
		{"redis without client", config.CacheConfig{Backend: config.CacheBackendRedis}, nil, nil, true},
		{"memory", config.CacheConfig{Backend: config.CacheBackendMemory}, nil, &MemoryStore{}, false},
		{"badger", config.CacheConfig{Backend: config.CacheBackendBadger, BadgerPath: t.TempDir()}, nil, &BadgerStore{}, false},
		{"unknown", config.CacheConfig{Backend: "etcd"}, nil, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, closeFn, err := NewStore(tt.cfg, tt.client)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, store)
			assert.NoError(t, closeFn())
		})
	}
}
