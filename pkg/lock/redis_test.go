package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestRedisLock_SingleInstance(t *testing.T) {
	mr, client := newClient(t)
	lock := New(client, "statistics:provider_name", Options{})
	ctx := context.Background()

	acquired, err := lock.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, acquired)
	assert.True(t, lock.IsHeld())
	assert.True(t, mr.Exists(KeyPrefix+"statistics:provider_name"))

	require.NoError(t, lock.Unlock(ctx))
	assert.False(t, lock.IsHeld())
	assert.False(t, mr.Exists(lock.Key()))
}

func TestRedisLock_MultipleInstances(t *testing.T) {
	_, client := newClient(t)
	lock1 := New(client, "multi", Options{})
	lock2 := New(client, "multi", Options{})
	ctx := context.Background()

	acquired1, err := lock1.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, acquired1)

	acquired2, err := lock2.TryLock(ctx)
	require.NoError(t, err)
	assert.False(t, acquired2, "second lock should not be acquired")

	require.NoError(t, lock1.Unlock(ctx))

	acquired2, err = lock2.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, acquired2, "second lock should be acquired after first release")
	require.NoError(t, lock2.Unlock(ctx))
}

func TestRedisLock_UnlockDoesNotReleaseForeignLock(t *testing.T) {
	mr, client := newClient(t)
	lock1 := New(client, "foreign", Options{})
	lock2 := New(client, "foreign", Options{})
	ctx := context.Background()

	_, err := lock1.TryLock(ctx)
	require.NoError(t, err)

	mr.FastForward(DefaultTTL + time.Second)
	acquired, err := lock2.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, acquired)

	require.NoError(t, lock1.Unlock(ctx))
	assert.True(t, mr.Exists(lock2.Key()), "expired owner must not delete the new owner's lock")
	require.NoError(t, lock2.Unlock(ctx))
}

func TestRedisLock_AutoExpire(t *testing.T) {
	mr, client := newClient(t)
	lock1 := New(client, "expire", Options{})
	lock2 := New(client, "expire", Options{})
	ctx := context.Background()

	acquired1, err := lock1.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, acquired1)

	mr.FastForward(DefaultTTL + time.Second)

	acquired2, err := lock2.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, acquired2, "lock should be available after TTL expiration")
	require.NoError(t, lock2.Unlock(ctx))
}

func TestRedisLock_NilClient(t *testing.T) {
	lock := New(nil, "nil", Options{})
	ctx := context.Background()

	acquired, err := lock.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, acquired)
	assert.True(t, lock.IsHeld())

	require.NoError(t, lock.Unlock(ctx))
	assert.False(t, lock.IsHeld())
}

func TestRedisLock_AcquireWaitsForRelease(t *testing.T) {
	_, client := newClient(t)
	holder := New(client, "wait", Options{})
	waiter := New(client, "wait", Options{})
	ctx := context.Background()

	_, err := holder.TryLock(ctx)
	require.NoError(t, err)

	go func() {
		time.Sleep(200 * time.Millisecond)
		holder.Unlock(ctx)
	}()

	require.NoError(t, waiter.Acquire(ctx, 5*time.Second))
	assert.True(t, waiter.IsHeld())
	require.NoError(t, waiter.Unlock(ctx))
}

func TestRedisLock_AcquireTimesOut(t *testing.T) {
	_, client := newClient(t)
	holder := New(client, "timeout", Options{})
	waiter := New(client, "timeout", Options{})
	ctx := context.Background()

	_, err := holder.TryLock(ctx)
	require.NoError(t, err)
	defer holder.Unlock(ctx)

	err = waiter.Acquire(ctx, 100*time.Millisecond)
	assert.ErrorIs(t, err, ErrNotAcquired)
	assert.False(t, waiter.IsHeld())
}

func TestRedisLock_PreventDoubleLock(t *testing.T) {
	_, client := newClient(t)
	lock1 := New(client, "double", Options{})
	lock2 := New(client, "double", Options{})
	ctx := context.Background()

	acquired1, err1 := lock1.TryLock(ctx)
	acquired2, err2 := lock2.TryLock(ctx)
	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.True(t, acquired1 != acquired2, "exactly one lock should be acquired")

	lock1.Unlock(ctx)
	lock2.Unlock(ctx)
}
