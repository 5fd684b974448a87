package asynq

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exportestimator/pkg/config"
	"exportestimator/pkg/logger"
)

func newManager(t *testing.T) *Manager {
	mr := miniredis.RunT(t)
	m := NewManager(config.RedisConfig{Addr: mr.Addr()}, config.QueueConfig{Concurrency: 1, MaxRetry: 1, TaskTimeout: 60})
	t.Cleanup(func() { m.Close() })
	return m
}

func TestManager_EnqueueRefreshDeduplicates(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()

	id, enqueued, err := m.EnqueueRefresh(ctx, "provider_name")
	require.NoError(t, err)
	assert.True(t, enqueued)
	assert.Equal(t, "statistics-refresh:provider_name", id)

	id, enqueued, err = m.EnqueueRefresh(ctx, "provider_name")
	require.NoError(t, err)
	assert.False(t, enqueued, "a queued refresh is not queued twice")
	assert.Equal(t, "statistics-refresh:provider_name", id)

	_, enqueued, err = m.EnqueueRefresh(ctx, "provider_type")
	require.NoError(t, err)
	assert.True(t, enqueued)
}

func TestRefreshHandler(t *testing.T) {
	var got string
	var gotTrace string
	h := NewRefreshHandler(func(ctx context.Context, grouping string) error {
		got = grouping
		gotTrace = logger.TraceID(ctx)
		return nil
	})

	payload, err := json.Marshal(RefreshPayload{Grouping: "provider_type", RequestedAt: time.Now(), TraceID: "trace-1"})
	require.NoError(t, err)

	require.NoError(t, h.ProcessTask(context.Background(), asynq.NewTask(TypeStatisticsRefresh, payload)))
	assert.Equal(t, "provider_type", got)
	assert.Equal(t, "trace-1", gotTrace)
}

func TestRefreshHandler_BadPayloadSkipsRetry(t *testing.T) {
	h := NewRefreshHandler(func(ctx context.Context, grouping string) error {
		t.Fatal("handler must not run")
		return nil
	})

	for name, payload := range map[string][]byte{
		"not json":    []byte("{"),
		"no grouping": []byte(`{"requested_at":"2024-01-01T00:00:00Z"}`),
	} {
		t.Run(name, func(t *testing.T) {
			err := h.ProcessTask(context.Background(), asynq.NewTask(TypeStatisticsRefresh, payload))
			assert.True(t, errors.Is(err, asynq.SkipRetry))
		})
	}
}

func TestRefreshHandler_PropagatesFailure(t *testing.T) {
	boom := errors.New("database unavailable")
	h := NewRefreshHandler(func(ctx context.Context, grouping string) error { return boom })

	payload, _ := json.Marshal(RefreshPayload{Grouping: "provider_name"})
	err := h.ProcessTask(context.Background(), asynq.NewTask(TypeStatisticsRefresh, payload))
	assert.ErrorIs(t, err, boom)
}
