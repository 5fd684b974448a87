package asynq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"exportestimator/pkg/config"
	"exportestimator/pkg/logger"
)

const (
	TypeStatisticsRefresh = "statistics:refresh"

	// DefaultQueue is the only queue the manager uses
	DefaultQueue = "default"

	refreshTaskIDPrefix = "statistics-refresh:"
)

// RefreshPayload asks a worker to recompute the statistics of one grouping
type RefreshPayload struct {
	Grouping    string    `json:"grouping"`
	RequestedAt time.Time `json:"requested_at"`
	TraceID     string    `json:"trace_id,omitempty"`
}

// RefreshFunc recomputes the statistics of grouping
type RefreshFunc func(ctx context.Context, grouping string) error

// RefreshTaskID is the queue task id of grouping. At most one refresh per
// grouping is queued at a time.
func RefreshTaskID(grouping string) string {
	return refreshTaskIDPrefix + grouping
}

// Manager queue manager
type Manager struct {
	client    *asynq.Client
	server    *asynq.Server
	inspector *asynq.Inspector
	mux       *asynq.ServeMux
	queueCfg  config.QueueConfig
}

// NewManager creates queue manager
func NewManager(redisCfg config.RedisConfig, queueCfg config.QueueConfig) *Manager {
	redisOpt := asynq.RedisClientOpt{
		Addr:     redisCfg.Addr,
		Password: redisCfg.Password,
		DB:       redisCfg.DB,
	}

	concurrency := queueCfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				DefaultQueue: 10,
			},
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				return time.Duration(n) * time.Minute
			},
			Logger: asynqLogger{},
		},
	)

	return &Manager{
		client:    asynq.NewClient(redisOpt),
		server:    server,
		inspector: asynq.NewInspector(redisOpt),
		mux:       asynq.NewServeMux(),
		queueCfg:  queueCfg,
	}
}

// EnqueueRefresh queues a refresh of grouping. When one is already queued it
// returns its task id with enqueued false.
func (m *Manager) EnqueueRefresh(ctx context.Context, grouping string) (taskID string, enqueued bool, err error) {
	payload, err := json.Marshal(RefreshPayload{
		Grouping:    grouping,
		RequestedAt: time.Now().UTC(),
		TraceID:     logger.TraceID(ctx),
	})
	if err != nil {
		return "", false, fmt.Errorf("failed to marshal refresh payload: %w", err)
	}

	taskID = RefreshTaskID(grouping)
	opts := []asynq.Option{
		asynq.TaskID(taskID),
		asynq.Queue(DefaultQueue),
		asynq.MaxRetry(m.queueCfg.MaxRetry),
	}
	if m.queueCfg.TaskTimeout > 0 {
		opts = append(opts, asynq.Timeout(time.Duration(m.queueCfg.TaskTimeout)*time.Second))
	}

	info, err := m.client.EnqueueContext(ctx, asynq.NewTask(TypeStatisticsRefresh, payload), opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
		logger.InfoCtx(ctx, "statistics refresh already queued, task_id: %s", taskID)
		return taskID, false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to enqueue statistics refresh: %w", err)
	}

	logger.InfoCtx(ctx, "statistics refresh enqueued, task_id: %s, queue: %s", info.ID, info.Queue)
	return taskID, true, nil
}

// GetTaskInfo retrieves task information
func (m *Manager) GetTaskInfo(taskID string) (*asynq.TaskInfo, error) {
	info, err := m.inspector.GetTaskInfo(DefaultQueue, taskID)
	if err != nil {
		return nil, fmt.Errorf("task not found: %s: %w", taskID, err)
	}
	return info, nil
}

// CancelRefresh removes a queued refresh of grouping
func (m *Manager) CancelRefresh(ctx context.Context, grouping string) error {
	taskID := RefreshTaskID(grouping)
	if err := m.inspector.DeleteTask(DefaultQueue, taskID); err != nil {
		return fmt.Errorf("failed to cancel task: %w", err)
	}
	logger.InfoCtx(ctx, "statistics refresh cancelled, task_id: %s", taskID)
	return nil
}

// GetPendingTaskCount retrieves pending task count
func (m *Manager) GetPendingTaskCount() (int, error) {
	stats, err := m.inspector.GetQueueInfo(DefaultQueue)
	if err != nil {
		return 0, err
	}
	return stats.Pending, nil
}

// RegisterRefreshHandler routes refresh tasks to fn
func (m *Manager) RegisterRefreshHandler(fn RefreshFunc) {
	m.mux.Handle(TypeStatisticsRefresh, NewRefreshHandler(fn))
}

// Start starts queue processor
func (m *Manager) Start() error {
	logger.InfoCtx(context.Background(), "starting queue server")
	return m.server.Start(m.mux)
}

// Stop stops queue processor
func (m *Manager) Stop() {
	logger.InfoCtx(context.Background(), "stopping queue server")
	m.server.Stop()
	m.server.Shutdown()
}

// Close closes client and inspector
func (m *Manager) Close() error {
	return errors.Join(m.client.Close(), m.inspector.Close())
}

// NewRefreshHandler adapts fn to an asynq handler. Malformed payloads are
// not retried.
func NewRefreshHandler(fn RefreshFunc) asynq.Handler {
	return asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error {
		var p RefreshPayload
		if err := json.Unmarshal(t.Payload(), &p); err != nil {
			return fmt.Errorf("invalid refresh payload: %v: %w", err, asynq.SkipRetry)
		}
		if p.Grouping == "" {
			return fmt.Errorf("refresh payload has no grouping: %w", asynq.SkipRetry)
		}
		if p.TraceID != "" {
			ctx = logger.WithTraceID(ctx, p.TraceID)
		}

		logger.InfoCtx(ctx, "processing statistics refresh, grouping: %s, queued for %s",
			p.Grouping, time.Since(p.RequestedAt).Round(time.Second))
		return fn(ctx, p.Grouping)
	})
}

// asynqLogger routes asynq's logging through the service logger
type asynqLogger struct{}

func (asynqLogger) Debug(args ...interface{}) { logger.Debugf("asynq: %s", fmt.Sprint(args...)) }
func (asynqLogger) Info(args ...interface{})  { logger.Infof("asynq: %s", fmt.Sprint(args...)) }
func (asynqLogger) Warn(args ...interface{})  { logger.Warnf("asynq: %s", fmt.Sprint(args...)) }
func (asynqLogger) Error(args ...interface{}) { logger.Errorf("asynq: %s", fmt.Sprint(args...)) }
func (asynqLogger) Fatal(args ...interface{}) { logger.Fatalf("asynq: %s", fmt.Sprint(args...)) }
