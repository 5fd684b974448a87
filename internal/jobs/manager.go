package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"exportestimator/pkg/logger"
)

// Job is a periodic background task.
type Job interface {
	Name() string
	Interval() time.Duration
	Run(ctx context.Context) error
}

// AlignedJob runs on interval boundaries (for example every six hours from
// midnight) instead of immediately on start.
type AlignedJob interface {
	Job
	AlignToInterval() bool
}

// Manager runs registered jobs until stopped.
type Manager struct {
	ctx     context.Context
	cancel  context.CancelFunc
	jobs    []Job
	started bool
	now     func() time.Time

	mu sync.Mutex
	wg sync.WaitGroup
}

// NewManager creates a job manager bound to parent.
func NewManager(parent context.Context) *Manager {
	ctx, cancel := context.WithCancel(parent)
	return &Manager{
		ctx:    ctx,
		cancel: cancel,
		now:    time.Now,
	}
}

// Register adds a job. Jobs registered after Start are ignored.
func (m *Manager) Register(job Job) {
	if job == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		logger.WarnCtx(m.ctx, "job %s registered after start, ignoring", job.Name())
		return
	}
	m.jobs = append(m.jobs, job)
}

// Names returns the registered job names in registration order.
func (m *Manager) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, len(m.jobs))
	for i, j := range m.jobs {
		names[i] = j.Name()
	}
	return names
}

// Start launches every registered job.
func (m *Manager) Start() {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	jobs := append([]Job(nil), m.jobs...)
	m.mu.Unlock()

	for _, job := range jobs {
		m.wg.Add(1)
		go m.runJob(job)
	}
}

// Stop signals all jobs to stop.
func (m *Manager) Stop() {
	m.cancel()
}

// Wait blocks until all jobs exit.
func (m *Manager) Wait() {
	m.wg.Wait()
}

func (m *Manager) runJob(job Job) {
	defer m.wg.Done()

	interval := job.Interval()
	if interval <= 0 {
		interval = time.Minute
	}

	if aligned, ok := job.(AlignedJob); ok && aligned.AlignToInterval() {
		now := m.now()
		next := now.Truncate(interval).Add(interval)
		logger.InfoCtx(m.ctx, "job %s first runs at %s (in %s)", job.Name(), next.Format(time.RFC3339), next.Sub(now))

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-m.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
	m.executeJob(job)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.executeJob(job)
		}
	}
}

// executeJob runs one cycle under its own trace id. A panicking job is logged
// and runs again on the next tick.
func (m *Manager) executeJob(job Job) {
	ctx := logger.WithTraceID(m.ctx, uuid.NewString())
	start := m.now()

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return job.Run(ctx)
	}()

	if err != nil {
		logger.WarnCtx(ctx, "background job %s failed after %s: %v", job.Name(), m.now().Sub(start), err)
		return
	}
	logger.DebugCtx(ctx, "background job %s finished in %s", job.Name(), m.now().Sub(start))
}
