package jobs

import (
	"context"
	"errors"
	"time"

	"exportestimator/pkg/lock"
	"exportestimator/pkg/logger"
)

// Refresher recomputes every statistics grouping.
type Refresher interface {
	RefreshAll(ctx context.Context) error
}

// StatisticsRefreshJob periodically recomputes the cached statistics so that
// requests rarely pay for an aggregation pass.
type StatisticsRefreshJob struct {
	interval  time.Duration
	refresher Refresher
	locker    lock.Locker
	align     bool
}

// NewStatisticsRefreshJob creates the refresh job. With a locker only the
// replica holding it refreshes in a given cycle. Aligned jobs wait for the
// next interval boundary instead of warming the cache on start.
func NewStatisticsRefreshJob(interval time.Duration, refresher Refresher, locker lock.Locker, align bool) *StatisticsRefreshJob {
	return &StatisticsRefreshJob{
		interval:  interval,
		refresher: refresher,
		locker:    locker,
		align:     align,
	}
}

func (j *StatisticsRefreshJob) Name() string { return "statistics-refresh" }

func (j *StatisticsRefreshJob) Interval() time.Duration { return j.interval }

func (j *StatisticsRefreshJob) AlignToInterval() bool { return j.align }

func (j *StatisticsRefreshJob) Run(ctx context.Context) error {
	if j.refresher == nil {
		return errors.New("statistics service not configured")
	}

	if j.locker != nil {
		acquired, err := j.locker.TryLock(ctx)
		if err != nil {
			return err
		}
		if !acquired {
			logger.DebugCtx(ctx, "another instance is refreshing statistics, skipping this cycle")
			return nil
		}
		defer func() {
			if err := j.locker.Unlock(context.WithoutCancel(ctx)); err != nil {
				logger.WarnCtx(ctx, "failed to release statistics refresh lock: %v", err)
			}
		}()
	}

	logger.InfoCtx(ctx, "refreshing statistics of every grouping")
	return j.refresher.RefreshAll(ctx)
}
