package main

import (
	"exportestimator/internal/jobs"
	"exportestimator/pkg/lock"
)

func (app *Application) initJobs() error {
	manager := jobs.NewManager(app.ctx)

	// With several replicas only the lock holder refreshes in a cycle.
	// Without Redis the job runs unguarded.
	var locker lock.Locker
	if client := app.rawRedis(); client != nil {
		locker = lock.New(client, "statistics:refresh-job", lock.Options{})
	}

	manager.Register(jobs.NewStatisticsRefreshJob(
		app.config.Statistics.RefreshInterval,
		app.statisticsService,
		locker,
		false,
	))

	app.jobsManager = manager
	return nil
}
