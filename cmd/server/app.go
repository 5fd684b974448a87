package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"exportestimator/app/handler"
	"exportestimator/internal/jobs"
	"exportestimator/internal/service"
	"exportestimator/pkg/cache"
	"exportestimator/pkg/config"
	"exportestimator/pkg/logger"
	queue "exportestimator/pkg/queue/asynq"
	mysqlstore "exportestimator/pkg/store/mysql"
	redisstore "exportestimator/pkg/store/redis"
)

// Application owns every long-lived component of the server
type Application struct {
	config      *config.Config
	mysqlRepo   *mysqlstore.Repository
	redisClient *redisstore.RedisClient
	cacheStore  cache.Store

	queueManager      *queue.Manager
	statisticsService *service.StatisticsService

	statisticsHandler *handler.StatisticsHandler
	estimateHandler   *handler.EstimateHandler

	httpServer *http.Server
	ginEngine  *gin.Engine

	jobsManager *jobs.Manager

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// run in reverse registration order on shutdown
	cleanupFuncs []func()
}

// NewApplication creates a new Application instance
func NewApplication() *Application {
	ctx, cancel := context.WithCancel(context.Background())
	return &Application{
		ctx:    ctx,
		cancel: cancel,
	}
}

// Initialize initializes all application components in dependency order
func (app *Application) Initialize() error {
	steps := []struct {
		name string
		fn   func() error
	}{
		{"configuration", app.initConfig},
		{"logging", app.initLogger},
		{"MySQL", app.initMySQL},
		{"Redis", app.initRedis},
		{"statistics cache", app.initCache},
		{"service layer", app.initServices},
		{"refresh queue", app.initQueue},
		{"background jobs", app.initJobs},
		{"handler layer", app.initHandlers},
		{"HTTP server", app.initHTTPServer},
	}

	for _, step := range steps {
		logger.InfoCtx(app.ctx, "initializing %s...", step.name)
		if err := step.fn(); err != nil {
			return fmt.Errorf("failed to initialize %s: %w", step.name, err)
		}
	}

	logger.InfoCtx(app.ctx, "application initialization completed")
	return nil
}

// Start starts the background jobs, the queue workers and the HTTP server
func (app *Application) Start() error {
	if app.jobsManager != nil {
		app.jobsManager.Start()
		app.wg.Add(1)
		go func() {
			defer app.wg.Done()
			app.jobsManager.Wait()
		}()
	}

	if app.queueManager != nil {
		if err := app.queueManager.Start(); err != nil {
			return fmt.Errorf("failed to start refresh queue workers: %w", err)
		}
	}

	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		logger.InfoCtx(app.ctx, "HTTP server listening on %s", app.httpServer.Addr)
		if err := app.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.FatalCtx(app.ctx, "HTTP server error: %v", err)
		}
	}()

	return nil
}

// Shutdown stops accepting requests, stops the workers and releases every
// resource
func (app *Application) Shutdown(timeout time.Duration) error {
	logger.InfoCtx(app.ctx, "starting graceful shutdown (timeout: %v)...", timeout)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	app.cancel()
	if app.jobsManager != nil {
		app.jobsManager.Stop()
	}

	var shutdownErr error
	if err := app.httpServer.Shutdown(shutdownCtx); err != nil {
		shutdownErr = fmt.Errorf("HTTP server shutdown: %w", err)
	}

	if app.queueManager != nil {
		app.queueManager.Stop()
	}

	done := make(chan struct{})
	go func() {
		app.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-shutdownCtx.Done():
		logger.WarnCtx(app.ctx, "shutdown timed out, some jobs may not have completed")
	}

	for i := len(app.cleanupFuncs) - 1; i >= 0; i-- {
		app.cleanupFuncs[i]()
	}

	logger.InfoCtx(app.ctx, "graceful shutdown completed")
	_ = logger.Sync()
	return shutdownErr
}

func (app *Application) registerCleanup(cleanup func()) {
	app.cleanupFuncs = append(app.cleanupFuncs, cleanup)
}
