package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"

	"exportestimator/app/handler"
	"exportestimator/app/router"
	"exportestimator/internal/service"
	"exportestimator/pkg/cache"
	"exportestimator/pkg/config"
	"exportestimator/pkg/lock"
	"exportestimator/pkg/logger"
	queue "exportestimator/pkg/queue/asynq"
	mysqlstore "exportestimator/pkg/store/mysql"
	redisstore "exportestimator/pkg/store/redis"
)

func (app *Application) initConfig() error {
	if err := config.Init(); err != nil {
		return err
	}
	app.config = config.GlobalConfig
	return nil
}

func (app *Application) initLogger() error {
	if err := logger.Init(); err != nil {
		return err
	}
	for _, w := range config.Warnings {
		logger.WarnCtx(app.ctx, "config: %s", w)
	}
	return nil
}

func (app *Application) initMySQL() error {
	repo, err := mysqlstore.NewRepository(mysqlstore.DSN(app.config.MySQL))
	if err != nil {
		return err
	}
	app.mysqlRepo = repo
	app.registerCleanup(func() {
		if err := repo.Close(); err != nil {
			logger.WarnCtx(app.ctx, "failed to close MySQL: %v", err)
		}
	})

	if app.config.MySQL.AutoMigrate {
		if err := repo.GetDatastore().AutoMigrate(app.ctx); err != nil {
			return fmt.Errorf("failed to migrate export tables: %w", err)
		}
	}
	return nil
}

// initRedis connects to Redis when configured. Without Redis the server runs
// as a single instance: refreshes run inline and nothing records their status.
func (app *Application) initRedis() error {
	if app.config.Redis.Addr == "" {
		logger.WarnCtx(app.ctx, "redis.addr not set, running without refresh queue, distributed lock and refresh status")
		return nil
	}

	client, err := redisstore.NewRedisClient(app.config.Redis)
	if err != nil {
		return err
	}
	app.redisClient = client
	app.registerCleanup(func() {
		if err := client.Close(); err != nil {
			logger.WarnCtx(app.ctx, "failed to close redis: %v", err)
		}
	})
	return nil
}

func (app *Application) initCache() error {
	store, closeStore, err := cache.NewStore(app.config.Cache, app.rawRedis())
	if err != nil {
		return err
	}
	app.cacheStore = store
	app.registerCleanup(func() {
		if err := closeStore(); err != nil {
			logger.WarnCtx(app.ctx, "failed to close statistics cache: %v", err)
		}
	})
	logger.InfoCtx(app.ctx, "statistics cache backend: %s", app.config.Cache.Backend)
	return nil
}

func (app *Application) initServices() error {
	deps := service.StatisticsDeps{
		Records:    app.mysqlRepo.TaskRecord,
		Geometries: app.mysqlRepo.JobGeometry,
		Providers:  app.mysqlRepo.DataProvider,
		Store:      app.cacheStore,
	}
	if client := app.rawRedis(); client != nil {
		deps.Guard = func(key string) cache.Guard {
			return lock.New(client, key, lock.Options{})
		}
		deps.Status = redisstore.NewRefreshStatusRepository(app.redisClient)
	}

	app.statisticsService = service.NewStatisticsService(deps, app.config.Statistics)
	return nil
}

func (app *Application) initQueue() error {
	if app.redisClient == nil {
		return nil
	}
	m := queue.NewManager(app.config.Redis, app.config.Queue)
	m.RegisterRefreshHandler(app.statisticsService.Refresh)
	app.queueManager = m
	app.registerCleanup(func() {
		if err := m.Close(); err != nil {
			logger.WarnCtx(app.ctx, "failed to close refresh queue: %v", err)
		}
	})
	return nil
}

func (app *Application) initHandlers() error {
	var q handler.RefreshQueue
	if app.queueManager != nil {
		q = app.queueManager
	}
	app.statisticsHandler = handler.NewStatisticsHandler(app.statisticsService, q)
	app.estimateHandler = handler.NewEstimateHandler(app.statisticsService)
	return nil
}

func (app *Application) initHTTPServer() error {
	gin.SetMode(app.config.Server.Mode)
	app.ginEngine = gin.New()
	router.NewRouter(app.statisticsHandler, app.estimateHandler).Setup(app.ginEngine)

	app.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.config.Server.Port),
		Handler:           app.ginEngine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return nil
}

// rawRedis returns the underlying client, or nil without Redis
func (app *Application) rawRedis() *redis.Client {
	if app.redisClient == nil {
		return nil
	}
	return app.redisClient.GetClient()
}
