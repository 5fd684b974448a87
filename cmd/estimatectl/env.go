package main

import (
	"errors"

	"github.com/go-redis/redis/v8"

	"exportestimator/internal/service"
	"exportestimator/pkg/aggregate"
	"exportestimator/pkg/cache"
	"exportestimator/pkg/config"
	"exportestimator/pkg/lock"
	queue "exportestimator/pkg/queue/asynq"
	mysqlstore "exportestimator/pkg/store/mysql"
	redisstore "exportestimator/pkg/store/redis"
)

// env holds the components one command needs
type env struct {
	repo       *mysqlstore.Repository
	redis      *redisstore.RedisClient
	statistics *service.StatisticsService

	closers []func() error
}

// openEnv connects to the configured stores and builds the statistics
// service the way the server does
func openEnv() (*env, error) {
	cfg := config.GlobalConfig
	e := &env{}

	repo, err := mysqlstore.NewRepository(mysqlstore.DSN(cfg.MySQL))
	if err != nil {
		return nil, err
	}
	e.repo = repo
	e.closers = append(e.closers, repo.Close)

	var client *redis.Client
	if cfg.Redis.Addr != "" {
		rc, err := redisstore.NewRedisClient(cfg.Redis)
		if err != nil {
			e.Close()
			return nil, err
		}
		e.redis = rc
		e.closers = append(e.closers, rc.Close)
		client = rc.GetClient()
	}

	store, closeStore, err := cache.NewStore(cfg.Cache, client)
	if err != nil {
		e.Close()
		return nil, err
	}
	e.closers = append(e.closers, closeStore)

	deps := service.StatisticsDeps{
		Records:    repo.TaskRecord,
		Geometries: repo.JobGeometry,
		Providers:  repo.DataProvider,
		Store:      store,
	}
	if client != nil {
		deps.Guard = func(key string) cache.Guard {
			return lock.New(client, key, lock.Options{})
		}
		deps.Status = redisstore.NewRefreshStatusRepository(e.redis)
	}
	e.statistics = service.NewStatisticsService(deps, cfg.Statistics)
	return e, nil
}

// records selects task records for an evaluation
func (e *env) records(filter mysqlstore.TaskRecordFilter) aggregate.RecordSource {
	return e.repo.TaskRecord.WithFilter(filter)
}

// queue returns a client of the server's refresh queue
func (e *env) queue() (*queue.Manager, error) {
	if e.redis == nil {
		return nil, errors.New("queueing a refresh requires redis.addr")
	}
	cfg := config.GlobalConfig
	m := queue.NewManager(cfg.Redis, cfg.Queue)
	e.closers = append(e.closers, m.Close)
	return m, nil
}

func (e *env) Close() error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		errs = append(errs, e.closers[i]())
	}
	e.closers = nil
	return errors.Join(errs...)
}
