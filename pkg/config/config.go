package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

var GlobalConfig *Config

// Warnings collects the invalid values replaced by defaults during Init.
var Warnings []string

// Config global configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Redis      RedisConfig      `yaml:"redis"`
	MySQL      MySQLConfig      `yaml:"mysql"`
	Queue      QueueConfig      `yaml:"queue"`
	Logger     LoggerConfig     `yaml:"logger"`
	Cache      CacheConfig      `yaml:"cache"`
	Statistics StatisticsConfig `yaml:"statistics"`
}

// ServerConfig server configuration
type ServerConfig struct {
	Port int    `yaml:"port"`
	Mode string `yaml:"mode"` // debug, release
}

// RedisConfig Redis configuration
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// MySQLConfig MySQL configuration
type MySQLConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	// AutoMigrate creates the export tables on start (development only)
	AutoMigrate bool `yaml:"auto_migrate"`
}

// QueueConfig queue configuration for statistics refresh requests
type QueueConfig struct {
	Concurrency int `yaml:"concurrency"`  // queue processing concurrency
	MaxRetry    int `yaml:"max_retry"`    // maximum retry count
	TaskTimeout int `yaml:"task_timeout"` // task timeout (seconds)
}

// LoggerConfig logger configuration
type LoggerConfig struct {
	Level  string           `yaml:"level"`  // debug, info, warn, error
	Output string           `yaml:"output"` // console, file, both
	File   LoggerFileConfig `yaml:"file"`
}

// LoggerFileConfig logger file configuration
type LoggerFileConfig struct {
	Path string `yaml:"path"`
}

// Cache backends
const (
	CacheBackendRedis  = "redis"
	CacheBackendBadger = "badger"
	CacheBackendMemory = "memory"
)

// CacheConfig selects where aggregated statistics are stored
type CacheConfig struct {
	Backend    string `yaml:"backend"`     // redis, badger, memory
	BadgerPath string `yaml:"badger_path"` // directory of the badger store
}

// StatisticsConfig controls aggregation and estimation
type StatisticsConfig struct {
	CacheTTL         time.Duration `yaml:"cache_ttl"`          // lifetime of a cached aggregate tree
	TileLevel        int           `yaml:"tile_level"`         // level statistics are binned at
	GapFillThreshold float64       `yaml:"gap_fill_threshold"` // tile coverage below which the group value fills gaps
	MaxSamples       int           `yaml:"max_samples"`        // per bucket field
	RefreshInterval  time.Duration `yaml:"refresh_interval"`   // periodic recomputation of every grouping
	LockWait         time.Duration `yaml:"lock_wait"`          // how long to wait for another instance's computation
	DefaultGrouping  string        `yaml:"default_grouping"`   // provider_name or provider_type
	Clipping         *bool         `yaml:"clipping,omitempty"` // count only covered pixels of edge tiles
}

// DefaultStatisticsConfig returns the statistics defaults.
func DefaultStatisticsConfig() StatisticsConfig {
	clipping := true
	return StatisticsConfig{
		CacheTTL:         24 * time.Hour,
		TileLevel:        10,
		GapFillThreshold: 0.1,
		MaxSamples:       2000,
		RefreshInterval:  6 * time.Hour,
		LockWait:         30 * time.Second,
		DefaultGrouping:  "provider_name",
		Clipping:         &clipping,
	}
}

// DefaultQueueConfig returns the queue defaults.
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		Concurrency: 1,
		MaxRetry:    1,
		TaskTimeout: 3600,
	}
}

// Init initializes configuration
func Init() error {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	cfg, err := Load(configPath)
	if err != nil {
		return err
	}

	GlobalConfig = cfg
	return nil
}

// Load reads the YAML file at path and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	Warnings = validateAndApplyDefaults(&cfg)
	return &cfg, nil
}

// validateAndApplyDefaults replaces missing or invalid values with defaults
// and returns one warning per replaced value that was set but invalid.
func validateAndApplyDefaults(cfg *Config) []string {
	var warnings []string
	warn := func(format string, args ...interface{}) {
		warnings = append(warnings, fmt.Sprintf(format, args...))
	}

	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = "release"
	}

	st := &cfg.Statistics
	def := DefaultStatisticsConfig()

	if st.CacheTTL <= 0 {
		if st.CacheTTL < 0 {
			warn("invalid statistics.cache_ttl %s, using %s", st.CacheTTL, def.CacheTTL)
		}
		st.CacheTTL = def.CacheTTL
	}
	if st.TileLevel < 0 || st.TileLevel > 20 {
		warn("invalid statistics.tile_level %d, using %d", st.TileLevel, def.TileLevel)
		st.TileLevel = def.TileLevel
	} else if st.TileLevel == 0 {
		st.TileLevel = def.TileLevel
	}
	if st.GapFillThreshold <= 0 || st.GapFillThreshold > 1 {
		if st.GapFillThreshold != 0 {
			warn("invalid statistics.gap_fill_threshold %g, using %g", st.GapFillThreshold, def.GapFillThreshold)
		}
		st.GapFillThreshold = def.GapFillThreshold
	}
	if st.MaxSamples <= 0 {
		if st.MaxSamples < 0 {
			warn("invalid statistics.max_samples %d, using %d", st.MaxSamples, def.MaxSamples)
		}
		st.MaxSamples = def.MaxSamples
	}
	if st.RefreshInterval < 0 {
		warn("invalid statistics.refresh_interval %s, using %s", st.RefreshInterval, def.RefreshInterval)
		st.RefreshInterval = def.RefreshInterval
	} else if st.RefreshInterval == 0 {
		st.RefreshInterval = def.RefreshInterval
	}
	if st.LockWait <= 0 {
		if st.LockWait < 0 {
			warn("invalid statistics.lock_wait %s, using %s", st.LockWait, def.LockWait)
		}
		st.LockWait = def.LockWait
	}
	switch st.DefaultGrouping {
	case "provider_name", "provider_type":
	case "":
		st.DefaultGrouping = def.DefaultGrouping
	default:
		warn("invalid statistics.default_grouping %q, using %q", st.DefaultGrouping, def.DefaultGrouping)
		st.DefaultGrouping = def.DefaultGrouping
	}
	if st.Clipping == nil {
		st.Clipping = def.Clipping
	}

	switch cfg.Cache.Backend {
	case CacheBackendRedis, CacheBackendBadger, CacheBackendMemory:
	case "":
		cfg.Cache.Backend = CacheBackendRedis
	default:
		warn("invalid cache.backend %q, using %q", cfg.Cache.Backend, CacheBackendRedis)
		cfg.Cache.Backend = CacheBackendRedis
	}
	if cfg.Cache.Backend == CacheBackendRedis && cfg.Redis.Addr == "" {
		warn("cache.backend %q needs redis.addr, using %q", CacheBackendRedis, CacheBackendMemory)
		cfg.Cache.Backend = CacheBackendMemory
	}
	if cfg.Cache.Backend == CacheBackendBadger && cfg.Cache.BadgerPath == "" {
		cfg.Cache.BadgerPath = "data/statistics"
	}

	q := &cfg.Queue
	qdef := DefaultQueueConfig()
	if q.Concurrency <= 0 {
		if q.Concurrency < 0 {
			warn("invalid queue.concurrency %d, using %d", q.Concurrency, qdef.Concurrency)
		}
		q.Concurrency = qdef.Concurrency
	}
	if q.MaxRetry < 0 {
		warn("invalid queue.max_retry %d, using %d", q.MaxRetry, qdef.MaxRetry)
		q.MaxRetry = qdef.MaxRetry
	}
	if q.TaskTimeout <= 0 {
		if q.TaskTimeout < 0 {
			warn("invalid queue.task_timeout %d, using %d", q.TaskTimeout, qdef.TaskTimeout)
		}
		q.TaskTimeout = qdef.TaskTimeout
	}

	return warnings
}
