package config

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestProperty_InvalidDurationsFallBackToDefault tests that non-positive
// durations never survive validation.
func TestProperty_InvalidDurationsFallBackToDefault(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.MaxSize = 50

	properties := gopter.NewProperties(parameters)
	defaults := DefaultStatisticsConfig()

	properties.Property("non-positive cache ttl falls back to default", prop.ForAll(
		func(seconds int) bool {
			cfg := &Config{Statistics: StatisticsConfig{CacheTTL: time.Duration(seconds) * time.Second}}
			validateAndApplyDefaults(cfg)
			return cfg.Statistics.CacheTTL == defaults.CacheTTL
		},
		gen.IntRange(-1000, 0),
	))

	properties.Property("non-positive lock wait falls back to default", prop.ForAll(
		func(seconds int) bool {
			cfg := &Config{Statistics: StatisticsConfig{LockWait: time.Duration(seconds) * time.Second}}
			validateAndApplyDefaults(cfg)
			return cfg.Statistics.LockWait == defaults.LockWait
		},
		gen.IntRange(-1000, 0),
	))

	properties.Property("valid cache ttl is kept", prop.ForAll(
		func(seconds int) bool {
			ttl := time.Duration(seconds) * time.Second
			cfg := &Config{Statistics: StatisticsConfig{CacheTTL: ttl}}
			validateAndApplyDefaults(cfg)
			return cfg.Statistics.CacheTTL == ttl
		},
		gen.IntRange(1, 1000000),
	))

	properties.TestingRun(t)
}

// TestProperty_GapFillThresholdStaysInRange tests that the threshold always
// ends up in (0, 1].
func TestProperty_GapFillThresholdStaysInRange(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("threshold is within (0, 1] after validation", prop.ForAll(
		func(threshold float64) bool {
			cfg := &Config{Statistics: StatisticsConfig{GapFillThreshold: threshold}}
			validateAndApplyDefaults(cfg)
			got := cfg.Statistics.GapFillThreshold
			if threshold > 0 && threshold <= 1 {
				return got == threshold
			}
			return got == DefaultStatisticsConfig().GapFillThreshold
		},
		gen.Float64Range(-2, 2),
	))

	properties.Property("tile level is within [0, 20] after validation", prop.ForAll(
		func(level int) bool {
			cfg := &Config{Statistics: StatisticsConfig{TileLevel: level}}
			validateAndApplyDefaults(cfg)
			got := cfg.Statistics.TileLevel
			return got >= 0 && got <= 20
		},
		gen.IntRange(-100, 100),
	))

	properties.TestingRun(t)
}
