package service

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"time"

	"exportestimator/internal/model"
	"exportestimator/pkg/aggregate"
	"exportestimator/pkg/geo"
	"exportestimator/pkg/logger"
	"exportestimator/pkg/store/mysql"
)

const (
	bytesPerMB            = 1 << 20
	evaluationProgressLog = 100
)

var evaluationHeader = []string{
	"job_uid", "dptr_uid", "etr_uid", "slug", "area(sq.km)", "size(mb)", "estimate(mb)",
	"error(mb)", "error(%)", "description", "bbox",
}

// RecordSelector returns the task records matching filter
type RecordSelector func(filter mysql.TaskRecordFilter) aggregate.RecordSource

// EvaluationOptions selects the records an evaluation replays
type EvaluationOptions struct {
	Limit    int      // zero evaluates every record
	Slugs    []string // empty evaluates every provider
	Grouping string
	// CSV receives one row per evaluated task when set
	CSV io.Writer
}

// EvaluationReport summarises the error of the size estimator. Error values
// are in megabytes; means are NaN when nothing was evaluated.
type EvaluationReport struct {
	SumSquaredError     float64 `json:"sum_squared_error"`
	MeanSquaredError    float64 `json:"mean_squared_error"`
	MeanPercentageError float64 `json:"mean_percentage_error"`
	MeanAbsoluteError   float64 `json:"mean_absolute_error"`
	PercentLessThan     float64 `json:"percent_less_than"` // estimates below the actual size
	TotalTime           float64 `json:"total_time"`        // seconds spent estimating
	TimePerEstimate     float64 `json:"time_per_estimate"`
	TotalTests          int     `json:"total_tests"`
}

// MarshalJSON writes NaN metrics as null
func (r EvaluationReport) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{
		"sum_squared_error":     finiteOrNil(r.SumSquaredError),
		"mean_squared_error":    finiteOrNil(r.MeanSquaredError),
		"mean_percentage_error": finiteOrNil(r.MeanPercentageError),
		"mean_absolute_error":   finiteOrNil(r.MeanAbsoluteError),
		"percent_less_than":     finiteOrNil(r.PercentLessThan),
		"total_time":            finiteOrNil(r.TotalTime),
		"time_per_estimate":     finiteOrNil(r.TimePerEstimate),
		"total_tests":           r.TotalTests,
	})
}

func finiteOrNil(v float64) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}

// EvaluationService replays the size estimator against finished exports
type EvaluationService struct {
	statistics *StatisticsService
	records    RecordSelector
	geoms      aggregate.GeometryAccessor
}

// NewEvaluationService creates a new evaluation service
func NewEvaluationService(statistics *StatisticsService, records RecordSelector, geoms aggregate.GeometryAccessor) *EvaluationService {
	return &EvaluationService{statistics: statistics, records: records, geoms: geoms}
}

// Evaluate estimates every selected successful task from its run's bbox and
// compares the estimate with the actual result size
func (s *EvaluationService) Evaluate(ctx context.Context, opts EvaluationOptions) (*EvaluationReport, error) {
	src := s.records(mysql.TaskRecordFilter{SuccessOnly: true, Slugs: opts.Slugs, Limit: opts.Limit})

	geoms := aggregate.NewGeometryCache(s.geoms)
	if err := geoms.Prefetch(ctx); err != nil {
		logger.WarnCtx(ctx, "geometry prefetch failed, falling back to lookups: %v", err)
	}

	var w *csv.Writer
	if opts.CSV != nil {
		w = csv.NewWriter(opts.CSV)
		if err := w.Write(evaluationHeader); err != nil {
			return nil, fmt.Errorf("failed to write evaluation header: %w", err)
		}
	}

	var total int64 = -1
	if c, ok := src.(aggregate.RecordCounter); ok {
		if n, err := c.Count(ctx); err == nil {
			total = n
		}
	}

	var (
		processed int
		rawDiffs  []float64
		percDiffs []float64
		lessThan  int
		estTime   time.Duration
	)

	err := src.ForEach(ctx, func(r *model.TaskRecord) error {
		if processed%evaluationProgressLog == 0 {
			logger.InfoCtx(ctx, "processed %d of %d completed", processed, total)
		}
		processed++

		if r.Status != model.TaskStatusSuccess || r.ResultSizeBytes == nil || !aggregate.HasTiles(r.Name) {
			return nil
		}
		entry, err := geoms.Lookup(ctx, r.Run.ID)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.DebugCtx(ctx, "skipping task %s: %v", r.UID, err)
			return nil
		}

		start := time.Now()
		res, err := s.statistics.EstimateForProvider(ctx, EstimateRequest{
			BBox:     entry.BBox,
			Provider: r.GroupTask.Slug,
			Grouping: opts.Grouping,
			Type:     EstimateSize,
		})
		estTime += time.Since(start)
		if err != nil {
			if errors.Is(err, ErrUnknownProvider) || errors.Is(err, geo.ErrInvalidBBox) {
				logger.DebugCtx(ctx, "skipping task %s: %v", r.UID, err)
				return nil
			}
			return err
		}

		actual := r.ResultSize() / bytesPerMB
		est := res.Value / bytesPerMB
		if actual <= 0 {
			return nil
		}

		if w != nil {
			method, _ := json.Marshal(res.Method)
			bbox, _ := json.Marshal(entry.BBox)
			row := []string{
				r.Run.JobUID, r.GroupTask.UID, r.UID, r.GroupTask.Slug,
				formatFloat(geo.AreaKm2BBox(entry.BBox)), formatFloat(actual), formatFloat(est),
				formatFloat(est - actual), formatFloat(100 * math.Abs(est-actual) / actual),
				string(method), string(bbox),
			}
			if err := w.Write(row); err != nil {
				return fmt.Errorf("failed to write evaluation row: %w", err)
			}
		}

		rawDiffs = append(rawDiffs, actual-est)
		percDiffs = append(percDiffs, math.Abs(actual-est)/actual)
		if est < actual {
			lessThan++
		}
		return nil
	})
	if w != nil {
		w.Flush()
		if ferr := w.Error(); ferr != nil && err == nil {
			err = fmt.Errorf("failed to flush evaluation csv: %w", ferr)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("evaluation aborted: %w", err)
	}

	return buildReport(rawDiffs, percDiffs, lessThan, estTime), nil
}

func buildReport(rawDiffs, percDiffs []float64, lessThan int, estTime time.Duration) *EvaluationReport {
	n := len(rawDiffs)
	if n == 0 {
		nan := math.NaN()
		return &EvaluationReport{
			SumSquaredError:     nan,
			MeanSquaredError:    nan,
			MeanPercentageError: nan,
			MeanAbsoluteError:   nan,
			TimePerEstimate:     nan,
		}
	}

	var sse, sumAbs, sumPerc float64
	for i, d := range rawDiffs {
		sse += d * d
		sumAbs += math.Abs(d)
		sumPerc += percDiffs[i]
	}
	seconds := estTime.Seconds()
	return &EvaluationReport{
		SumSquaredError:     sse,
		MeanSquaredError:    sse / float64(n),
		MeanPercentageError: 100 * sumPerc / float64(n),
		MeanAbsoluteError:   sumAbs / float64(n),
		PercentLessThan:     100 * float64(lessThan) / float64(n),
		TotalTime:           seconds,
		TimePerEstimate:     seconds / float64(n),
		TotalTests:          n,
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
