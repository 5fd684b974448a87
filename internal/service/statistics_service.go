package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"exportestimator/internal/model"
	"exportestimator/pkg/aggregate"
	"exportestimator/pkg/cache"
	"exportestimator/pkg/config"
	"exportestimator/pkg/estimate"
	"exportestimator/pkg/geo"
	"exportestimator/pkg/logger"
	"exportestimator/pkg/store/mysql"
	"exportestimator/pkg/tilegrid"
)

var (
	// ErrUnknownGrouping is returned for grouping names with no strategy
	ErrUnknownGrouping = errors.New("unknown grouping")

	// ErrUnknownProvider is returned when no data provider has the requested slug
	ErrUnknownProvider = errors.New("unknown data provider")

	// ErrInvalidEstimateType is returned for estimate types other than size and duration
	ErrInvalidEstimateType = errors.New("invalid estimate type")

	// ErrInvalidZoomRange is returned when zoom overrides leave no provider level
	ErrInvalidZoomRange = errors.New("invalid zoom range")

	// ErrRefreshNotTracked is returned when no refresh status store is configured
	ErrRefreshNotTracked = errors.New("refresh status is not tracked")
)

// EstimateType selects what an estimate measures
type EstimateType string

const (
	EstimateSize     EstimateType = "size"
	EstimateDuration EstimateType = "duration"
)

// ProviderCatalog lists the configured data providers
type ProviderCatalog interface {
	List(ctx context.Context) ([]*model.DataProvider, error)
	GetBySlug(ctx context.Context, slug string) (*model.DataProvider, error)
}

// RefreshStatusStore keeps the outcome of the latest refresh per grouping
type RefreshStatusStore interface {
	Save(ctx context.Context, status *model.RefreshStatus) error
	Get(ctx context.Context, grouping string) (*model.RefreshStatus, error)
	GetAll(ctx context.Context) ([]*model.RefreshStatus, error)
}

// StatisticsDeps are the collaborators of a StatisticsService
type StatisticsDeps struct {
	Records    aggregate.RecordSource
	Geometries aggregate.GeometryAccessor
	Providers  ProviderCatalog
	Store      cache.Store
	// Guard and Status are optional
	Guard  cache.GuardFunc
	Status RefreshStatusStore
}

// EstimateRequest asks for an estimate of exporting BBox from one provider
type EstimateRequest struct {
	BBox     geo.BBox
	Provider string // provider slug
	Grouping string // empty selects the configured default
	Type     EstimateType
	// MinZoom and MaxZoom narrow a raster provider's level range
	MinZoom *int
	MaxZoom *int
}

// EstimateResult is an estimate and how it was derived
type EstimateResult struct {
	Provider string             `json:"provider"`
	Kind     model.ProviderKind `json:"kind"`
	Grouping string             `json:"grouping"`
	Group    string             `json:"group"`
	Type     EstimateType       `json:"type"`
	Value    float64            `json:"value"`
	Unit     string             `json:"unit"` // bytes or seconds
	Method   estimate.Method    `json:"method"`
	// Levels sized for raster providers
	MinZoom *int `json:"min_zoom,omitempty"`
	MaxZoom *int `json:"max_zoom,omitempty"`
}

// StatisticsService serves cached statistic trees and the estimates derived
// from them
type StatisticsService struct {
	records   aggregate.RecordSource
	geoms     aggregate.GeometryAccessor
	providers ProviderCatalog
	status    RefreshStatusStore
	cache     *cache.StatisticsCache
	cfg       config.StatisticsConfig
	grid      *tilegrid.Grid
	now       func() time.Time
}

// NewStatisticsService creates a new statistics service
func NewStatisticsService(deps StatisticsDeps, cfg config.StatisticsConfig) *StatisticsService {
	defaults := config.DefaultStatisticsConfig()
	if cfg.DefaultGrouping == "" {
		cfg.DefaultGrouping = defaults.DefaultGrouping
	}
	if cfg.GapFillThreshold <= 0 {
		cfg.GapFillThreshold = defaults.GapFillThreshold
	}
	if cfg.Clipping == nil {
		cfg.Clipping = defaults.Clipping
	}

	s := &StatisticsService{
		records:   deps.Records,
		geoms:     deps.Geometries,
		providers: deps.Providers,
		status:    deps.Status,
		cfg:       cfg,
		grid:      tilegrid.ForLevel(cfg.TileLevel),
		now:       time.Now,
	}
	s.cache = cache.NewStatisticsCache(deps.Store, s.compute, cache.StatisticsOptions{
		TTL:      cfg.CacheTTL,
		LockWait: cfg.LockWait,
		Guard:    deps.Guard,
	})
	return s
}

// Grouping resolves a grouping name, the configured default when empty
func (s *StatisticsService) Grouping(ctx context.Context, name string) (aggregate.GroupingStrategy, error) {
	if name == "" {
		name = s.cfg.DefaultGrouping
	}
	if !aggregate.IsGrouping(name) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownGrouping, name)
	}

	providers, err := s.providers.List(ctx)
	if err != nil {
		return nil, err
	}
	return aggregate.NewGrouping(name, providers)
}

// GetStatistics returns the statistics tree of grouping, recomputing it when
// stale or when force is set
func (s *StatisticsService) GetStatistics(ctx context.Context, grouping string, force bool) (*aggregate.Tree, error) {
	strategy, err := s.Grouping(ctx, grouping)
	if err != nil {
		return nil, err
	}
	return s.cache.Get(ctx, strategy, force)
}

// Refresh recomputes the statistics of grouping and records the outcome
func (s *StatisticsService) Refresh(ctx context.Context, grouping string) error {
	if grouping == "" {
		grouping = s.cfg.DefaultGrouping
	}
	if !aggregate.IsGrouping(grouping) {
		return fmt.Errorf("%w: %s", ErrUnknownGrouping, grouping)
	}
	start := s.now()
	s.saveStatus(ctx, &model.RefreshStatus{Grouping: grouping, State: model.RefreshStateRunning, StartedAt: &start})

	tree, err := s.GetStatistics(ctx, grouping, true)

	finished := s.now()
	status := &model.RefreshStatus{
		Grouping:        grouping,
		State:           model.RefreshStateSucceeded,
		StartedAt:       &start,
		FinishedAt:      &finished,
		DurationSeconds: finished.Sub(start).Seconds(),
	}
	if err != nil {
		status.State = model.RefreshStateFailed
		status.Error = err.Error()
	} else {
		status.RunCount = tree.RunCount
		status.ExportTaskCount = tree.ExportTaskCount
	}
	s.saveStatus(ctx, status)

	if err != nil {
		return fmt.Errorf("failed to refresh statistics by %s: %w", grouping, err)
	}
	logger.InfoCtx(ctx, "statistics by %s refreshed: runs=%d, tasks=%d", grouping, tree.RunCount, tree.ExportTaskCount)
	return nil
}

// RefreshAll recomputes every grouping, continuing past failures
func (s *StatisticsService) RefreshAll(ctx context.Context) error {
	var errs []error
	for _, name := range aggregate.Groupings() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.Refresh(ctx, name); err != nil {
			logger.WarnCtx(ctx, "%v", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MarkQueued records that a refresh of grouping waits in the queue
func (s *StatisticsService) MarkQueued(ctx context.Context, grouping, taskID string) {
	s.saveStatus(ctx, &model.RefreshStatus{Grouping: grouping, State: model.RefreshStateQueued, TaskID: taskID})
}

// RefreshStatus returns the latest refresh status of grouping
func (s *StatisticsService) RefreshStatus(ctx context.Context, grouping string) (*model.RefreshStatus, error) {
	if !aggregate.IsGrouping(grouping) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownGrouping, grouping)
	}
	if s.status == nil {
		return nil, ErrRefreshNotTracked
	}
	return s.status.Get(ctx, grouping)
}

// RefreshStatuses returns the latest refresh status of every grouping that
// has one
func (s *StatisticsService) RefreshStatuses(ctx context.Context) ([]*model.RefreshStatus, error) {
	if s.status == nil {
		return nil, ErrRefreshNotTracked
	}
	return s.status.GetAll(ctx)
}

// EstimateSize estimates the bytes of exporting bbox for group under grouping
func (s *StatisticsService) EstimateSize(ctx context.Context, bbox geo.BBox, group, grouping string) (float64, estimate.Method, error) {
	tree, err := s.GetStatistics(ctx, grouping, false)
	if err != nil {
		return 0, estimate.Method{}, err
	}
	return estimate.Size(tree, nil, bbox, group, s.cfg.GapFillThreshold)
}

// EstimateDuration estimates the seconds of exporting bbox for group under grouping
func (s *StatisticsService) EstimateDuration(ctx context.Context, bbox geo.BBox, group, grouping string) (float64, estimate.Method, error) {
	tree, err := s.GetStatistics(ctx, grouping, false)
	if err != nil {
		return 0, estimate.Method{}, err
	}
	return estimate.Duration(tree, nil, bbox, group, s.cfg.GapFillThreshold)
}

// EstimateForProvider estimates an export from the provider named by slug.
// Raster providers are sized by pixels, everything else by area.
func (s *StatisticsService) EstimateForProvider(ctx context.Context, req EstimateRequest) (*EstimateResult, error) {
	if err := req.BBox.Validate(); err != nil {
		return nil, err
	}
	if req.Type == "" {
		req.Type = EstimateSize
	}
	if req.Type != EstimateSize && req.Type != EstimateDuration {
		return nil, fmt.Errorf("%w: %q", ErrInvalidEstimateType, req.Type)
	}
	if req.MinZoom != nil && req.MaxZoom != nil && *req.MinZoom > *req.MaxZoom {
		return nil, fmt.Errorf("%w: min_zoom %d > max_zoom %d", ErrInvalidZoomRange, *req.MinZoom, *req.MaxZoom)
	}

	provider, err := s.providers.GetBySlug(ctx, req.Provider)
	if errors.Is(err, mysql.ErrProviderNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, req.Provider)
	}
	if err != nil {
		return nil, err
	}

	strategy, err := s.Grouping(ctx, req.Grouping)
	if err != nil {
		return nil, err
	}
	tree, err := s.cache.Get(ctx, strategy, false)
	if err != nil {
		return nil, err
	}

	group := strategy.GroupOf(&model.ProviderTask{Name: provider.Name, Slug: provider.Slug})
	result := &EstimateResult{
		Provider: provider.Slug,
		Kind:     provider.Kind(),
		Grouping: strategy.Name(),
		Group:    group,
		Type:     req.Type,
	}

	switch {
	case req.Type == EstimateDuration:
		result.Unit = "seconds"
		result.Value, result.Method, err = estimate.Duration(tree, nil, req.BBox, group, s.cfg.GapFillThreshold)
	case provider.IsRaster():
		result.Unit = "bytes"
		pyramid, perr := providerPyramid(provider, req.MinZoom, req.MaxZoom)
		if perr != nil {
			return nil, perr
		}
		levels := pyramid.Levels()
		result.MinZoom, result.MaxZoom = &levels[0], &levels[len(levels)-1]
		result.Value, result.Method, err = estimate.RasterSize(tree, nil, pyramid, req.BBox, group, s.cfg.GapFillThreshold, *s.cfg.Clipping)
	default:
		result.Unit = "bytes"
		result.Value, result.Method, err = estimate.Size(tree, nil, req.BBox, group, s.cfg.GapFillThreshold)
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

// providerPyramid is the tile pyramid a raster provider renders, narrowed
// to [minZoom, maxZoom] when given.
func providerPyramid(p *model.DataProvider, minZoom, maxZoom *int) (*tilegrid.Grid, error) {
	from, to := p.Levels()
	if minZoom != nil && *minZoom > from {
		from = *minZoom
	}
	if maxZoom != nil && *maxZoom < to {
		to = *maxZoom
	}
	if to < from {
		return nil, fmt.Errorf("%w: provider %s renders levels %d-%d", ErrInvalidZoomRange, p.Slug, p.LevelFrom, p.LevelTo)
	}
	return tilegrid.ForRange(from, to)
}

// compute runs one aggregation pass with the current provider catalog
func (s *StatisticsService) compute(ctx context.Context, grouping aggregate.GroupingStrategy) (*aggregate.Tree, error) {
	providers, err := s.providers.List(ctx)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]*model.DataProvider, len(providers))
	for _, p := range providers {
		byName[p.Name] = p
	}

	agg := aggregate.NewAggregator(s.geoms, aggregate.Options{
		Grid:       s.grid,
		MaxSamples: s.cfg.MaxSamples,
		Providers:  byName,
		Clipping:   *s.cfg.Clipping,
	})
	return agg.Aggregate(ctx, s.records, grouping)
}

func (s *StatisticsService) saveStatus(ctx context.Context, status *model.RefreshStatus) {
	if s.status == nil {
		return
	}
	if err := s.status.Save(ctx, status); err != nil {
		logger.WarnCtx(ctx, "failed to save refresh status of %s: %v", status.Grouping, err)
	}
}
