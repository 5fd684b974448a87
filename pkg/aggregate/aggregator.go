// Package aggregate folds historical export task records into a hierarchy of
// per-area statistics: global, per group, per task type and per tile.
package aggregate

import (
	"context"
	"fmt"
	"math"

	"exportestimator/internal/model"
	"exportestimator/pkg/geo"
	"exportestimator/pkg/logger"
	"exportestimator/pkg/stats"
	"exportestimator/pkg/tilegrid"

	"go.uber.org/zap"
)

// DefaultProgressEvery is how many records are read between progress logs.
const DefaultProgressEvery = 500

// RecordSource streams task records, most recently finished first.
type RecordSource interface {
	ForEach(ctx context.Context, fn func(*model.TaskRecord) error) error
}

// RecordCounter is implemented by sources that can report their size up front.
type RecordCounter interface {
	Count(ctx context.Context) (int64, error)
}

// Options configures an Aggregator.
type Options struct {
	// Grid bins records spatially. Statistics use its finest level.
	Grid *tilegrid.Grid
	// MaxSamples caps each bucket field.
	MaxSamples int
	// Providers by name. Records of known providers also yield mpp samples.
	Providers map[string]*model.DataProvider
	// Clipping counts only the covered part of edge tiles in mpp samples.
	Clipping bool
	// ProgressEvery is the record interval between progress logs.
	ProgressEvery int
}

// Aggregator builds statistic trees from task records.
type Aggregator struct {
	geoms GeometryAccessor
	opts  Options
}

// NewAggregator creates an Aggregator resolving run geometries through geoms.
func NewAggregator(geoms GeometryAccessor, opts Options) *Aggregator {
	if opts.Grid == nil {
		opts.Grid = tilegrid.Default()
	}
	if opts.MaxSamples <= 0 {
		opts.MaxSamples = DefaultMaxSamples
	}
	if opts.ProgressEvery <= 0 {
		opts.ProgressEvery = DefaultProgressEvery
	}
	return &Aggregator{geoms: geoms, opts: opts}
}

// pass is the mutable state of one aggregation. Nothing in it outlives Aggregate.
type pass struct {
	opts     Options
	grouping GroupingStrategy
	geoms    *GeometryCache
	tiles    *tilegrid.RunMemo
	table    *Table

	// Entities already sampled into the GLOBAL and group rollups.
	seenRuns       map[int64]struct{}
	seenGroupTasks map[int64]struct{}

	// Provider tile grids, built once per provider.
	providerGrids map[string]*tilegrid.Grid
	// Pixel counts of a run's bbox over a provider's pyramid.
	pixels      map[pixelKey]float64
	pixelMisses int

	processed int
	used      int
	skipped   int
}

// Aggregate reads every record of src and returns the resulting tree. It
// stops with ctx's error when ctx is cancelled, returning no partial result.
func (a *Aggregator) Aggregate(ctx context.Context, src RecordSource, grouping GroupingStrategy) (*Tree, error) {
	if grouping == nil {
		return nil, fmt.Errorf("grouping strategy is required")
	}

	p := a.newPass(grouping)

	logger.DebugCtx(ctx, "prefetching geometry data from all jobs")
	if err := p.geoms.Prefetch(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.WarnCtx(ctx, "geometry prefetch failed, falling back to lookups: %v", err)
	}

	var total int64 = -1
	if c, ok := src.(RecordCounter); ok {
		if n, err := c.Count(ctx); err == nil {
			total = n
		}
	}
	logger.InfoCtx(ctx, "beginning collection of statistics for %d task records, grouping=%s", total, grouping.Name())

	err := src.ForEach(ctx, func(r *model.TaskRecord) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if p.processed%a.opts.ProgressEvery == 0 {
			logger.DebugCtx(ctx, "processed %d of %d using %d completed", p.processed, total, p.used)
		}
		p.processed++
		return p.add(ctx, r)
	})
	if err != nil {
		return nil, fmt.Errorf("aggregation by %s aborted: %w", grouping.Name(), err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	logger.Ctx(ctx).Info("computing statistics across completed task records",
		zap.String("grouping", grouping.Name()),
		zap.Int("used", p.used),
		zap.Int("skipped", p.skipped),
		zap.Int("geom_cache_misses", p.geoms.Misses()),
		zap.Int("tile_cache_misses", p.tiles.Misses()),
		zap.Int("pixel_cache_misses", p.pixelMisses),
	)

	tree := p.build()
	for name, g := range tree.Groups {
		logger.InfoCtx(ctx, "generated statistics for %d tiles for group %s", g.TileCount, name)
	}
	return tree, nil
}

func (a *Aggregator) newPass(grouping GroupingStrategy) *pass {
	return &pass{
		opts:           a.opts,
		grouping:       grouping,
		geoms:          NewGeometryCache(a.geoms),
		tiles:          tilegrid.NewRunMemo(a.opts.Grid),
		table:          NewTable(a.opts.MaxSamples),
		seenRuns:       make(map[int64]struct{}),
		seenGroupTasks: make(map[int64]struct{}),
		providerGrids:  make(map[string]*tilegrid.Grid),
		pixels:         make(map[pixelKey]float64),
	}
}

// add folds one record into the table. Records that do not qualify or whose
// geometry cannot be resolved are skipped.
func (p *pass) add(ctx context.Context, r *model.TaskRecord) error {
	if !r.Qualifies() {
		return nil
	}

	entry, err := p.geoms.Lookup(ctx, r.Run.ID)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		p.skipped++
		logger.DebugCtx(ctx, "skipping task record %d: %v", r.ID, err)
		return nil
	}
	p.used++

	area := entry.Area
	group := p.grouping.GroupOf(&r.GroupTask)
	globalKey := GlobalKey()
	groupKey := GroupKey(group)
	taskKey := TaskTypeKey(group, r.Name)

	// Every used record is reported under its group and task type.
	p.table.Bucket(globalKey)
	p.table.Bucket(groupKey)
	p.table.Bucket(taskKey)

	var tileKeys []BucketKey
	spatial := HasTiles(r.Name)
	if spatial {
		for _, c := range p.tiles.Tiles(r.Run.ID, entry.BBox) {
			tileKeys = append(tileKeys, TileKey(group, c))
		}
	}

	if _, ok := p.seenRuns[r.Run.ID]; !ok {
		p.seenRuns[r.Run.ID] = struct{}{}
		p.sampleDurationAndArea(r.Run.Duration, area, globalKey)
	}
	if _, ok := p.seenGroupTasks[r.GroupTask.ID]; !ok {
		p.seenGroupTasks[r.GroupTask.ID] = struct{}{}
		p.sampleDurationAndArea(r.GroupTask.Duration, area, groupKey)
	}

	taskKeys := append([]BucketKey{taskKey}, tileKeys...)
	p.sampleDurationAndArea(r.Duration, area, taskKeys...)

	if size, ok := normalize(r.ResultSize(), area); ok {
		p.table.Add(stats.FieldSize, size, taskKeys...)
		p.table.Add(stats.FieldSize, size, groupKey, globalKey)
	}

	if spatial {
		if mpp, ok := p.mpp(r, entry.BBox); ok {
			p.table.Add(stats.FieldMPP, mpp, append([]BucketKey{groupKey, globalKey}, tileKeys...)...)
		}
	}
	return nil
}

func (p *pass) sampleDurationAndArea(duration string, area float64, keys ...BucketKey) {
	if secs, ok := stats.ParseDuration(duration); ok {
		if v, ok := normalize(secs, area); ok {
			p.table.Add(stats.FieldDuration, v, keys...)
		}
	}
	if usable(area) {
		p.table.Add(stats.FieldArea, area, keys...)
	}
}

// mpp is the result size per pixel of the provider's pyramid over bbox.
func (p *pass) mpp(r *model.TaskRecord, bbox geo.BBox) (float64, bool) {
	provider, ok := p.opts.Providers[r.GroupTask.Name]
	if !ok || provider == nil {
		return 0, false
	}
	grid, ok := p.providerGrids[provider.Name]
	if !ok {
		var err error
		grid, err = tilegrid.ForRange(provider.Levels())
		if err != nil {
			grid = nil
		}
		p.providerGrids[provider.Name] = grid
	}
	if grid == nil {
		return 0, false
	}

	key := pixelKey{run: r.Run.ID, provider: provider.Name}
	pixels, ok := p.pixels[key]
	if !ok {
		p.pixelMisses++
		pixels = grid.TotalPixels(bbox, p.opts.Clipping)
		p.pixels[key] = pixels
	}
	return normalize(r.ResultSize(), pixels)
}

type pixelKey struct {
	run      int64
	provider string
}

// build reduces every bucket into the tree.
func (p *pass) build() *Tree {
	tree := &Tree{
		RunCount:              len(p.seenRuns),
		DataProviderTaskCount: len(p.seenGroupTasks),
		ExportTaskCount:       p.used,
		TileLevel:             p.opts.Grid.FinestLevel(),
		Groups:                make(map[string]*GroupStats),
	}

	group := func(name string) *GroupStats {
		g, ok := tree.Groups[name]
		if !ok {
			g = &GroupStats{Fields: FieldStats{}}
			tree.Groups[name] = g
		}
		return g
	}

	for _, key := range p.table.Keys() {
		b, _ := p.table.Lookup(key)
		switch key.Level {
		case LevelGlobal, LevelGroup:
			group(key.Group).Fields = b.Summaries()
		case LevelTaskType:
			g := group(key.Group)
			if g.Tasks == nil {
				g.Tasks = make(map[string]FieldStats)
			}
			g.Tasks[key.Task] = b.Summaries()
		case LevelTile:
			g := group(key.Group)
			if g.Tiles == nil {
				g.Tiles = make(map[string]map[string]*TileStats)
			}
			row, ok := g.Tiles[key.Tile.RowKey()]
			if !ok {
				row = make(map[string]*TileStats)
				g.Tiles[key.Tile.RowKey()] = row
			}
			row[key.Tile.CellKey()] = &TileStats{Fields: b.Summaries(), Coord: key.Tile}
			g.TileCount++
		}
	}
	return tree
}

// normalize divides v by denom. Zero or non-finite results are not samples.
func normalize(v, denom float64) (float64, bool) {
	if !usable(denom) {
		return 0, false
	}
	s := v / denom
	return s, usable(s)
}

func usable(v float64) bool {
	return v != 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}
