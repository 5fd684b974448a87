package aggregate

import (
	"context"
	"fmt"

	"github.com/paulmach/orb"

	"exportestimator/internal/model"
	"exportestimator/pkg/geo"
	"exportestimator/pkg/logger"
)

// GeometryAccessor resolves the job geometry of a run.
type GeometryAccessor interface {
	RunGeometry(ctx context.Context, runID int64) (*model.JobGeometry, error)
}

// GeometryPrefetcher loads the geometry of every run in one query.
type GeometryPrefetcher interface {
	AllRunGeometries(ctx context.Context) ([]*model.JobGeometry, error)
}

// GeometryEntry is the derived geometry of one run.
type GeometryEntry struct {
	BBox     geo.BBox
	BBoxArea float64
	Geometry orb.Geometry
	Area     float64
}

// GeometryCache memoizes run geometries for a single aggregation pass. It is
// created when a pass starts and dropped with it.
type GeometryCache struct {
	accessor GeometryAccessor
	entries  map[int64]*GeometryEntry
	misses   int
}

// NewGeometryCache creates an empty cache reading through accessor.
func NewGeometryCache(accessor GeometryAccessor) *GeometryCache {
	return &GeometryCache{
		accessor: accessor,
		entries:  make(map[int64]*GeometryEntry),
	}
}

// Prefetch loads every run geometry up front when the accessor supports it.
func (c *GeometryCache) Prefetch(ctx context.Context) error {
	p, ok := c.accessor.(GeometryPrefetcher)
	if !ok {
		return nil
	}
	geoms, err := p.AllRunGeometries(ctx)
	if err != nil {
		return fmt.Errorf("failed to prefetch run geometries: %w", err)
	}
	for _, g := range geoms {
		c.entries[g.RunID] = newGeometryEntry(ctx, g)
	}
	return nil
}

// Lookup returns the entry of runID, reading through the accessor on a miss.
func (c *GeometryCache) Lookup(ctx context.Context, runID int64) (*GeometryEntry, error) {
	if e, ok := c.entries[runID]; ok {
		return e, nil
	}
	c.misses++
	if c.accessor == nil {
		return nil, fmt.Errorf("no geometry for run %d", runID)
	}
	g, err := c.accessor.RunGeometry(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load geometry of run %d: %w", runID, err)
	}
	e := newGeometryEntry(ctx, g)
	c.entries[runID] = e
	return e, nil
}

// Len is the number of cached runs.
func (c *GeometryCache) Len() int { return len(c.entries) }

// Misses counts lookups that went to the accessor.
func (c *GeometryCache) Misses() int { return c.misses }

// newGeometryEntry derives areas from a job geometry. A geometry that cannot
// be measured yields a zero area, which excludes the run from sampling.
func newGeometryEntry(ctx context.Context, g *model.JobGeometry) *GeometryEntry {
	e := &GeometryEntry{BBox: g.Extent}

	geom, err := geo.ParseGeoJSON(g.GeoJSON)
	if err != nil {
		logger.WarnCtx(ctx, "run %d has unreadable geometry: %v", g.RunID, err)
	} else {
		e.Geometry = geom
		if area, err := geo.AreaKm2(geom); err != nil {
			logger.WarnCtx(ctx, "run %d geometry has no area: %v", g.RunID, err)
		} else {
			e.Area = area
		}
		if e.BBox == (geo.BBox{}) && geom != nil {
			e.BBox = geo.BBoxFromBound(geom.Bound())
		}
	}

	e.BBoxArea = geo.AreaKm2BBox(e.BBox)
	return e
}
