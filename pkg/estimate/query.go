// Package estimate answers statistic queries for a new export region from an
// aggregated statistics tree, blending tile level statistics with their group.
package estimate

import (
	"fmt"

	"gonum.org/v1/gonum/stat"

	"exportestimator/pkg/aggregate"
	"exportestimator/pkg/geo"
	"exportestimator/pkg/stats"
	"exportestimator/pkg/tilegrid"
)

// DefaultGapFillThreshold is the tile coverage below which uncovered area is
// filled with the group value instead of the mean of the observed tiles.
const DefaultGapFillThreshold = 0.1

const (
	// GroupNone marks a value that came from the query default.
	GroupNone = "None"
	// GapFillTileMean marks gaps filled with the mean of the observed tiles.
	GapFillTileMean = "tile_mean"
)

// ErrInvalidBBox is returned for malformed query boxes.
var ErrInvalidBBox = geo.ErrInvalidBBox

// Query selects one statistic for a region.
type Query struct {
	Group            string
	Field            stats.Field
	Statistic        stats.Statistic
	BBox             geo.BBox
	// GapFillThreshold is the tile coverage (0-1) below which the group value
	// fills gaps. Zero disables group gap fill; a negative value selects
	// DefaultGapFillThreshold.
	GapFillThreshold float64
	// Default is returned when no statistics exist at any level.
	Default float64
}

// TileMethod describes a tile blended value.
type TileMethod struct {
	Count       int     `json:"count"`
	TotalWeight float64 `json:"total_weight"` // percent of the bbox covered by tiles with data
	GapFill     string  `json:"gap_fill"`
}

// Method explains which fallback tier produced a value.
type Method struct {
	Stat         stats.Statistic `json:"stat"`
	Field        stats.Field     `json:"field,omitempty"`
	Group        string          `json:"group"`
	Tiles        *TileMethod     `json:"tiles,omitempty"`
	PerUnit      *float64        `json:"per_unit,omitempty"` // per km² or per pixel
	AreaKm2      float64         `json:"area_km2,omitempty"`
	Pixels       float64         `json:"pixels,omitempty"`
	WithClipping *bool           `json:"with_clipping,omitempty"`
	Capped       bool            `json:"capped,omitempty"`
}

// Unknown reports whether the value is the default because nothing was known.
func (m Method) Unknown() bool {
	return m.Group == GroupNone
}

// Lookup resolves q against tree, trying in order: tiles of the group within
// the bbox, the group itself, GLOBAL, and finally q.Default. grid must be the
// grid the tree was binned on; nil selects it from the tree's tile level.
func Lookup(tree *aggregate.Tree, grid *tilegrid.Grid, q Query) (float64, Method, error) {
	m := Method{Stat: q.Statistic, Field: q.Field}
	if err := q.BBox.Validate(); err != nil {
		return 0, m, err
	}
	if !q.Statistic.IsValid() {
		return 0, m, fmt.Errorf("unknown statistic %q", q.Statistic)
	}
	threshold := q.GapFillThreshold
	if threshold < 0 {
		threshold = DefaultGapFillThreshold
	}

	value := func(fs aggregate.FieldStats) (float64, bool) {
		return fs.Get(q.Field).Value(q.Statistic)
	}

	if !tree.IsEmpty() {
		if grid == nil {
			grid = tilegrid.ForLevel(tree.TileLevel)
		}
		if g := tree.Group(q.Group); g != nil && q.Group != aggregate.GlobalGroup {
			groupValue, groupOK := value(g.Fields)

			if v, tm, ok := blendTiles(g, grid, q, threshold, groupValue, groupOK); ok {
				m.Group = q.Group + "_tiles"
				m.Tiles = tm
				return v, m, nil
			}
			if groupOK {
				m.Group = q.Group
				return groupValue, m, nil
			}
		}
		if global := tree.Global(); global != nil {
			if v, ok := value(global.Fields); ok {
				m.Group = aggregate.GlobalGroup
				return v, m, nil
			}
		}
	}

	m.Group = GroupNone
	return q.Default, m, nil
}

// blendTiles weights the value of each tile by the fraction of the bbox it
// covers and fills the uncovered remainder. It reports false when no tile
// with a usable value overlaps the bbox.
func blendTiles(g *aggregate.GroupStats, grid *tilegrid.Grid, q Query, threshold, groupValue float64, groupOK bool) (float64, *TileMethod, bool) {
	reqArea := geo.AreaKm2BBox(q.BBox)
	if reqArea <= 0 {
		return 0, nil, false
	}
	tiles := g.TilesFor(grid.FinestTiles(q.BBox))
	if len(tiles) == 0 {
		return 0, nil, false
	}

	var blended, totalWeight float64
	values := make([]float64, 0, len(tiles))
	for _, ts := range tiles {
		v, ok := ts.Fields.Get(q.Field).Value(q.Statistic)
		if !ok {
			continue
		}
		inter, ok := geo.BBoxIntersection(q.BBox, grid.TileBBox(ts.Coord))
		if !ok {
			continue
		}
		w := geo.AreaKm2BBox(inter) / reqArea
		blended += w * v
		totalWeight += w
		values = append(values, v)
	}
	if totalWeight <= 0 {
		return 0, nil, false
	}

	gapFill := GapFillTileMean
	switch {
	case totalWeight > 1:
		blended /= totalWeight
	case totalWeight < threshold && groupOK:
		blended += (1 - totalWeight) * groupValue
		gapFill = q.Group
	default:
		blended += (1 - totalWeight) * stat.Mean(values, nil)
	}

	return blended, &TileMethod{
		Count:       len(tiles),
		TotalWeight: 100 * totalWeight,
		GapFill:     gapFill,
	}, true
}
