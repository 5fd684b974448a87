package estimate

import (
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"exportestimator/pkg/aggregate"
	"exportestimator/pkg/geo"
	"exportestimator/pkg/stats"
	"exportestimator/pkg/tilegrid"
)

// TestProperty_UniformTilesGiveUniformEstimate tests that when every tile
// with data and the group itself report k bytes per km², the estimate is
// k times the bbox area whichever gap-fill branch is taken.
func TestProperty_UniformTilesGiveUniformEstimate(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)
	grid := tilegrid.Default()

	properties.Property("estimate is k times area", prop.ForAll(
		func(west, south, width, height, k float64, mask uint64) bool {
			bbox := geo.NewBBox(west, south, west+width, south+height)

			tree := newTree()
			g := withGroup(tree, "OSM", aggregate.FieldStats{stats.FieldSize: ci99(0, k)})
			for i, c := range grid.FinestTiles(bbox) {
				if mask&(1<<(uint(i)%64)) != 0 {
					withTile(g, c, aggregate.FieldStats{stats.FieldSize: ci99(0, k)})
				}
			}

			v, _, err := Size(tree, grid, bbox, "OSM", DefaultGapFillThreshold)
			if err != nil {
				return false
			}
			want := k * geo.AreaKm2BBox(bbox)
			return math.Abs(v-want) <= 1e-9*math.Max(1, want)
		},
		gen.Float64Range(-2, 2),
		gen.Float64Range(-2, 2),
		gen.Float64Range(0.001, 1.5),
		gen.Float64Range(0.001, 1.5),
		gen.Float64Range(0.1, 1000),
		gen.UInt64(),
	))

	properties.Property("tile weights never exceed full coverage", prop.ForAll(
		func(west, south, width, height float64) bool {
			bbox := geo.NewBBox(west, south, west+width, south+height)

			tree := newTree()
			g := withGroup(tree, "OSM", aggregate.FieldStats{stats.FieldSize: ci99(0, 1)})
			for _, c := range grid.FinestTiles(bbox) {
				withTile(g, c, aggregate.FieldStats{stats.FieldSize: ci99(0, 1)})
			}

			_, m, err := Size(tree, grid, bbox, "OSM", DefaultGapFillThreshold)
			if err != nil || m.Tiles == nil {
				return false
			}
			return m.Tiles.TotalWeight <= 100+1e-6 && m.Tiles.TotalWeight > 99.9
		},
		gen.Float64Range(-2, 2),
		gen.Float64Range(-2, 2),
		gen.Float64Range(0.05, 1.5),
		gen.Float64Range(0.05, 1.5),
	))

	properties.TestingRun(t)
}
