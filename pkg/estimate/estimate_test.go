package estimate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exportestimator/pkg/aggregate"
	"exportestimator/pkg/geo"
	"exportestimator/pkg/stats"
	"exportestimator/pkg/tilegrid"
)

var (
	// smallBox lies inside tile (512, 256, 10).
	smallBox   = geo.NewBBox(0.1, 0.1, 0.2, 0.2)
	originTile = tilegrid.Coord{X: 512, Y: 256, Z: 10}
	tileEast   = tilegrid.TileSpan(10)
)

// ci99 is a summary whose 99% interval is [lower, upper].
func ci99(lower, upper float64) *stats.Summary {
	return &stats.Summary{
		Mean:  (lower + upper) / 2,
		Min:   lower,
		Max:   upper,
		Count: 10,
		CI99:  &stats.Interval{lower, upper},
	}
}

func single(v float64) *stats.Summary {
	return &stats.Summary{Mean: v, Min: v, Max: v, Count: 1}
}

func newTree() *aggregate.Tree {
	return &aggregate.Tree{TileLevel: 10, Groups: map[string]*aggregate.GroupStats{}}
}

func withGroup(tree *aggregate.Tree, name string, fields aggregate.FieldStats) *aggregate.GroupStats {
	g := &aggregate.GroupStats{Fields: fields}
	tree.Groups[name] = g
	return g
}

func withTile(g *aggregate.GroupStats, c tilegrid.Coord, fields aggregate.FieldStats) {
	if g.Tiles == nil {
		g.Tiles = map[string]map[string]*aggregate.TileStats{}
	}
	row, ok := g.Tiles[c.RowKey()]
	if !ok {
		row = map[string]*aggregate.TileStats{}
		g.Tiles[c.RowKey()] = row
	}
	row[c.CellKey()] = &aggregate.TileStats{Fields: fields, Coord: c}
	g.TileCount++
}

func TestSize_NoStatistics(t *testing.T) {
	for name, tree := range map[string]*aggregate.Tree{"nil": nil, "empty": newTree()} {
		t.Run(name, func(t *testing.T) {
			v, m, err := Size(tree, nil, smallBox, "OSM", 0)
			require.NoError(t, err)
			assert.Zero(t, v)
			assert.Equal(t, GroupNone, m.Group)
			assert.True(t, m.Unknown())
		})
	}
}

func TestSize_GlobalFallback(t *testing.T) {
	tree := newTree()
	withGroup(tree, aggregate.GlobalGroup, aggregate.FieldStats{stats.FieldSize: ci99(2, 4)})

	v, m, err := Size(tree, nil, smallBox, "OSM", 0)
	require.NoError(t, err)

	area := geo.AreaKm2BBox(smallBox)
	assert.InDelta(t, 4*area, v, 1e-9)
	assert.Equal(t, aggregate.GlobalGroup, m.Group)
	assert.Equal(t, stats.CI99, m.Stat)
	assert.Nil(t, m.Tiles)
	require.NotNil(t, m.PerUnit)
	assert.Equal(t, 4.0, *m.PerUnit)
	assert.InDelta(t, area, m.AreaKm2, 1e-12)
}

func TestSize_FullTileCoverage(t *testing.T) {
	tree := newTree()
	g := withGroup(tree, "OSM", aggregate.FieldStats{stats.FieldSize: ci99(1, 3)})
	withTile(g, originTile, aggregate.FieldStats{stats.FieldSize: ci99(1, 5)})

	v, m, err := Size(tree, nil, smallBox, "OSM", 0)
	require.NoError(t, err)

	assert.InDelta(t, 5*geo.AreaKm2BBox(smallBox), v, 1e-9)
	assert.Equal(t, "OSM_tiles", m.Group)
	require.NotNil(t, m.Tiles)
	assert.Equal(t, 1, m.Tiles.Count)
	assert.InDelta(t, 100, m.Tiles.TotalWeight, 1e-9)
	assert.Equal(t, GapFillTileMean, m.Tiles.GapFill)
}

func TestSize_PartialCoverageBelowThresholdUsesGroup(t *testing.T) {
	tree := newTree()
	g := withGroup(tree, "OSM", aggregate.FieldStats{stats.FieldSize: ci99(1, 2)})
	withTile(g, originTile, aggregate.FieldStats{stats.FieldSize: ci99(5, 10)})

	// 5% of the box lies in the origin tile, the rest in a tile without data.
	bbox := geo.NewBBox(tileEast-0.01, 0.1, tileEast+0.19, 0.2)

	v, m, err := Size(tree, nil, bbox, "OSM", DefaultGapFillThreshold)
	require.NoError(t, err)

	assert.InDelta(t, 2.4*geo.AreaKm2BBox(bbox), v, 1e-6)
	require.NotNil(t, m.Tiles)
	assert.Equal(t, "OSM", m.Tiles.GapFill)
	assert.InDelta(t, 5, m.Tiles.TotalWeight, 1e-6)
	assert.Equal(t, 1, m.Tiles.Count)
}

func TestSize_GapFillThresholdSettings(t *testing.T) {
	tree := newTree()
	g := withGroup(tree, "OSM", aggregate.FieldStats{stats.FieldSize: ci99(1, 2)})
	withTile(g, originTile, aggregate.FieldStats{stats.FieldSize: ci99(5, 10)})
	bbox := geo.NewBBox(tileEast-0.01, 0.1, tileEast+0.19, 0.2)

	tests := []struct {
		name      string
		threshold float64
		perKm2    float64
		gapFill   string
	}{
		{"zero disables group gap fill", 0, 10, GapFillTileMean},
		{"negative selects the default", -1, 2.4, "OSM"},
		{"below coverage", 0.04, 10, GapFillTileMean},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, m, err := Size(tree, nil, bbox, "OSM", tt.threshold)
			require.NoError(t, err)
			assert.InDelta(t, tt.perKm2*geo.AreaKm2BBox(bbox), v, 1e-6)
			require.NotNil(t, m.Tiles)
			assert.Equal(t, tt.gapFill, m.Tiles.GapFill)
		})
	}
}

func TestSize_PartialCoverageAboveThresholdUsesTileMean(t *testing.T) {
	tree := newTree()
	g := withGroup(tree, "OSM", aggregate.FieldStats{stats.FieldSize: ci99(1, 2)})
	withTile(g, originTile, aggregate.FieldStats{stats.FieldSize: ci99(5, 10)})

	bbox := geo.NewBBox(tileEast-0.1, 0.1, tileEast+0.1, 0.2)

	v, m, err := Size(tree, nil, bbox, "OSM", DefaultGapFillThreshold)
	require.NoError(t, err)

	assert.InDelta(t, 10*geo.AreaKm2BBox(bbox), v, 1e-6)
	assert.Equal(t, GapFillTileMean, m.Tiles.GapFill)
	assert.InDelta(t, 50, m.Tiles.TotalWeight, 1e-6)
}

func TestSize_NoOverlappingTilesUsesGroup(t *testing.T) {
	tree := newTree()
	g := withGroup(tree, "OSM", aggregate.FieldStats{stats.FieldSize: ci99(1, 2)})
	withTile(g, originTile, aggregate.FieldStats{stats.FieldSize: ci99(5, 10)})

	bbox := geo.NewBBox(10, 10, 10.1, 10.1)
	v, m, err := Size(tree, nil, bbox, "OSM", 0)
	require.NoError(t, err)

	assert.InDelta(t, 2*geo.AreaKm2BBox(bbox), v, 1e-9)
	assert.Equal(t, "OSM", m.Group)
	assert.Nil(t, m.Tiles)
}

func TestSize_TilesWithoutIntervalAreUnusable(t *testing.T) {
	tree := newTree()
	g := withGroup(tree, "OSM", aggregate.FieldStats{stats.FieldSize: ci99(1, 2)})
	withTile(g, originTile, aggregate.FieldStats{stats.FieldSize: single(100)})

	v, m, err := Size(tree, nil, smallBox, "OSM", 0)
	require.NoError(t, err)

	assert.InDelta(t, 2*geo.AreaKm2BBox(smallBox), v, 1e-9)
	assert.Equal(t, "OSM", m.Group)
}

func TestSize_GroupWithoutIntervalFallsBackToGlobal(t *testing.T) {
	tree := newTree()
	withGroup(tree, aggregate.GlobalGroup, aggregate.FieldStats{stats.FieldSize: ci99(2, 4)})
	withGroup(tree, "OSM", aggregate.FieldStats{stats.FieldSize: single(100)})

	v, m, err := Size(tree, nil, smallBox, "OSM", 0)
	require.NoError(t, err)

	assert.InDelta(t, 4*geo.AreaKm2BBox(smallBox), v, 1e-9)
	assert.Equal(t, aggregate.GlobalGroup, m.Group)
}

func TestSize_InvalidBBox(t *testing.T) {
	_, _, err := Size(newTree(), nil, geo.NewBBox(1, 0, 0, 1), "OSM", 0)
	assert.ErrorIs(t, err, ErrInvalidBBox)
}

func TestLookup_UnknownStatistic(t *testing.T) {
	_, _, err := Lookup(newTree(), nil, Query{Field: stats.FieldSize, Statistic: "median", BBox: smallBox})
	assert.Error(t, err)
}

func TestLookup_DefaultValue(t *testing.T) {
	v, m, err := Lookup(nil, nil, Query{Field: stats.FieldMPP, Statistic: stats.Mean, BBox: smallBox, Default: 0.5})
	require.NoError(t, err)
	assert.Equal(t, 0.5, v)
	assert.True(t, m.Unknown())
}

func TestDuration(t *testing.T) {
	tree := newTree()
	withGroup(tree, "OSM", aggregate.FieldStats{stats.FieldDuration: single(0.5)})

	v, m, err := Duration(tree, nil, smallBox, "OSM", 0)
	require.NoError(t, err)
	assert.InDelta(t, 0.5*geo.AreaKm2BBox(smallBox), v, 1e-9)
	assert.False(t, m.Capped)
	assert.Equal(t, stats.Mean, m.Stat)

	withGroup(tree, "slow", aggregate.FieldStats{stats.FieldDuration: single(1e6)})
	v, m, err = Duration(tree, nil, smallBox, "slow", 0)
	require.NoError(t, err)
	assert.Equal(t, float64(MaxDurationSeconds+1), v)
	assert.True(t, m.Capped)
}

func TestRasterSize(t *testing.T) {
	pyramid, err := tilegrid.ForRange(0, 10)
	require.NoError(t, err)
	pixels := pyramid.TotalPixels(smallBox, true)

	v, m, err := RasterSize(newTree(), nil, pyramid, smallBox, "imagery", 0, true)
	require.NoError(t, err)
	assert.InDelta(t, pixels*DefaultBytesPerPixel, v, 1e-9)
	assert.True(t, m.Unknown())
	assert.Equal(t, pixels, m.Pixels)
	require.NotNil(t, m.WithClipping)
	assert.True(t, *m.WithClipping)

	tree := newTree()
	withGroup(tree, "imagery", aggregate.FieldStats{stats.FieldMPP: single(5)})
	v, m, err = RasterSize(tree, nil, pyramid, smallBox, "imagery", 0, true)
	require.NoError(t, err)
	assert.InDelta(t, pixels*MaxBytesPerPixel, v, 1e-9)
	assert.True(t, m.Capped)
}

func BenchmarkSize(b *testing.B) {
	tree := newTree()
	g := withGroup(tree, "OSM", aggregate.FieldStats{stats.FieldSize: ci99(1, 2)})
	for x := 500; x < 530; x++ {
		for y := 250; y < 260; y++ {
			withTile(g, tilegrid.Coord{X: x, Y: y, Z: 10}, aggregate.FieldStats{stats.FieldSize: ci99(1, float64(x+y))})
		}
	}
	bbox := geo.NewBBox(-2, -1, 2, 1)
	grid := tilegrid.Default()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, _, err := Size(tree, grid, bbox, "OSM", 0); err != nil {
			b.Fatal(err)
		}
	}
}
