// Package tilegrid implements the geodetic (EPSG:4326) tile scheme used to bin
// export statistics spatially.
//
// The scheme mirrors the usual global geodetic pyramid: 256x256 pixel tiles,
// origin in the lower-left corner, 360/256 degrees per pixel at level 0 and a
// factor of two between levels.
package tilegrid

import (
	"fmt"
	"math"

	"exportestimator/pkg/geo"
)

const (
	// DefaultLevel is the zoom level statistics are binned at.
	DefaultLevel = 10

	// TileSize is the width and height of a tile in pixels.
	TileSize = 256

	// MaxLevel is the deepest level a grid may be built for.
	MaxLevel = 20
)

var world = geo.NewBBox(-180, -90, 180, 90)

// Coord identifies one tile of the grid.
type Coord struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

// RowKey is the first-level key of a tile in an aggregate tree.
func (c Coord) RowKey() string {
	return fmt.Sprintf("tile_%d", c.Y)
}

// CellKey is the second-level key of a tile in an aggregate tree.
func (c Coord) CellKey() string {
	return fmt.Sprintf("%d_%d", c.X, c.Z)
}

func (c Coord) String() string {
	return fmt.Sprintf("(%d, %d, %d)", c.X, c.Y, c.Z)
}

// ResolutionForLevel returns degrees per pixel at the given level.
func ResolutionForLevel(level int) float64 {
	return math.Ldexp(360.0/TileSize, -level)
}

// Grid is a geodetic tile grid restricted to a set of levels.
type Grid struct {
	levels []int
}

// New builds a grid containing the given levels, in ascending order.
func New(levels ...int) (*Grid, error) {
	if len(levels) == 0 {
		return nil, fmt.Errorf("tile grid needs at least one level")
	}
	prev := -1
	for _, l := range levels {
		if l < 0 || l > MaxLevel {
			return nil, fmt.Errorf("tile level %d out of range [0, %d]", l, MaxLevel)
		}
		if l <= prev {
			return nil, fmt.Errorf("tile levels must be strictly ascending, got %v", levels)
		}
		prev = l
	}
	return &Grid{levels: append([]int(nil), levels...)}, nil
}

// Default returns the single-level grid statistics are binned on.
func Default() *Grid {
	g, _ := New(DefaultLevel)
	return g
}

// ForLevel returns a single-level grid, falling back to DefaultLevel when level is invalid.
func ForLevel(level int) *Grid {
	g, err := New(level)
	if err != nil {
		return Default()
	}
	return g
}

// ForRange returns a grid containing every level in [from, to].
func ForRange(from, to int) (*Grid, error) {
	if to < from {
		return nil, fmt.Errorf("invalid tile level range [%d, %d]", from, to)
	}
	levels := make([]int, 0, to-from+1)
	for l := from; l <= to; l++ {
		levels = append(levels, l)
	}
	return New(levels...)
}

// Levels returns the grid levels.
func (g *Grid) Levels() []int {
	return append([]int(nil), g.levels...)
}

// FinestLevel is the highest resolution level of the grid.
func (g *Grid) FinestLevel() int {
	return g.levels[len(g.levels)-1]
}

// TileSpan returns the width (and height) of a tile in degrees at level.
func TileSpan(level int) float64 {
	return ResolutionForLevel(level) * TileSize
}

func gridShape(level int) (cols, rows int) {
	span := TileSpan(level)
	cols = int(math.Ceil(360/span - 1e-9))
	rows = int(math.Ceil(180/span - 1e-9))
	return cols, rows
}

// tileRange is the inclusive index rectangle of the tiles a bbox overlaps at
// one level.
type tileRange struct {
	level  int
	x0, x1 int
	y0, y1 int
}

func (r tileRange) count() int {
	return (r.x1 - r.x0 + 1) * (r.y1 - r.y0 + 1)
}

// rangeFor returns the tiles at level whose cell overlaps b. Edges that only
// touch a tile boundary do not pull in the neighbouring tile.
func rangeFor(b geo.BBox, level int) (tileRange, bool) {
	clipped, ok := geo.BBoxIntersection(b, world)
	if !ok {
		return tileRange{}, false
	}

	res := ResolutionForLevel(level)
	span := res * TileSize
	delta := res / 10
	cols, rows := gridShape(level)

	r := tileRange{
		level: level,
		x0:    clampIndex(int(math.Floor((clipped.West()+delta+180)/span)), cols),
		x1:    clampIndex(int(math.Floor((clipped.East()-delta+180)/span)), cols),
		y0:    clampIndex(int(math.Floor((clipped.South()+delta+90)/span)), rows),
		y1:    clampIndex(int(math.Floor((clipped.North()-delta+90)/span)), rows),
	}
	if r.x1 < r.x0 {
		r.x1 = r.x0
	}
	if r.y1 < r.y0 {
		r.y1 = r.y0
	}
	return r, true
}

// AffectedTiles returns every tile at level whose cell overlaps b. Edges that
// only touch a tile boundary do not pull in the neighbouring tile.
func (g *Grid) AffectedTiles(b geo.BBox, level int) []Coord {
	r, ok := rangeFor(b, level)
	if !ok {
		return nil
	}
	tiles := make([]Coord, 0, r.count())
	for y := r.y0; y <= r.y1; y++ {
		for x := r.x0; x <= r.x1; x++ {
			tiles = append(tiles, Coord{X: x, Y: y, Z: level})
		}
	}
	return tiles
}

// FinestTiles is AffectedTiles at the finest level of the grid.
func (g *Grid) FinestTiles(b geo.BBox) []Coord {
	return g.AffectedTiles(b, g.FinestLevel())
}

// TileBBox returns the extent of a tile, clipped to the world extent.
func (g *Grid) TileBBox(c Coord) geo.BBox {
	span := TileSpan(c.Z)
	w := -180 + float64(c.X)*span
	s := -90 + float64(c.Y)*span
	return geo.NewBBox(w, s, math.Min(w+span, 180), math.Min(s+span, 90))
}

// TotalPixels counts the pixels of every level of the grid that fall inside
// b. With clipping, only the covered fraction of each edge tile is counted,
// assuming pixels are spread uniformly over the tile's spherical area.
//
// The cost does not depend on how many tiles b covers: interior tiles count
// whole, and the spherical area of a tile/bbox intersection factors into a
// longitude part and a latitude part, so only edge columns and edge rows are
// measured.
func (g *Grid) TotalPixels(b geo.BBox, clipping bool) float64 {
	const pxPerTile = TileSize * TileSize

	var total float64
	for _, level := range g.levels {
		r, ok := rangeFor(b, level)
		if !ok {
			continue
		}
		if !clipping {
			total += float64(r.count()) * pxPerTile
			continue
		}
		cols := coverage(r.x0, r.x1, func(x int) float64 { return g.columnCover(b, x, level) })
		rows := coverage(r.y0, r.y1, func(y int) float64 { return g.rowCover(b, y, level) })
		total += cols * rows * pxPerTile
	}
	return total
}

// coverage sums the covered fraction of the tiles lo..hi along one axis.
// Only the two edge tiles can be partly covered.
func coverage(lo, hi int, edge func(int) float64) float64 {
	if lo == hi {
		return edge(lo)
	}
	return float64(hi-lo-1) + edge(lo) + edge(hi)
}

// columnCover is the fraction of column x's longitude span inside b.
func (g *Grid) columnCover(b geo.BBox, x, level int) float64 {
	tb := g.TileBBox(Coord{X: x, Z: level})
	width := tb.East() - tb.West()
	if width <= 0 {
		return 0
	}
	overlap := math.Min(b.East(), tb.East()) - math.Max(b.West(), tb.West())
	return math.Max(0, overlap) / width
}

// rowCover is the fraction of row y's spherical area, per degree of
// longitude, inside b.
func (g *Grid) rowCover(b geo.BBox, y, level int) float64 {
	tb := g.TileBBox(Coord{Y: y, Z: level})
	band := sinLat(tb.North()) - sinLat(tb.South())
	if band <= 0 {
		return 0
	}
	south := math.Max(b.South(), tb.South())
	north := math.Min(b.North(), tb.North())
	if north <= south {
		return 0
	}
	return (sinLat(north) - sinLat(south)) / band
}

func sinLat(deg float64) float64 {
	return math.Sin(deg * math.Pi / 180)
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
