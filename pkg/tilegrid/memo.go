package tilegrid

import "exportestimator/pkg/geo"

// RunMemo remembers the finest-level tiles of each run's bbox. A run's bbox
// does not change during one aggregation pass, so the run id is the key.
// A RunMemo belongs to exactly one pass and one grid.
type RunMemo struct {
	grid   *Grid
	byRun  map[int64][]Coord
	misses int
}

// NewRunMemo creates an empty memo over grid.
func NewRunMemo(grid *Grid) *RunMemo {
	return &RunMemo{
		grid:  grid,
		byRun: make(map[int64][]Coord),
	}
}

// Tiles returns the tiles touched by bbox, computing them once per run id.
func (m *RunMemo) Tiles(runID int64, bbox geo.BBox) []Coord {
	if tiles, ok := m.byRun[runID]; ok {
		return tiles
	}
	m.misses++
	tiles := m.grid.FinestTiles(bbox)
	m.byRun[runID] = tiles
	return tiles
}

// Misses is the number of grid intersections actually computed.
func (m *RunMemo) Misses() int {
	return m.misses
}
