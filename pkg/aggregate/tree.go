package aggregate

import (
	"encoding/json"
	"fmt"

	"exportestimator/pkg/stats"
	"exportestimator/pkg/tilegrid"
)

// FieldStats holds the summary of each sampled field.
type FieldStats map[stats.Field]*stats.Summary

// Get returns the summary of field, or nil.
func (fs FieldStats) Get(field stats.Field) *stats.Summary {
	if fs == nil {
		return nil
	}
	return fs[field]
}

// TileStats is the summary of one tile bucket.
type TileStats struct {
	Fields FieldStats     `json:"fields"`
	Coord  tilegrid.Coord `json:"tile_coord"`
}

// GroupStats is everything known about one group.
type GroupStats struct {
	Fields    FieldStats                       `json:"fields"`
	Tasks     map[string]FieldStats            `json:"tasks,omitempty"`
	Tiles     map[string]map[string]*TileStats `json:"tiles,omitempty"` // tile_{y} -> {x}_{z}
	TileCount int                              `json:"tile_count"`
}

// Tile returns the statistics of c, or nil.
func (g *GroupStats) Tile(c tilegrid.Coord) *TileStats {
	if g == nil {
		return nil
	}
	row, ok := g.Tiles[c.RowKey()]
	if !ok {
		return nil
	}
	return row[c.CellKey()]
}

// TilesFor returns the statistics of every tile in coords that has any.
func (g *GroupStats) TilesFor(coords []tilegrid.Coord) []*TileStats {
	var out []*TileStats
	for _, c := range coords {
		if ts := g.Tile(c); ts != nil {
			out = append(out, ts)
		}
	}
	return out
}

// Tree is the immutable result of one aggregation pass.
type Tree struct {
	RunCount              int                    `json:"run_count"`
	DataProviderTaskCount int                    `json:"data_provider_task_count"`
	ExportTaskCount       int                    `json:"export_task_count"`
	TileLevel             int                    `json:"tile_level"`
	Groups                map[string]*GroupStats `json:"groups"`
}

// Group returns the statistics of name, or nil.
func (t *Tree) Group(name string) *GroupStats {
	if t == nil {
		return nil
	}
	return t.Groups[name]
}

// Global returns the GLOBAL group, or nil.
func (t *Tree) Global() *GroupStats {
	return t.Group(GlobalGroup)
}

// IsEmpty reports whether the tree holds no statistics at all.
func (t *Tree) IsEmpty() bool {
	return t == nil || len(t.Groups) == 0
}

// Encode serializes the tree. Map keys are sorted, so equal trees encode to
// equal bytes.
func (t *Tree) Encode() ([]byte, error) {
	return json.Marshal(t)
}

// DecodeTree parses a tree produced by Encode.
func DecodeTree(data []byte) (*Tree, error) {
	var t Tree
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to decode statistics tree: %w", err)
	}
	if t.Groups == nil {
		t.Groups = make(map[string]*GroupStats)
	}
	return &t, nil
}

// Render returns a presentation view of the tree in which each group maps
// field names, task names and tile rows to their (converted) statistics.
func (t *Tree) Render(formatters stats.FormatterTable) map[string]any {
	out := map[string]any{
		"run_count":                t.RunCount,
		"data_provider_task_count": t.DataProviderTaskCount,
		"export_task_count":        t.ExportTaskCount,
	}
	for name, g := range t.Groups {
		entry := renderFields(formatters, g.Fields)
		for task, fs := range g.Tasks {
			entry[task] = renderFields(formatters, fs)
		}
		for rowKey, row := range g.Tiles {
			cells := make(map[string]any, len(row))
			for cellKey, ts := range row {
				cell := renderFields(formatters, ts.Fields)
				cell["tile_coord"] = [3]int{ts.Coord.X, ts.Coord.Y, ts.Coord.Z}
				cells[cellKey] = cell
			}
			entry[rowKey] = cells
		}
		entry["tile_count"] = g.TileCount
		out[name] = entry
	}
	return out
}

func renderFields(formatters stats.FormatterTable, fs FieldStats) map[string]any {
	out := make(map[string]any, len(fs))
	for f, s := range fs {
		out[string(f)] = formatters.Render(f, s)
	}
	return out
}
