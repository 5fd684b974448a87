package aggregate

import (
	"fmt"

	"exportestimator/pkg/stats"
	"exportestimator/pkg/tilegrid"
)

// DefaultMaxSamples caps every bucket field. Samples past the cap are dropped.
const DefaultMaxSamples = 2000

// GlobalGroup is the reserved group holding statistics across every group.
const GlobalGroup = "GLOBAL"

// Level is the granularity of a bucket.
type Level int

const (
	LevelGlobal Level = iota
	LevelGroup
	LevelTaskType
	LevelTile
)

func (l Level) String() string {
	switch l {
	case LevelGlobal:
		return "global"
	case LevelGroup:
		return "group"
	case LevelTaskType:
		return "task_type"
	case LevelTile:
		return "tile"
	}
	return fmt.Sprintf("level(%d)", int(l))
}

// Fields sampled at each level.
var (
	rollupFields   = []stats.Field{stats.FieldArea, stats.FieldDuration, stats.FieldSize, stats.FieldMPP}
	taskTypeFields = []stats.Field{stats.FieldArea, stats.FieldDuration, stats.FieldSize}
	tileFields     = []stats.Field{stats.FieldArea, stats.FieldDuration, stats.FieldSize, stats.FieldMPP}
)

// FieldsFor returns the fields a bucket at level accepts, in report order.
func FieldsFor(l Level) []stats.Field {
	switch l {
	case LevelTaskType:
		return taskTypeFields
	case LevelTile:
		return tileFields
	default:
		return rollupFields
	}
}

// BucketKey identifies one bucket. Only the members relevant to Level are set.
type BucketKey struct {
	Level Level
	Group string
	Task  string
	Tile  tilegrid.Coord
}

func GlobalKey() BucketKey {
	return BucketKey{Level: LevelGlobal, Group: GlobalGroup}
}

func GroupKey(group string) BucketKey {
	return BucketKey{Level: LevelGroup, Group: group}
}

func TaskTypeKey(group, task string) BucketKey {
	return BucketKey{Level: LevelTaskType, Group: group, Task: task}
}

func TileKey(group string, c tilegrid.Coord) BucketKey {
	return BucketKey{Level: LevelTile, Group: group, Tile: c}
}

func (k BucketKey) String() string {
	switch k.Level {
	case LevelTaskType:
		return fmt.Sprintf("%s/%s", k.Group, k.Task)
	case LevelTile:
		return fmt.Sprintf("%s/%s/%s", k.Group, k.Tile.RowKey(), k.Tile.CellKey())
	}
	return k.Group
}

// Bucket accumulates normalized samples for one key.
type Bucket struct {
	key     BucketKey
	limit   int
	samples map[stats.Field][]float64
}

func newBucket(key BucketKey, limit int) *Bucket {
	b := &Bucket{
		key:     key,
		limit:   limit,
		samples: make(map[stats.Field][]float64, len(FieldsFor(key.Level))),
	}
	for _, f := range FieldsFor(key.Level) {
		b.samples[f] = nil
	}
	return b
}

// Key returns the bucket key.
func (b *Bucket) Key() BucketKey { return b.key }

// Add appends v to field. It reports false when the bucket does not track
// field or the field is already full.
func (b *Bucket) Add(field stats.Field, v float64) bool {
	s, ok := b.samples[field]
	if !ok || len(s) >= b.limit {
		return false
	}
	b.samples[field] = append(s, v)
	return true
}

// Samples returns the samples collected for field.
func (b *Bucket) Samples(field stats.Field) []float64 {
	return b.samples[field]
}

// Summaries reduces every non-empty field.
func (b *Bucket) Summaries() FieldStats {
	out := make(FieldStats)
	for _, f := range FieldsFor(b.key.Level) {
		if s := stats.Summarize(b.samples[f]); s != nil {
			out[f] = s
		}
	}
	return out
}

// Table is the flat store of every bucket of one aggregation pass.
type Table struct {
	limit   int
	buckets map[BucketKey]*Bucket
	order   []BucketKey
}

// NewTable creates an empty table whose buckets hold at most limit samples per field.
func NewTable(limit int) *Table {
	if limit <= 0 {
		limit = DefaultMaxSamples
	}
	return &Table{
		limit:   limit,
		buckets: make(map[BucketKey]*Bucket),
	}
}

// Bucket returns the bucket for key, creating it on first use.
func (t *Table) Bucket(key BucketKey) *Bucket {
	if b, ok := t.buckets[key]; ok {
		return b
	}
	b := newBucket(key, t.limit)
	t.buckets[key] = b
	t.order = append(t.order, key)
	return b
}

// Lookup returns the bucket for key without creating it.
func (t *Table) Lookup(key BucketKey) (*Bucket, bool) {
	b, ok := t.buckets[key]
	return b, ok
}

// Keys returns every key in creation order.
func (t *Table) Keys() []BucketKey {
	return append([]BucketKey(nil), t.order...)
}

// Len is the number of buckets.
func (t *Table) Len() int { return len(t.order) }

// Add appends v to field of every bucket in keys.
func (t *Table) Add(field stats.Field, v float64, keys ...BucketKey) {
	for _, k := range keys {
		t.Bucket(k).Add(field, v)
	}
}
