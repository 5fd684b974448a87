package aggregate

import (
	"context"
	"fmt"
	"testing"

	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/require"

	"exportestimator/internal/model"
	"exportestimator/pkg/geo"
)

// sliceSource serves records from memory.
type sliceSource []*model.TaskRecord

func (s sliceSource) ForEach(ctx context.Context, fn func(*model.TaskRecord) error) error {
	for _, r := range s {
		if err := fn(r); err != nil {
			return err
		}
	}
	return nil
}

func (s sliceSource) Count(ctx context.Context) (int64, error) {
	return int64(len(s)), nil
}

// mapGeometries resolves run geometries from memory and counts lookups.
type mapGeometries struct {
	byRun   map[int64]*model.JobGeometry
	lookups int
}

func newMapGeometries() *mapGeometries {
	return &mapGeometries{byRun: make(map[int64]*model.JobGeometry)}
}

func (m *mapGeometries) RunGeometry(ctx context.Context, runID int64) (*model.JobGeometry, error) {
	m.lookups++
	g, ok := m.byRun[runID]
	if !ok {
		return nil, fmt.Errorf("run %d not found", runID)
	}
	return g, nil
}

func (m *mapGeometries) put(t *testing.T, runID int64, b geo.BBox) {
	t.Helper()
	data, err := geojson.NewGeometry(b.Polygon()).MarshalJSON()
	require.NoError(t, err)
	m.byRun[runID] = &model.JobGeometry{RunID: runID, GeoJSON: data, Extent: b}
}

// prefetchingGeometries also implements GeometryPrefetcher.
type prefetchingGeometries struct {
	*mapGeometries
}

func (p prefetchingGeometries) AllRunGeometries(ctx context.Context) ([]*model.JobGeometry, error) {
	out := make([]*model.JobGeometry, 0, len(p.byRun))
	for _, g := range p.byRun {
		out = append(out, g)
	}
	return out, nil
}

// smallBox lies inside tile (512, 256, 10).
var smallBox = geo.NewBBox(0.1, 0.1, 0.2, 0.2)

type recordOpt func(*model.TaskRecord)

func withStatus(task model.TaskStatus, group, run model.RunStatus) recordOpt {
	return func(r *model.TaskRecord) {
		r.Status = task
		r.GroupTask.Status = group
		r.Run.Status = run
	}
}

func withDurations(task, group, run string) recordOpt {
	return func(r *model.TaskRecord) {
		r.Duration = task
		r.GroupTask.Duration = group
		r.Run.Duration = run
	}
}

func withoutResult() recordOpt {
	return func(r *model.TaskRecord) { r.ResultSizeBytes = nil }
}

func record(id, runID, groupTaskID int64, provider, name string, size int64, opts ...recordOpt) *model.TaskRecord {
	r := &model.TaskRecord{
		ID:              id,
		Name:            name,
		Status:          model.TaskStatusSuccess,
		Duration:        "0:01:00",
		ResultSizeBytes: &size,
		GroupTask: model.ProviderTask{
			ID:       groupTaskID,
			Name:     provider,
			Status:   model.RunStatusCompleted,
			Duration: "0:02:00",
		},
		Run: model.ExportRun{
			ID:       runID,
			Status:   model.RunStatusCompleted,
			Duration: "0:05:00",
		},
	}
	for _, o := range opts {
		o(r)
	}
	return r
}
