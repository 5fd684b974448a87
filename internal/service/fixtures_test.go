package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/require"

	"exportestimator/internal/model"
	"exportestimator/pkg/cache"
	"exportestimator/pkg/config"
	"exportestimator/pkg/geo"
	"exportestimator/pkg/store/mysql"
)

// smallBox lies inside tile (512, 256, 10).
var smallBox = geo.NewBBox(0.1, 0.1, 0.2, 0.2)

type sliceSource struct {
	records []*model.TaskRecord
	passes  int
}

func (s *sliceSource) ForEach(ctx context.Context, fn func(*model.TaskRecord) error) error {
	s.passes++
	for _, r := range s.records {
		if err := fn(r); err != nil {
			return err
		}
	}
	return nil
}

func (s *sliceSource) Count(ctx context.Context) (int64, error) {
	return int64(len(s.records)), nil
}

type mapGeometries map[int64]*model.JobGeometry

func (m mapGeometries) RunGeometry(ctx context.Context, runID int64) (*model.JobGeometry, error) {
	g, ok := m[runID]
	if !ok {
		return nil, fmt.Errorf("run %d not found", runID)
	}
	return g, nil
}

func (m mapGeometries) put(t *testing.T, runID int64, b geo.BBox) {
	t.Helper()
	data, err := geojson.NewGeometry(b.Polygon()).MarshalJSON()
	require.NoError(t, err)
	m[runID] = &model.JobGeometry{RunID: runID, JobUID: fmt.Sprintf("job-%d", runID), GeoJSON: data, Extent: b}
}

type providerList []*model.DataProvider

func (p providerList) List(ctx context.Context) ([]*model.DataProvider, error) {
	return p, nil
}

func (p providerList) GetBySlug(ctx context.Context, slug string) (*model.DataProvider, error) {
	for _, dp := range p {
		if dp.Slug == slug {
			return dp, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", mysql.ErrProviderNotFound, slug)
}

type memoryStatus struct {
	mu      sync.Mutex
	history []model.RefreshStatus
}

func (m *memoryStatus) Save(ctx context.Context, s *model.RefreshStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, *s)
	return nil
}

func (m *memoryStatus) Get(ctx context.Context, grouping string) (*model.RefreshStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.history) - 1; i >= 0; i-- {
		if m.history[i].Grouping == grouping {
			s := m.history[i]
			return &s, nil
		}
	}
	return nil, errors.New("not found")
}

func (m *memoryStatus) GetAll(ctx context.Context) ([]*model.RefreshStatus, error) {
	return nil, nil
}

var (
	osmProvider     = &model.DataProvider{ID: 1, Name: "OpenStreetMap Data", Slug: "osm", TypeName: "osm", LevelFrom: 0, LevelTo: 10}
	imageryProvider = &model.DataProvider{ID: 2, Name: "Imagery", Slug: "imagery", TypeName: "wmts", LevelFrom: 0, LevelTo: 4}
	coverageProvider = &model.DataProvider{ID: 3, Name: "Elevation", Slug: "dem", TypeName: "wcs", LevelFrom: 2, LevelTo: 6}
)

func osmRecord(id, runID, size int64) *model.TaskRecord {
	return &model.TaskRecord{
		ID:              id,
		UID:             fmt.Sprintf("etr-%d", id),
		Name:            "Geopackage (.gpkg)",
		Status:          model.TaskStatusSuccess,
		Duration:        "0:01:00",
		ResultSizeBytes: &size,
		GroupTask: model.ProviderTask{
			ID:       100 + id,
			UID:      fmt.Sprintf("dptr-%d", id),
			Name:     osmProvider.Name,
			Slug:     osmProvider.Slug,
			Status:   model.RunStatusCompleted,
			Duration: "0:02:00",
		},
		Run: model.ExportRun{
			ID:       runID,
			UID:      fmt.Sprintf("run-%d", runID),
			JobUID:   fmt.Sprintf("job-%d", runID),
			Status:   model.RunStatusCompleted,
			Duration: "0:03:00",
		},
	}
}

type fixture struct {
	records *sliceSource
	geoms   mapGeometries
	status  *memoryStatus
	store   *cache.MemoryStore
	svc     *StatisticsService
}

func newFixture(t *testing.T, records ...*model.TaskRecord) *fixture {
	f := &fixture{
		records: &sliceSource{records: records},
		geoms:   mapGeometries{},
		status:  &memoryStatus{},
		store:   cache.NewMemoryStore(),
	}
	for _, r := range records {
		if _, ok := f.geoms[r.Run.ID]; !ok {
			f.geoms.put(t, r.Run.ID, smallBox)
		}
	}
	f.svc = NewStatisticsService(StatisticsDeps{
		Records:    f.records,
		Geometries: f.geoms,
		Providers:  providerList{osmProvider, imageryProvider, coverageProvider},
		Store:      f.store,
		Status:     f.status,
	}, config.DefaultStatisticsConfig())
	return f
}
