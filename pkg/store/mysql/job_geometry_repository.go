package mysql

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"exportestimator/internal/model"
)

const runGeometryColumns = "r.id AS run_id, j.uid AS job_uid, j.geometry, j.extent_west, j.extent_south, j.extent_east, j.extent_north"

// JobGeometryRepository reads the selection geometry of the job behind a run
type JobGeometryRepository struct {
	ds *Datastore
}

// NewJobGeometryRepository creates a new job geometry repository
func NewJobGeometryRepository(ds *Datastore) *JobGeometryRepository {
	return &JobGeometryRepository{ds: ds}
}

func (r *JobGeometryRepository) query(db *gorm.DB) *gorm.DB {
	return db.Table("export_runs AS r").
		Select(runGeometryColumns).
		Joins("JOIN jobs AS j ON j.id = r.job_id")
}

// RunGeometry returns the job geometry of runID
func (r *JobGeometryRepository) RunGeometry(ctx context.Context, runID int64) (*model.JobGeometry, error) {
	var row RunGeometryRow
	err := r.query(r.ds.DB(ctx)).Where("r.id = ?", runID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("run %d not found: %w", runID, err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get geometry of run %d: %w", runID, err)
	}
	return ToJobGeometryDomain(&row), nil
}

// AllRunGeometries returns the job geometry of every run that has completed
// provider work
func (r *JobGeometryRepository) AllRunGeometries(ctx context.Context) ([]*model.JobGeometry, error) {
	var rows []RunGeometryRow
	err := r.query(r.ds.DB(ctx)).
		Where("r.status = ?", model.RunStatusCompleted).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list run geometries: %w", err)
	}

	geoms := make([]*model.JobGeometry, 0, len(rows))
	for i := range rows {
		geoms = append(geoms, ToJobGeometryDomain(&rows[i]))
	}
	return geoms, nil
}
