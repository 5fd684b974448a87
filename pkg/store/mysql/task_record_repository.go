package mysql

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"exportestimator/internal/model"
)

const taskRecordColumns = `
	t.id AS task_id, t.uid AS task_uid, t.name AS task_name, t.status AS task_status,
	t.result_size_bytes AS task_result_size_bytes, t.started_at AS task_started_at, t.finished_at AS task_finished_at,
	p.id AS provider_task_id, p.uid AS provider_task_uid, p.name AS provider_task_name, p.slug AS provider_task_slug,
	p.status AS provider_task_status, p.started_at AS provider_task_started_at, p.finished_at AS provider_task_finished_at,
	r.id AS run_id, r.uid AS run_uid, r.status AS run_status, r.started_at AS run_started_at, r.finished_at AS run_finished_at,
	j.uid AS job_uid`

// TaskRecordFilter narrows the records a TaskRecordRepository reads
type TaskRecordFilter struct {
	// CompletedOnly keeps successful tasks of completed provider tasks and runs
	CompletedOnly bool
	// SuccessOnly keeps successful tasks whatever their run's outcome
	SuccessOnly bool
	// Slugs restricts records to these provider slugs
	Slugs []string
	// Limit caps the number of records; zero reads everything
	Limit int
}

// TaskRecordRepository streams export task records joined with their owners
type TaskRecordRepository struct {
	ds     *Datastore
	filter TaskRecordFilter
}

// NewTaskRecordRepository creates a repository reading completed records
func NewTaskRecordRepository(ds *Datastore) *TaskRecordRepository {
	return &TaskRecordRepository{ds: ds, filter: TaskRecordFilter{CompletedOnly: true}}
}

// WithFilter returns a copy of the repository reading through filter
func (r *TaskRecordRepository) WithFilter(filter TaskRecordFilter) *TaskRecordRepository {
	return &TaskRecordRepository{ds: r.ds, filter: filter}
}

// query builds the joined record query, newest finished first
func (r *TaskRecordRepository) query(db *gorm.DB) *gorm.DB {
	q := db.Table("export_task_records AS t").
		Joins("JOIN data_provider_task_records AS p ON p.id = t.export_provider_task_id").
		Joins("JOIN export_runs AS r ON r.id = p.run_id").
		Joins("JOIN jobs AS j ON j.id = r.job_id").
		Where("t.result_size_bytes IS NOT NULL")

	if r.filter.CompletedOnly {
		q = q.Where("t.status = ? AND p.status = ? AND r.status = ?",
			model.TaskStatusSuccess, model.RunStatusCompleted, model.RunStatusCompleted)
	} else if r.filter.SuccessOnly {
		q = q.Where("t.status = ?", model.TaskStatusSuccess)
	}
	if len(r.filter.Slugs) > 0 {
		q = q.Where("p.slug IN ?", r.filter.Slugs)
	}
	return q
}

func (r *TaskRecordRepository) selectQuery(db *gorm.DB) *gorm.DB {
	q := r.query(db).Select(taskRecordColumns).Order("t.finished_at DESC").Order("t.id DESC")
	if r.filter.Limit > 0 {
		q = q.Limit(r.filter.Limit)
	}
	return q
}

// ForEach calls fn for every record, most recently finished first. It stops
// at the first error returned by fn.
func (r *TaskRecordRepository) ForEach(ctx context.Context, fn func(*model.TaskRecord) error) error {
	db := r.ds.DB(ctx)
	rows, err := r.selectQuery(db).Rows()
	if err != nil {
		return fmt.Errorf("failed to query task records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var row TaskRecordRow
		if err := db.ScanRows(rows, &row); err != nil {
			return fmt.Errorf("failed to scan task record: %w", err)
		}
		if err := fn(ToTaskRecordDomain(&row)); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read task records: %w", err)
	}
	return nil
}

// Count returns the number of records ForEach would visit
func (r *TaskRecordRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.query(r.ds.DB(ctx)).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count task records: %w", err)
	}
	if r.filter.Limit > 0 && count > int64(r.filter.Limit) {
		count = int64(r.filter.Limit)
	}
	return count, nil
}
