package mysql

import (
	"time"

	"exportestimator/internal/model"
	"exportestimator/pkg/geo"
	"exportestimator/pkg/stats"
)

// ToTaskRecordDomain converts a joined task record row to the domain TaskRecord
func ToTaskRecordDomain(row *TaskRecordRow) *model.TaskRecord {
	if row == nil {
		return nil
	}

	return &model.TaskRecord{
		ID:              row.TaskID,
		UID:             row.TaskUID,
		Name:            row.TaskName,
		Status:          model.TaskStatus(row.TaskStatus),
		Duration:        formatDuration(row.TaskStartedAt, row.TaskFinishedAt),
		ResultSizeBytes: row.TaskResultSizeBytes,
		FinishedAt:      row.TaskFinishedAt,
		GroupTask: model.ProviderTask{
			ID:       row.ProviderTaskID,
			UID:      row.ProviderTaskUID,
			Name:     row.ProviderTaskName,
			Slug:     row.ProviderTaskSlug,
			Status:   model.RunStatus(row.ProviderTaskStatus),
			Duration: formatDuration(row.ProviderTaskStartedAt, row.ProviderTaskFinishedAt),
		},
		Run: model.ExportRun{
			ID:       row.RunID,
			UID:      row.RunUID,
			JobUID:   row.JobUID,
			Status:   model.RunStatus(row.RunStatus),
			Duration: formatDuration(row.RunStartedAt, row.RunFinishedAt),
		},
	}
}

// ToJobGeometryDomain converts a run geometry row to the domain JobGeometry
func ToJobGeometryDomain(row *RunGeometryRow) *model.JobGeometry {
	if row == nil {
		return nil
	}

	return &model.JobGeometry{
		RunID:   row.RunID,
		JobUID:  row.JobUID,
		GeoJSON: row.Geometry,
		Extent:  geo.NewBBox(row.ExtentWest, row.ExtentSouth, row.ExtentEast, row.ExtentNorth),
	}
}

// ToDataProviderDomain converts a MySQL DataProvider to the domain DataProvider
func ToDataProviderDomain(p *DataProvider) *model.DataProvider {
	if p == nil {
		return nil
	}

	return &model.DataProvider{
		ID:        p.ID,
		Name:      p.Name,
		Slug:      p.Slug,
		TypeName:  p.TypeName,
		LevelFrom: p.LevelFrom,
		LevelTo:   p.LevelTo,
	}
}

// formatDuration renders finished-started as H:MM:SS text, or "" when the
// interval is incomplete.
func formatDuration(started, finished *time.Time) string {
	if started == nil || finished == nil {
		return ""
	}
	return stats.FormatHMS(finished.Sub(*started).Seconds())
}
