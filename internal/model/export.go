package model

import (
	"strings"
	"time"

	"exportestimator/pkg/geo"
)

// TaskStatus is the state of one export task record
type TaskStatus string

const (
	TaskStatusPending TaskStatus = "PENDING" // Pending
	TaskStatusRunning TaskStatus = "RUNNING" // Running
	TaskStatusSuccess TaskStatus = "SUCCESS" // Finished with a result
	TaskStatusFailed  TaskStatus = "FAILED"  // Failed
	TaskStatusCancel  TaskStatus = "CANCELED"
)

// RunStatus is the state of a run or of a data provider task within it
type RunStatus string

const (
	RunStatusSubmitted  RunStatus = "SUBMITTED"
	RunStatusRunning    RunStatus = "RUNNING"
	RunStatusCompleted  RunStatus = "COMPLETED" // Terminal success
	RunStatusIncomplete RunStatus = "INCOMPLETE"
	RunStatusFailed     RunStatus = "FAILED"
	RunStatusCanceled   RunStatus = "CANCELED"
)

// ExportRun is one execution of a job
type ExportRun struct {
	ID       int64     `json:"id"`
	UID      string    `json:"uid"`
	JobUID   string    `json:"job_uid"`
	Status   RunStatus `json:"status"`
	Duration string    `json:"duration,omitempty"` // H:MM:SS text
}

// ProviderTask is one data provider invocation within a run
type ProviderTask struct {
	ID       int64     `json:"id"`
	UID      string    `json:"uid"`
	Name     string    `json:"name"` // Provider name
	Slug     string    `json:"slug"`
	Status   RunStatus `json:"status"`
	Duration string    `json:"duration,omitempty"`
}

// TaskRecord is one completed unit of export work, joined with its owners
type TaskRecord struct {
	ID              int64        `json:"id"`
	UID             string       `json:"uid"`
	Name            string       `json:"name"` // Task type, e.g. "Geopackage (.gpkg)"
	Status          TaskStatus   `json:"status"`
	Duration        string       `json:"duration,omitempty"`
	ResultSizeBytes *int64       `json:"result_size_bytes,omitempty"`
	FinishedAt      *time.Time   `json:"finished_at,omitempty"`
	GroupTask       ProviderTask `json:"group_task"`
	Run             ExportRun    `json:"run"`
}

// Qualifies reports whether the record, its group task and its run all
// finished successfully with a result.
func (r *TaskRecord) Qualifies() bool {
	if r == nil || r.ResultSizeBytes == nil {
		return false
	}
	return r.Status == TaskStatusSuccess &&
		r.GroupTask.Status == RunStatusCompleted &&
		r.Run.Status == RunStatusCompleted
}

// ResultSize returns the result size in bytes, or zero without a result
func (r *TaskRecord) ResultSize() float64 {
	if r == nil || r.ResultSizeBytes == nil {
		return 0
	}
	return float64(*r.ResultSizeBytes)
}

// JobGeometry is the selection geometry of the job owning a run
type JobGeometry struct {
	RunID   int64    `json:"run_id"`
	JobUID  string   `json:"job_uid"`
	GeoJSON []byte   `json:"geojson"`
	Extent  geo.BBox `json:"extent"`
}

// ProviderKind classifies how a provider's output size scales
type ProviderKind string

const (
	ProviderKindRasterTileGrid ProviderKind = "raster_tile_grid"
	ProviderKindRasterSingle   ProviderKind = "raster_single"
	ProviderKindVector         ProviderKind = "vector"
	ProviderKindOther          ProviderKind = "other"
)

// DataProvider describes a source of export data and its raster tile pyramid
type DataProvider struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Slug      string `json:"slug"`
	TypeName  string `json:"type_name"` // wms, wmts, tms, wcs, osm, osm-generic, wfs...
	LevelFrom int    `json:"level_from"`
	LevelTo   int    `json:"level_to"`
}

// Kind classifies the provider by its service type
func (p *DataProvider) Kind() ProviderKind {
	if p == nil {
		return ProviderKindOther
	}
	switch strings.ToLower(p.TypeName) {
	case "wms", "wmts", "tms":
		return ProviderKindRasterTileGrid
	case "wcs":
		return ProviderKindRasterSingle
	case "osm", "osm-generic", "wfs":
		return ProviderKindVector
	}
	return ProviderKindOther
}

// IsRaster reports whether size estimates scale with pixels instead of area
func (p *DataProvider) IsRaster() bool {
	k := p.Kind()
	return k == ProviderKindRasterTileGrid || k == ProviderKindRasterSingle
}

// Levels returns the provider's zoom range in ascending order
func (p *DataProvider) Levels() (from, to int) {
	from, to = p.LevelFrom, p.LevelTo
	if to < from {
		from, to = to, from
	}
	return from, to
}
