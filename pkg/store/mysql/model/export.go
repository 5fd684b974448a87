package model

import "time"

// Job MySQL model for jobs table
type Job struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UID         string    `gorm:"column:uid;type:varchar(36);not null;uniqueIndex:idx_job_uid" json:"uid"`
	Name        string    `gorm:"column:name;type:varchar(100);not null" json:"name"`
	Geometry    []byte    `gorm:"column:geometry;type:json" json:"geometry"` // GeoJSON selection
	ExtentWest  float64   `gorm:"column:extent_west;type:double;not null;default:0" json:"extent_west"`
	ExtentSouth float64   `gorm:"column:extent_south;type:double;not null;default:0" json:"extent_south"`
	ExtentEast  float64   `gorm:"column:extent_east;type:double;not null;default:0" json:"extent_east"`
	ExtentNorth float64   `gorm:"column:extent_north;type:double;not null;default:0" json:"extent_north"`
	CreatedAt   time.Time `gorm:"column:created_at;type:datetime(3);not null;default:CURRENT_TIMESTAMP(3)" json:"created_at"`
}

// TableName specifies the table name for Job
func (Job) TableName() string {
	return "jobs"
}

// ExportRun MySQL model for export_runs table
type ExportRun struct {
	ID         int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	UID        string     `gorm:"column:uid;type:varchar(36);not null;uniqueIndex:idx_run_uid" json:"uid"`
	JobID      int64      `gorm:"column:job_id;not null;index:idx_job_id" json:"job_id"`
	Status     string     `gorm:"column:status;type:varchar(20);not null;index:idx_status" json:"status"`
	StartedAt  *time.Time `gorm:"column:started_at;type:datetime(3)" json:"started_at,omitempty"`
	FinishedAt *time.Time `gorm:"column:finished_at;type:datetime(3)" json:"finished_at,omitempty"`
	CreatedAt  time.Time  `gorm:"column:created_at;type:datetime(3);not null;default:CURRENT_TIMESTAMP(3)" json:"created_at"`
}

// TableName specifies the table name for ExportRun
func (ExportRun) TableName() string {
	return "export_runs"
}

// DataProviderTaskRecord MySQL model for data_provider_task_records table
type DataProviderTaskRecord struct {
	ID         int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	UID        string     `gorm:"column:uid;type:varchar(36);not null;uniqueIndex:idx_dptr_uid" json:"uid"`
	RunID      int64      `gorm:"column:run_id;not null;index:idx_run_id" json:"run_id"`
	Name       string     `gorm:"column:name;type:varchar(100);not null" json:"name"` // provider name
	Slug       string     `gorm:"column:slug;type:varchar(40);not null;index:idx_slug" json:"slug"`
	Status     string     `gorm:"column:status;type:varchar(20);not null" json:"status"`
	StartedAt  *time.Time `gorm:"column:started_at;type:datetime(3)" json:"started_at,omitempty"`
	FinishedAt *time.Time `gorm:"column:finished_at;type:datetime(3)" json:"finished_at,omitempty"`
}

// TableName specifies the table name for DataProviderTaskRecord
func (DataProviderTaskRecord) TableName() string {
	return "data_provider_task_records"
}

// ExportTaskRecord MySQL model for export_task_records table
type ExportTaskRecord struct {
	ID                   int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	UID                  string     `gorm:"column:uid;type:varchar(36);not null;uniqueIndex:idx_etr_uid" json:"uid"`
	ExportProviderTaskID int64      `gorm:"column:export_provider_task_id;not null;index:idx_provider_task_id" json:"export_provider_task_id"`
	Name                 string     `gorm:"column:name;type:varchar(100);not null" json:"name"` // task type
	Status               string     `gorm:"column:status;type:varchar(20);not null" json:"status"`
	ResultSizeBytes      *int64     `gorm:"column:result_size_bytes" json:"result_size_bytes,omitempty"`
	StartedAt            *time.Time `gorm:"column:started_at;type:datetime(3)" json:"started_at,omitempty"`
	FinishedAt           *time.Time `gorm:"column:finished_at;type:datetime(3);index:idx_finished_at" json:"finished_at,omitempty"`
}

// TableName specifies the table name for ExportTaskRecord
func (ExportTaskRecord) TableName() string {
	return "export_task_records"
}

// DataProvider MySQL model for data_providers table
type DataProvider struct {
	ID        int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string `gorm:"column:name;type:varchar(100);not null;uniqueIndex:idx_provider_name" json:"name"`
	Slug      string `gorm:"column:slug;type:varchar(40);not null;uniqueIndex:idx_provider_slug" json:"slug"`
	TypeName  string `gorm:"column:type_name;type:varchar(40);not null" json:"type_name"` // wms, wmts, tms, wcs, osm, wfs...
	LevelFrom int    `gorm:"column:level_from;type:int;not null;default:0" json:"level_from"`
	LevelTo   int    `gorm:"column:level_to;type:int;not null;default:10" json:"level_to"`
}

// TableName specifies the table name for DataProvider
func (DataProvider) TableName() string {
	return "data_providers"
}

// TaskRecordRow is one export task record joined with its provider task,
// run and job.
type TaskRecordRow struct {
	TaskID              int64      `gorm:"column:task_id"`
	TaskUID             string     `gorm:"column:task_uid"`
	TaskName            string     `gorm:"column:task_name"`
	TaskStatus          string     `gorm:"column:task_status"`
	TaskResultSizeBytes *int64     `gorm:"column:task_result_size_bytes"`
	TaskStartedAt       *time.Time `gorm:"column:task_started_at"`
	TaskFinishedAt      *time.Time `gorm:"column:task_finished_at"`

	ProviderTaskID         int64      `gorm:"column:provider_task_id"`
	ProviderTaskUID        string     `gorm:"column:provider_task_uid"`
	ProviderTaskName       string     `gorm:"column:provider_task_name"`
	ProviderTaskSlug       string     `gorm:"column:provider_task_slug"`
	ProviderTaskStatus     string     `gorm:"column:provider_task_status"`
	ProviderTaskStartedAt  *time.Time `gorm:"column:provider_task_started_at"`
	ProviderTaskFinishedAt *time.Time `gorm:"column:provider_task_finished_at"`

	RunID         int64      `gorm:"column:run_id"`
	RunUID        string     `gorm:"column:run_uid"`
	RunStatus     string     `gorm:"column:run_status"`
	RunStartedAt  *time.Time `gorm:"column:run_started_at"`
	RunFinishedAt *time.Time `gorm:"column:run_finished_at"`

	JobUID string `gorm:"column:job_uid"`
}

// RunGeometryRow is the job geometry of one run.
type RunGeometryRow struct {
	RunID       int64   `gorm:"column:run_id"`
	JobUID      string  `gorm:"column:job_uid"`
	Geometry    []byte  `gorm:"column:geometry"`
	ExtentWest  float64 `gorm:"column:extent_west"`
	ExtentSouth float64 `gorm:"column:extent_south"`
	ExtentEast  float64 `gorm:"column:extent_east"`
	ExtentNorth float64 `gorm:"column:extent_north"`
}
