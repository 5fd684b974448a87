package model

import "time"

// RefreshState is the progress of a statistics recomputation
type RefreshState string

const (
	RefreshStateQueued    RefreshState = "QUEUED"
	RefreshStateRunning   RefreshState = "RUNNING"
	RefreshStateSucceeded RefreshState = "SUCCEEDED"
	RefreshStateFailed    RefreshState = "FAILED"
)

// RefreshStatus records the latest recomputation of one grouping
type RefreshStatus struct {
	Grouping        string       `json:"grouping"`
	State           RefreshState `json:"state"`
	TaskID          string       `json:"task_id,omitempty"` // Queue task id when enqueued
	StartedAt       *time.Time   `json:"started_at,omitempty"`
	FinishedAt      *time.Time   `json:"finished_at,omitempty"`
	DurationSeconds float64      `json:"duration_seconds,omitempty"`
	RunCount        int          `json:"run_count,omitempty"`
	ExportTaskCount int          `json:"export_task_count,omitempty"`
	Error           string       `json:"error,omitempty"`
	UpdatedAt       time.Time    `json:"updated_at"`
}
