package mysql

import "exportestimator/pkg/store/mysql/model"

type (
	// Database models
	Job                    = model.Job
	ExportRun              = model.ExportRun
	DataProviderTaskRecord = model.DataProviderTaskRecord
	ExportTaskRecord       = model.ExportTaskRecord
	DataProvider           = model.DataProvider

	// Query rows
	TaskRecordRow  = model.TaskRecordRow
	RunGeometryRow = model.RunGeometryRow
)
