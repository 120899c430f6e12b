package model

import (
	"encoding/json"
	"time"
)

type JobStatus string

// Job status constants
const (
	JobStatusWaiting  JobStatus = "waiting"
	JobStatusReady    JobStatus = "ready"
	JobStatusRunning  JobStatus = "running"
	JobStatusFinished JobStatus = "finished"
	JobStatusInvalid  JobStatus = "invalid"
	JobStatusFailed   JobStatus = "failed"
)

var JobStatuses = []JobStatus{
	JobStatusWaiting,
	JobStatusReady,
	JobStatusRunning,
	JobStatusFinished,
	JobStatusInvalid,
	JobStatusFailed,
}

func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusFinished, JobStatusInvalid, JobStatusFailed:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether a job may move from s to next.
// Moving to running is always allowed: it starts a new attempt.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	if s == next || next == JobStatusRunning {
		return true
	}
	switch s {
	case JobStatusWaiting:
		return next == JobStatusReady
	case JobStatusRunning:
		return next.IsTerminal()
	default:
		return false
	}
}

type JobType string

const (
	JobTypeFileUpload JobType = "file_upload"
	JobTypeValidation JobType = "csv_record_validation"
)

type Job struct {
	ID                int64     `gorm:"primaryKey;autoIncrement"`
	CreatedAt         time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt         *time.Time
	SubmissionID      *int64    `gorm:"index:jobs_submission_id_idx"`
	FileType          FileType  `gorm:"not null;type:VARCHAR(32)"`
	JobType           JobType   `gorm:"not null;type:VARCHAR(64)"`
	Status            JobStatus `gorm:"not null;type:VARCHAR(32);default:waiting"`
	ErrorMessage      *string
	Filename          *string
	OriginalFilename  *string
	NumberOfRows      int64
	NumberOfRowsValid int64
	NumberOfErrors    int64
	NumberOfWarnings  int64
	FileSize          int64
	StartDate         *time.Time `gorm:"type:DATE"`
	EndDate           *time.Time `gorm:"type:DATE"`
	IsCached          bool       `gorm:"not null;default:false"`
}

type JobList []Job

func (j Job) String() string {
	val, _ := json.Marshal(j)
	return string(val)
}

// StringValue dereferences an optional string column.
func StringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
