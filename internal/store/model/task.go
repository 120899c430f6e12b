package model

import (
	"encoding/json"
	"time"
)

type TaskState string

const (
	TaskStateAvailable TaskState = "available"
	TaskStateRunning   TaskState = "running"
	TaskStateCompleted TaskState = "completed"
	TaskStateDiscarded TaskState = "discarded"
)

// GenerationArgs is stored in generation_tasks.args.
type GenerationArgs struct {
	FileType        FileType   `json:"file_type"`
	AgencyCode      string     `json:"agency_code,omitempty"`
	StartDate       *time.Time `json:"start_date,omitempty"`
	EndDate         *time.Time `json:"end_date,omitempty"`
	SubmissionID    *int64     `json:"submission_id,omitempty"`
	TimestampedName string     `json:"timestamped_name"`
}

// GenerationTask is the queue record handed to a worker slot.
type GenerationTask struct {
	ID          int64     `gorm:"primaryKey;autoIncrement"`
	CreatedAt   time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt   *time.Time
	JobID       int64          `gorm:"not null;index:generation_tasks_job_id_idx"`
	State       TaskState      `gorm:"not null;type:VARCHAR(32);index:generation_tasks_state_idx"`
	Args        GenerationArgs `gorm:"serializer:json;type:TEXT;not null"`
	Attempts    int            `gorm:"not null;default:0"`
	MaxAttempts int            `gorm:"not null;default:1"`
	LeaseToken  *string        `gorm:"type:VARCHAR(64)"`
	LeasedUntil *time.Time
	LastError   *string
}

func (t GenerationTask) String() string {
	val, _ := json.Marshal(t)
	return string(val)
}
