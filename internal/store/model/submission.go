package model

import (
	"encoding/json"
	"time"
)

type Submission struct {
	ID                 int64     `gorm:"primaryKey;autoIncrement"`
	CreatedAt          time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt          *time.Time
	AgencyCode         string     `gorm:"not null;type:VARCHAR(8)"`
	AgencyName         *string
	ReportingStartDate *time.Time `gorm:"type:DATE"`
	ReportingEndDate   *time.Time `gorm:"type:DATE"`
}

func (s Submission) String() string {
	val, _ := json.Marshal(s)
	return string(val)
}
