package model

import (
	"encoding/json"
	"time"
)

// FileRequest is the cache-control record of one derived-file generation.
// The canonical request of a cache key for a day has IsCachedFile set; the
// others point at its job through ParentJobID.
type FileRequest struct {
	JobID        int64     `gorm:"primaryKey;autoIncrement:false"`
	RequestDate  time.Time `gorm:"not null;type:DATE;index:file_requests_cache_key_idx,priority:5"`
	FileType     FileType  `gorm:"not null;type:VARCHAR(32);index:file_requests_cache_key_idx,priority:1"`
	AgencyCode   string    `gorm:"not null;type:VARCHAR(8);index:file_requests_cache_key_idx,priority:2"`
	StartDate    time.Time `gorm:"not null;type:DATE;index:file_requests_cache_key_idx,priority:3"`
	EndDate      time.Time `gorm:"not null;type:DATE;index:file_requests_cache_key_idx,priority:4"`
	ParentJobID  *int64    `gorm:"index:file_requests_parent_job_id_idx"`
	IsCachedFile bool      `gorm:"not null;default:false;index:file_requests_cache_key_idx,priority:6"`
	UpdatedAt    *time.Time
}

type FileRequestList []FileRequest

func (f FileRequest) String() string {
	val, _ := json.Marshal(f)
	return string(val)
}

// CacheKey identifies the output shared between file requests.
type CacheKey struct {
	FileType   FileType
	AgencyCode string
	StartDate  time.Time
	EndDate    time.Time
}

func (f FileRequest) CacheKey() CacheKey {
	return CacheKey{
		FileType:   f.FileType,
		AgencyCode: f.AgencyCode,
		StartDate:  f.StartDate,
		EndDate:    f.EndDate,
	}
}

func (k CacheKey) String() string {
	return string(k.FileType) + "/" + k.AgencyCode + "/" + k.StartDate.Format(time.DateOnly) + "/" + k.EndDate.Format(time.DateOnly)
}

// Day truncates t to its calendar day in UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (k CacheKey) Equal(other CacheKey) bool {
	return k.FileType == other.FileType &&
		k.AgencyCode == other.AgencyCode &&
		k.StartDate.Equal(other.StartDate) &&
		k.EndDate.Equal(other.EndDate)
}
