package model

type ErrorMetadata struct {
	ID                uint   `gorm:"primaryKey;autoIncrement"`
	JobID             int64  `gorm:"not null;index:error_metadata_job_id_idx"`
	Filename          string
	FieldName         string `gorm:"not null"`
	ErrorTypeID       int    `gorm:"not null"`
	RuleFailed        string
	Occurrences       int64 `gorm:"not null"`
	FirstRow          int64
	OriginalRuleLabel string
	FileTypeID        *int
	TargetFileTypeID  *int
	SeverityID        *int
}

// TableName keeps the singular table name used by the reporting queries.
func (ErrorMetadata) TableName() string {
	return "error_metadata"
}

type ErrorMetadataList []ErrorMetadata

const (
	SeverityFatal   = 1
	SeverityWarning = 2
)
