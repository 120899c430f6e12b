package store

import (
	"github.com/fedspending/data-broker/internal/store/model"
	"gorm.io/gorm"
)

type BaseQuerier struct {
	QueryFn []func(tx *gorm.DB) *gorm.DB
}

type JobQueryFilter BaseQuerier

func NewJobQueryFilter() *JobQueryFilter {
	return &JobQueryFilter{QueryFn: make([]func(tx *gorm.DB) *gorm.DB, 0)}
}

func (qf *JobQueryFilter) BySubmissionID(submissionID int64) *JobQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("submission_id = ?", submissionID)
	})
	return qf
}

func (qf *JobQueryFilter) ByFileType(fileTypes ...model.FileType) *JobQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("file_type IN ?", fileTypes)
	})
	return qf
}

func (qf *JobQueryFilter) ByJobType(jobType model.JobType) *JobQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("job_type = ?", jobType)
	})
	return qf
}

func (qf *JobQueryFilter) ByStatus(statuses ...model.JobStatus) *JobQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("status IN ?", statuses)
	})
	return qf
}

type ErrorMetadataQueryFilter BaseQuerier

func NewErrorMetadataQueryFilter() *ErrorMetadataQueryFilter {
	return &ErrorMetadataQueryFilter{QueryFn: make([]func(tx *gorm.DB) *gorm.DB, 0)}
}

func (qf *ErrorMetadataQueryFilter) ByJobID(jobIDs ...int64) *ErrorMetadataQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("job_id IN ?", jobIDs)
	})
	return qf
}

func (qf *ErrorMetadataQueryFilter) BySeverity(severityID int) *ErrorMetadataQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("severity_id = ?", severityID)
	})
	return qf
}
