package service

import (
	"context"
	"errors"
	"time"

	"github.com/fedspending/data-broker/internal/rowerrors"
	"github.com/fedspending/data-broker/internal/store"
	"github.com/fedspending/data-broker/internal/store/model"
	"github.com/fedspending/data-broker/internal/validator"
	"github.com/thoas/go-funk"
)

const (
	reportingPeriodLayout = "01/2006"
	lastUpdatedLayout     = "2006-01-02T15:04:05"
)

type SubmissionStatus struct {
	SubmissionID         int64
	AgencyCode           string
	ReportingPeriodStart string
	ReportingPeriodEnd   string
	CreatedOn            string
	LastUpdated          string
	NumberOfRows         int64
	NumberOfErrors       int64
	Jobs                 []SubmissionJobStatus
}

type SubmissionJobStatus struct {
	JobID        int64
	Status       model.JobStatus
	JobType      model.JobType
	FileType     model.FileType
	Filename     string
	FileSize     int64
	NumberOfRows int64
	ErrorData    []ErrorSummary
	WarningData  []ErrorSummary
}

// ErrorSummary is one row of ErrorMetadata as reported to clients.
type ErrorSummary struct {
	FieldName     string
	ErrorName     string
	Description   string
	Occurrences   int64
	RuleFailed    string
	OriginalLabel string
}

type SubmissionService struct {
	store store.Store
}

func NewSubmissionService(s store.Store) *SubmissionService {
	return &SubmissionService{store: s}
}

// GetAggregatedSubmissionStatus summarizes a submission and its record validation jobs.
func (s *SubmissionService) GetAggregatedSubmissionStatus(ctx context.Context, submissionID int64) (*SubmissionStatus, error) {
	submission, err := s.store.Submission().Get(ctx, submissionID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrSubmissionNotFound(submissionID)
		}
		return nil, err
	}

	jobs, err := s.store.Job().List(ctx, store.NewJobQueryFilter().BySubmissionID(submissionID))
	if err != nil {
		return nil, err
	}

	result := &SubmissionStatus{
		SubmissionID:         submission.ID,
		AgencyCode:           submission.AgencyCode,
		ReportingPeriodStart: formatLayout(submission.ReportingStartDate, reportingPeriodLayout),
		ReportingPeriodEnd:   formatLayout(submission.ReportingEndDate, reportingPeriodLayout),
		CreatedOn:            submission.CreatedAt.Format(validator.DateLayout),
		LastUpdated:          formatLayout(submission.UpdatedAt, lastUpdatedLayout),
		Jobs:                 []SubmissionJobStatus{},
	}
	for _, job := range jobs {
		result.NumberOfRows += job.NumberOfRows
		result.NumberOfErrors += job.NumberOfErrors
	}

	// D1 has no record validation yet
	validationJobs := funk.Filter([]model.Job(jobs), func(job model.Job) bool {
		return job.JobType == model.JobTypeValidation && job.FileType != model.FileTypeAwardProcurement
	}).([]model.Job)

	for _, job := range validationJobs {
		errorData, err := s.errorSummaries(ctx, job.ID, model.SeverityFatal)
		if err != nil {
			return nil, err
		}
		warningData, err := s.errorSummaries(ctx, job.ID, model.SeverityWarning)
		if err != nil {
			return nil, err
		}

		result.Jobs = append(result.Jobs, SubmissionJobStatus{
			JobID:        job.ID,
			Status:       job.Status,
			JobType:      job.JobType,
			FileType:     job.FileType,
			Filename:     model.StringValue(job.OriginalFilename),
			FileSize:     job.FileSize,
			NumberOfRows: job.NumberOfRows,
			ErrorData:    errorData,
			WarningData:  warningData,
		})
	}

	return result, nil
}

func (s *SubmissionService) errorSummaries(ctx context.Context, jobID int64, severityID int) ([]ErrorSummary, error) {
	rows, err := s.store.ErrorMetadata().List(ctx, store.NewErrorMetadataQueryFilter().ByJobID(jobID).BySeverity(severityID))
	if err != nil {
		return nil, err
	}

	summaries := make([]ErrorSummary, 0, len(rows))
	for _, row := range rows {
		errorType := rowerrors.ErrorTypeByID[row.ErrorTypeID]
		description := errorType.Message
		if row.ErrorTypeID == rowerrors.RuleFailed && row.RuleFailed != "" {
			description = row.RuleFailed
		}
		summaries = append(summaries, ErrorSummary{
			FieldName:     row.FieldName,
			ErrorName:     errorType.Name,
			Description:   description,
			Occurrences:   row.Occurrences,
			RuleFailed:    row.RuleFailed,
			OriginalLabel: row.OriginalRuleLabel,
		})
	}
	return summaries, nil
}

func formatLayout(t *time.Time, layout string) string {
	if t == nil {
		return ""
	}
	return t.Format(layout)
}
