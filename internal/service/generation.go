package service

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/fedspending/data-broker/internal/blob"
	"github.com/fedspending/data-broker/internal/generation"
	"github.com/fedspending/data-broker/internal/status"
	"github.com/fedspending/data-broker/internal/store"
	"github.com/fedspending/data-broker/internal/store/model"
	"github.com/fedspending/data-broker/internal/validator"
	"go.uber.org/zap"
)

// StartRequest asks for the generation of a derived file. D1 and D2 need Start and End in
// MM/DD/YYYY; E and F need a submission. Without a submission AgencyCode names the agency.
type StartRequest struct {
	SubmissionID *int64
	FileType     model.FileType `validate:"required,generated_file_type"`
	AgencyCode   string         `validate:"omitempty,agency_code"`
	Start        *string        `validate:"omitempty,mmddyyyy"`
	End          *string        `validate:"omitempty,mmddyyyy"`
	// UserID is the directory of the generated file outside local mode.
	UserID string
}

type GenerationStatus struct {
	JobID    int64
	FileType model.FileType
	Status   status.External
	Message  string
	// URL is the download location of the file, empty until it has a file name.
	URL string
	// Start and End are set for date-ranged file types, in MM/DD/YYYY.
	Start string
	End   string
}

type GenerationServiceOption func(s *GenerationService)

// WithLocalFiles stores generated files under brokerFiles and reports file paths instead of URLs.
func WithLocalFiles(brokerFiles string) GenerationServiceOption {
	return func(s *GenerationService) {
		s.isLocal = true
		s.brokerFiles = brokerFiles
	}
}

func WithServiceClock(now func() time.Time) GenerationServiceOption {
	return func(s *GenerationService) {
		s.now = now
	}
}

type GenerationService struct {
	store       store.Store
	blobs       blob.Store
	queue       generation.Enqueuer
	validator   *validator.Validator
	isLocal     bool
	brokerFiles string
	now         func() time.Time
	log         *zap.SugaredLogger
}

func NewGenerationService(s store.Store, blobs blob.Store, queue generation.Enqueuer, opts ...GenerationServiceOption) *GenerationService {
	v := validator.NewValidator()
	v.Register(validator.NewGenerationValidationRules()...)

	svc := &GenerationService{
		store:     s,
		blobs:     blobs,
		queue:     queue,
		validator: v,
		now:       time.Now,
		log:       zap.S().Named("generation_service"),
	}
	for _, o := range opts {
		o(svc)
	}
	return svc
}

// StartGeneration prepares the upload job of the request and enqueues its generation.
// It returns the id of the job carrying the generated file.
func (s *GenerationService) StartGeneration(ctx context.Context, req StartRequest) (int64, error) {
	if err := s.validator.Struct(req); err != nil {
		return 0, NewErrInvalidRequest("%s", err)
	}

	var start, end time.Time
	if req.FileType.IsDateRanged() {
		var err error
		if start, end, err = parseDateRange(req.Start, req.End); err != nil {
			return 0, err
		}
	} else if req.SubmissionID == nil {
		return 0, NewErrInvalidRequest("file type %s is generated for a submission", req.FileType)
	}

	agencyCode := req.AgencyCode
	var job *model.Job
	if req.SubmissionID != nil {
		submission, err := s.store.Submission().Get(ctx, *req.SubmissionID)
		if err != nil {
			if errors.Is(err, store.ErrRecordNotFound) {
				return 0, NewErrSubmissionNotFound(*req.SubmissionID)
			}
			return 0, err
		}
		agencyCode = submission.AgencyCode

		job, err = s.store.Job().FindBySubmission(ctx, submission.ID, req.FileType, model.JobTypeFileUpload)
		if err != nil && !errors.Is(err, store.ErrRecordNotFound) {
			return 0, err
		}
	} else if agencyCode == "" {
		return 0, NewErrInvalidRequest("an agency code is required without a submission")
	}

	if job != nil && job.Status == model.JobStatusRunning {
		task, err := s.store.Task().FindActive(ctx, job.ID)
		if err != nil {
			return 0, err
		}
		if task != nil {
			return 0, NewErrPrerequisiteNotMet(job.ID, req.FileType)
		}
	}

	timestampedName := fmt.Sprintf("%d_%s.csv", s.now().Unix(), req.FileType.Name())
	filename := s.uploadPath(req.UserID, timestampedName)

	reuse := false
	if req.FileType.IsDateRanged() {
		key := model.CacheKey{FileType: req.FileType, AgencyCode: agencyCode, StartDate: start, EndDate: end}
		current, err := s.reusableFilename(ctx, job, key, filename)
		if err != nil {
			return 0, err
		}
		if current != "" {
			reuse = true
			filename = current
			timestampedName = path.Base(current)
		}
	}

	err := store.WithTransaction(ctx, s.store, func(ctx context.Context) error {
		if job == nil {
			created, err := s.store.Job().Create(ctx, model.Job{
				SubmissionID: req.SubmissionID,
				FileType:     req.FileType,
				JobType:      model.JobTypeFileUpload,
				Status:       model.JobStatusWaiting,
			})
			if err != nil {
				return err
			}
			job = created
		}

		// a job keeping its file keeps the counters describing it
		if !reuse {
			fields := map[string]any{
				"filename":           filename,
				"original_filename":  nil,
				"error_message":      nil,
				"is_cached":          false,
				"number_of_rows":     0,
				"number_of_errors":   0,
				"number_of_warnings": 0,
				"file_size":          0,
			}
			if req.FileType.IsDateRanged() {
				fields["start_date"] = start
				fields["end_date"] = end
			}
			if err := s.store.Job().Update(ctx, job.ID, fields); err != nil {
				return err
			}
		}
		if err := s.store.Job().UpdateStatus(ctx, job.ID, model.JobStatusRunning); err != nil {
			return err
		}

		return s.queue.Enqueue(ctx, generation.Request{
			JobID:           job.ID,
			FileType:        req.FileType,
			AgencyCode:      agencyCode,
			Start:           start,
			End:             end,
			SubmissionID:    req.SubmissionID,
			TimestampedName: timestampedName,
		})
	})
	if err != nil {
		return 0, err
	}

	s.log.Infow("generation started", "job_id", job.ID, "file_type", req.FileType, "agency_code", agencyCode, "filename", filename)
	return job.ID, nil
}

// reusableFilename returns the file name of job when the job finished today as the canonical
// generation of key and filename would land in the same directory. Otherwise it returns "".
func (s *GenerationService) reusableFilename(ctx context.Context, job *model.Job, key model.CacheKey, filename string) (string, error) {
	if job == nil || job.Status != model.JobStatusFinished {
		return "", nil
	}
	current := model.StringValue(job.Filename)
	if current == "" || path.Dir(current) != path.Dir(filename) {
		return "", nil
	}

	request, err := s.store.FileRequest().Get(ctx, job.ID)
	if errors.Is(err, store.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if !request.IsCachedFile || !model.Day(request.RequestDate).Equal(model.Day(s.now())) || !request.CacheKey().Equal(key) {
		return "", nil
	}
	return current, nil
}

// CheckGenerationStatus reports the external status of the generation of jobID.
func (s *GenerationService) CheckGenerationStatus(ctx context.Context, jobID int64) (*GenerationStatus, error) {
	job, err := s.store.Job().Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrJobNotFound(jobID)
		}
		return nil, err
	}

	input := status.Input{UploadStatus: job.Status, UploadError: job.ErrorMessage}
	if job.FileType.HasValidation() && job.SubmissionID != nil {
		validation, err := s.store.Job().FindBySubmission(ctx, *job.SubmissionID, job.FileType, model.JobTypeValidation)
		switch {
		case errors.Is(err, store.ErrRecordNotFound):
		case err != nil:
			return nil, err
		default:
			fatal, err := s.store.ErrorMetadata().SumOccurrences(ctx, validation.ID, model.SeverityFatal)
			if err != nil {
				return nil, err
			}
			input.ValidationStatus = &validation.Status
			input.ValidationError = validation.ErrorMessage
			input.HasFatalErrors = fatal > 0
		}
	}

	result := status.MapStatus(input)
	genStatus := &GenerationStatus{
		JobID:    job.ID,
		FileType: job.FileType,
		Status:   result.Status,
		Message:  result.Message,
	}

	if filename := model.StringValue(job.Filename); filename != "" {
		if s.isLocal {
			genStatus.URL = filename
		} else if genStatus.URL, err = s.blobs.URL(ctx, filename); err != nil {
			return nil, err
		}
	}

	if job.FileType.IsDateRanged() {
		genStatus.Start = formatDate(job.StartDate)
		genStatus.End = formatDate(job.EndDate)
	}

	return genStatus, nil
}

func (s *GenerationService) uploadPath(userID, timestampedName string) string {
	if s.isLocal {
		return path.Join(s.brokerFiles, timestampedName)
	}
	if userID == "" {
		return timestampedName
	}
	return userID + "/" + timestampedName
}

func parseDateRange(startValue, endValue *string) (time.Time, time.Time, error) {
	if startValue == nil || endValue == nil {
		return time.Time{}, time.Time{}, NewErrInvalidRequest("start and end dates are required")
	}

	start, err := time.Parse(validator.DateLayout, *startValue)
	if err != nil {
		return time.Time{}, time.Time{}, NewErrInvalidRequest("start date cannot be parsed: %s", err)
	}
	end, err := time.Parse(validator.DateLayout, *endValue)
	if err != nil {
		return time.Time{}, time.Time{}, NewErrInvalidRequest("end date cannot be parsed: %s", err)
	}
	if start.After(end) {
		return time.Time{}, time.Time{}, NewErrInvalidRequest("start date %s is after end date %s", *startValue, *endValue)
	}
	return start, end, nil
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(validator.DateLayout)
}
