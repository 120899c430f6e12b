package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fedspending/data-broker/internal/store/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Job interface for job-related database operations
type Job interface {
	List(ctx context.Context, filter *JobQueryFilter) (model.JobList, error)
	Get(ctx context.Context, id int64) (*model.Job, error)
	FindBySubmission(ctx context.Context, submissionID int64, fileType model.FileType, jobType model.JobType) (*model.Job, error)
	Create(ctx context.Context, job model.Job) (*model.Job, error)
	Update(ctx context.Context, id int64, fields map[string]any) error
	UpdateStatus(ctx context.Context, id int64, status model.JobStatus) error
	CountByStatus(ctx context.Context) ([]JobStatusCount, error)
}

type JobStatusCount struct {
	FileType model.FileType
	JobType  model.JobType
	Status   model.JobStatus
	Total    int64
}

// JobStore implements the Job interface
type JobStore struct {
	db *gorm.DB
}

// Make sure we conform to Job interface
var _ Job = (*JobStore)(nil)

func NewJobStore(db *gorm.DB) Job {
	return &JobStore{db: db}
}

func (s *JobStore) List(ctx context.Context, filter *JobQueryFilter) (model.JobList, error) {
	var jobs model.JobList
	tx := s.getDB(ctx).Model(&jobs).Order("id")

	if filter != nil {
		for _, fn := range filter.QueryFn {
			tx = fn(tx)
		}
	}

	if err := tx.Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

func (s *JobStore) Get(ctx context.Context, id int64) (*model.Job, error) {
	var job model.Job
	result := s.getDB(ctx).First(&job, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying job: %w", result.Error)
	}

	return &job, nil
}

// FindBySubmission returns the single job of a submission for a file type and job type.
func (s *JobStore) FindBySubmission(ctx context.Context, submissionID int64, fileType model.FileType, jobType model.JobType) (*model.Job, error) {
	var job model.Job
	result := s.getDB(ctx).
		Where("submission_id = ? AND file_type = ? AND job_type = ?", submissionID, fileType, jobType).
		Order("id").
		First(&job)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying submission job: %w", result.Error)
	}

	return &job, nil
}

func (s *JobStore) Create(ctx context.Context, job model.Job) (*model.Job, error) {
	if job.Status == "" {
		job.Status = model.JobStatusWaiting
	}
	result := s.getDB(ctx).Clauses(clause.Returning{}).Create(&job)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateKey
		}
		return nil, result.Error
	}
	return &job, nil
}

// Update writes the given columns. The status column has to go through UpdateStatus.
func (s *JobStore) Update(ctx context.Context, id int64, fields map[string]any) error {
	if _, found := fields["status"]; found {
		return fmt.Errorf("job %d: status must be updated with UpdateStatus", id)
	}

	updates := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		updates[k] = v
	}
	updates["updated_at"] = time.Now()

	result := s.getDB(ctx).Model(&model.Job{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("updating job: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}

	return nil
}

// UpdateStatus moves the job to status if the transition is allowed.
func (s *JobStore) UpdateStatus(ctx context.Context, id int64, status model.JobStatus) error {
	job, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	if job.Status == status {
		return nil
	}

	if !job.Status.CanTransitionTo(status) {
		return fmt.Errorf("%w: job %d from %s to %s", ErrInvalidStatusTransition, id, job.Status, status)
	}

	result := s.getDB(ctx).Model(&model.Job{}).
		Where("id = ? AND status = ?", id, job.Status).
		Updates(map[string]any{"status": status, "updated_at": time.Now()})
	if result.Error != nil {
		return fmt.Errorf("updating job status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		current, err := s.Get(ctx, id)
		if err != nil {
			return err
		}
		// another writer got there first
		if current.Status == status {
			return nil
		}
		return fmt.Errorf("%w: job %d changed status concurrently", ErrInvalidStatusTransition, id)
	}

	return nil
}

func (s *JobStore) CountByStatus(ctx context.Context) ([]JobStatusCount, error) {
	var counts []JobStatusCount
	err := s.getDB(ctx).Model(&model.Job{}).
		Select("file_type, job_type, status, COUNT(*) AS total").
		Group("file_type, job_type, status").
		Order("file_type, job_type, status").
		Scan(&counts).Error
	if err != nil {
		return nil, fmt.Errorf("counting jobs: %w", err)
	}
	return counts, nil
}

func (s *JobStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return s.db.WithContext(ctx)
}
