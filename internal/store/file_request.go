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

type ResolutionKind int

const (
	// ResolutionMiss means no usable output exists: the caller generates it.
	// The request has been claimed as canonical for the day.
	ResolutionMiss ResolutionKind = iota
	// ResolutionHit means the request already holds the canonical output.
	ResolutionHit
	// ResolutionWaitOn means another job holds the canonical output for the key.
	ResolutionWaitOn
)

func (k ResolutionKind) String() string {
	switch k {
	case ResolutionHit:
		return "hit"
	case ResolutionWaitOn:
		return "wait_on"
	default:
		return "miss"
	}
}

type Resolution struct {
	Kind        ResolutionKind
	ParentJobID int64
	Request     model.FileRequest
}

type FileRequest interface {
	Get(ctx context.Context, jobID int64) (*model.FileRequest, error)
	Upsert(ctx context.Context, request model.FileRequest) (*model.FileRequest, error)
	// Resolve finds, creates or claims the file request of jobID for key, atomically
	// with respect to every other Resolve on the same key.
	Resolve(ctx context.Context, key model.CacheKey, jobID int64, now time.Time) (*Resolution, error)
	FindCanonical(ctx context.Context, key model.CacheKey, day time.Time) (*model.FileRequest, error)
	ListChildren(ctx context.Context, parentJobID int64) (model.FileRequestList, error)
	SetCached(ctx context.Context, jobID int64, cached bool) error
	Detach(ctx context.Context, jobID int64) error
}

type FileRequestStore struct {
	db    *gorm.DB
	locks *keyLock
}

// Make sure we conform to FileRequest interface
var _ FileRequest = (*FileRequestStore)(nil)

func NewFileRequestStore(db *gorm.DB) FileRequest {
	return &FileRequestStore{db: db, locks: newKeyLock()}
}

func (f *FileRequestStore) Get(ctx context.Context, jobID int64) (*model.FileRequest, error) {
	var request model.FileRequest
	result := f.getDB(ctx).First(&request, "job_id = ?", jobID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying file request: %w", result.Error)
	}
	return &request, nil
}

func (f *FileRequestStore) Upsert(ctx context.Context, request model.FileRequest) (*model.FileRequest, error) {
	now := time.Now()
	request.UpdatedAt = &now
	request.RequestDate = model.Day(request.RequestDate)
	request.StartDate = model.Day(request.StartDate)
	request.EndDate = model.Day(request.EndDate)

	result := f.getDB(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "job_id"}},
		UpdateAll: true,
	}).Create(&request)
	if result.Error != nil {
		return nil, fmt.Errorf("upserting file request: %w", result.Error)
	}
	return &request, nil
}

func (f *FileRequestStore) Resolve(ctx context.Context, key model.CacheKey, jobID int64, now time.Time) (*Resolution, error) {
	key = normalizeKey(key)
	today := model.Day(now)

	unlock := f.locks.Lock(key.String())
	defer unlock()

	var resolution *Resolution
	err := f.getDB(ctx).Transaction(func(tx *gorm.DB) error {
		if tx.Dialector.Name() == dialectPostgres {
			if err := tx.Exec("SELECT pg_advisory_xact_lock(?)", advisoryLockID(key.String())).Error; err != nil {
				return fmt.Errorf("locking cache key %s: %w", key, err)
			}
		}

		var request model.FileRequest
		err := tx.First(&request, "job_id = ?", jobID).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			request = model.FileRequest{
				JobID:        jobID,
				RequestDate:  today,
				FileType:     key.FileType,
				AgencyCode:   key.AgencyCode,
				StartDate:    key.StartDate,
				EndDate:      key.EndDate,
				IsCachedFile: false,
			}
		case err != nil:
			return fmt.Errorf("querying file request: %w", err)
		case !model.Day(request.RequestDate).Equal(today):
			// cached output from a previous day is expired
			request.RequestDate = today
			request.IsCachedFile = false
		}

		if !request.CacheKey().Equal(key) {
			// same job asked for another key: whatever it holds is not reusable
			request.FileType = key.FileType
			request.AgencyCode = key.AgencyCode
			request.StartDate = key.StartDate
			request.EndDate = key.EndDate
			request.IsCachedFile = false
		}

		resolution = &Resolution{Kind: ResolutionMiss}
		if request.IsCachedFile {
			resolution.Kind = ResolutionHit
		} else {
			var parent model.FileRequest
			err := tx.
				Where("file_type = ? AND agency_code = ? AND start_date = ? AND end_date = ?",
					key.FileType, key.AgencyCode, key.StartDate, key.EndDate).
				Where("request_date = ? AND is_cached_file = ? AND job_id <> ?", today, true, jobID).
				Order("job_id").
				First(&parent).Error
			switch {
			case err == nil:
				request.ParentJobID = &parent.JobID
				resolution.Kind = ResolutionWaitOn
				resolution.ParentJobID = parent.JobID
			case errors.Is(err, gorm.ErrRecordNotFound):
				request.ParentJobID = nil
				request.IsCachedFile = true
			default:
				return fmt.Errorf("querying canonical file request: %w", err)
			}
		}

		request.UpdatedAt = &now
		if err := tx.Save(&request).Error; err != nil {
			return fmt.Errorf("saving file request: %w", err)
		}
		resolution.Request = request
		return nil
	})
	if err != nil {
		return nil, err
	}

	return resolution, nil
}

func (f *FileRequestStore) FindCanonical(ctx context.Context, key model.CacheKey, day time.Time) (*model.FileRequest, error) {
	key = normalizeKey(key)

	var request model.FileRequest
	result := f.getDB(ctx).
		Where("file_type = ? AND agency_code = ? AND start_date = ? AND end_date = ?",
			key.FileType, key.AgencyCode, key.StartDate, key.EndDate).
		Where("request_date = ? AND is_cached_file = ?", model.Day(day), true).
		Order("job_id").
		First(&request)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying canonical file request: %w", result.Error)
	}
	return &request, nil
}

func (f *FileRequestStore) ListChildren(ctx context.Context, parentJobID int64) (model.FileRequestList, error) {
	var children model.FileRequestList
	if err := f.getDB(ctx).Where("parent_job_id = ?", parentJobID).Order("job_id").Find(&children).Error; err != nil {
		return nil, fmt.Errorf("listing child file requests: %w", err)
	}
	return children, nil
}

func (f *FileRequestStore) SetCached(ctx context.Context, jobID int64, cached bool) error {
	result := f.getDB(ctx).Model(&model.FileRequest{}).
		Where("job_id = ?", jobID).
		Updates(map[string]any{"is_cached_file": cached, "updated_at": time.Now()})
	if result.Error != nil {
		return fmt.Errorf("updating file request: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// Detach removes the parent of a file request so its job resolves on its own.
func (f *FileRequestStore) Detach(ctx context.Context, jobID int64) error {
	result := f.getDB(ctx).Model(&model.FileRequest{}).
		Where("job_id = ?", jobID).
		Updates(map[string]any{"parent_job_id": nil, "updated_at": time.Now()})
	if result.Error != nil {
		return fmt.Errorf("detaching file request: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (f *FileRequestStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return f.db.WithContext(ctx)
}

func normalizeKey(key model.CacheKey) model.CacheKey {
	key.StartDate = model.Day(key.StartDate)
	key.EndDate = model.Day(key.EndDate)
	return key
}
