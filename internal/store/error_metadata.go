package store

import (
	"context"
	"fmt"

	"github.com/fedspending/data-broker/internal/store/model"
	"gorm.io/gorm"
)

const errorMetadataBatchSize = 100

type ErrorMetadata interface {
	CreateBatch(ctx context.Context, rows model.ErrorMetadataList) error
	List(ctx context.Context, filter *ErrorMetadataQueryFilter) (model.ErrorMetadataList, error)
	// SumOccurrences returns the total number of occurrences of the job's errors of a severity.
	SumOccurrences(ctx context.Context, jobID int64, severityID int) (int64, error)
}

type ErrorMetadataStore struct {
	db *gorm.DB
}

// Make sure we conform to ErrorMetadata interface
var _ ErrorMetadata = (*ErrorMetadataStore)(nil)

func NewErrorMetadataStore(db *gorm.DB) ErrorMetadata {
	return &ErrorMetadataStore{db: db}
}

func (e *ErrorMetadataStore) CreateBatch(ctx context.Context, rows model.ErrorMetadataList) error {
	if len(rows) == 0 {
		return nil
	}
	if err := e.getDB(ctx).CreateInBatches(&rows, errorMetadataBatchSize).Error; err != nil {
		return fmt.Errorf("writing error metadata: %w", err)
	}
	return nil
}

func (e *ErrorMetadataStore) List(ctx context.Context, filter *ErrorMetadataQueryFilter) (model.ErrorMetadataList, error) {
	var rows model.ErrorMetadataList
	tx := e.getDB(ctx).Model(&rows).Order("id")

	if filter != nil {
		for _, fn := range filter.QueryFn {
			tx = fn(tx)
		}
	}

	if err := tx.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (e *ErrorMetadataStore) SumOccurrences(ctx context.Context, jobID int64, severityID int) (int64, error) {
	var total int64
	err := e.getDB(ctx).Model(&model.ErrorMetadata{}).
		Select("COALESCE(SUM(occurrences), 0)").
		Where("job_id = ? AND severity_id = ?", jobID, severityID).
		Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("counting error occurrences: %w", err)
	}
	return total, nil
}

func (e *ErrorMetadataStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return e.db.WithContext(ctx)
}
