package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/fedspending/data-broker/internal/store/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Submission interface {
	Get(ctx context.Context, id int64) (*model.Submission, error)
	Create(ctx context.Context, submission model.Submission) (*model.Submission, error)
}

type SubmissionStore struct {
	db *gorm.DB
}

// Make sure we conform to Submission interface
var _ Submission = (*SubmissionStore)(nil)

func NewSubmissionStore(db *gorm.DB) Submission {
	return &SubmissionStore{db: db}
}

func (s *SubmissionStore) Get(ctx context.Context, id int64) (*model.Submission, error) {
	var submission model.Submission
	result := s.getDB(ctx).First(&submission, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying submission: %w", result.Error)
	}
	return &submission, nil
}

func (s *SubmissionStore) Create(ctx context.Context, submission model.Submission) (*model.Submission, error) {
	result := s.getDB(ctx).Clauses(clause.Returning{}).Create(&submission)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateKey
		}
		return nil, result.Error
	}
	return &submission, nil
}

func (s *SubmissionStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return s.db.WithContext(ctx)
}
