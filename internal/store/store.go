package store

import (
	"context"

	"github.com/fedspending/data-broker/internal/store/model"
	"gorm.io/gorm"
)

type Store interface {
	NewTransactionContext(ctx context.Context) (context.Context, error)
	Job() Job
	FileRequest() FileRequest
	ErrorMetadata() ErrorMetadata
	Submission() Submission
	Task() Task
	InitialMigration(ctx context.Context) error
	Close() error
}

type DataStore struct {
	db            *gorm.DB
	job           Job
	fileRequest   FileRequest
	errorMetadata ErrorMetadata
	submission    Submission
	task          Task
}

func NewStore(db *gorm.DB) Store {
	return &DataStore{
		job:           NewJobStore(db),
		fileRequest:   NewFileRequestStore(db),
		errorMetadata: NewErrorMetadataStore(db),
		submission:    NewSubmissionStore(db),
		task:          NewTaskStore(db),
		db:            db,
	}
}

func (s *DataStore) NewTransactionContext(ctx context.Context) (context.Context, error) {
	return newTransactionContext(ctx, s.db)
}

func (s *DataStore) Job() Job {
	return s.job
}

func (s *DataStore) FileRequest() FileRequest {
	return s.fileRequest
}

func (s *DataStore) ErrorMetadata() ErrorMetadata {
	return s.errorMetadata
}

func (s *DataStore) Submission() Submission {
	return s.submission
}

func (s *DataStore) Task() Task {
	return s.task
}

// InitialMigration creates the tables from the models. Production databases are
// migrated with goose, see pkg/migrations.
func (s *DataStore) InitialMigration(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(
		&model.Submission{},
		&model.Job{},
		&model.FileRequest{},
		&model.ErrorMetadata{},
		&model.GenerationTask{},
	)
}

func (s *DataStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
