package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fedspending/data-broker/internal/store/model"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Task is the generation queue backed by the generation_tasks table.
type Task interface {
	Create(ctx context.Context, task model.GenerationTask) (*model.GenerationTask, error)
	Get(ctx context.Context, id int64) (*model.GenerationTask, error)
	// FindActive returns the available or running task of a job, nil when there is none.
	FindActive(ctx context.Context, jobID int64) (*model.GenerationTask, error)
	// Lease hands the oldest available task to the caller, nil when the queue is empty.
	Lease(ctx context.Context, leaseDuration time.Duration) (*model.GenerationTask, error)
	Complete(ctx context.Context, id int64, leaseToken string, runErr error) error
	// ReapExpired discards running tasks whose lease ran out and returns them.
	ReapExpired(ctx context.Context, now time.Time) ([]model.GenerationTask, error)
}

type TaskStore struct {
	db *gorm.DB
}

var _ Task = (*TaskStore)(nil)

func NewTaskStore(db *gorm.DB) Task {
	return &TaskStore{db: db}
}

func (t *TaskStore) Create(ctx context.Context, task model.GenerationTask) (*model.GenerationTask, error) {
	if task.State == "" {
		task.State = model.TaskStateAvailable
	}
	if task.MaxAttempts == 0 {
		task.MaxAttempts = 1
	}
	result := t.getDB(ctx).Clauses(clause.Returning{}).Create(&task)
	if result.Error != nil {
		return nil, fmt.Errorf("creating generation task: %w", result.Error)
	}
	return &task, nil
}

func (t *TaskStore) Get(ctx context.Context, id int64) (*model.GenerationTask, error) {
	var task model.GenerationTask
	result := t.getDB(ctx).First(&task, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying generation task: %w", result.Error)
	}
	return &task, nil
}

func (t *TaskStore) FindActive(ctx context.Context, jobID int64) (*model.GenerationTask, error) {
	var tasks []model.GenerationTask
	err := t.getDB(ctx).
		Where("job_id = ?", jobID).
		Where("state IN ?", []model.TaskState{model.TaskStateAvailable, model.TaskStateRunning}).
		Order("id DESC").
		Limit(1).
		Find(&tasks).Error
	if err != nil {
		return nil, fmt.Errorf("querying active generation task: %w", err)
	}

	if len(tasks) == 0 {
		return nil, nil
	}
	return &tasks[0], nil
}

func (t *TaskStore) Lease(ctx context.Context, leaseDuration time.Duration) (*model.GenerationTask, error) {
	var leased *model.GenerationTask
	err := t.getDB(ctx).Transaction(func(tx *gorm.DB) error {
		var candidates []model.GenerationTask
		if err := tx.Where("state = ?", model.TaskStateAvailable).Order("id").Limit(1).Find(&candidates).Error; err != nil {
			return err
		}
		if len(candidates) == 0 {
			return nil
		}

		task := candidates[0]
		now := time.Now().UTC()
		until := now.Add(leaseDuration)
		token := uuid.NewString()

		result := tx.Model(&model.GenerationTask{}).
			Where("id = ? AND state = ?", task.ID, model.TaskStateAvailable).
			Updates(map[string]any{
				"state":        model.TaskStateRunning,
				"attempts":     gorm.Expr("attempts + 1"),
				"lease_token":  token,
				"leased_until": until,
				"updated_at":   now,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			// another worker got it first
			return nil
		}

		task.State = model.TaskStateRunning
		task.Attempts++
		task.LeaseToken = &token
		task.LeasedUntil = &until
		leased = &task
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("leasing generation task: %w", err)
	}
	return leased, nil
}

func (t *TaskStore) Complete(ctx context.Context, id int64, leaseToken string, runErr error) error {
	task, err := t.Get(ctx, id)
	if err != nil {
		return err
	}

	updates := map[string]any{
		"state":        model.TaskStateCompleted,
		"lease_token":  nil,
		"leased_until": nil,
		"updated_at":   time.Now(),
	}
	if runErr != nil {
		updates["last_error"] = runErr.Error()
		updates["state"] = model.TaskStateDiscarded
		if task.Attempts < task.MaxAttempts {
			updates["state"] = model.TaskStateAvailable
		}
	}

	result := t.getDB(ctx).Model(&model.GenerationTask{}).
		Where("id = ? AND lease_token = ?", id, leaseToken).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("completing generation task: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("generation task %d: lease %s is no longer held", id, leaseToken)
	}
	return nil
}

func (t *TaskStore) ReapExpired(ctx context.Context, now time.Time) ([]model.GenerationTask, error) {
	now = now.UTC()

	var reaped []model.GenerationTask
	err := t.getDB(ctx).Transaction(func(tx *gorm.DB) error {
		var expired []model.GenerationTask
		if err := tx.Where("state = ? AND leased_until < ?", model.TaskStateRunning, now).Find(&expired).Error; err != nil {
			return err
		}

		for _, task := range expired {
			result := tx.Model(&model.GenerationTask{}).
				Where("id = ? AND state = ?", task.ID, model.TaskStateRunning).
				Updates(map[string]any{
					"state":        model.TaskStateDiscarded,
					"last_error":   "lease expired",
					"lease_token":  nil,
					"leased_until": nil,
					"updated_at":   now,
				})
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 1 {
				reaped = append(reaped, task)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reaping expired generation tasks: %w", err)
	}
	return reaped, nil
}

func (t *TaskStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return t.db.WithContext(ctx)
}
