package generation

import (
	"context"

	"github.com/fedspending/data-broker/internal/store"
	"github.com/fedspending/data-broker/internal/store/model"
)

// Enqueuer schedules a generation run.
type Enqueuer interface {
	Enqueue(ctx context.Context, req Request) error
}

// TaskQueue enqueues generation runs in the generation_tasks table.
type TaskQueue struct {
	tasks store.Task
}

func NewTaskQueue(tasks store.Task) *TaskQueue {
	return &TaskQueue{tasks: tasks}
}

func (q *TaskQueue) Enqueue(ctx context.Context, req Request) error {
	_, err := q.tasks.Create(ctx, model.GenerationTask{
		JobID:       req.JobID,
		Args:        req.Args(),
		MaxAttempts: 1,
	})
	return err
}
