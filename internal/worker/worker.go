package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fedspending/data-broker/internal/generation"
	"github.com/fedspending/data-broker/internal/store"
	"github.com/fedspending/data-broker/pkg/metrics"
	"github.com/lthibault/jitterbug/v2"
	"go.uber.org/zap"
)

var errLeaseExpired = errors.New("generation task lease expired")

// Runner runs generation requests and fails the jobs of lost runs.
type Runner interface {
	Run(ctx context.Context, req generation.Request) error
	Fail(ctx context.Context, jobID int64, cause error) error
}

type Option func(w *Worker)

func WithMaxWorkers(n int) Option {
	return func(w *Worker) {
		w.maxWorkers = n
	}
}

func WithPollInterval(interval time.Duration) Option {
	return func(w *Worker) {
		w.pollInterval = interval
	}
}

func WithJobTimeout(timeout time.Duration) Option {
	return func(w *Worker) {
		w.jobTimeout = timeout
	}
}

func WithLeaseDuration(lease time.Duration) Option {
	return func(w *Worker) {
		w.leaseDuration = lease
	}
}

// Worker leases generation tasks and runs them, one task per slot at a time.
type Worker struct {
	tasks         store.Task
	runner        Runner
	maxWorkers    int
	pollInterval  time.Duration
	jobTimeout    time.Duration
	leaseDuration time.Duration
	log           *zap.SugaredLogger
}

func New(tasks store.Task, runner Runner, opts ...Option) *Worker {
	w := &Worker{
		tasks:         tasks,
		runner:        runner,
		maxWorkers:    10,
		pollInterval:  2 * time.Second,
		jobTimeout:    5 * time.Minute,
		leaseDuration: 10 * time.Minute,
		log:           zap.S().Named("worker"),
	}
	for _, o := range opts {
		o(w)
	}
	if w.leaseDuration <= w.jobTimeout {
		w.leaseDuration = 2 * w.jobTimeout
	}
	return w
}

// Start runs the slots and the reaper until ctx is done.
func (w *Worker) Start(ctx context.Context) {
	w.log.Infow("starting worker", "slots", w.maxWorkers, "poll_interval", w.pollInterval, "job_timeout", w.jobTimeout)

	var wg sync.WaitGroup
	for slot := 0; slot < w.maxWorkers; slot++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			w.poll(ctx, func(ctx context.Context) {
				w.drain(ctx, slot)
			})
		}(slot)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		w.poll(ctx, func(ctx context.Context) {
			if _, err := w.Reap(ctx); err != nil {
				w.log.Errorw("failed to reap expired tasks", "error", err)
			}
		})
	}()

	wg.Wait()
	w.log.Info("worker stopped")
}

func (w *Worker) poll(ctx context.Context, fn func(ctx context.Context)) {
	ticker := jitterbug.New(w.pollInterval, &jitterbug.Norm{Stdev: w.pollInterval / 10, Mean: 0})
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}

func (w *Worker) drain(ctx context.Context, slot int) {
	for ctx.Err() == nil {
		processed, err := w.ProcessNext(ctx)
		if err != nil {
			w.log.Errorw("failed to process generation task", "slot", slot, "error", err)
			return
		}
		if !processed {
			return
		}
	}
}

// ProcessNext leases one task and runs it. It reports false when the queue is empty.
// A failed run is recorded on the task, not returned.
func (w *Worker) ProcessNext(ctx context.Context) (bool, error) {
	task, err := w.tasks.Lease(ctx, w.leaseDuration)
	if err != nil {
		return false, err
	}
	if task == nil {
		return false, nil
	}

	metrics.UpdateWorkerBusySlots(1)
	defer metrics.UpdateWorkerBusySlots(-1)

	log := w.log.With("task_id", task.ID, "job_id", task.JobID, "attempt", task.Attempts)
	log.Debugw("running generation task")

	runCtx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	runErr := w.runner.Run(runCtx, generation.RequestFromTask(*task))
	cancel()

	if runErr != nil {
		log.Warnw("generation task failed", "error", runErr)
	}

	if err := w.tasks.Complete(context.WithoutCancel(ctx), task.ID, *task.LeaseToken, runErr); err != nil {
		return true, err
	}
	return true, nil
}

// Reap discards the running tasks whose lease ran out and fails their jobs.
func (w *Worker) Reap(ctx context.Context) (int, error) {
	reaped, err := w.tasks.ReapExpired(ctx, time.Now())
	if err != nil {
		return 0, err
	}

	for _, task := range reaped {
		w.log.Warnw("generation task lease expired", "task_id", task.ID, "job_id", task.JobID)
		if err := w.runner.Fail(ctx, task.JobID, errLeaseExpired); err != nil {
			w.log.Errorw("failed to fail job of expired task", "task_id", task.ID, "job_id", task.JobID, "error", err)
		}
	}

	if len(reaped) > 0 {
		metrics.IncreaseReapedTasksMetric(len(reaped))
	}
	return len(reaped), nil
}
