package generation

import (
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/fedspending/data-broker/internal/blob"
	"github.com/fedspending/data-broker/internal/store"
	"github.com/fedspending/data-broker/internal/store/model"
)

// propagate finalizes the jobs waiting on parentJobID. After a successful run they receive
// a copy of the parent output. After a failure, or when the parent was generated for another
// key, they are detached and generated on their own.
func (p *Pipeline) propagate(ctx context.Context, parentJobID int64, runErr error) {
	log := p.log.With("parent_job_id", parentJobID)

	parentReq, err := p.store.FileRequest().Get(ctx, parentJobID)
	if err != nil {
		if !errors.Is(err, store.ErrRecordNotFound) {
			log.Errorw("failed to read file request", "error", err)
		}
		return
	}

	children, err := p.store.FileRequest().ListChildren(ctx, parentJobID)
	if err != nil {
		log.Errorw("failed to list child file requests", "error", err)
		return
	}
	if len(children) == 0 {
		return
	}

	parent, err := p.store.Job().Get(ctx, parentJobID)
	if err != nil {
		log.Errorw("failed to read parent job", "error", err)
		return
	}

	for _, child := range children {
		childJob, err := p.store.Job().Get(ctx, child.JobID)
		if err != nil {
			log.Errorw("failed to read child job", "job_id", child.JobID, "error", err)
			continue
		}
		// only jobs deferred on the parent are still running
		if childJob.Status != model.JobStatusRunning {
			continue
		}

		if !child.CacheKey().Equal(parentReq.CacheKey()) {
			p.requeue(ctx, child, childJob, parent.ID, fmt.Errorf("parent job %d was generated for %s, not %s", parent.ID, parentReq.CacheKey(), child.CacheKey()))
			continue
		}

		if runErr != nil || parent.Status != model.JobStatusFinished {
			p.requeue(ctx, child, childJob, parent.ID, fmt.Errorf("parent job %d failed: %s", parent.ID, model.StringValue(parent.ErrorMessage)))
			continue
		}

		if err := p.copyParentData(ctx, childJob, parent); err != nil {
			log.Errorw("failed to copy parent data", "job_id", child.JobID, "error", err)
			if markErr := p.markFailed(ctx, child.JobID, err); markErr != nil {
				log.Errorw("failed to mark child job as failed", "job_id", child.JobID, "error", markErr)
			}
			continue
		}
		log.Infow("copied parent data", "job_id", child.JobID)
		p.notify(ctx, child.JobID)
	}
}

// copyParentData makes child a copy of parent: same file in the child's directory, same
// counters. The child's status is written last so nothing sees it finished before its file exists.
func (p *Pipeline) copyParentData(ctx context.Context, child *model.Job, parent *model.Job) error {
	originalFilename := model.StringValue(parent.OriginalFilename)
	parentKey := model.StringValue(parent.Filename)

	filename := originalFilename
	if dir := path.Dir(model.StringValue(child.Filename)); dir != "." && dir != "/" {
		filename = dir + "/" + originalFilename
	}

	err := store.WithTransaction(ctx, p.store, func(ctx context.Context) error {
		if err := p.store.Job().Update(ctx, child.ID, map[string]any{
			"is_cached":            true,
			"filename":             filename,
			"original_filename":    originalFilename,
			"number_of_rows":       parent.NumberOfRows,
			"number_of_rows_valid": parent.NumberOfRowsValid,
			"number_of_errors":     parent.NumberOfErrors,
			"number_of_warnings":   parent.NumberOfWarnings,
			"file_size":            parent.FileSize,
			"error_message":        parent.ErrorMessage,
		}); err != nil {
			return err
		}

		if child.SubmissionID == nil {
			return nil
		}
		validation, err := p.store.Job().FindBySubmission(ctx, *child.SubmissionID, child.FileType, model.JobTypeValidation)
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return p.store.Job().Update(ctx, validation.ID, map[string]any{
			"filename":          filename,
			"original_filename": originalFilename,
		})
	})
	if err != nil {
		return fmt.Errorf("copying job %d data to job %d: %w", parent.ID, child.ID, err)
	}

	if parentKey != filename {
		copied, err := blob.CopyIfAbsent(ctx, p.blobs, parentKey, filename)
		if err != nil {
			return err
		}
		if !copied {
			p.log.Debugw("cached file already exists in this location", "job_id", child.ID, "key", filename)
		}
	}

	return p.store.Job().UpdateStatus(ctx, child.ID, parent.Status)
}

// requeue detaches a child from a parent it cannot copy and schedules its own generation.
// Without a queue the child fails with cause.
func (p *Pipeline) requeue(ctx context.Context, child model.FileRequest, childJob *model.Job, parentJobID int64, cause error) {
	log := p.log.With("job_id", child.JobID, "parent_job_id", parentJobID)

	if err := p.store.FileRequest().Detach(ctx, child.JobID); err != nil {
		log.Errorw("failed to detach child file request", "error", err)
		return
	}

	if p.queue == nil {
		if err := p.markFailed(ctx, child.JobID, cause); err != nil {
			log.Errorw("failed to mark child job as failed", "error", err)
		}
		return
	}

	req := Request{
		JobID:           child.JobID,
		FileType:        child.FileType,
		AgencyCode:      child.AgencyCode,
		Start:           child.StartDate,
		End:             child.EndDate,
		SubmissionID:    childJob.SubmissionID,
		TimestampedName: path.Base(model.StringValue(childJob.Filename)),
	}
	if err := p.queue.Enqueue(ctx, req); err != nil {
		log.Errorw("failed to enqueue child generation", "error", err)
		if markErr := p.markFailed(ctx, child.JobID, err); markErr != nil {
			log.Errorw("failed to mark child job as failed", "error", markErr)
		}
		return
	}
	log.Infow("child generation enqueued", "reason", cause)
}
