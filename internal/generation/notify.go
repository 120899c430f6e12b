package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"io"

	"github.com/fedspending/data-broker/internal/events"
	"github.com/fedspending/data-broker/internal/store/model"
)

// EventWriter receives a JSON event each time a generation job ends.
type EventWriter interface {
	Write(ctx context.Context, kind string, body io.Reader) error
}

type GenerationEvent struct {
	JobID        int64           `json:"job_id"`
	FileType     model.FileType  `json:"file_type"`
	Status       model.JobStatus `json:"status"`
	Filename     string          `json:"filename,omitempty"`
	NumberOfRows int64           `json:"number_of_rows"`
	IsCached     bool            `json:"is_cached"`
	ErrorMessage string          `json:"error_message,omitempty"`
}

func WithEvents(w EventWriter) PipelineOption {
	return func(p *Pipeline) {
		p.events = w
	}
}

// notify publishes the terminal status of jobID.
func (p *Pipeline) notify(ctx context.Context, jobID int64) {
	if p.events == nil {
		return
	}

	job, err := p.store.Job().Get(ctx, jobID)
	if err != nil {
		p.log.Errorw("failed to read job for event", "job_id", jobID, "error", err)
		return
	}

	kind := events.GenerationFinishedKind
	if job.Status == model.JobStatusFailed {
		kind = events.GenerationFailedKind
	}

	data, err := json.Marshal(GenerationEvent{
		JobID:        job.ID,
		FileType:     job.FileType,
		Status:       job.Status,
		Filename:     model.StringValue(job.Filename),
		NumberOfRows: job.NumberOfRows,
		IsCached:     job.IsCached,
		ErrorMessage: model.StringValue(job.ErrorMessage),
	})
	if err != nil {
		p.log.Errorw("failed to encode event", "job_id", jobID, "error", err)
		return
	}

	if err := p.events.Write(ctx, kind, bytes.NewReader(data)); err != nil {
		p.log.Errorw("failed to publish event", "job_id", jobID, "error", err)
	}
}
