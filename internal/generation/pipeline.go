package generation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"runtime/debug"
	"time"

	"github.com/fedspending/data-broker/internal/blob"
	"github.com/fedspending/data-broker/internal/rowerrors"
	"github.com/fedspending/data-broker/internal/store"
	"github.com/fedspending/data-broker/internal/store/model"
	"github.com/fedspending/data-broker/pkg/metrics"
	"go.uber.org/zap"
)

// maxResolveRounds bounds the re-resolutions after a parent turned out to be unusable.
const maxResolveRounds = 3

type Outcome int

const (
	// OutcomeFinished means the job holds its output.
	OutcomeFinished Outcome = iota
	// OutcomeDeferred means the job waits on a running parent which will finalize it.
	OutcomeDeferred
)

func (o Outcome) String() string {
	if o == OutcomeDeferred {
		return "deferred"
	}
	return "finished"
}

type Request struct {
	JobID        int64
	FileType     model.FileType
	AgencyCode   string
	Start        time.Time
	End          time.Time
	SubmissionID *int64
	// TimestampedName is the file name of the generated output.
	TimestampedName string
}

func (r Request) Args() model.GenerationArgs {
	args := model.GenerationArgs{
		FileType:        r.FileType,
		AgencyCode:      r.AgencyCode,
		SubmissionID:    r.SubmissionID,
		TimestampedName: r.TimestampedName,
	}
	if r.FileType.IsDateRanged() {
		start, end := r.Start, r.End
		args.StartDate = &start
		args.EndDate = &end
	}
	return args
}

func RequestFromTask(task model.GenerationTask) Request {
	req := Request{
		JobID:           task.JobID,
		FileType:        task.Args.FileType,
		AgencyCode:      task.Args.AgencyCode,
		SubmissionID:    task.Args.SubmissionID,
		TimestampedName: task.Args.TimestampedName,
	}
	if task.Args.StartDate != nil {
		req.Start = *task.Args.StartDate
	}
	if task.Args.EndDate != nil {
		req.End = *task.Args.EndDate
	}
	return req
}

func (r Request) cacheKey() model.CacheKey {
	return model.CacheKey{
		FileType:   r.FileType,
		AgencyCode: r.AgencyCode,
		StartDate:  model.Day(r.Start),
		EndDate:    model.Day(r.End),
	}
}

type PipelineOption func(p *Pipeline)

func WithQueue(queue Enqueuer) PipelineOption {
	return func(p *Pipeline) {
		p.queue = queue
	}
}

func WithClock(now func() time.Time) PipelineOption {
	return func(p *Pipeline) {
		p.now = now
	}
}

func WithPageSize(pageSize int) PipelineOption {
	return func(p *Pipeline) {
		p.pageSize = pageSize
	}
}

func WithTempDir(dir string) PipelineOption {
	return func(p *Pipeline) {
		p.tempDir = dir
	}
}

// Pipeline runs the generation of derived files.
type Pipeline struct {
	store    store.Store
	blobs    blob.Store
	sources  *Sources
	cache    *Cache
	writer   *RowWriter
	queue    Enqueuer
	events   EventWriter
	now      func() time.Time
	pageSize int
	tempDir  string
	log      *zap.SugaredLogger
}

func NewPipeline(s store.Store, blobs blob.Store, sources *Sources, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		store:    s,
		blobs:    blobs,
		sources:  sources,
		now:      time.Now,
		pageSize: DefaultPageSize,
		log:      zap.S().Named("generation"),
	}
	for _, o := range opts {
		o(p)
	}

	p.cache = NewCache(s.FileRequest(), p.now)
	p.writer = NewRowWriter(p.tempDir)
	return p
}

// Run generates the file of req.JobID. The job ends finished or failed unless it waits on
// another job generating the same file, in which case that job finalizes it.
func (p *Pipeline) Run(ctx context.Context, req Request) error {
	acc := rowerrors.NewAccumulator(p.store.ErrorMetadata())
	return p.scope(ctx, req, acc, func(ctx context.Context) (Outcome, error) {
		return p.generate(ctx, req, acc)
	})
}

// scope runs body and turns its result into the terminal status of the job, then hands the
// result over to the jobs waiting on it.
func (p *Pipeline) scope(ctx context.Context, req Request, acc *rowerrors.Accumulator, body func(ctx context.Context) (Outcome, error)) error {
	started := time.Now()
	log := p.log.With("job_id", req.JobID, "file_type", req.FileType)

	outcome, err := p.protect(ctx, body)

	// status writes must survive a cancelled run
	finalCtx := context.WithoutCancel(ctx)

	if err == nil {
		err = acc.Flush(finalCtx, req.JobID)
	}
	if err == nil && outcome == OutcomeFinished {
		err = p.store.Job().UpdateStatus(finalCtx, req.JobID, model.JobStatusFinished)
		if err == nil {
			p.notify(finalCtx, req.JobID)
		}
	}

	label := outcome.String()
	if err != nil {
		label = "failed"
		log.Errorw("generation failed", "error", err)
		if markErr := p.markFailed(finalCtx, req.JobID, err); markErr != nil {
			log.Errorw("failed to mark job as failed", "error", markErr)
		}
	} else {
		log.Infow("generation done", "outcome", label, "duration", time.Since(started))
	}

	metrics.IncreaseGenerationsTotalMetric(string(req.FileType), label)
	metrics.ObserveGenerationDuration(string(req.FileType), time.Since(started).Seconds())

	if err != nil || outcome == OutcomeFinished {
		p.propagate(finalCtx, req.JobID, err)
	}

	return err
}

func (p *Pipeline) protect(ctx context.Context, body func(ctx context.Context) (Outcome, error)) (outcome Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Errorw("generation panicked", "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("generation panicked: %v", r)
		}
	}()
	return body(ctx)
}

func (p *Pipeline) generate(ctx context.Context, req Request, acc *rowerrors.Accumulator) (Outcome, error) {
	if err := p.store.Job().UpdateStatus(ctx, req.JobID, model.JobStatusRunning); err != nil {
		return OutcomeFinished, err
	}

	job, err := p.store.Job().Get(ctx, req.JobID)
	if err != nil {
		return OutcomeFinished, err
	}

	key := model.StringValue(job.Filename)
	if key == "" {
		key = req.TimestampedName
		if err := p.store.Job().Update(ctx, req.JobID, map[string]any{"filename": key}); err != nil {
			return OutcomeFinished, err
		}
		job.Filename = &key
	}

	if !req.FileType.IsDateRanged() {
		return p.generateFile(ctx, req, key, acc)
	}

	log := p.log.With("job_id", req.JobID, "file_type", req.FileType)
	for round := 0; round < maxResolveRounds; round++ {
		resolution, err := p.cache.Resolve(ctx, req.cacheKey(), req.JobID)
		if err != nil {
			return OutcomeFinished, err
		}

		switch resolution.Kind {
		case store.ResolutionHit:
			exists, err := p.blobs.Exists(ctx, key)
			if err != nil {
				return OutcomeFinished, err
			}
			if exists {
				log.Debugw("file already generated by this job", "key", key)
				return OutcomeFinished, nil
			}
			log.Warnw("cached file is missing, generating it again", "key", key)
			return p.generateFile(ctx, req, key, acc)

		case store.ResolutionWaitOn:
			parent, err := p.store.Job().Get(ctx, resolution.ParentJobID)
			switch {
			case errors.Is(err, store.ErrRecordNotFound):
				log.Warnw("parent job vanished", "parent_job_id", resolution.ParentJobID)
			case err != nil:
				return OutcomeFinished, err
			case parent.Status == model.JobStatusFinished:
				usable, err := p.sharesKey(ctx, parent.ID, req.cacheKey())
				if err != nil {
					return OutcomeFinished, err
				}
				if !usable {
					log.Warnw("parent job was generated for another key", "parent_job_id", parent.ID)
					if err := p.store.FileRequest().Detach(ctx, req.JobID); err != nil {
						return OutcomeFinished, err
					}
					continue
				}
				if err := p.copyParentData(ctx, job, parent); err != nil {
					return OutcomeFinished, err
				}
				return OutcomeFinished, nil
			case parent.Status == model.JobStatusFailed || parent.Status == model.JobStatusInvalid:
				log.Warnw("parent job failed", "parent_job_id", parent.ID)
			default:
				log.Debugw("waiting on parent job", "parent_job_id", parent.ID)
				return OutcomeDeferred, nil
			}

			if err := p.releaseParent(ctx, req.JobID, resolution.ParentJobID); err != nil {
				return OutcomeFinished, err
			}

		default:
			return p.generateFile(ctx, req, key, acc)
		}
	}

	return OutcomeFinished, fmt.Errorf("job %d: no usable output for %s", req.JobID, req.cacheKey())
}

// sharesKey tells whether the file request of jobID still holds the output of key.
func (p *Pipeline) sharesKey(ctx context.Context, jobID int64, key model.CacheKey) (bool, error) {
	request, err := p.store.FileRequest().Get(ctx, jobID)
	if errors.Is(err, store.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return request.CacheKey().Equal(key), nil
}

// releaseParent drops an unusable parent: it stops being canonical and the job is detached from it.
func (p *Pipeline) releaseParent(ctx context.Context, jobID, parentJobID int64) error {
	return store.WithTransaction(ctx, p.store, func(ctx context.Context) error {
		if err := p.store.FileRequest().SetCached(ctx, parentJobID, false); err != nil && !errors.Is(err, store.ErrRecordNotFound) {
			return err
		}
		return p.store.FileRequest().Detach(ctx, jobID)
	})
}

func (p *Pipeline) generateFile(ctx context.Context, req Request, key string, acc *rowerrors.Accumulator) (Outcome, error) {
	tmp, rows, err := p.writeLocal(ctx, req, key, acc)
	if err != nil {
		return OutcomeFinished, err
	}

	size, err := Upload(ctx, p.blobs, tmp, key)
	if rmErr := os.Remove(tmp); rmErr != nil {
		p.log.Warnw("failed to remove temporary file", "path", tmp, "error", rmErr)
	}
	if err != nil {
		return OutcomeFinished, err
	}

	err = store.WithTransaction(ctx, p.store, func(ctx context.Context) error {
		if err := p.store.Job().Update(ctx, req.JobID, map[string]any{
			"original_filename":    path.Base(key),
			"number_of_rows":       rows,
			"number_of_rows_valid": rows,
			"number_of_errors":     acc.Count(req.JobID, model.SeverityFatal),
			"number_of_warnings":   acc.Count(req.JobID, model.SeverityWarning),
			"file_size":            size,
			"is_cached":            false,
			"error_message":        nil,
		}); err != nil {
			return err
		}

		if req.FileType.IsDateRanged() {
			return p.store.FileRequest().SetCached(ctx, req.JobID, true)
		}
		return nil
	})
	if err != nil {
		return OutcomeFinished, err
	}

	metrics.AddGeneratedRows(string(req.FileType), rows)
	p.log.Debugw("file generated", "job_id", req.JobID, "key", key, "rows", rows, "size", size)

	return OutcomeFinished, nil
}

func (p *Pipeline) writeLocal(ctx context.Context, req Request, key string, acc *rowerrors.Accumulator) (string, int64, error) {
	if req.FileType.IsDateRanged() {
		src, err := p.sources.Source(req.FileType)
		if err != nil {
			return "", 0, err
		}

		header := src.Header()
		pages := Bind(src, Filter{AgencyCode: req.AgencyCode, Start: req.Start, End: req.End, SubmissionID: req.SubmissionID})
		if limiter, ok := src.(LengthLimiter); ok {
			pages = checkLengths(pages, header, limiter.Limits(), func(field string, limit int, row int64) {
				warning := model.SeverityWarning
				acc.Record(rowerrors.RowError{
					JobID:      req.JobID,
					Filename:   path.Base(key),
					FieldName:  field,
					ErrorKind:  rowerrors.LengthExceeded(limit),
					Row:        row,
					SeverityID: &warning,
				})
			})
		}

		return p.writer.WriteFile(ctx, key, func(w io.Writer) (int64, error) {
			return Stream(ctx, w, pages, header, p.pageSize)
		})
	}

	if req.SubmissionID == nil {
		return "", 0, fmt.Errorf("file type %s is generated for a submission", req.FileType)
	}
	gen, err := p.sources.Generator(req.FileType)
	if err != nil {
		return "", 0, err
	}
	it, err := gen.GenerateRows(ctx, *req.SubmissionID)
	if err != nil {
		return "", 0, err
	}
	defer it.Close()

	return p.writer.WriteFile(ctx, key, func(w io.Writer) (int64, error) {
		return StreamRows(ctx, w, it, gen.Header())
	})
}

// checkLengths reports the values of pages longer than the limit of their column.
func checkLengths(pages PageSource, header []string, limits map[string]int, report func(field string, limit int, row int64)) PageSource {
	if len(limits) == 0 {
		return pages
	}
	return PageSourceFunc(func(ctx context.Context, offset, limit int) ([][]string, error) {
		page, err := pages.QueryPage(ctx, offset, limit)
		if err != nil {
			return nil, err
		}
		for i, record := range page {
			for j, value := range record {
				if j >= len(header) {
					break
				}
				if maxLen, found := limits[header[j]]; found && len(value) > maxLen {
					report(header[j], maxLen, int64(offset+i+1))
				}
			}
		}
		return page, nil
	})
}

// Fail fails a job whose run was lost, then hands the failure to the jobs waiting on it.
// A job that already reached a terminal status keeps it, and its waiting jobs are finalized
// from that status in case the run stopped before doing so.
func (p *Pipeline) Fail(ctx context.Context, jobID int64, cause error) error {
	job, err := p.store.Job().Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		p.propagate(ctx, jobID, nil)
		return nil
	}

	if err := p.markFailed(ctx, jobID, cause); err != nil {
		return err
	}
	metrics.IncreaseGenerationsTotalMetric(string(job.FileType), "failed")
	p.propagate(ctx, jobID, cause)
	return nil
}

// markFailed records err on the job, fails it and makes sure its output is not served from the cache.
func (p *Pipeline) markFailed(ctx context.Context, jobID int64, cause error) error {
	err := store.WithTransaction(ctx, p.store, func(ctx context.Context) error {
		if err := p.store.Job().Update(ctx, jobID, map[string]any{"error_message": cause.Error()}); err != nil {
			return err
		}
		if err := p.store.Job().UpdateStatus(ctx, jobID, model.JobStatusFailed); err != nil {
			return err
		}
		if err := p.store.FileRequest().SetCached(ctx, jobID, false); err != nil && !errors.Is(err, store.ErrRecordNotFound) {
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}

	p.notify(ctx, jobID)
	return nil
}
