package rowerrors

import (
	"context"
	"sync"

	"github.com/fedspending/data-broker/internal/store/model"
	"go.uber.org/zap"
)

// Writer persists aggregated error rows.
type Writer interface {
	CreateBatch(ctx context.Context, rows model.ErrorMetadataList) error
}

type RowError struct {
	JobID     int64
	Filename  string
	FieldName string
	// ErrorKind is either a predefined type id (see Code) or the message of a failed rule.
	ErrorKind        string
	Row              int64
	RuleLabel        string
	FileTypeID       *int
	TargetFileTypeID *int
	SeverityID       *int
}

type entryKey struct {
	jobID     int64
	fieldName string
	kind      string
}

type entry struct {
	last        RowError
	firstRow    int64
	occurrences int64
}

// Accumulator counts row errors in memory until they are flushed.
type Accumulator struct {
	mu      sync.Mutex
	writer  Writer
	entries map[entryKey]*entry
	order   []entryKey
}

func NewAccumulator(writer Writer) *Accumulator {
	return &Accumulator{
		writer:  writer,
		entries: make(map[entryKey]*entry),
	}
}

// Record counts one occurrence of e. The first row seen is kept and the
// descriptive fields of the latest occurrence win.
func (a *Accumulator) Record(e RowError) {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := entryKey{jobID: e.JobID, fieldName: e.FieldName, kind: e.ErrorKind}
	current, found := a.entries[key]
	if !found {
		current = &entry{firstRow: e.Row}
		a.entries[key] = current
		a.order = append(a.order, key)
	}
	current.occurrences++
	current.last = e
}

// Count returns the number of occurrences pending for a job and severity.
func (a *Accumulator) Count(jobID int64, severityID int) int64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	var total int64
	for key, e := range a.entries {
		if key.jobID == jobID && e.last.SeverityID != nil && *e.last.SeverityID == severityID {
			total += e.occurrences
		}
	}
	return total
}

// Flush writes the pending errors of jobID in one batch and forgets them.
// Entries of other jobs are kept. Nothing is written when there is nothing pending.
func (a *Accumulator) Flush(ctx context.Context, jobID int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var (
		rows    model.ErrorMetadataList
		flushed []entryKey
	)
	for _, key := range a.order {
		if key.jobID != jobID {
			continue
		}
		rows = append(rows, a.toMetadata(a.entries[key]))
		flushed = append(flushed, key)
	}

	if len(rows) == 0 {
		return nil
	}

	if err := a.writer.CreateBatch(ctx, rows); err != nil {
		return err
	}

	for _, key := range flushed {
		delete(a.entries, key)
	}
	remaining := a.order[:0]
	for _, key := range a.order {
		if key.jobID != jobID {
			remaining = append(remaining, key)
		}
	}
	a.order = remaining

	zap.S().Named("row_errors").Debugw("flushed row errors", "job_id", jobID, "count", len(rows))

	return nil
}

func (a *Accumulator) toMetadata(e *entry) model.ErrorMetadata {
	errorTypeID, ruleFailed := classify(e.last.ErrorKind)
	return model.ErrorMetadata{
		JobID:             e.last.JobID,
		Filename:          e.last.Filename,
		FieldName:         e.last.FieldName,
		ErrorTypeID:       errorTypeID,
		RuleFailed:        ruleFailed,
		Occurrences:       e.occurrences,
		FirstRow:          e.firstRow,
		OriginalRuleLabel: e.last.RuleLabel,
		FileTypeID:        e.last.FileTypeID,
		TargetFileTypeID:  e.last.TargetFileTypeID,
		SeverityID:        e.last.SeverityID,
	}
}
