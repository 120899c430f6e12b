package generation

import (
	"context"
	"fmt"
	"time"

	"github.com/fedspending/data-broker/internal/store/model"
)

// Filter selects the source rows of one generation.
type Filter struct {
	AgencyCode   string
	Start        time.Time
	End          time.Time
	SubmissionID *int64
}

// Source provides the ordered rows of a date-ranged file type page by page.
type Source interface {
	Header() []string
	QueryPage(ctx context.Context, filter Filter, offset, limit int) ([][]string, error)
}

// LengthLimiter is implemented by sources declaring a maximum length for some columns,
// keyed by header name.
type LengthLimiter interface {
	Limits() map[string]int
}

// RowGenerator provides the rows of a submission-scoped file type.
type RowGenerator interface {
	Header() []string
	GenerateRows(ctx context.Context, submissionID int64) (RowIterator, error)
}

type RowIterator interface {
	Next() bool
	Row() map[string]string
	Err() error
	Close() error
}

// PageSource is a Source bound to a filter.
type PageSource interface {
	QueryPage(ctx context.Context, offset, limit int) ([][]string, error)
}

type PageSourceFunc func(ctx context.Context, offset, limit int) ([][]string, error)

func (f PageSourceFunc) QueryPage(ctx context.Context, offset, limit int) ([][]string, error) {
	return f(ctx, offset, limit)
}

func Bind(src Source, filter Filter) PageSource {
	return PageSourceFunc(func(ctx context.Context, offset, limit int) ([][]string, error) {
		return src.QueryPage(ctx, filter, offset, limit)
	})
}

// Sources maps the generated file types to their providers.
type Sources struct {
	paged      map[model.FileType]Source
	generators map[model.FileType]RowGenerator
}

func NewSources() *Sources {
	return &Sources{
		paged:      make(map[model.FileType]Source),
		generators: make(map[model.FileType]RowGenerator),
	}
}

func (s *Sources) RegisterSource(fileType model.FileType, src Source) *Sources {
	s.paged[fileType] = src
	return s
}

func (s *Sources) RegisterGenerator(fileType model.FileType, gen RowGenerator) *Sources {
	s.generators[fileType] = gen
	return s
}

func (s *Sources) Source(fileType model.FileType) (Source, error) {
	src, found := s.paged[fileType]
	if !found {
		return nil, fmt.Errorf("no source configured for file type %s", fileType)
	}
	return src, nil
}

func (s *Sources) Generator(fileType model.FileType) (RowGenerator, error) {
	gen, found := s.generators[fileType]
	if !found {
		return nil, fmt.Errorf("no row generator configured for file type %s", fileType)
	}
	return gen, nil
}

// sliceIterator iterates over rows held in memory.
type sliceIterator struct {
	rows []map[string]string
	pos  int
}

func NewSliceIterator(rows []map[string]string) RowIterator {
	return &sliceIterator{rows: rows, pos: -1}
}

func (s *sliceIterator) Next() bool {
	s.pos++
	return s.pos < len(s.rows)
}

func (s *sliceIterator) Row() map[string]string {
	return s.rows[s.pos]
}

func (s *sliceIterator) Err() error {
	return nil
}

func (s *sliceIterator) Close() error {
	return nil
}
