package generation

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fedspending/data-broker/internal/store/model"
	"gorm.io/gorm"
)

// NewTableSources builds the providers of every file type in cfg on top of db.
func NewTableSources(db *gorm.DB, cfg *SourcesConfig) *Sources {
	sources := NewSources()
	for fileType, sourceCfg := range cfg.Sources {
		if fileType.IsDateRanged() {
			sources.RegisterSource(fileType, &tableSource{db: db, cfg: sourceCfg, header: sourceCfg.header()})
		} else {
			sources.RegisterGenerator(fileType, &tableRowGenerator{db: db, cfg: sourceCfg, header: sourceCfg.header()})
		}
	}
	return sources
}

// tableSource pages through a table filtered by agency and date range.
type tableSource struct {
	db     *gorm.DB
	cfg    SourceConfig
	header []string
}

func (t *tableSource) Header() []string {
	return t.header
}

func (t *tableSource) Limits() map[string]int {
	limits := make(map[string]int)
	for i, c := range t.cfg.Columns {
		if c.MaxLength > 0 {
			limits[t.header[i]] = c.MaxLength
		}
	}
	return limits
}

func (t *tableSource) QueryPage(ctx context.Context, filter Filter, offset, limit int) ([][]string, error) {
	rows, err := t.db.WithContext(ctx).
		Table(t.cfg.Table).
		Select(t.cfg.columns()).
		Where(fmt.Sprintf("%s = ?", t.cfg.AgencyColumn), filter.AgencyCode).
		Where(fmt.Sprintf("%s BETWEEN ? AND ?", t.cfg.DateColumn), model.Day(filter.Start), model.Day(filter.End)).
		Order(t.cfg.OrderBy).
		Offset(offset).
		Limit(limit).
		Rows()
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", t.cfg.Table, err)
	}
	defer rows.Close()

	page := make([][]string, 0, limit)
	for rows.Next() {
		record, err := scanStrings(rows, len(t.header))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", t.cfg.Table, err)
		}
		page = append(page, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", t.cfg.Table, err)
	}
	return page, nil
}

// tableRowGenerator streams the rows of a table belonging to a submission.
type tableRowGenerator struct {
	db     *gorm.DB
	cfg    SourceConfig
	header []string
}

func (t *tableRowGenerator) Header() []string {
	return t.header
}

func (t *tableRowGenerator) GenerateRows(ctx context.Context, submissionID int64) (RowIterator, error) {
	rows, err := t.db.WithContext(ctx).
		Table(t.cfg.Table).
		Select(t.cfg.columns()).
		Where(fmt.Sprintf("%s = ?", t.cfg.SubmissionColumn), submissionID).
		Order(t.cfg.OrderBy).
		Rows()
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", t.cfg.Table, err)
	}
	return &sqlRowIterator{rows: rows, header: t.header}, nil
}

type sqlRowIterator struct {
	rows    *sql.Rows
	header  []string
	current map[string]string
	err     error
}

func (s *sqlRowIterator) Next() bool {
	if s.err != nil || !s.rows.Next() {
		return false
	}

	record, err := scanStrings(s.rows, len(s.header))
	if err != nil {
		s.err = err
		return false
	}

	s.current = make(map[string]string, len(s.header))
	for i, h := range s.header {
		s.current[h] = record[i]
	}
	return true
}

func (s *sqlRowIterator) Row() map[string]string {
	return s.current
}

func (s *sqlRowIterator) Err() error {
	if s.err != nil {
		return s.err
	}
	return s.rows.Err()
}

func (s *sqlRowIterator) Close() error {
	return s.rows.Close()
}

// scanStrings reads the current row as strings, NULL being the empty string.
func scanStrings(rows *sql.Rows, n int) ([]string, error) {
	values := make([]sql.NullString, n)
	dest := make([]any, n)
	for i := range values {
		dest[i] = &values[i]
	}
	if err := rows.Scan(dest...); err != nil {
		return nil, err
	}

	record := make([]string, n)
	for i, v := range values {
		record[i] = v.String
	}
	return record, nil
}
