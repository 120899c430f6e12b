package generation

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fedspending/data-broker/internal/blob"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const DefaultPageSize = 10000

func newCSVWriter(w io.Writer) *csv.Writer {
	cw := csv.NewWriter(w)
	cw.Comma = ','
	cw.UseCRLF = false
	return cw
}

// Stream writes header and every row of src as CSV. Rows are requested pageSize at a time
// and the stream stops at the first page shorter than pageSize. It returns the number of
// data rows written.
func Stream(ctx context.Context, w io.Writer, src PageSource, header []string, pageSize int) (int64, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	cw := newCSVWriter(w)
	if err := cw.Write(header); err != nil {
		return 0, fmt.Errorf("writing header: %w", err)
	}

	var rows int64
	for offset := 0; ; offset += pageSize {
		if err := ctx.Err(); err != nil {
			return rows, err
		}

		page, err := src.QueryPage(ctx, offset, pageSize)
		if err != nil {
			return rows, fmt.Errorf("querying rows %d-%d: %w", offset, offset+pageSize, err)
		}

		for _, record := range page {
			if err := cw.Write(record); err != nil {
				return rows, fmt.Errorf("writing row %d: %w", rows+1, err)
			}
			rows++
		}

		cw.Flush()
		if err := cw.Error(); err != nil {
			return rows, fmt.Errorf("writing rows %d-%d: %w", offset, offset+len(page), err)
		}

		zap.S().Named("row_writer").Debugw("wrote page", "offset", offset, "rows", len(page))

		if len(page) < pageSize {
			break
		}
	}

	return rows, nil
}

// StreamRows writes header and the rows of it as CSV, each row ordered by header.
func StreamRows(ctx context.Context, w io.Writer, it RowIterator, header []string) (int64, error) {
	cw := newCSVWriter(w)
	if err := cw.Write(header); err != nil {
		return 0, fmt.Errorf("writing header: %w", err)
	}

	var rows int64
	record := make([]string, len(header))
	for it.Next() {
		if err := ctx.Err(); err != nil {
			return rows, err
		}

		row := it.Row()
		for i, h := range header {
			record[i] = row[h]
		}
		if err := cw.Write(record); err != nil {
			return rows, fmt.Errorf("writing row %d: %w", rows+1, err)
		}
		rows++
	}
	if err := it.Err(); err != nil {
		return rows, fmt.Errorf("generating rows: %w", err)
	}

	cw.Flush()
	return rows, cw.Error()
}

// RowWriter writes generated files to a local temporary directory.
type RowWriter struct {
	tempDir string
}

func NewRowWriter(tempDir string) *RowWriter {
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &RowWriter{tempDir: tempDir}
}

// WriteFile creates a temporary file named after name and fills it with write.
// The file is removed when write fails.
func (rw *RowWriter) WriteFile(ctx context.Context, name string, write func(w io.Writer) (int64, error)) (path string, rows int64, err error) {
	if err := os.MkdirAll(rw.tempDir, 0o755); err != nil {
		return "", 0, fmt.Errorf("creating temporary directory: %w", err)
	}

	path = filepath.Join(rw.tempDir, uuid.NewString()+"_"+filepath.Base(name))
	f, err := os.Create(path)
	if err != nil {
		return "", 0, fmt.Errorf("creating temporary file: %w", err)
	}

	defer func() {
		if err != nil {
			_ = os.Remove(path)
			path = ""
		}
	}()

	bw := bufio.NewWriter(f)
	rows, err = write(bw)
	if err != nil {
		_ = f.Close()
		return path, rows, err
	}
	if err = bw.Flush(); err != nil {
		_ = f.Close()
		return path, rows, fmt.Errorf("writing %s: %w", path, err)
	}
	if err = f.Close(); err != nil {
		return path, rows, fmt.Errorf("closing %s: %w", path, err)
	}
	return path, rows, nil
}

// Upload copies the local file into the blob store under key and returns its size.
// Nothing is visible under key unless the whole file was uploaded.
func Upload(ctx context.Context, store blob.Store, localPath, key string) (int64, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return 0, fmt.Errorf("opening %s: %w", localPath, err)
	}
	defer f.Close()

	w, err := store.Create(ctx, key)
	if err != nil {
		return 0, err
	}

	size, err := io.Copy(w, f)
	if err != nil {
		_ = w.Abort()
		return 0, fmt.Errorf("uploading %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return 0, err
	}
	return size, nil
}
