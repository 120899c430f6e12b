package blob

import (
	"context"
	"io"
	"path"

	"github.com/pkg/errors"
	"github.com/thoas/go-funk"
)

// CopyChunkSize is the buffer used to stream objects between keys.
const CopyChunkSize = 1024

// CopyIfAbsent copies src to dst unless dst already exists. It reports whether a copy was made.
func CopyIfAbsent(ctx context.Context, s Store, src, dst string) (bool, error) {
	if src == dst {
		return false, nil
	}

	prefix := ""
	if dir := path.Dir(dst); dir != "." {
		prefix = dir + "/"
	}
	existing, err := s.ListPrefix(ctx, prefix)
	if err != nil {
		return false, err
	}
	if funk.ContainsString(existing, dst) {
		return false, nil
	}

	r, err := s.Open(ctx, src)
	if err != nil {
		return false, err
	}
	defer r.Close()

	w, err := s.Create(ctx, dst)
	if err != nil {
		return false, err
	}

	if err := copyChunks(w, r); err != nil {
		_ = w.Abort()
		return false, errors.Wrapf(err, "copying %s to %s", src, dst)
	}
	if err := w.Close(); err != nil {
		return false, err
	}
	return true, nil
}

func copyChunks(w io.Writer, r io.Reader) error {
	buf := make([]byte, CopyChunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
