package blob

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const partialSuffix = ".part"

type localStore struct {
	root string
}

func NewLocalStore(root string) (*localStore, error) {
	if root == "" {
		return nil, errors.New("local storage root is not set")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.Wrapf(err, "creating storage root %s", root)
	}
	return &localStore{root: root}, nil
}

func (l *localStore) path(key string) (string, error) {
	p := filepath.Join(l.root, filepath.FromSlash(key))
	if p != l.root && !strings.HasPrefix(p, l.root+string(filepath.Separator)) {
		return "", errors.Errorf("key %q is outside the storage root", key)
	}
	return p, nil
}

func (l *localStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	p, err := l.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(ErrNotFound, key)
		}
		return nil, errors.Wrapf(err, "opening %s", key)
	}
	return f, nil
}

func (l *localStore) Create(ctx context.Context, key string) (Writer, error) {
	p, err := l.path(key)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return nil, errors.Wrapf(err, "creating directory of %s", key)
	}

	tmp := p + "." + uuid.NewString() + partialSuffix
	f, err := os.Create(tmp)
	if err != nil {
		return nil, errors.Wrapf(err, "creating %s", key)
	}
	return &localWriter{f: f, tmp: tmp, dst: p}, nil
}

func (l *localStore) Exists(ctx context.Context, key string) (bool, error) {
	p, err := l.path(key)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(p)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.Wrapf(err, "checking %s", key)
	}
	return !info.IsDir(), nil
}

func (l *localStore) ListPrefix(ctx context.Context, prefix string) ([]string, error) {
	keys := []string{}
	err := filepath.WalkDir(l.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasSuffix(p, partialSuffix) {
			return nil
		}
		rel, err := filepath.Rel(l.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "listing %s", prefix)
	}
	sort.Strings(keys)
	return keys, nil
}

func (l *localStore) Remove(ctx context.Context, key string) error {
	p, err := l.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "removing %s", key)
	}
	return nil
}

// URL returns the file path of key.
func (l *localStore) URL(ctx context.Context, key string) (string, error) {
	return l.path(key)
}

func (l *localStore) Type() string {
	return StorageTypeLocal
}

// localWriter writes next to the destination and renames on Close.
type localWriter struct {
	f      *os.File
	tmp    string
	dst    string
	closed bool
}

func (w *localWriter) Write(p []byte) (int, error) {
	return w.f.Write(p)
}

func (w *localWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.f.Close(); err != nil {
		_ = os.Remove(w.tmp)
		return errors.Wrapf(err, "closing %s", w.dst)
	}
	if err := os.Rename(w.tmp, w.dst); err != nil {
		_ = os.Remove(w.tmp)
		return errors.Wrapf(err, "publishing %s", w.dst)
	}
	return nil
}

func (w *localWriter) Abort() error {
	if w.closed {
		return nil
	}
	w.closed = true

	_ = w.f.Close()
	if err := os.Remove(w.tmp); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "discarding %s", w.dst)
	}
	return nil
}
