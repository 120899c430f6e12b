package blob

import (
	"context"
	"fmt"
	"io"

	"github.com/fedspending/data-broker/internal/config"
	"github.com/pkg/errors"
)

var ErrNotFound = errors.New("blob not found")

// Writer is the sink returned by Store.Create. The object becomes visible only once
// Close returns nil. Abort discards everything written so far.
type Writer interface {
	io.WriteCloser
	Abort() error
}

// Store is a flat key space of immutable objects. Keys use "/" as separator.
type Store interface {
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Create(ctx context.Context, key string) (Writer, error)
	Exists(ctx context.Context, key string) (bool, error)
	// ListPrefix returns the keys starting with prefix, sorted.
	ListPrefix(ctx context.Context, prefix string) ([]string, error)
	Remove(ctx context.Context, key string) error
	// URL returns where a client downloads key from.
	URL(ctx context.Context, key string) (string, error)
	Type() string
}

const (
	StorageTypeLocal = "local"
	StorageTypeS3    = "s3"
)

func New(cfg *config.Config) (Store, error) {
	switch cfg.Storage.Type {
	case StorageTypeLocal:
		return NewLocalStore(cfg.Storage.LocalRoot)
	case StorageTypeS3:
		return NewMinioStore(
			WithEndpoint(cfg.Storage.S3.Endpoint),
			WithBucket(cfg.Storage.S3.Bucket),
			WithAccessKey(cfg.Storage.S3.AccessKey),
			WithSecretKey(cfg.Storage.S3.SecretKey),
			WithSSL(cfg.Storage.S3.UseSSL),
		)
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Storage.Type)
	}
}
