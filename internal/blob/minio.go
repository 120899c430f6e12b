package blob

import (
	"context"
	"io"
	"net/url"
	"sort"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"
)

const (
	defaultContentType = "text/csv"
	noSuchKey          = "NoSuchKey"
	presignedURLExpiry = time.Hour
)

var errAborted = errors.New("upload aborted")

type MinioOpts func(c *minioConfig)

type minioConfig struct {
	endpoint        string
	bucket          string
	accessKey       string
	secretAccessKey string
	contentType     string
	useSSL          bool
}

func newConfig(opts ...MinioOpts) *minioConfig {
	cfg := &minioConfig{
		useSSL:      false,
		contentType: defaultContentType,
	}

	for _, o := range opts {
		o(cfg)
	}
	return cfg
}

type minioStore struct {
	cfg    *minioConfig
	client *minio.Client
}

func NewMinioStore(opts ...MinioOpts) (*minioStore, error) {
	cfg := newConfig(opts...)
	if cfg.bucket == "" {
		return nil, errors.New("s3 bucket is not set")
	}

	minioClient, err := minio.New(cfg.endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.accessKey, cfg.secretAccessKey, ""),
		Secure: cfg.useSSL,
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating s3 client")
	}

	return &minioStore{cfg: cfg, client: minioClient}, nil
}

func (s *minioStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	object, err := s.client.GetObject(ctx, s.cfg.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", key)
	}

	// GetObject is lazy: stat to surface a missing key now
	if _, err := object.Stat(); err != nil {
		object.Close()
		if minio.ToErrorResponse(err).Code == noSuchKey {
			return nil, errors.Wrap(ErrNotFound, key)
		}
		return nil, errors.Wrapf(err, "opening %s", key)
	}
	return object, nil
}

func (s *minioStore) Create(ctx context.Context, key string) (Writer, error) {
	pr, pw := io.Pipe()
	w := &minioWriter{pw: pw, key: key, done: make(chan error, 1)}

	go func() {
		_, err := s.client.PutObject(ctx, s.cfg.bucket, key, pr, -1, minio.PutObjectOptions{
			ContentType: s.cfg.contentType,
		})
		_ = pr.CloseWithError(err)
		w.done <- err
	}()

	return w, nil
}

func (s *minioStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.cfg.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == noSuchKey {
			return false, nil
		}
		return false, errors.Wrapf(err, "checking %s", key)
	}
	return true, nil
}

func (s *minioStore) ListPrefix(ctx context.Context, prefix string) ([]string, error) {
	keys := []string{}
	for object := range s.client.ListObjects(ctx, s.cfg.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if object.Err != nil {
			return nil, errors.Wrapf(object.Err, "listing %s", prefix)
		}
		keys = append(keys, object.Key)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *minioStore) Remove(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.cfg.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return errors.Wrapf(err, "removing %s", key)
	}
	return nil
}

func (s *minioStore) URL(ctx context.Context, key string) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.cfg.bucket, key, presignedURLExpiry, url.Values{})
	if err != nil {
		return "", errors.Wrapf(err, "signing %s", key)
	}
	return u.String(), nil
}

func (s *minioStore) Type() string {
	return StorageTypeS3
}

// minioWriter streams into a PutObject running in the background. The multipart
// upload only completes when the pipe is closed without error.
type minioWriter struct {
	pw     *io.PipeWriter
	key    string
	done   chan error
	closed bool
}

func (w *minioWriter) Write(p []byte) (int, error) {
	return w.pw.Write(p)
}

func (w *minioWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	_ = w.pw.Close()
	if err := <-w.done; err != nil {
		return errors.Wrapf(err, "uploading %s", w.key)
	}
	return nil
}

func (w *minioWriter) Abort() error {
	if w.closed {
		return nil
	}
	w.closed = true

	_ = w.pw.CloseWithError(errAborted)
	<-w.done
	return nil
}

func WithEndpoint(endpoint string) MinioOpts {
	return func(c *minioConfig) {
		c.endpoint = endpoint
	}
}

func WithBucket(bucket string) MinioOpts {
	return func(c *minioConfig) {
		c.bucket = bucket
	}
}

func WithContentType(contentType string) MinioOpts {
	return func(c *minioConfig) {
		c.contentType = contentType
	}
}

func WithAccessKey(accessKey string) MinioOpts {
	return func(c *minioConfig) {
		c.accessKey = accessKey
	}
}

func WithSecretKey(secretKey string) MinioOpts {
	return func(c *minioConfig) {
		c.secretAccessKey = secretKey
	}
}

func WithSSL(useSSL bool) MinioOpts {
	return func(c *minioConfig) {
		c.useSSL = useSSL
	}
}
