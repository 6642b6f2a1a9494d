package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jjudge-oj/accounts/config"
	"github.com/rs/zerolog"
)

// ObjectStorage is the write-only surface the audit archive needs from a
// bucket backend.
type ObjectStorage interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Bucket() string
}

// Storage wraps an ObjectStorage backend with key checks and logging.
type Storage struct {
	backend ObjectStorage
	logger  zerolog.Logger
}

func NewStorage(backend ObjectStorage, logger zerolog.Logger) *Storage {
	return &Storage{backend: backend, logger: logger.With().Str("component", "storage").Logger()}
}

// NewFromConfig builds the backend selected by STORAGE_BACKEND and makes
// sure its bucket exists. It returns nil without error when no backend is
// configured.
func NewFromConfig(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*Storage, error) {
	var (
		backend ObjectStorage
		err     error
	)
	switch cfg.Storage.Backend {
	case config.BackendNone, "":
		return nil, nil
	case config.BackendMinio:
		backend, err = NewMinioClient(cfg.Minio)
	case config.BackendGCS:
		backend, err = NewGCSClient(ctx, cfg.GCS)
	case config.BackendS3:
		backend, err = NewS3Client(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.Storage.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s storage: %w", cfg.Storage.Backend, err)
	}

	s := NewStorage(backend, logger)
	if err := s.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Storage) EnsureBucket(ctx context.Context) error {
	if err := s.backend.EnsureBucket(ctx); err != nil {
		return fmt.Errorf("ensure bucket %s: %w", s.backend.Bucket(), err)
	}
	return nil
}

// Put uploads an object under key. Keys are relative, slash separated and
// may not climb out of the bucket root.
func (s *Storage) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if err := s.backend.Put(ctx, key, r, size, contentType); err != nil {
		return fmt.Errorf("put %s/%s: %w", s.backend.Bucket(), key, err)
	}
	s.logger.Debug().Str("bucket", s.backend.Bucket()).Str("key", key).Int64("size", size).Msg("object stored")
	return nil
}

func (s *Storage) Bucket() string {
	return s.backend.Bucket()
}

func validateKey(key string) error {
	switch {
	case strings.TrimSpace(key) == "":
		return errors.New("object key is required")
	case strings.HasPrefix(key, "/"):
		return fmt.Errorf("object key %q must be relative", key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." {
			return fmt.Errorf("object key %q escapes the bucket", key)
		}
	}
	return nil
}
