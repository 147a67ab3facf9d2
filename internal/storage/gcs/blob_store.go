// Package gcs provides a BlobStore backed by Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"

	"cloud.google.com/go/storage"
)

const defaultContentType = "text/csv; charset=utf-8"

// Config selects the bucket and object layout.
type Config struct {
	Bucket string `mapstructure:"bucket" yaml:"bucket"`
	// Prefix is prepended to every object name, e.g. "AQI Data".
	Prefix string `mapstructure:"prefix" yaml:"prefix"`
	// Placeholders writes a zero-byte "<dir>/" object per EnsureDir call so
	// the bucket browses like the local tree, empty folders included.
	Placeholders bool `mapstructure:"placeholders" yaml:"placeholders"`
}

// BlobStore writes CSV objects to a bucket.
type BlobStore struct {
	bucket       *storage.BucketHandle
	name         string
	prefix       string
	placeholders bool

	mu   sync.Mutex
	dirs map[string]struct{}
}

// New creates a GCS-backed blob store.
func New(client *storage.Client, cfg Config) (*BlobStore, error) {
	if client == nil {
		return nil, errors.New("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}
	return &BlobStore{
		bucket:       client.Bucket(cfg.Bucket),
		name:         cfg.Bucket,
		prefix:       strings.Trim(cfg.Prefix, "/"),
		placeholders: cfg.Placeholders,
		dirs:         make(map[string]struct{}),
	}, nil
}

// EnsureDir writes a folder placeholder when enabled; otherwise it is a no-op.
// Each directory is written at most once per store.
func (s *BlobStore) EnsureDir(ctx context.Context, dir string) error {
	if !s.placeholders {
		return nil
	}
	object := s.objectName(dir) + "/"
	s.mu.Lock()
	_, seen := s.dirs[object]
	s.mu.Unlock()
	if seen {
		return nil
	}
	if err := s.write(ctx, object, "", strings.NewReader("")); err != nil {
		return fmt.Errorf("create folder %s: %w", object, err)
	}
	s.mu.Lock()
	s.dirs[object] = struct{}{}
	s.mu.Unlock()
	return nil
}

// PutObject uploads one CSV file and returns its gs:// URI.
func (s *BlobStore) PutObject(ctx context.Context, name string, contentType string, r io.Reader) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", errors.New("path is required")
	}
	if contentType == "" {
		contentType = defaultContentType
	}
	object := s.objectName(name)
	if err := s.write(ctx, object, contentType, r); err != nil {
		return "", err
	}
	return fmt.Sprintf("gs://%s/%s", s.name, object), nil
}

func (s *BlobStore) write(ctx context.Context, object, contentType string, r io.Reader) error {
	w := s.bucket.Object(object).NewWriter(ctx)
	// CSVs are small; send each in a single request.
	w.ChunkSize = 0
	if contentType != "" {
		w.ContentType = contentType
	}
	if _, err := io.Copy(w, r); err != nil {
		return errors.Join(fmt.Errorf("copy object: %w", err), w.Close())
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close writer: %w", err)
	}
	return nil
}

func (s *BlobStore) objectName(name string) string {
	name = strings.Trim(name, "/")
	if s.prefix == "" {
		return name
	}
	return path.Join(s.prefix, name)
}
