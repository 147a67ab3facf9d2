// Package storage defines where harvested CSV files are written.
// This abstraction keeps the harvester independent of a specific backend
// (local filesystem, Google Cloud Storage, or memory for tests and dry runs).
package storage

import (
	"context"
	"io"
)

// BlobStore writes artifacts and returns a URI for them.
type BlobStore interface {
	// PutObject stores data under the slash-separated path.
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
	// EnsureDir makes sure a directory-like prefix exists. Backends without
	// real directories treat it as a no-op.
	EnsureDir(ctx context.Context, path string) error
}

// Backend names accepted by configuration.
const (
	BackendLocal  = "local"
	BackendGCS    = "gcs"
	BackendMemory = "memory"
)
