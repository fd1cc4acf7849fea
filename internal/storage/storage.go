// Package storage defines the object storage capability used for image bytes.
// The MinIO implementation works with any S3-compatible provider; the memory
// implementation backs tests and local runs without a storage server.
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrObjectNotFound is returned when no object exists under a key.
var ErrObjectNotFound = errors.New("object not found")

// Storage stores, retrieves and removes objects by key.
type Storage interface {
	// Upload streams data to the store under the given key. size may be -1
	// when the length is unknown.
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
	// Download opens the object at key. The caller must close the reader.
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes an object identified by key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
