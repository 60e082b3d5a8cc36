// Package storage provides the object store that catalog documents are
// exported to and imported from.
package storage

import (
	"context"
	"errors"
)

// Common errors for storage operations.
var (
	ErrObjectNotFound     = errors.New("object not found")
	ErrPreconditionFailed = errors.New("precondition failed")
	ErrUploadFailed       = errors.New("upload failed")
	ErrDownloadFailed     = errors.New("download failed")
)

// ObjectStorage abstracts object storage operations.
// Implementations include S3 and the local filesystem.
type ObjectStorage interface {
	// Put stores data under key and returns the ETag of the new object.
	Put(ctx context.Context, key string, data []byte) (string, error)

	// Get returns the content of key, or ErrObjectNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// ConditionalPut stores data only if the current object's ETag equals
	// etag. An empty etag requires that the object does not exist yet.
	ConditionalPut(ctx context.Context, key string, data []byte, etag string) (string, error)

	// ListObjects returns all keys under prefix, sorted.
	ListObjects(ctx context.Context, prefix string) ([]string, error)
}
