// Package storage holds request-scoped scratch copies of uploads while they are
// being extracted. Keys are chosen by the caller and must be unique per request.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrKeyExists is returned by Put when the key is already occupied.
var ErrKeyExists = errors.New("storage key already exists")

// PutObjectOptions define optional parameters for uploading objects.
// Size should be the exact number of bytes if known; if unknown, set to -1.
// ContentType and Metadata are optional.
type PutObjectOptions struct {
	Size        int64
	ContentType string
	Metadata    map[string]string
}

// ObjectInfo contains basic information about a stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	ContentType  string
	LastModified time.Time
	Metadata     map[string]string
}

// Storage is the scratch store used by the intake pipeline.
type Storage interface {
	// Put writes the reader under key. It never overwrites an existing object.
	Put(ctx context.Context, key string, r io.Reader, opt PutObjectOptions) (ObjectInfo, error)
	// Get opens the object for streaming reads.
	Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)
	// Delete removes the object. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
