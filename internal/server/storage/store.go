package storage

import (
	"context"
	"errors"
	"io"
)

// ErrBlobNotFound is returned when a delete or resolve targets a key
// that holds no blob.
var ErrBlobNotFound = errors.New("blob not found")

// Store defines the interface for blob storage backends.
// Keys are opaque; callers get one back from the document record's path.
type Store interface {
	// Put writes the blob under key and returns the number of bytes written.
	Put(ctx context.Context, key string, data io.Reader, size int64) (int64, error)
	// Delete removes the blob. A missing blob is ErrBlobNotFound.
	Delete(ctx context.Context, key string) error
	// ResolveURL returns a URL from which the blob can be fetched.
	ResolveURL(ctx context.Context, key string) (string, error)
	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error
}
