// Package store archives finalized session audio to durable storage.
// Blobs are written once, keyed by a date-partitioned path, and never read
// back by this service.
package store

import (
	"context"
	"errors"
)

// ErrStoreUnavailable means the blob could not be written. Archive failures
// are logged by the caller and never retried.
var ErrStoreUnavailable = errors.New("archive store unavailable")

// Sink stores one finalized blob and returns an opaque reference to it.
type Sink interface {
	Put(ctx context.Context, key string, blob []byte) (string, error)
}
