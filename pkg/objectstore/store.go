package objectstore

import (
	"context"
	"errors"
)

var (
	ErrNotFound            = errors.New("object not found")
	ErrBucketNotConfigured = errors.New("bucket not configured")
)

// Store is a flat key/value blob store. Keys are slash separated.
type Store interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Exists(ctx context.Context, key string) (bool, error)
}
