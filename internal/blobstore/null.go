package blobstore

import (
	"context"
	"errors"
	"time"
)

// ErrBlobStoreDisabled is returned by the null store. Set when no object
// storage is configured.
var ErrBlobStoreDisabled = errors.New("blob store is not configured")

// Null is a blob store that stores nothing. Deletes succeed so session
// removal stays cascading-safe without object storage.
type Null struct{}

// Upload fails: there is nowhere to store the object
func (Null) Upload(_ context.Context, _, _ string, _ []byte, _ string) (string, error) {
	return "", ErrBlobStoreDisabled
}

// PresignedURL fails
func (Null) PresignedURL(_ context.Context, _, _ string, _ time.Duration) (string, error) {
	return "", ErrBlobStoreDisabled
}

// Download fails
func (Null) Download(_ context.Context, _, _ string) ([]byte, error) {
	return nil, ErrBlobStoreDisabled
}

// Delete does nothing
func (Null) Delete(_ context.Context, _, _ string) error {
	return nil
}

// DeleteAll does nothing
func (Null) DeleteAll(_ context.Context, _ string) error {
	return nil
}
