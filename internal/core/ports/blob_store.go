package ports

import (
	"context"
	"time"
)

// BlobStore stores binary media artifacts namespaced per session and issues
// time limited read urls for them. Object names already carry the file
// extension; the store keys objects as "<sessionID>/<objectName>".
type BlobStore interface {
	Upload(ctx context.Context, sessionID, objectName string, data []byte, contentType string) (path string, err error)
	PresignedURL(ctx context.Context, sessionID, objectName string, ttl time.Duration) (string, error)
	Download(ctx context.Context, sessionID, objectName string) ([]byte, error)
	Delete(ctx context.Context, sessionID, objectName string) error
	// DeleteAll removes every object under the session's prefix
	DeleteAll(ctx context.Context, sessionID string) error
}
