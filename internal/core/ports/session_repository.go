package ports

import (
	"context"

	"github.com/chatwire/sh-msg-platform/internal/core/domain"
)

// SessionRepository is the durable catalog of known sessions
type SessionRepository interface {
	// Save upserts the record
	Save(ctx context.Context, record *domain.SessionRecord) error
	// UpdateStatus stores the connection status of one session
	UpdateStatus(ctx context.Context, id string, status domain.Status) error
	// GetAllActiveIDs returns the ids of every session whose status is not deleted
	GetAllActiveIDs(ctx context.Context) ([]string, error)
	// Delete marks the session as deleted in the catalog
	Delete(ctx context.Context, id string) error
}
