package ports

import (
	"context"

	"github.com/chatwire/sh-msg-platform/internal/core/domain"
)

// SessionService is the registry operations surface consumed by the API layer
type SessionService interface {
	// Initialize restores every known session. It must complete before
	// external create requests are accepted.
	Initialize(ctx context.Context) error
	// Create registers a new session or reconnects an existing one
	Create(ctx context.Context, id string, opts domain.SessionOptions) domain.Result
	// Get returns the info snapshot for one session
	Get(ctx context.Context, id string) (domain.SessionInfo, bool)
	// GetAll returns a snapshot of every registered session in first
	// registration order
	GetAll(ctx context.Context) []domain.SessionInfo
	// Delete logs the session out, cascades credential and media cleanup
	// and removes it from the registry
	Delete(ctx context.Context, id string) domain.Result
	// QR returns the latest pairing code for a session
	QR(ctx context.Context, id string) (string, error)
}
