package ports

import (
	"context"
	"encoding/json"
)

// CredentialRepository persists one opaque value per (session id, key id).
// Absence of a row is reported through the repository's not-found error, a
// state distinct from a stored null.
type CredentialRepository interface {
	Get(ctx context.Context, sessionID, keyID string) (json.RawMessage, error)
	Put(ctx context.Context, sessionID, keyID string, value json.RawMessage) error
	Delete(ctx context.Context, sessionID, keyID string) error
	// DeleteAll removes every row belonging to the session
	DeleteAll(ctx context.Context, sessionID string) error
}
