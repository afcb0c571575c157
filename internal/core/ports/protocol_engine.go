package ports

import (
	"context"

	"github.com/chatwire/sh-msg-platform/internal/core/domain"
)

// KeyStore is the key/value contract the protocol engine consumes for its
// cryptographic state. Implementations back it with a durable store and
// bootstrap a fresh identity when none exists.
type KeyStore interface {
	// Get resolves every requested id to its stored value. Ids that are
	// absent or fail to load are simply missing from the returned map.
	Get(ctx context.Context, kind domain.CredentialKind, ids []string) (map[string]any, error)
	// Set applies a batch of upserts and deletes. Individual failures are
	// tolerated; the returned error aggregates them for observation.
	Set(ctx context.Context, updates []domain.CredentialUpdate) error
	// SaveCreds persists the current identity snapshot
	SaveCreds(ctx context.Context) error
	// ClearAll removes every credential row of the session
	ClearAll(ctx context.Context) error
	// Credentials exposes the in-memory identity to the engine
	Credentials() *domain.Credentials
}

// EngineHandler receives the events the protocol engine raises while a
// connection lives. Implemented by the session handle.
type EngineHandler interface {
	// HandleConnectionUp fires when the protocol handshake completed
	HandleConnectionUp(ctx context.Context)
	// HandleConnectionDown fires on socket closure or a connect failure
	HandleConnectionDown(ctx context.Context, reason error)
	// HandleCredentialsUpdated fires whenever the engine changed the identity snapshot
	HandleCredentialsUpdated(ctx context.Context)
	// HandlePairingCode fires when the engine produced a fresh pairing QR payload
	HandlePairingCode(ctx context.Context, code string)
}

// Engine is one live protocol connection. The wire protocol itself is an
// external collaborator; this layer only drives its lifecycle.
type Engine interface {
	// Connect kicks off the connection attempt. Progress is reported
	// through the EngineHandler, not the return value.
	Connect(ctx context.Context) error
	// Logout tears the connection down and revokes the pairing remotely.
	// Pending credential writes are drained before it returns.
	Logout(ctx context.Context) error
	// Disconnect closes the connection without revoking the pairing
	Disconnect()
}

// EngineFactory builds a protocol engine bound to one session's key store
// and event handler
type EngineFactory interface {
	New(sessionID string, keys KeyStore, handler EngineHandler) (Engine, error)
}
