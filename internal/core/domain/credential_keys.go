package domain

import (
	"encoding/json"
	"fmt"
)

// CredentialKind is one category of the protocol engine's key/value state.
// The set is closed: the engine never asks for a kind outside of it.
type CredentialKind string

// Credential categories. KindCreds is the singleton identity entry; every
// other kind holds many entries addressed by an element id.
const (
	KindCreds               CredentialKind = "creds"
	KindPreKey              CredentialKind = "pre-key"
	KindSession             CredentialKind = "session"
	KindSenderKey           CredentialKind = "sender-key"
	KindSenderKeyMemory     CredentialKind = "sender-key-memory"
	KindAppStateSyncKey     CredentialKind = "app-state-sync-key"
	KindAppStateSyncVersion CredentialKind = "app-state-sync-version"
)

// Valid tells whether k belongs to the closed credential category set
func (k CredentialKind) Valid() bool {
	switch k {
	case KindCreds, KindPreKey, KindSession, KindSenderKey,
		KindSenderKeyMemory, KindAppStateSyncKey, KindAppStateSyncVersion:
		return true
	}
	return false
}

// StorageKeyID builds the durable key id for one entry of kind k. The
// singleton creds entry is stored under the bare category name.
func (k CredentialKind) StorageKeyID(id string) string {
	if k == KindCreds {
		return string(k)
	}
	return fmt.Sprintf("%s-%s", k, id)
}

// AppStateSyncKey is the one category whose stored blob must be rebuilt into
// a typed value before the engine can use it.
type AppStateSyncKey struct {
	KeyData     []byte          `json:"keyData"`
	Fingerprint json.RawMessage `json:"fingerprint,omitempty"`
	Timestamp   int64           `json:"timestamp,omitempty"`
}

// CredentialUpdate is one element of a batched credential write. A nil Value
// deletes the entry.
type CredentialUpdate struct {
	Kind  CredentialKind
	ID    string
	Value json.RawMessage
}

// DecodeCredentialValue turns a stored blob into the value shape the engine
// expects for the given kind. Every category is opaque except the app state
// sync keys, which go through a typed reconstruction pass.
func DecodeCredentialValue(kind CredentialKind, raw json.RawMessage) (any, error) {
	if kind == KindAppStateSyncKey {
		var key AppStateSyncKey
		if err := json.Unmarshal(raw, &key); err != nil {
			return nil, fmt.Errorf("rebuilding %s value: %w", kind, err)
		}
		return &key, nil
	}
	return raw, nil
}
