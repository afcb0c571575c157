package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/chatwire/sh-msg-platform/internal/core/ports"
)

const credentialFileMode = 0o600

// keyIDs may carry characters that are unsafe in file names (device
// addresses contain ':' and '/')
var fileNameSanitizer = strings.NewReplacer("/", "__", ":", "-", "\\", "__")

type fileCredential struct {
	root string
}

// NewFileCredential returns a credential store backed by per-session json
// files under root. It serves filesystem-only mode and sessions that predate
// the durable store.
func NewFileCredential(root string) ports.CredentialRepository {
	return &fileCredential{root: root}
}

func (f *fileCredential) Get(_ context.Context, sessionID, keyID string) (json.RawMessage, error) {
	data, err := os.ReadFile(f.path(sessionID, keyID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrCredentialNotFound
		}
		return nil, err
	}
	return data, nil
}

func (f *fileCredential) Put(_ context.Context, sessionID, keyID string, value json.RawMessage) error {
	dir := f.sessionDir(sessionID)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating credential dir: %w", err)
	}
	return os.WriteFile(f.path(sessionID, keyID), value, credentialFileMode)
}

func (f *fileCredential) Delete(_ context.Context, sessionID, keyID string) error {
	if err := os.Remove(f.path(sessionID, keyID)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (f *fileCredential) DeleteAll(_ context.Context, sessionID string) error {
	return os.RemoveAll(f.sessionDir(sessionID))
}

func (f *fileCredential) sessionDir(sessionID string) string {
	return filepath.Join(f.root, sessionID, "credentials")
}

func (f *fileCredential) path(sessionID, keyID string) string {
	return filepath.Join(f.sessionDir(sessionID), fileNameSanitizer.Replace(keyID)+".json")
}
