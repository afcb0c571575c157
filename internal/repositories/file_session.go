package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/chatwire/sh-msg-platform/internal/core/domain"
	"github.com/chatwire/sh-msg-platform/internal/core/ports"
)

const sessionFileName = "session.json"

type fileSession struct {
	root string
}

// NewFileSession returns a session catalog backed by one directory per
// session under root. Used in filesystem-only mode.
func NewFileSession(root string) ports.SessionRepository {
	return &fileSession{root: root}
}

func (f *fileSession) Save(_ context.Context, record *domain.SessionRecord) error {
	dir := filepath.Join(f.root, record.ID)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating session dir: %w", err)
	}
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding session record: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, sessionFileName), data, 0o600)
}

func (f *fileSession) UpdateStatus(ctx context.Context, id string, status domain.Status) error {
	record, err := f.load(id)
	if err != nil {
		return err
	}
	record.Status = status
	return f.Save(ctx, record)
}

func (f *fileSession) GetAllActiveIDs(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(f.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}
		return nil, err
	}
	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			ids = append(ids, entry.Name())
		}
	}
	return ids, nil
}

func (f *fileSession) Delete(_ context.Context, id string) error {
	dir := filepath.Join(f.root, id)
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		return ErrSessionDoesNotExist
	}
	return os.RemoveAll(dir)
}

func (f *fileSession) load(id string) (*domain.SessionRecord, error) {
	data, err := os.ReadFile(filepath.Join(f.root, id, sessionFileName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrSessionDoesNotExist
		}
		return nil, err
	}
	var record domain.SessionRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("decoding session record: %w", err)
	}
	return &record, nil
}
