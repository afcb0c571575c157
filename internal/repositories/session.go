package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/chatwire/sh-msg-platform/internal/core/domain"
	"github.com/chatwire/sh-msg-platform/internal/core/ports"
	"github.com/chatwire/sh-msg-platform/internal/db"
)

// ErrSessionDoesNotExist session not found in the catalog
var ErrSessionDoesNotExist = errors.New("session does not exist")

type session struct {
	conn db.Querier
}

// NewSession returns a postgres backed session catalog
func NewSession(conn db.Querier) ports.SessionRepository {
	return &session{conn: conn}
}

func (s *session) Save(ctx context.Context, record *domain.SessionRecord) error {
	metadata, err := json.Marshal(record.Metadata)
	if err != nil {
		return fmt.Errorf("encoding session metadata: %w", err)
	}
	webhooks, err := json.Marshal(record.Webhooks)
	if err != nil {
		return fmt.Errorf("encoding session webhooks: %w", err)
	}
	_, err = s.conn.Exec(ctx,
		`INSERT INTO sessions (id, status, metadata, webhooks, created_at, modified_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE
		 SET status = $2, metadata = $3, webhooks = $4, modified_at = $6`,
		record.ID, record.Status, metadata, webhooks, record.CreatedAt, record.ModifiedAt)
	return err
}

func (s *session) UpdateStatus(ctx context.Context, id string, status domain.Status) error {
	tag, err := s.conn.Exec(ctx,
		`UPDATE sessions SET status = $2, modified_at = now() WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionDoesNotExist
	}
	return nil
}

func (s *session) GetAllActiveIDs(ctx context.Context) ([]string, error) {
	rows, err := s.conn.Query(ctx,
		`SELECT id FROM sessions WHERE status != $1 ORDER BY created_at`, domain.StatusDeleted)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *session) Delete(ctx context.Context, id string) error {
	tag, err := s.conn.Exec(ctx,
		`UPDATE sessions SET status = $2, modified_at = now() WHERE id = $1`, id, domain.StatusDeleted)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionDoesNotExist
	}
	return nil
}
