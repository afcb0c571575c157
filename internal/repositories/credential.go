package repositories

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v4"

	"github.com/chatwire/sh-msg-platform/internal/core/ports"
	"github.com/chatwire/sh-msg-platform/internal/db"
)

// ErrCredentialNotFound there is no row for the requested (session id, key id)
var ErrCredentialNotFound = errors.New("credential entry not found")

type credential struct {
	conn db.Querier
}

// NewCredential returns a postgres backed credential store
func NewCredential(conn db.Querier) ports.CredentialRepository {
	return &credential{conn: conn}
}

func (c *credential) Get(ctx context.Context, sessionID, keyID string) (json.RawMessage, error) {
	row := c.conn.QueryRow(ctx,
		`SELECT value FROM session_credentials WHERE session_id = $1 AND key_id = $2`,
		sessionID, keyID)

	var value json.RawMessage
	if err := row.Scan(&value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCredentialNotFound
		}
		return nil, err
	}
	return value, nil
}

func (c *credential) Put(ctx context.Context, sessionID, keyID string, value json.RawMessage) error {
	_, err := c.conn.Exec(ctx,
		`INSERT INTO session_credentials (session_id, key_id, value, modified_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (session_id, key_id) DO UPDATE SET value = $3, modified_at = now()`,
		sessionID, keyID, value)
	return err
}

func (c *credential) Delete(ctx context.Context, sessionID, keyID string) error {
	_, err := c.conn.Exec(ctx,
		`DELETE FROM session_credentials WHERE session_id = $1 AND key_id = $2`,
		sessionID, keyID)
	return err
}

func (c *credential) DeleteAll(ctx context.Context, sessionID string) error {
	_, err := c.conn.Exec(ctx,
		`DELETE FROM session_credentials WHERE session_id = $1`, sessionID)
	return err
}
