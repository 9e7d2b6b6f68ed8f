package repository

import (
	"context"
	"errors"
	"fmt"

	"insightquest/database"

	"github.com/jackc/pgx/v5"
)

// SessionMemoryRepository remembers the last connected address of one client in Postgres
type SessionMemoryRepository struct {
	q        queryable
	clientID string
}

// NewSessionMemoryRepository creates a session memory scoped to clientID
func NewSessionMemoryRepository(db *database.DB, clientID string) *SessionMemoryRepository {
	return &SessionMemoryRepository{q: db.Pool, clientID: clientID}
}

// Remember stores address as the client's last session
func (r *SessionMemoryRepository) Remember(ctx context.Context, address string) error {
	query := `
		INSERT INTO remembered_sessions (client_id, address)
		VALUES ($1, $2)
		ON CONFLICT (client_id) DO UPDATE SET
			address = EXCLUDED.address,
			updated_at = NOW()
	`

	if _, err := r.q.Exec(ctx, query, r.clientID, address); err != nil {
		return fmt.Errorf("failed to remember session for client %s: %w", r.clientID, err)
	}
	return nil
}

// Recall returns the remembered address or an empty string
func (r *SessionMemoryRepository) Recall(ctx context.Context) (string, error) {
	query := `
		SELECT address
		FROM remembered_sessions
		WHERE client_id = $1
	`

	var address string
	err := r.q.QueryRow(ctx, query, r.clientID).Scan(&address)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to recall session for client %s: %w", r.clientID, err)
	}
	return address, nil
}

// Forget removes the remembered address
func (r *SessionMemoryRepository) Forget(ctx context.Context) error {
	query := `DELETE FROM remembered_sessions WHERE client_id = $1`

	if _, err := r.q.Exec(ctx, query, r.clientID); err != nil {
		return fmt.Errorf("failed to forget session for client %s: %w", r.clientID, err)
	}
	return nil
}
