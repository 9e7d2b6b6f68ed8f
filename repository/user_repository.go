package repository

import (
	"context"
	"errors"
	"fmt"

	"insightquest/database"
	"insightquest/models"

	"github.com/jackc/pgx/v5"
)

// UserRepository persists user progression records keyed by lowercase address
type UserRepository struct {
	q queryable
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{q: db.Pool}
}

// Get retrieves a user by address, returning nil if no record exists
func (r *UserRepository) Get(ctx context.Context, address string) (*models.User, error) {
	query := `
		SELECT
			address,
			username,
			avatar_url,
			xp,
			level,
			stage,
			last_login,
			login_streak,
			created_at,
			updated_at
		FROM users
		WHERE address = $1
	`

	var user models.User
	err := r.q.QueryRow(ctx, query, address).Scan(
		&user.Address,
		&user.Username,
		&user.AvatarURL,
		&user.XP,
		&user.Level,
		&user.Stage,
		&user.LastLogin,
		&user.LoginStreak,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user %s: %w", address, err)
	}

	user.ID = user.Address
	return &user, nil
}

// Save inserts or fully replaces the record. Concurrent writers resolve last-writer-wins.
func (r *UserRepository) Save(ctx context.Context, user *models.User) error {
	if user.Address == "" {
		return fmt.Errorf("cannot save user without address")
	}

	query := `
		INSERT INTO users (
			address, username, avatar_url, xp, level, stage, last_login, login_streak
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (address) DO UPDATE SET
			username = EXCLUDED.username,
			avatar_url = EXCLUDED.avatar_url,
			xp = EXCLUDED.xp,
			level = EXCLUDED.level,
			stage = EXCLUDED.stage,
			last_login = EXCLUDED.last_login,
			login_streak = EXCLUDED.login_streak,
			updated_at = NOW()
		RETURNING created_at, updated_at
	`

	err := r.q.QueryRow(ctx, query,
		user.Address,
		user.Username,
		user.AvatarURL,
		user.XP,
		user.Level,
		user.Stage,
		user.LastLogin,
		user.LoginStreak,
	).Scan(&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save user %s: %w", user.Address, err)
	}

	user.ID = user.Address
	return nil
}
