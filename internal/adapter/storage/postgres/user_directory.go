package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// UserDirectory implements ports.UserDirectory against the users table.
type UserDirectory struct {
	pool Pool
}

// NewUserDirectory creates a new UserDirectory.
func NewUserDirectory(pool Pool) *UserDirectory {
	return &UserDirectory{pool: pool}
}

// EmailOf resolves a user's delivery address.
func (d *UserDirectory) EmailOf(ctx context.Context, userID uuid.UUID) (string, error) {
	query := `SELECT email FROM users WHERE id = $1`

	var email string
	err := d.pool.QueryRow(ctx, query, userID).Scan(&email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("user not found: %s", userID)
		}
		return "", fmt.Errorf("get user email: %w", err)
	}
	return email, nil
}
