package postgres

import (
	"context"
	"errors"
	"fmt"

	"rental-marketplace-core/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// PreferenceRepo implements ports.PreferenceProvider over the per-user
// channel preference table.
type PreferenceRepo struct {
	pool Pool
}

// NewPreferenceRepo creates a new PreferenceRepo.
func NewPreferenceRepo(pool Pool) *PreferenceRepo {
	return &PreferenceRepo{pool: pool}
}

// IsEnabled reports whether the user accepts the category on the channel.
// A user with no preference row has never opted out, so the default is
// enabled.
func (r *PreferenceRepo) IsEnabled(ctx context.Context, userID uuid.UUID, category string, channel domain.Channel) (bool, error) {
	query := `SELECT enabled FROM channel_preferences
		WHERE user_id = $1 AND category = $2 AND channel = $3`

	var enabled bool
	err := r.pool.QueryRow(ctx, query, userID, category, channel).Scan(&enabled)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return true, nil
		}
		return false, fmt.Errorf("get channel preference: %w", err)
	}
	return enabled, nil
}
