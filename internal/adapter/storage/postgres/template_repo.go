package postgres

import (
	"context"
	"errors"
	"fmt"

	"rental-marketplace-core/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// TemplateRepo implements ports.TemplateRepository. Templates are seeded by
// migrations; this repo only reads them.
type TemplateRepo struct {
	pool Pool
}

// NewTemplateRepo creates a new TemplateRepo.
func NewTemplateRepo(pool Pool) *TemplateRepo {
	return &TemplateRepo{pool: pool}
}

// GetActive fetches the active template for a key and channel. Returns
// nil, nil when none exists.
func (r *TemplateRepo) GetActive(ctx context.Context, key string, channel domain.Channel) (*domain.NotificationTemplate, error) {
	query := `SELECT key, channel, subject, body, active
		FROM notification_templates
		WHERE key = $1 AND channel = $2 AND active = TRUE`

	t := &domain.NotificationTemplate{}
	err := r.pool.QueryRow(ctx, query, key, channel).Scan(
		&t.Key, &t.Channel, &t.Subject, &t.Body, &t.Active,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get active template: %w", err)
	}
	return t, nil
}
