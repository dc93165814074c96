package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rental-marketplace-core/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ListingRepo implements ports.ListingRepository.
type ListingRepo struct {
	pool Pool
}

// NewListingRepo creates a new ListingRepo.
func NewListingRepo(pool Pool) *ListingRepo {
	return &ListingRepo{pool: pool}
}

// GetForUpdate fetches a listing by ID with pessimistic locking.
// This MUST be called within a transaction.
func (r *ListingRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Listing, error) {
	query := `SELECT id, owner_id, paid_until FROM listings WHERE id = $1 FOR UPDATE`

	l := &domain.Listing{}
	err := tx.QueryRow(ctx, query, id).Scan(&l.ID, &l.OwnerID, &l.PaidUntil)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get listing for update: %w", err)
	}
	return l, nil
}

// SetPaidUntil updates a listing's paid-visibility deadline within a transaction.
func (r *ListingRepo) SetPaidUntil(ctx context.Context, tx pgx.Tx, id uuid.UUID, paidUntil time.Time) error {
	query := `UPDATE listings SET paid_until = $1, updated_at = NOW() WHERE id = $2`

	tag, err := tx.Exec(ctx, query, paidUntil, id)
	if err != nil {
		return fmt.Errorf("set listing paid_until: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("listing not found: %s", id)
	}
	return nil
}
