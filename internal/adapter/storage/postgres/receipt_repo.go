package postgres

import (
	"context"
	"fmt"

	"rental-marketplace-core/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// ReceiptRepo implements ports.ReceiptRepository over the append-only
// webhook_receipts table. The primary key on event_id is the dedupe gate.
type ReceiptRepo struct {
	pool Pool
}

// NewReceiptRepo creates a new ReceiptRepo.
func NewReceiptRepo(pool Pool) *ReceiptRepo {
	return &ReceiptRepo{pool: pool}
}

// Insert records a receipt for the event id. ON CONFLICT DO NOTHING keeps a
// duplicate insert from aborting the surrounding transaction; zero rows
// affected means another delivery of the same event got there first.
func (r *ReceiptRepo) Insert(ctx context.Context, tx pgx.Tx, receipt *domain.WebhookReceipt) (bool, error) {
	query := `INSERT INTO webhook_receipts (event_id, received_at)
		VALUES ($1, $2)
		ON CONFLICT (event_id) DO NOTHING`

	tag, err := tx.Exec(ctx, query, receipt.EventID, receipt.ReceivedAt)
	if err != nil {
		return false, fmt.Errorf("insert webhook receipt: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Exists reports whether a receipt for the event id has been recorded.
func (r *ReceiptRepo) Exists(ctx context.Context, eventID string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM webhook_receipts WHERE event_id = $1)`

	var exists bool
	if err := r.pool.QueryRow(ctx, query, eventID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check webhook receipt: %w", err)
	}
	return exists, nil
}
