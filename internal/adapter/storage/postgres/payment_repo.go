package postgres

import (
	"context"
	"errors"
	"fmt"

	"rental-marketplace-core/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// PaymentRepo implements ports.PaymentRepository.
type PaymentRepo struct {
	pool Pool
}

// NewPaymentRepo creates a new PaymentRepo.
func NewPaymentRepo(pool Pool) *PaymentRepo {
	return &PaymentRepo{pool: pool}
}

const paymentColumns = `id, user_id, listing_id, amount, currency, checkout_session_id, payment_intent_id, status, created_at, updated_at`

func scanPayment(row pgx.Row) (*domain.Payment, error) {
	p := &domain.Payment{}
	err := row.Scan(
		&p.ID, &p.UserID, &p.ListingID, &p.Amount, &p.Currency,
		&p.CheckoutSessionID, &p.PaymentIntentID, &p.Status,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Create inserts a new payment into the database.
func (r *PaymentRepo) Create(ctx context.Context, p *domain.Payment) error {
	query := `INSERT INTO payments (id, user_id, listing_id, amount, currency, checkout_session_id, payment_intent_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.pool.Exec(ctx, query,
		p.ID, p.UserID, p.ListingID, p.Amount, p.Currency,
		p.CheckoutSessionID, p.PaymentIntentID, p.Status,
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

// GetByID fetches a payment by its UUID (without locking).
func (r *PaymentRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`

	p, err := scanPayment(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get payment by id: %w", err)
	}
	return p, nil
}

// GetByCheckoutSessionForUpdate fetches a payment by its checkout session
// reference with pessimistic locking. This MUST be called within a transaction.
func (r *PaymentRepo) GetByCheckoutSessionForUpdate(ctx context.Context, tx pgx.Tx, sessionID string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE checkout_session_id = $1 FOR UPDATE`

	p, err := scanPayment(tx.QueryRow(ctx, query, sessionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get payment for update by session: %w", err)
	}
	return p, nil
}

// GetByIntentIDForUpdate fetches a payment by its payment intent reference
// with pessimistic locking. This MUST be called within a transaction.
func (r *PaymentRepo) GetByIntentIDForUpdate(ctx context.Context, tx pgx.Tx, intentID string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE payment_intent_id = $1 FOR UPDATE`

	p, err := scanPayment(tx.QueryRow(ctx, query, intentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get payment for update by intent: %w", err)
	}
	return p, nil
}

// UpdateStatus transitions a payment's status within a transaction. The
// payment intent reference is backfilled when the processor supplies one.
func (r *PaymentRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.PaymentStatus, intentID *string) error {
	query := `UPDATE payments
		SET status = $1, payment_intent_id = COALESCE($2, payment_intent_id), updated_at = NOW()
		WHERE id = $3`

	tag, err := tx.Exec(ctx, query, status, intentID, id)
	if err != nil {
		return fmt.Errorf("update payment status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("payment not found: %s", id)
	}
	return nil
}
