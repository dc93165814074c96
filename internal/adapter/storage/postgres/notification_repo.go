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

// NotificationRepo implements ports.NotificationRepository.
type NotificationRepo struct {
	pool Pool
}

// NewNotificationRepo creates a new NotificationRepo.
func NewNotificationRepo(pool Pool) *NotificationRepo {
	return &NotificationRepo{pool: pool}
}

const notificationColumns = `id, user_id, channel, template_key, context, status, scheduled_for, last_error, payment_id, listing_id, created_at, updated_at`

func scanNotification(row pgx.Row) (*domain.OutboundNotification, error) {
	n := &domain.OutboundNotification{}
	err := row.Scan(
		&n.ID, &n.UserID, &n.Channel, &n.TemplateKey, &n.Context,
		&n.Status, &n.ScheduledFor, &n.LastError,
		&n.PaymentID, &n.ListingID, &n.CreatedAt, &n.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return n, nil
}

// Create inserts a queued notification within a transaction, so it commits or
// rolls back together with the payment transition that owes it.
func (r *NotificationRepo) Create(ctx context.Context, tx pgx.Tx, n *domain.OutboundNotification) error {
	query := `INSERT INTO notifications (id, user_id, channel, template_key, context, status, scheduled_for, last_error, payment_id, listing_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := tx.Exec(ctx, query,
		n.ID, n.UserID, n.Channel, n.TemplateKey, n.Context,
		n.Status, n.ScheduledFor, n.LastError,
		n.PaymentID, n.ListingID, n.CreatedAt, n.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// GetByID fetches a notification by its UUID.
func (r *NotificationRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.OutboundNotification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE id = $1`

	n, err := scanNotification(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get notification by id: %w", err)
	}
	return n, nil
}

// ListDue returns queued notifications whose scheduled time has passed,
// oldest first. Terminal rows never match the status filter, so re-running
// the dispatcher cannot pick up anything already resolved.
func (r *NotificationRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.OutboundNotification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications
		WHERE status = $1 AND scheduled_for <= $2
		ORDER BY scheduled_for ASC
		LIMIT $3`

	rows, err := r.pool.Query(ctx, query, domain.NotificationStatusQueued, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list due notifications: %w", err)
	}
	defer rows.Close()

	var due []domain.OutboundNotification
	for rows.Next() {
		n := domain.OutboundNotification{}
		if err := rows.Scan(
			&n.ID, &n.UserID, &n.Channel, &n.TemplateKey, &n.Context,
			&n.Status, &n.ScheduledFor, &n.LastError,
			&n.PaymentID, &n.ListingID, &n.CreatedAt, &n.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan due notification: %w", err)
		}
		due = append(due, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate due notifications: %w", err)
	}
	return due, nil
}

// Resolve moves a queued notification to a terminal status. The status guard
// in the WHERE clause makes the transition a compare-and-set: only one
// dispatcher run can claim a given row.
func (r *NotificationRepo) Resolve(ctx context.Context, id uuid.UUID, status domain.NotificationStatus, lastError *string) (bool, error) {
	query := `UPDATE notifications
		SET status = $1, last_error = $2, updated_at = NOW()
		WHERE id = $3 AND status = $4`

	tag, err := r.pool.Exec(ctx, query, status, lastError, id, domain.NotificationStatusQueued)
	if err != nil {
		return false, fmt.Errorf("resolve notification: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// CreateAttempt appends the audit row for one transport invocation.
func (r *NotificationRepo) CreateAttempt(ctx context.Context, attempt *domain.DeliveryAttempt) error {
	query := `INSERT INTO delivery_attempts (id, notification_id, channel, success, response, attempted_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.pool.Exec(ctx, query,
		attempt.ID, attempt.NotificationID, attempt.Channel,
		attempt.Success, attempt.Response, attempt.AttemptedAt,
	)
	if err != nil {
		return fmt.Errorf("insert delivery attempt: %w", err)
	}
	return nil
}

// ListAttempts returns a notification's delivery attempts, oldest first.
func (r *NotificationRepo) ListAttempts(ctx context.Context, notificationID uuid.UUID) ([]domain.DeliveryAttempt, error) {
	query := `SELECT id, notification_id, channel, success, response, attempted_at
		FROM delivery_attempts
		WHERE notification_id = $1
		ORDER BY attempted_at ASC`

	rows, err := r.pool.Query(ctx, query, notificationID)
	if err != nil {
		return nil, fmt.Errorf("list delivery attempts: %w", err)
	}
	defer rows.Close()

	var attempts []domain.DeliveryAttempt
	for rows.Next() {
		a := domain.DeliveryAttempt{}
		if err := rows.Scan(&a.ID, &a.NotificationID, &a.Channel, &a.Success, &a.Response, &a.AttemptedAt); err != nil {
			return nil, fmt.Errorf("scan delivery attempt: %w", err)
		}
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate delivery attempts: %w", err)
	}
	return attempts, nil
}
