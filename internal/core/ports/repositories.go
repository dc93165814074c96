package ports

import (
	"context"
	"time"

	"rental-marketplace-core/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// PaymentRepository defines persistence operations for payments.
// Methods accepting pgx.Tx are used inside the reconciler transaction so the
// terminal-state check and the transition commit or roll back together.
type PaymentRepository interface {
	Create(ctx context.Context, payment *domain.Payment) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error)
	GetByCheckoutSessionForUpdate(ctx context.Context, tx pgx.Tx, sessionID string) (*domain.Payment, error)
	GetByIntentIDForUpdate(ctx context.Context, tx pgx.Tx, intentID string) (*domain.Payment, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.PaymentStatus, intentID *string) error
}

// ListingRepository exposes the paid-visibility window of a listing.
// The read-modify-write of paid_until happens under a row lock inside the
// reconciler transaction.
type ListingRepository interface {
	GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Listing, error)
	SetPaidUntil(ctx context.Context, tx pgx.Tx, id uuid.UUID, paidUntil time.Time) error
}

// ReceiptRepository is the append-only webhook dedupe log.
type ReceiptRepository interface {
	// Insert records a receipt for the event id. It returns false when a
	// receipt for that id already exists, which means the event has been
	// handled before and all side effects must be skipped.
	Insert(ctx context.Context, tx pgx.Tx, receipt *domain.WebhookReceipt) (bool, error)
	Exists(ctx context.Context, eventID string) (bool, error)
}

// NotificationRepository defines persistence for outbound notifications and
// their delivery attempts.
type NotificationRepository interface {
	Create(ctx context.Context, tx pgx.Tx, n *domain.OutboundNotification) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.OutboundNotification, error)
	// ListDue returns queued notifications with scheduled_for <= now.
	ListDue(ctx context.Context, now time.Time, limit int) ([]domain.OutboundNotification, error)
	// Resolve moves a queued notification to a terminal status. It returns
	// false when the row was no longer QUEUED, i.e. another dispatcher run
	// already resolved it.
	Resolve(ctx context.Context, id uuid.UUID, status domain.NotificationStatus, lastError *string) (bool, error)
	CreateAttempt(ctx context.Context, attempt *domain.DeliveryAttempt) error
	ListAttempts(ctx context.Context, notificationID uuid.UUID) ([]domain.DeliveryAttempt, error)
}

// TemplateRepository reads notification templates. Templates are seeded out
// of band; the dispatcher only looks up active ones.
type TemplateRepository interface {
	// GetActive returns nil, nil when no active template exists for the key
	// and channel. A missing template is a delivery failure, not a crash.
	GetActive(ctx context.Context, key string, channel domain.Channel) (*domain.NotificationTemplate, error)
}

// PreferenceProvider answers whether a user accepts a notification category on
// a channel. A user with no preference record is treated as enabled.
type PreferenceProvider interface {
	IsEnabled(ctx context.Context, userID uuid.UUID, category string, channel domain.Channel) (bool, error)
}

// UserDirectory resolves delivery addresses. Owned by the user-profile
// subsystem; this core only reads from it at delivery time.
type UserDirectory interface {
	EmailOf(ctx context.Context, userID uuid.UUID) (string, error)
}

// ReceiptCache is the Redis fast path in front of the database dedupe gate.
// It is a best-effort read-through optimization; the unique constraint on the
// receipt table stays authoritative.
type ReceiptCache interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	MarkSeen(ctx context.Context, eventID string, ttl time.Duration) error
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
