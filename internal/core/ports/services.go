package ports

import (
	"context"
	"time"

	"rental-marketplace-core/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// SignatureService handles HMAC-SHA256 signing and verification of webhook
// payloads.
type SignatureService interface {
	Sign(secret string, payload []byte) string
	// Verify uses a constant-time comparison.
	Verify(secret string, payload []byte, signature string) bool
}

// OutcomeCode classifies how the reconciler resolved an inbound event. All of
// these map to a 2xx acknowledgement; the processor must not retry any of them.
type OutcomeCode string

const (
	// OutcomeProcessed means the event caused a domain-visible effect.
	OutcomeProcessed OutcomeCode = "PROCESSED"
	// OutcomeDuplicate means a receipt for the event id already existed.
	OutcomeDuplicate OutcomeCode = "DUPLICATE"
	// OutcomeAlreadyTerminal means a different event already settled the payment.
	OutcomeAlreadyTerminal OutcomeCode = "ALREADY_TERMINAL"
	// OutcomeIgnored means the event type is not one the reconciler applies.
	OutcomeIgnored OutcomeCode = "IGNORED"
)

// ReconcileOutcome is the result of handling one inbound webhook delivery.
type ReconcileOutcome struct {
	Code      OutcomeCode
	EventID   string
	EventType domain.WebhookEventType
	PaymentID *uuid.UUID
}

// WebhookReconciler converts the processor's at-least-once event stream into
// exactly-once domain effects.
type WebhookReconciler interface {
	Handle(ctx context.Context, rawBody []byte, signature string) (*ReconcileOutcome, error)
}

// QueueParams holds the input for queuing one outbound notification.
type QueueParams struct {
	UserID       uuid.UUID
	TemplateKey  string
	Channel      domain.Channel // Defaults to EMAIL when empty
	Context      map[string]string
	ScheduledFor *time.Time // Defaults to now
	PaymentID    *uuid.UUID
	ListingID    *uuid.UUID
}

// NotificationQueue durably records that a notification is owed. No preference
// check happens at queue time; gating is deferred to delivery so a preference
// change between queuing and delivery is respected.
type NotificationQueue interface {
	Queue(ctx context.Context, params QueueParams) (*domain.OutboundNotification, error)
	// QueueTx queues within the caller's transaction, so the notification
	// commits or rolls back together with the business transition that owes it.
	QueueTx(ctx context.Context, tx pgx.Tx, params QueueParams) (*domain.OutboundNotification, error)
}

// DispatchStats summarizes one dispatcher run.
type DispatchStats struct {
	Sent    int
	Skipped int
	Failed  int
}

// NotificationDispatcher delivers due queued notifications, exactly once each,
// with explicit skip and failure bookkeeping.
type NotificationDispatcher interface {
	DeliverDue(ctx context.Context) (DispatchStats, error)
}

// MailTransport is the external "send message" collaborator. It returns the
// raw transport response for the delivery attempt record.
type MailTransport interface {
	Send(ctx context.Context, to, subject, body string) (string, error)
}

// InAppTransport delivers a rendered notification to the user's in-app inbox.
type InAppTransport interface {
	Deliver(ctx context.Context, n *domain.OutboundNotification, subject, body string) (string, error)
}
