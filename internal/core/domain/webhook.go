package domain

import (
	"time"
)

// WebhookEventType is the closed set of processor event types the reconciler
// knows how to apply. Anything else is acknowledged as a no-op.
type WebhookEventType string

const (
	EventCheckoutCompleted WebhookEventType = "checkout.session.completed"
	EventPaymentFailed     WebhookEventType = "payment_intent.payment_failed"
)

// WebhookEvent is the decoded inbound event from the payment processor.
type WebhookEvent struct {
	ID   string           `json:"id"`
	Type WebhookEventType `json:"type"`
	Data WebhookEventData `json:"data"`
}

// WebhookEventData holds the object references the reconciler needs.
type WebhookEventData struct {
	CheckoutSessionID string `json:"checkout_session_id"`
	PaymentIntentID   string `json:"payment_intent_id"`
}

// Validate checks the fields required for reconciliation are present.
func (e *WebhookEvent) Validate() error {
	if e.ID == "" {
		return ErrMissingEventID
	}
	if e.Type == "" {
		return ErrMissingEventType
	}
	switch e.Type {
	case EventCheckoutCompleted:
		if e.Data.CheckoutSessionID == "" {
			return ErrMissingObjectRef
		}
	case EventPaymentFailed:
		if e.Data.PaymentIntentID == "" {
			return ErrMissingObjectRef
		}
	}
	return nil
}

// WebhookReceipt is the append-only dedupe record for one processor event id.
// Insertion under a unique constraint is the dedupe gate: a conflicting insert
// means the event has already been handled.
type WebhookReceipt struct {
	EventID    string    `json:"event_id"`
	ReceivedAt time.Time `json:"received_at"`
}
