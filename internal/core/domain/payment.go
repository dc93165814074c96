package domain

import (
	"time"

	"github.com/google/uuid"
)

// PaymentStatus represents the lifecycle state of a payment.
type PaymentStatus string

const (
	PaymentStatusCreated        PaymentStatus = "CREATED"
	PaymentStatusRequiresAction PaymentStatus = "REQUIRES_ACTION"
	PaymentStatusSucceeded      PaymentStatus = "SUCCEEDED"
	PaymentStatusFailed         PaymentStatus = "FAILED"
)

// Payment represents one purchase attempt (e.g., a listing-visibility purchase).
// It is created when checkout starts and mutated exclusively by the webhook
// reconciler. Payments are never hard-deleted; they are a financial audit record.
type Payment struct {
	ID                uuid.UUID     `json:"id"`
	UserID            uuid.UUID     `json:"user_id"`
	ListingID         uuid.UUID     `json:"listing_id"`
	Amount            int64         `json:"amount"` // In smallest currency unit
	Currency          string        `json:"currency"`
	CheckoutSessionID *string       `json:"checkout_session_id,omitempty"`
	PaymentIntentID   *string       `json:"payment_intent_id,omitempty"`
	Status            PaymentStatus `json:"status"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

// IsTerminal returns true if the payment is in a final state.
// Terminal payments must never be transitioned again by an inbound event.
func (p *Payment) IsTerminal() bool {
	return p.Status == PaymentStatusSucceeded || p.Status == PaymentStatusFailed
}

// CanTransitionTo reports whether moving to the target status is a legal,
// forward-only step of the payment state machine.
func (p *Payment) CanTransitionTo(target PaymentStatus) bool {
	if p.IsTerminal() {
		return false
	}
	switch target {
	case PaymentStatusRequiresAction:
		return p.Status == PaymentStatusCreated
	case PaymentStatusSucceeded, PaymentStatusFailed:
		return p.Status == PaymentStatusCreated || p.Status == PaymentStatusRequiresAction
	default:
		return false
	}
}

// Listing carries the subset of a marketplace listing the payment core owns:
// the paid-visibility window. Everything else about listings lives outside
// this module.
type Listing struct {
	ID        uuid.UUID  `json:"id"`
	OwnerID   uuid.UUID  `json:"owner_id"`
	PaidUntil *time.Time `json:"paid_until,omitempty"`
}

// ExtendPaidUntil returns the new paid-through date after a successful payment.
// The entitlement period is measured from today, unless a prior non-expired
// entitlement exists, in which case it extends from the later of {now, previous
// expiry} so an overlapping unexpired entitlement is never shortened.
func (l *Listing) ExtendPaidUntil(now time.Time, days int) time.Time {
	base := now
	if l.PaidUntil != nil && l.PaidUntil.After(now) {
		base = *l.PaidUntil
	}
	return base.AddDate(0, 0, days)
}
