package domain

import (
	"time"

	"github.com/google/uuid"
)

// Channel is the delivery channel for a notification.
type Channel string

const (
	ChannelEmail Channel = "EMAIL"
	ChannelInApp Channel = "IN_APP"
)

// NotificationStatus represents the delivery state of an outbound notification.
type NotificationStatus string

const (
	NotificationStatusQueued  NotificationStatus = "QUEUED"
	NotificationStatusSent    NotificationStatus = "SENT"
	NotificationStatusSkipped NotificationStatus = "SKIPPED"
	NotificationStatusFailed  NotificationStatus = "FAILED"
)

// Template keys used by the payment core.
const (
	TemplatePaymentConfirmed = "payment_confirmed"
	TemplatePaymentFailed    = "payment_failed"
)

// OutboundNotification is the durable record that a notification of a given
// kind is owed to a user. Queuing and delivery are separate steps: the
// dispatcher later renders the template with Context and attempts delivery.
type OutboundNotification struct {
	ID           uuid.UUID          `json:"id"`
	UserID       uuid.UUID          `json:"user_id"`
	Channel      Channel            `json:"channel"`
	TemplateKey  string             `json:"template_key"`
	Context      map[string]string  `json:"context"`
	Status       NotificationStatus `json:"status"`
	ScheduledFor time.Time          `json:"scheduled_for"`
	LastError    *string            `json:"last_error,omitempty"`
	PaymentID    *uuid.UUID         `json:"payment_id,omitempty"` // Deep-link back to the payment
	ListingID    *uuid.UUID         `json:"listing_id,omitempty"` // Deep-link back to the listing
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// IsTerminal returns true once the dispatcher has resolved the notification.
func (n *OutboundNotification) IsTerminal() bool {
	return n.Status == NotificationStatusSent ||
		n.Status == NotificationStatusSkipped ||
		n.Status == NotificationStatusFailed
}

// DeliveryAttempt records one delivery try for a notification. Append-only;
// a skipped notification has zero attempts since skip is a pre-delivery decision.
type DeliveryAttempt struct {
	ID             uuid.UUID `json:"id"`
	NotificationID uuid.UUID `json:"notification_id"`
	Channel        Channel   `json:"channel"`
	Success        bool      `json:"success"`
	Response       string    `json:"response"` // Raw transport response or error text
	AttemptedAt    time.Time `json:"attempted_at"`
}

// NotificationTemplate is the rendering source for one template key and channel.
// Seeded out of band; read-only from the dispatcher's perspective.
type NotificationTemplate struct {
	Key     string  `json:"key"`
	Channel Channel `json:"channel"`
	Subject string  `json:"subject"`
	Body    string  `json:"body"`
	Active  bool    `json:"active"`
}

// ChannelPreference is a per-user opt-in flag for one notification category
// and channel. A missing preference row means enabled.
type ChannelPreference struct {
	UserID   uuid.UUID `json:"user_id"`
	Category string    `json:"category"` // Template key, e.g. "payment_confirmed"
	Channel  Channel   `json:"channel"`
	Enabled  bool      `json:"enabled"`
}
