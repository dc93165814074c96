package postgres

import (
	"context"
	"fmt"

	"rental-marketplace-core/internal/core/domain"

	"github.com/google/uuid"
)

// Inbox implements ports.InAppTransport by writing rendered notifications
// into the user's in-app inbox table.
type Inbox struct {
	pool Pool
}

// NewInbox creates a new Inbox transport.
func NewInbox(pool Pool) *Inbox {
	return &Inbox{pool: pool}
}

// Deliver stores the rendered message for the user to read in the app.
func (i *Inbox) Deliver(ctx context.Context, n *domain.OutboundNotification, subject, body string) (string, error) {
	id := uuid.New()
	query := `INSERT INTO inbox_messages (id, user_id, notification_id, subject, body, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())`

	_, err := i.pool.Exec(ctx, query, id, n.UserID, n.ID, subject, body)
	if err != nil {
		return "", fmt.Errorf("insert inbox message: %w", err)
	}
	return fmt.Sprintf("inbox message %s", id), nil
}
