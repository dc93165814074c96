package postgres

import (
	"context"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInbox_Deliver(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	inbox := NewInbox(mock)
	n := newTestNotification()

	mock.ExpectExec("INSERT INTO inbox_messages").
		WithArgs(pgxmock.AnyArg(), n.UserID, n.ID, "Payment received", "Paid 25.00 EUR").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	resp, err := inbox.Deliver(context.Background(), n, "Payment received", "Paid 25.00 EUR")
	require.NoError(t, err)
	assert.Contains(t, resp, "inbox message")
	assert.NoError(t, mock.ExpectationsWereMet())
}
