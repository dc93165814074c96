package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListingRepo_GetForUpdate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewListingRepo(mock)
	listingID := uuid.New()
	ownerID := uuid.New()
	paidUntil := time.Now().UTC().AddDate(0, 0, 10).Truncate(time.Microsecond)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM listings WHERE id .+ FOR UPDATE").
		WithArgs(listingID).
		WillReturnRows(pgxmock.NewRows([]string{"id", "owner_id", "paid_until"}).
			AddRow(listingID, ownerID, &paidUntil))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	result, err := repo.GetForUpdate(context.Background(), tx, listingID)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, listingID, result.ID)
	require.NotNil(t, result.PaidUntil)
	assert.Equal(t, paidUntil, *result.PaidUntil)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListingRepo_GetForUpdate_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewListingRepo(mock)
	listingID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM listings WHERE id .+ FOR UPDATE").
		WithArgs(listingID).
		WillReturnRows(pgxmock.NewRows([]string{"id", "owner_id", "paid_until"}))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	result, err := repo.GetForUpdate(context.Background(), tx, listingID)
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListingRepo_SetPaidUntil(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewListingRepo(mock)
	listingID := uuid.New()
	paidUntil := time.Now().UTC().AddDate(0, 0, 30).Truncate(time.Microsecond)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE listings SET paid_until").
		WithArgs(paidUntil, listingID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.SetPaidUntil(context.Background(), tx, listingID, paidUntil)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListingRepo_SetPaidUntil_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewListingRepo(mock)
	listingID := uuid.New()
	paidUntil := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE listings SET paid_until").
		WithArgs(paidUntil, listingID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.SetPaidUntil(context.Background(), tx, listingID, paidUntil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "listing not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}
