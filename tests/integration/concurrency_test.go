package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	httpHandler "rental-marketplace-core/internal/adapter/http/handler"
	"rental-marketplace-core/internal/core/domain"
	"rental-marketplace-core/internal/core/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestConcurrentWebhookDeliveries simulates the processor redelivering the
// same event from many workers at once. The receipt gate must admit exactly
// one delivery: one state transition, one entitlement extension, one queued
// notification, no matter how many requests race.
func TestConcurrentWebhookDeliveries(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	payment := app.seedPayment(t, "cs_race_1", "", 2500, "EUR")

	body := checkoutCompletedEvent("evt_race_1", "cs_race_1", "")
	signature := signBody(body)
	url := app.server.URL + "/api/v1/webhooks/payment"

	concurrency := 50
	var processed, duplicate, other int64
	var wg sync.WaitGroup
	wg.Add(concurrency)

	for i := 0; i < concurrency; i++ {
		go func() {
			defer wg.Done()

			req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
			if err != nil {
				atomic.AddInt64(&other, 1)
				return
			}
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set(httpHandler.HeaderWebhookSignature, signature)

			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				atomic.AddInt64(&other, 1)
				return
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				atomic.AddInt64(&other, 1)
				return
			}

			var envelope struct {
				Data struct {
					Outcome string `json:"outcome"`
				} `json:"data"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
				atomic.AddInt64(&other, 1)
				return
			}

			switch envelope.Data.Outcome {
			case string(ports.OutcomeProcessed):
				atomic.AddInt64(&processed, 1)
			case string(ports.OutcomeDuplicate):
				atomic.AddInt64(&duplicate, 1)
			default:
				atomic.AddInt64(&other, 1)
			}
		}()
	}
	wg.Wait()

	// All deliveries acknowledged, exactly one admitted.
	assert.Equal(t, int64(1), processed, "exactly one delivery passes the receipt gate")
	assert.Equal(t, int64(concurrency-1), duplicate)
	assert.Zero(t, other)

	assert.Equal(t, 1, app.receipts.count())
	assert.Len(t, app.notifications.all(), 1)

	got, err := app.payments.GetByID(context.Background(), payment.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusSucceeded, got.Status)

	// A single 30-day extension, never a stacked double grant.
	listing, err := app.listings.GetForUpdate(context.Background(), nil, payment.ListingID)
	require.NoError(t, err)
	require.NotNil(t, listing.PaidUntil)
	assert.WithinDuration(t, time.Now().UTC().AddDate(0, 0, 30), *listing.PaidUntil, 10*time.Second)
}

// TestConcurrentDispatcherRuns verifies overlapping dispatcher runs resolve
// each notification exactly once. Transport calls may duplicate when runs
// overlap; the terminal-status claim never does.
func TestConcurrentDispatcherRuns(t *testing.T) {
	app := newTestApp(t)
	defer app.close()
	app.seedConfirmationTemplate()

	// Queue several notifications through the webhook path.
	sessions := []string{"cs_drace_1", "cs_drace_2", "cs_drace_3", "cs_drace_4", "cs_drace_5"}
	for i, sessionID := range sessions {
		app.seedPayment(t, sessionID, "", 2500, "EUR")
		body := checkoutCompletedEvent("evt_drace_"+sessionID, sessionID, "")
		status, _ := app.postWebhook(t, body, signBody(body))
		require.Equal(t, http.StatusOK, status, "delivery %d", i)
	}
	require.Len(t, app.notifications.all(), len(sessions))

	runs := 4
	var totalSent int64
	var wg sync.WaitGroup
	wg.Add(runs)
	for i := 0; i < runs; i++ {
		go func() {
			defer wg.Done()
			stats, err := app.dispatcher.DeliverDue(context.Background())
			assert.NoError(t, err)
			atomic.AddInt64(&totalSent, int64(stats.Sent))
		}()
	}
	wg.Wait()

	// Every notification claimed as sent exactly once across all runs.
	assert.Equal(t, int64(len(sessions)), totalSent)
	for _, n := range app.notifications.all() {
		assert.Equal(t, domain.NotificationStatusSent, n.Status)
	}

	// A later run finds nothing: resolved rows are never picked up again.
	stats, err := app.dispatcher.DeliverDue(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Sent+stats.Skipped+stats.Failed)
	mailCount := len(app.mail.all())

	stats, err = app.dispatcher.DeliverDue(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Sent+stats.Skipped+stats.Failed)
	assert.Len(t, app.mail.all(), mailCount)
}
