package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"rental-marketplace-core/internal/core/domain"
	"rental-marketplace-core/internal/core/ports/mocks"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type dispatcherTestDeps struct {
	svc          *DispatcherService
	notifRepo    *mocks.MockNotificationRepository
	templateRepo *mocks.MockTemplateRepository
	prefs        *mocks.MockPreferenceProvider
	users        *mocks.MockUserDirectory
	mail         *mocks.MockMailTransport
	inApp        *mocks.MockInAppTransport
	ctrl         *gomock.Controller
}

func setupDispatcherService(t *testing.T) *dispatcherTestDeps {
	ctrl := gomock.NewController(t)
	d := &dispatcherTestDeps{
		notifRepo:    mocks.NewMockNotificationRepository(ctrl),
		templateRepo: mocks.NewMockTemplateRepository(ctrl),
		prefs:        mocks.NewMockPreferenceProvider(ctrl),
		users:        mocks.NewMockUserDirectory(ctrl),
		mail:         mocks.NewMockMailTransport(ctrl),
		inApp:        mocks.NewMockInAppTransport(ctrl),
		ctrl:         ctrl,
	}
	d.svc = NewDispatcherService(
		d.notifRepo, d.templateRepo, d.prefs, d.users, d.mail, d.inApp,
		DispatcherConfig{BatchSize: 100, SendTimeout: 5 * time.Second},
		zerolog.Nop(),
	)
	return d
}

func queuedNotification(channel domain.Channel) domain.OutboundNotification {
	return domain.OutboundNotification{
		ID:          uuid.New(),
		UserID:      uuid.New(),
		Channel:     channel,
		TemplateKey: domain.TemplatePaymentConfirmed,
		Context: map[string]string{
			"amount":     "25.00",
			"currency":   "EUR",
			"paid_until": "2024-01-31",
		},
		Status: domain.NotificationStatusQueued,
	}
}

func emailTemplate() *domain.NotificationTemplate {
	return &domain.NotificationTemplate{
		Key:     domain.TemplatePaymentConfirmed,
		Channel: domain.ChannelEmail,
		Subject: "Payment received",
		Body:    "We received {{amount}} {{currency}}. Your listing is visible until {{paid_until}}.",
		Active:  true,
	}
}

// ==================== DeliverDue Tests ====================

func TestDispatcherService_DeliverDue_SendsEmail(t *testing.T) {
	d := setupDispatcherService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	d.svc.now = func() time.Time { return now }

	n := queuedNotification(domain.ChannelEmail)

	d.notifRepo.EXPECT().ListDue(ctx, now, 100).Return([]domain.OutboundNotification{n}, nil)
	d.templateRepo.EXPECT().GetActive(ctx, n.TemplateKey, domain.ChannelEmail).Return(emailTemplate(), nil)
	d.prefs.EXPECT().IsEnabled(ctx, n.UserID, n.TemplateKey, domain.ChannelEmail).Return(true, nil)
	d.users.EXPECT().EmailOf(ctx, n.UserID).Return("owner@example.com", nil)
	d.mail.EXPECT().Send(gomock.Any(), "owner@example.com", "Payment received",
		"We received 25.00 EUR. Your listing is visible until 2024-01-31.").Return("250 ok", nil)
	d.notifRepo.EXPECT().CreateAttempt(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, attempt *domain.DeliveryAttempt) error {
			assert.Equal(t, n.ID, attempt.NotificationID)
			assert.True(t, attempt.Success)
			assert.Equal(t, "250 ok", attempt.Response)
			return nil
		})
	d.notifRepo.EXPECT().Resolve(ctx, n.ID, domain.NotificationStatusSent, nil).Return(true, nil)

	stats, err := d.svc.DeliverDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Sent)
	assert.Equal(t, 0, stats.Skipped)
	assert.Equal(t, 0, stats.Failed)
}

func TestDispatcherService_DeliverDue_InApp(t *testing.T) {
	d := setupDispatcherService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	n := queuedNotification(domain.ChannelInApp)
	tpl := &domain.NotificationTemplate{
		Key: n.TemplateKey, Channel: domain.ChannelInApp,
		Subject: "Payment received", Body: "Paid {{amount}} {{currency}}", Active: true,
	}

	d.notifRepo.EXPECT().ListDue(ctx, gomock.Any(), 100).Return([]domain.OutboundNotification{n}, nil)
	d.templateRepo.EXPECT().GetActive(ctx, n.TemplateKey, domain.ChannelInApp).Return(tpl, nil)
	d.prefs.EXPECT().IsEnabled(ctx, n.UserID, n.TemplateKey, domain.ChannelInApp).Return(true, nil)
	d.inApp.EXPECT().Deliver(gomock.Any(), gomock.Any(), "Payment received", "Paid 25.00 EUR").Return("stored", nil)
	d.notifRepo.EXPECT().CreateAttempt(ctx, gomock.Any()).Return(nil)
	d.notifRepo.EXPECT().Resolve(ctx, n.ID, domain.NotificationStatusSent, nil).Return(true, nil)

	stats, err := d.svc.DeliverDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Sent)
}

func TestDispatcherService_DeliverDue_PreferenceDisabledSkips(t *testing.T) {
	d := setupDispatcherService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	n := queuedNotification(domain.ChannelEmail)

	d.notifRepo.EXPECT().ListDue(ctx, gomock.Any(), 100).Return([]domain.OutboundNotification{n}, nil)
	d.templateRepo.EXPECT().GetActive(ctx, n.TemplateKey, domain.ChannelEmail).Return(emailTemplate(), nil)
	d.prefs.EXPECT().IsEnabled(ctx, n.UserID, n.TemplateKey, domain.ChannelEmail).Return(false, nil)
	d.notifRepo.EXPECT().Resolve(ctx, n.ID, domain.NotificationStatusSkipped, nil).Return(true, nil)
	// No transport call and no attempt row for a skip.

	stats, err := d.svc.DeliverDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 0, stats.Sent)
}

func TestDispatcherService_DeliverDue_MissingTemplateFailsWithoutAttempt(t *testing.T) {
	d := setupDispatcherService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	n := queuedNotification(domain.ChannelEmail)
	reason := "Template not found"

	d.notifRepo.EXPECT().ListDue(ctx, gomock.Any(), 100).Return([]domain.OutboundNotification{n}, nil)
	d.templateRepo.EXPECT().GetActive(ctx, n.TemplateKey, domain.ChannelEmail).Return(nil, nil)
	d.notifRepo.EXPECT().Resolve(ctx, n.ID, domain.NotificationStatusFailed, &reason).Return(true, nil)

	stats, err := d.svc.DeliverDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Failed)
}

func TestDispatcherService_DeliverDue_TransportFailure(t *testing.T) {
	d := setupDispatcherService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	n := queuedNotification(domain.ChannelEmail)
	sendErr := errors.New("smtp: connection refused")
	errText := sendErr.Error()

	d.notifRepo.EXPECT().ListDue(ctx, gomock.Any(), 100).Return([]domain.OutboundNotification{n}, nil)
	d.templateRepo.EXPECT().GetActive(ctx, n.TemplateKey, domain.ChannelEmail).Return(emailTemplate(), nil)
	d.prefs.EXPECT().IsEnabled(ctx, n.UserID, n.TemplateKey, domain.ChannelEmail).Return(true, nil)
	d.users.EXPECT().EmailOf(ctx, n.UserID).Return("owner@example.com", nil)
	d.mail.EXPECT().Send(gomock.Any(), "owner@example.com", gomock.Any(), gomock.Any()).Return("", sendErr)
	// The transport was invoked, so the attempt is recorded even on failure.
	d.notifRepo.EXPECT().CreateAttempt(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, attempt *domain.DeliveryAttempt) error {
			assert.False(t, attempt.Success)
			assert.Equal(t, errText, attempt.Response)
			return nil
		})
	d.notifRepo.EXPECT().Resolve(ctx, n.ID, domain.NotificationStatusFailed, &errText).Return(true, nil)

	stats, err := d.svc.DeliverDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Failed)
	// No automatic retry: the row is terminal now.
}

func TestDispatcherService_DeliverDue_MissingRecipientFailsWithoutAttempt(t *testing.T) {
	d := setupDispatcherService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	n := queuedNotification(domain.ChannelEmail)
	reason := "No delivery address for user"

	d.notifRepo.EXPECT().ListDue(ctx, gomock.Any(), 100).Return([]domain.OutboundNotification{n}, nil)
	d.templateRepo.EXPECT().GetActive(ctx, n.TemplateKey, domain.ChannelEmail).Return(emailTemplate(), nil)
	d.prefs.EXPECT().IsEnabled(ctx, n.UserID, n.TemplateKey, domain.ChannelEmail).Return(true, nil)
	d.users.EXPECT().EmailOf(ctx, n.UserID).Return("", errors.New("user not found"))
	d.notifRepo.EXPECT().Resolve(ctx, n.ID, domain.NotificationStatusFailed, &reason).Return(true, nil)

	stats, err := d.svc.DeliverDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Failed)
}

func TestDispatcherService_DeliverDue_TemplateLookupErrorLeavesQueued(t *testing.T) {
	d := setupDispatcherService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	n := queuedNotification(domain.ChannelEmail)

	d.notifRepo.EXPECT().ListDue(ctx, gomock.Any(), 100).Return([]domain.OutboundNotification{n}, nil)
	d.templateRepo.EXPECT().GetActive(ctx, n.TemplateKey, domain.ChannelEmail).Return(nil, errors.New("db down"))
	// No Resolve: a storage error is transient and the row stays queued.

	stats, err := d.svc.DeliverDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Sent+stats.Skipped+stats.Failed)
}

func TestDispatcherService_DeliverDue_OneFailureDoesNotAbortBatch(t *testing.T) {
	d := setupDispatcherService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	broken := queuedNotification(domain.ChannelEmail)
	healthy := queuedNotification(domain.ChannelEmail)
	reason := "Template not found"

	d.notifRepo.EXPECT().ListDue(ctx, gomock.Any(), 100).Return(
		[]domain.OutboundNotification{broken, healthy}, nil)

	d.templateRepo.EXPECT().GetActive(ctx, broken.TemplateKey, domain.ChannelEmail).Return(nil, nil)
	d.notifRepo.EXPECT().Resolve(ctx, broken.ID, domain.NotificationStatusFailed, &reason).Return(true, nil)

	d.templateRepo.EXPECT().GetActive(ctx, healthy.TemplateKey, domain.ChannelEmail).Return(emailTemplate(), nil)
	d.prefs.EXPECT().IsEnabled(ctx, healthy.UserID, healthy.TemplateKey, domain.ChannelEmail).Return(true, nil)
	d.users.EXPECT().EmailOf(ctx, healthy.UserID).Return("second@example.com", nil)
	d.mail.EXPECT().Send(gomock.Any(), "second@example.com", gomock.Any(), gomock.Any()).Return("250 ok", nil)
	d.notifRepo.EXPECT().CreateAttempt(ctx, gomock.Any()).Return(nil)
	d.notifRepo.EXPECT().Resolve(ctx, healthy.ID, domain.NotificationStatusSent, nil).Return(true, nil)

	stats, err := d.svc.DeliverDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Sent)
	assert.Equal(t, 1, stats.Failed)
}

func TestDispatcherService_DeliverDue_ConcurrentRunLosesClaim(t *testing.T) {
	d := setupDispatcherService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	n := queuedNotification(domain.ChannelEmail)

	d.notifRepo.EXPECT().ListDue(ctx, gomock.Any(), 100).Return([]domain.OutboundNotification{n}, nil)
	d.templateRepo.EXPECT().GetActive(ctx, n.TemplateKey, domain.ChannelEmail).Return(emailTemplate(), nil)
	d.prefs.EXPECT().IsEnabled(ctx, n.UserID, n.TemplateKey, domain.ChannelEmail).Return(true, nil)
	d.users.EXPECT().EmailOf(ctx, n.UserID).Return("owner@example.com", nil)
	d.mail.EXPECT().Send(gomock.Any(), "owner@example.com", gomock.Any(), gomock.Any()).Return("250 ok", nil)
	d.notifRepo.EXPECT().CreateAttempt(ctx, gomock.Any()).Return(nil)
	// Another run resolved the row first; this run must not count it.
	d.notifRepo.EXPECT().Resolve(ctx, n.ID, domain.NotificationStatusSent, nil).Return(false, nil)

	stats, err := d.svc.DeliverDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Sent)
}

// ==================== Template Rendering Tests ====================

func TestRenderTemplate(t *testing.T) {
	tests := []struct {
		name string
		tpl  string
		vars map[string]string
		want string
	}{
		{
			name: "substitutes variables",
			tpl:  "Paid {{amount}} {{currency}}",
			vars: map[string]string{"amount": "25.00", "currency": "EUR"},
			want: "Paid 25.00 EUR",
		},
		{
			name: "missing variable renders empty",
			tpl:  "Until {{paid_until}}.",
			vars: map[string]string{},
			want: "Until .",
		},
		{
			name: "inner spaces tolerated",
			tpl:  "Hello {{ name }}",
			vars: map[string]string{"name": "Ada"},
			want: "Hello Ada",
		},
		{
			name: "no placeholders",
			tpl:  "Plain text",
			vars: map[string]string{"unused": "x"},
			want: "Plain text",
		},
		{
			name: "nil vars",
			tpl:  "{{a}}b",
			vars: nil,
			want: "b",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, renderTemplate(tt.tpl, tt.vars))
		})
	}
}
