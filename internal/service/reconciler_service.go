package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"rental-marketplace-core/internal/core/domain"
	"rental-marketplace-core/internal/core/ports"
	"rental-marketplace-core/pkg/apperror"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// ReconcilerConfig holds the tunables for webhook reconciliation.
type ReconcilerConfig struct {
	SigningSecret   string
	EntitlementDays int
	ReceiptCacheTTL time.Duration
}

// ReconcilerService implements ports.WebhookReconciler. It reduces the
// processor's at-least-once event stream to exactly-once payment transitions:
// the receipt insert and the payment mutation share one transaction, so
// partial application is structurally impossible.
type ReconcilerService struct {
	paymentRepo  ports.PaymentRepository
	listingRepo  ports.ListingRepository
	receiptRepo  ports.ReceiptRepository
	receiptCache ports.ReceiptCache
	queue        ports.NotificationQueue
	prefs        ports.PreferenceProvider
	sigSvc       ports.SignatureService
	transactor   ports.DBTransactor
	cfg          ReconcilerConfig
	now          func() time.Time
	log          zerolog.Logger
}

// NewReconcilerService creates a new ReconcilerService.
func NewReconcilerService(
	paymentRepo ports.PaymentRepository,
	listingRepo ports.ListingRepository,
	receiptRepo ports.ReceiptRepository,
	receiptCache ports.ReceiptCache,
	queue ports.NotificationQueue,
	prefs ports.PreferenceProvider,
	sigSvc ports.SignatureService,
	transactor ports.DBTransactor,
	cfg ReconcilerConfig,
	log zerolog.Logger,
) *ReconcilerService {
	return &ReconcilerService{
		paymentRepo:  paymentRepo,
		listingRepo:  listingRepo,
		receiptRepo:  receiptRepo,
		receiptCache: receiptCache,
		queue:        queue,
		prefs:        prefs,
		sigSvc:       sigSvc,
		transactor:   transactor,
		cfg:          cfg,
		now:          time.Now,
		log:          log,
	}
}

// Handle processes one inbound webhook delivery.
// Authentication and parse failures reject without persisting anything.
// Duplicate event ids resolve to a success outcome so the sender stops
// retrying. Everything between receipt insert and commit is atomic.
func (s *ReconcilerService) Handle(ctx context.Context, rawBody []byte, signature string) (*ports.ReconcileOutcome, error) {
	if !s.sigSvc.Verify(s.cfg.SigningSecret, rawBody, signature) {
		return nil, apperror.ErrInvalidSignature()
	}

	var event domain.WebhookEvent
	if err := json.Unmarshal(rawBody, &event); err != nil {
		return nil, apperror.ErrMalformedEvent(err)
	}
	if err := event.Validate(); err != nil {
		return nil, apperror.ErrMalformedEvent(err)
	}

	// Fast path: skip the transaction entirely for known duplicates.
	// Best-effort only; the unique constraint below stays authoritative.
	seen, err := s.receiptCache.Seen(ctx, event.ID)
	if err != nil {
		s.log.Warn().Err(err).Str("event_id", event.ID).Msg("receipt cache check failed, falling through to DB")
	}
	if seen {
		return &ports.ReconcileOutcome{Code: ports.OutcomeDuplicate, EventID: event.ID, EventType: event.Type}, nil
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.ErrTransient(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	// Dedupe gate: the insert conflicting means the event was already handled,
	// including by a concurrent delivery racing this one.
	inserted, err := s.receiptRepo.Insert(ctx, dbTx, &domain.WebhookReceipt{
		EventID:    event.ID,
		ReceivedAt: s.now().UTC(),
	})
	if err != nil {
		return nil, apperror.ErrTransient(fmt.Errorf("insert receipt: %w", err))
	}
	if !inserted {
		s.cacheReceipt(ctx, event.ID)
		return &ports.ReconcileOutcome{Code: ports.OutcomeDuplicate, EventID: event.ID, EventType: event.Type}, nil
	}

	outcome, err := s.apply(ctx, dbTx, &event)
	if err != nil {
		return nil, err
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.ErrTransient(fmt.Errorf("commit tx: %w", err))
	}

	s.cacheReceipt(ctx, event.ID)

	s.log.Info().
		Str("event_id", event.ID).
		Str("event_type", string(event.Type)).
		Str("outcome", string(outcome.Code)).
		Msg("webhook event reconciled")

	return outcome, nil
}

// apply dispatches on the event type. Unknown types are acknowledged with
// zero side effects beyond the receipt, so new processor event types never
// break delivery.
func (s *ReconcilerService) apply(ctx context.Context, tx pgx.Tx, event *domain.WebhookEvent) (*ports.ReconcileOutcome, error) {
	switch event.Type {
	case domain.EventCheckoutCompleted:
		return s.applyCheckoutCompleted(ctx, tx, event)
	case domain.EventPaymentFailed:
		return s.applyPaymentFailed(ctx, tx, event)
	default:
		return &ports.ReconcileOutcome{Code: ports.OutcomeIgnored, EventID: event.ID, EventType: event.Type}, nil
	}
}

// applyCheckoutCompleted settles a payment as succeeded, extends the
// listing's paid-visibility window and queues the confirmation notification.
func (s *ReconcilerService) applyCheckoutCompleted(ctx context.Context, tx pgx.Tx, event *domain.WebhookEvent) (*ports.ReconcileOutcome, error) {
	payment, err := s.paymentRepo.GetByCheckoutSessionForUpdate(ctx, tx, event.Data.CheckoutSessionID)
	if err != nil {
		return nil, apperror.ErrTransient(fmt.Errorf("lock payment: %w", err))
	}
	if payment == nil {
		return nil, apperror.ErrPaymentNotFound(event.Data.CheckoutSessionID)
	}

	// Defense in depth beyond the receipt gate: two distinct event ids can
	// both claim completion for the same payment. Only the first one wins.
	if payment.IsTerminal() {
		return &ports.ReconcileOutcome{
			Code: ports.OutcomeAlreadyTerminal, EventID: event.ID, EventType: event.Type, PaymentID: &payment.ID,
		}, nil
	}

	var intentID *string
	if event.Data.PaymentIntentID != "" {
		intentID = &event.Data.PaymentIntentID
	}
	if err := s.paymentRepo.UpdateStatus(ctx, tx, payment.ID, domain.PaymentStatusSucceeded, intentID); err != nil {
		return nil, apperror.ErrTransient(fmt.Errorf("mark payment succeeded: %w", err))
	}

	listing, err := s.listingRepo.GetForUpdate(ctx, tx, payment.ListingID)
	if err != nil {
		return nil, apperror.ErrTransient(fmt.Errorf("lock listing: %w", err))
	}
	if listing == nil {
		return nil, apperror.InternalError(fmt.Errorf("payment %s references missing listing %s", payment.ID, payment.ListingID))
	}

	paidUntil := listing.ExtendPaidUntil(s.now().UTC(), s.cfg.EntitlementDays)
	if err := s.listingRepo.SetPaidUntil(ctx, tx, listing.ID, paidUntil); err != nil {
		return nil, apperror.ErrTransient(fmt.Errorf("extend paid_until: %w", err))
	}

	if err := s.queueNotification(ctx, tx, payment, domain.TemplatePaymentConfirmed, map[string]string{
		"amount":     formatAmount(payment.Amount),
		"currency":   payment.Currency,
		"paid_until": paidUntil.Format("2006-01-02"),
	}); err != nil {
		return nil, err
	}

	return &ports.ReconcileOutcome{
		Code: ports.OutcomeProcessed, EventID: event.ID, EventType: event.Type, PaymentID: &payment.ID,
	}, nil
}

// applyPaymentFailed settles a payment as failed. No entitlement change.
func (s *ReconcilerService) applyPaymentFailed(ctx context.Context, tx pgx.Tx, event *domain.WebhookEvent) (*ports.ReconcileOutcome, error) {
	payment, err := s.paymentRepo.GetByIntentIDForUpdate(ctx, tx, event.Data.PaymentIntentID)
	if err != nil {
		return nil, apperror.ErrTransient(fmt.Errorf("lock payment: %w", err))
	}
	if payment == nil {
		return nil, apperror.ErrPaymentNotFound(event.Data.PaymentIntentID)
	}

	if payment.IsTerminal() {
		return &ports.ReconcileOutcome{
			Code: ports.OutcomeAlreadyTerminal, EventID: event.ID, EventType: event.Type, PaymentID: &payment.ID,
		}, nil
	}

	if err := s.paymentRepo.UpdateStatus(ctx, tx, payment.ID, domain.PaymentStatusFailed, nil); err != nil {
		return nil, apperror.ErrTransient(fmt.Errorf("mark payment failed: %w", err))
	}

	if err := s.queueNotification(ctx, tx, payment, domain.TemplatePaymentFailed, map[string]string{
		"amount":   formatAmount(payment.Amount),
		"currency": payment.Currency,
	}); err != nil {
		return nil, err
	}

	return &ports.ReconcileOutcome{
		Code: ports.OutcomeProcessed, EventID: event.ID, EventType: event.Type, PaymentID: &payment.ID,
	}, nil
}

// queueNotification queues at most one notification per transition, gated by
// the owner's preference for the category. The queued row rides the reconciler
// transaction, so a rollback also takes the notification with it.
func (s *ReconcilerService) queueNotification(ctx context.Context, tx pgx.Tx, payment *domain.Payment, templateKey string, vars map[string]string) error {
	enabled, err := s.prefs.IsEnabled(ctx, payment.UserID, templateKey, domain.ChannelEmail)
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", payment.UserID.String()).Msg("preference lookup failed, defaulting to enabled")
		enabled = true
	}
	if !enabled {
		s.log.Debug().
			Str("user_id", payment.UserID.String()).
			Str("template_key", templateKey).
			Msg("notification suppressed by user preference")
		return nil
	}

	_, err = s.queue.QueueTx(ctx, tx, ports.QueueParams{
		UserID:      payment.UserID,
		TemplateKey: templateKey,
		Channel:     domain.ChannelEmail,
		Context:     vars,
		PaymentID:   &payment.ID,
		ListingID:   &payment.ListingID,
	})
	if err != nil {
		return apperror.ErrTransient(fmt.Errorf("queue notification: %w", err))
	}
	return nil
}

// cacheReceipt records the event id in the fast-path cache, best-effort.
func (s *ReconcilerService) cacheReceipt(ctx context.Context, eventID string) {
	if err := s.receiptCache.MarkSeen(ctx, eventID, s.cfg.ReceiptCacheTTL); err != nil {
		s.log.Warn().Err(err).Str("event_id", eventID).Msg("failed to cache webhook receipt")
	}
}

// formatAmount renders a minor-unit amount as a decimal string, e.g. 2500 -> "25.00".
func formatAmount(minor int64) string {
	return fmt.Sprintf("%d.%02d", minor/100, minor%100)
}
