package service

import (
	"context"
	"fmt"
	"time"

	"rental-marketplace-core/internal/core/domain"
	"rental-marketplace-core/internal/core/ports"
	"rental-marketplace-core/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// NotificationService implements ports.NotificationQueue. Queuing only records
// that a notification is owed; rendering, preference gating and delivery all
// happen later in the dispatcher.
type NotificationService struct {
	notifRepo  ports.NotificationRepository
	transactor ports.DBTransactor
	now        func() time.Time
	log        zerolog.Logger
}

// NewNotificationService creates a new NotificationService.
func NewNotificationService(
	notifRepo ports.NotificationRepository,
	transactor ports.DBTransactor,
	log zerolog.Logger,
) *NotificationService {
	return &NotificationService{
		notifRepo:  notifRepo,
		transactor: transactor,
		now:        time.Now,
		log:        log,
	}
}

// Queue durably records one owed notification in its own transaction.
func (s *NotificationService) Queue(ctx context.Context, params ports.QueueParams) (*domain.OutboundNotification, error) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.ErrTransient(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	n, err := s.QueueTx(ctx, dbTx, params)
	if err != nil {
		return nil, err
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.ErrTransient(fmt.Errorf("commit tx: %w", err))
	}
	return n, nil
}

// QueueTx records one owed notification inside the caller's transaction, so
// it commits or rolls back together with the business event that owes it.
func (s *NotificationService) QueueTx(ctx context.Context, tx pgx.Tx, params ports.QueueParams) (*domain.OutboundNotification, error) {
	if params.TemplateKey == "" {
		return nil, apperror.InternalError(fmt.Errorf("queue: template key is required"))
	}

	channel := params.Channel
	if channel == "" {
		channel = domain.ChannelEmail
	}
	switch channel {
	case domain.ChannelEmail, domain.ChannelInApp:
	default:
		return nil, apperror.ErrUnknownChannel(string(channel))
	}

	now := s.now().UTC()
	scheduledFor := now
	if params.ScheduledFor != nil {
		scheduledFor = params.ScheduledFor.UTC()
	}

	n := &domain.OutboundNotification{
		ID:           uuid.New(),
		UserID:       params.UserID,
		Channel:      channel,
		TemplateKey:  params.TemplateKey,
		Context:      params.Context,
		Status:       domain.NotificationStatusQueued,
		ScheduledFor: scheduledFor,
		PaymentID:    params.PaymentID,
		ListingID:    params.ListingID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.notifRepo.Create(ctx, tx, n); err != nil {
		return nil, apperror.ErrTransient(fmt.Errorf("create notification: %w", err))
	}

	s.log.Debug().
		Str("notification_id", n.ID.String()).
		Str("user_id", n.UserID.String()).
		Str("template_key", n.TemplateKey).
		Str("channel", string(n.Channel)).
		Msg("notification queued")

	return n, nil
}
