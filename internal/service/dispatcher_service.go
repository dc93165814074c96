package service

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"rental-marketplace-core/internal/core/domain"
	"rental-marketplace-core/internal/core/ports"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	errTemplateNotFound = "Template not found"
	errUnknownChannel   = "Unknown channel"
	errNoRecipient      = "No delivery address for user"
)

// DispatcherConfig holds the tunables for the notification dispatcher.
type DispatcherConfig struct {
	BatchSize   int
	SendTimeout time.Duration
}

// DispatcherService implements ports.NotificationDispatcher. One run selects
// due queued notifications and resolves each independently to sent, skipped
// or failed; a single notification's failure never aborts the batch.
type DispatcherService struct {
	notifRepo    ports.NotificationRepository
	templateRepo ports.TemplateRepository
	prefs        ports.PreferenceProvider
	users        ports.UserDirectory
	mail         ports.MailTransport
	inApp        ports.InAppTransport
	cfg          DispatcherConfig
	now          func() time.Time
	log          zerolog.Logger
}

// NewDispatcherService creates a new DispatcherService.
func NewDispatcherService(
	notifRepo ports.NotificationRepository,
	templateRepo ports.TemplateRepository,
	prefs ports.PreferenceProvider,
	users ports.UserDirectory,
	mail ports.MailTransport,
	inApp ports.InAppTransport,
	cfg DispatcherConfig,
	log zerolog.Logger,
) *DispatcherService {
	return &DispatcherService{
		notifRepo:    notifRepo,
		templateRepo: templateRepo,
		prefs:        prefs,
		users:        users,
		mail:         mail,
		inApp:        inApp,
		cfg:          cfg,
		now:          time.Now,
		log:          log,
	}
}

// DeliverDue processes all queued notifications whose scheduled time has
// passed. Re-running is safe: the status filter in selection means anything
// already sent, skipped or failed is never picked up again.
func (s *DispatcherService) DeliverDue(ctx context.Context) (ports.DispatchStats, error) {
	var stats ports.DispatchStats

	due, err := s.notifRepo.ListDue(ctx, s.now().UTC(), s.cfg.BatchSize)
	if err != nil {
		return stats, fmt.Errorf("list due notifications: %w", err)
	}

	for i := range due {
		s.deliverOne(ctx, &due[i], &stats)
	}

	if len(due) > 0 {
		s.log.Info().
			Int("due", len(due)).
			Int("sent", stats.Sent).
			Int("skipped", stats.Skipped).
			Int("failed", stats.Failed).
			Msg("dispatcher run complete")
	}

	return stats, nil
}

// deliverOne resolves a single notification. Template and recipient problems
// are pre-delivery configuration failures and record no attempt; only an
// actual transport invocation produces a DeliveryAttempt row.
func (s *DispatcherService) deliverOne(ctx context.Context, n *domain.OutboundNotification, stats *ports.DispatchStats) {
	tpl, err := s.templateRepo.GetActive(ctx, n.TemplateKey, n.Channel)
	if err != nil {
		// Storage hiccup: leave the row queued for the next run.
		s.log.Error().Err(err).Str("notification_id", n.ID.String()).Msg("template lookup failed")
		return
	}
	if tpl == nil {
		s.fail(ctx, n, errTemplateNotFound, stats)
		return
	}

	enabled, err := s.prefs.IsEnabled(ctx, n.UserID, n.TemplateKey, n.Channel)
	if err != nil {
		s.log.Warn().Err(err).Str("notification_id", n.ID.String()).Msg("preference lookup failed, defaulting to enabled")
		enabled = true
	}
	if !enabled {
		if s.resolve(ctx, n, domain.NotificationStatusSkipped, nil) {
			stats.Skipped++
		}
		return
	}

	subject := renderTemplate(tpl.Subject, n.Context)
	body := renderTemplate(tpl.Body, n.Context)

	sendCtx, cancel := context.WithTimeout(ctx, s.cfg.SendTimeout)
	defer cancel()

	var response string
	switch n.Channel {
	case domain.ChannelEmail:
		var to string
		to, err = s.users.EmailOf(ctx, n.UserID)
		if err != nil {
			s.fail(ctx, n, errNoRecipient, stats)
			return
		}
		response, err = s.mail.Send(sendCtx, to, subject, body)
	case domain.ChannelInApp:
		response, err = s.inApp.Deliver(sendCtx, n, subject, body)
	default:
		s.fail(ctx, n, errUnknownChannel, stats)
		return
	}

	s.recordAttempt(ctx, n, err == nil, response, err)

	if err != nil {
		errText := err.Error()
		if s.resolve(ctx, n, domain.NotificationStatusFailed, &errText) {
			stats.Failed++
		}
		s.log.Warn().Err(err).
			Str("notification_id", n.ID.String()).
			Str("channel", string(n.Channel)).
			Msg("notification delivery failed")
		return
	}

	if s.resolve(ctx, n, domain.NotificationStatusSent, nil) {
		stats.Sent++
	}
}

// fail marks a pre-delivery configuration failure. No attempt is recorded.
func (s *DispatcherService) fail(ctx context.Context, n *domain.OutboundNotification, reason string, stats *ports.DispatchStats) {
	if s.resolve(ctx, n, domain.NotificationStatusFailed, &reason) {
		stats.Failed++
	}
	s.log.Warn().
		Str("notification_id", n.ID.String()).
		Str("template_key", n.TemplateKey).
		Str("reason", reason).
		Msg("notification failed before delivery")
}

// resolve moves the notification to a terminal status. A false return means
// a concurrent dispatcher run got there first.
func (s *DispatcherService) resolve(ctx context.Context, n *domain.OutboundNotification, status domain.NotificationStatus, lastError *string) bool {
	claimed, err := s.notifRepo.Resolve(ctx, n.ID, status, lastError)
	if err != nil {
		s.log.Error().Err(err).Str("notification_id", n.ID.String()).Msg("failed to update notification status")
		return false
	}
	if !claimed {
		s.log.Debug().Str("notification_id", n.ID.String()).Msg("notification already resolved by another run")
	}
	return claimed
}

// recordAttempt appends the audit row for one transport invocation.
func (s *DispatcherService) recordAttempt(ctx context.Context, n *domain.OutboundNotification, success bool, response string, sendErr error) {
	if sendErr != nil {
		response = sendErr.Error()
	}
	attempt := &domain.DeliveryAttempt{
		ID:             uuid.New(),
		NotificationID: n.ID,
		Channel:        n.Channel,
		Success:        success,
		Response:       response,
		AttemptedAt:    s.now().UTC(),
	}
	if err := s.notifRepo.CreateAttempt(ctx, attempt); err != nil {
		s.log.Error().Err(err).Str("notification_id", n.ID.String()).Msg("failed to record delivery attempt")
	}
}

// templateVarPattern matches {{var}} placeholders, with optional inner spaces.
var templateVarPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.]+)\s*\}\}`)

// renderTemplate interpolates context values into a template string.
// Unknown placeholders render as empty, never as an error: a notification with
// an incomplete context still goes out rather than wedging the queue.
func renderTemplate(tpl string, vars map[string]string) string {
	return templateVarPattern.ReplaceAllStringFunc(tpl, func(match string) string {
		key := templateVarPattern.FindStringSubmatch(match)[1]
		return vars[key]
	})
}
