package integration

import (
	"context"
	"fmt"
	"sync"
	"time"

	"rental-marketplace-core/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// --- In-Memory Payment Repo ---

type inMemoryPaymentRepo struct {
	mu       sync.RWMutex
	payments map[uuid.UUID]*domain.Payment
}

func newInMemoryPaymentRepo() *inMemoryPaymentRepo {
	return &inMemoryPaymentRepo{payments: make(map[uuid.UUID]*domain.Payment)}
}

func (r *inMemoryPaymentRepo) Create(ctx context.Context, p *domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *p
	r.payments[p.ID] = &cp
	return nil
}

func (r *inMemoryPaymentRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.payments[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (r *inMemoryPaymentRepo) GetByCheckoutSessionForUpdate(ctx context.Context, tx pgx.Tx, sessionID string) (*domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.payments {
		if p.CheckoutSessionID != nil && *p.CheckoutSessionID == sessionID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *inMemoryPaymentRepo) GetByIntentIDForUpdate(ctx context.Context, tx pgx.Tx, intentID string) (*domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.payments {
		if p.PaymentIntentID != nil && *p.PaymentIntentID == intentID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *inMemoryPaymentRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.PaymentStatus, intentID *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok {
		return fmt.Errorf("payment not found")
	}
	prev := *p
	p.Status = status
	if intentID != nil {
		p.PaymentIntentID = intentID
	}
	p.UpdatedAt = time.Now().UTC()
	stageUndo(tx, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		restored := prev
		r.payments[id] = &restored
	})
	return nil
}

// --- In-Memory Listing Repo ---

type inMemoryListingRepo struct {
	mu       sync.RWMutex
	listings map[uuid.UUID]*domain.Listing
}

func newInMemoryListingRepo() *inMemoryListingRepo {
	return &inMemoryListingRepo{listings: make(map[uuid.UUID]*domain.Listing)}
}

func (r *inMemoryListingRepo) put(l *domain.Listing) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *l
	r.listings[l.ID] = &cp
}

func (r *inMemoryListingRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.listings[id]
	if !ok {
		return nil, nil
	}
	cp := *l
	return &cp, nil
}

func (r *inMemoryListingRepo) SetPaidUntil(ctx context.Context, tx pgx.Tx, id uuid.UUID, paidUntil time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.listings[id]
	if !ok {
		return fmt.Errorf("listing not found")
	}
	prev := l.PaidUntil
	l.PaidUntil = &paidUntil
	stageUndo(tx, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if cur, ok := r.listings[id]; ok {
			cur.PaidUntil = prev
		}
	})
	return nil
}

// --- In-Memory Receipt Repo ---

type inMemoryReceiptRepo struct {
	mu       sync.Mutex
	receipts map[string]domain.WebhookReceipt
}

func newInMemoryReceiptRepo() *inMemoryReceiptRepo {
	return &inMemoryReceiptRepo{receipts: make(map[string]domain.WebhookReceipt)}
}

func (r *inMemoryReceiptRepo) Insert(ctx context.Context, tx pgx.Tx, receipt *domain.WebhookReceipt) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.receipts[receipt.EventID]; exists {
		return false, nil
	}
	r.receipts[receipt.EventID] = *receipt
	eventID := receipt.EventID
	stageUndo(tx, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.receipts, eventID)
	})
	return true, nil
}

func (r *inMemoryReceiptRepo) Exists(ctx context.Context, eventID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, exists := r.receipts[eventID]
	return exists, nil
}

func (r *inMemoryReceiptRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.receipts)
}

// --- In-Memory Notification Repo ---

type inMemoryNotificationRepo struct {
	mu            sync.Mutex
	notifications map[uuid.UUID]*domain.OutboundNotification
	attempts      []domain.DeliveryAttempt
}

func newInMemoryNotificationRepo() *inMemoryNotificationRepo {
	return &inMemoryNotificationRepo{notifications: make(map[uuid.UUID]*domain.OutboundNotification)}
}

func (r *inMemoryNotificationRepo) Create(ctx context.Context, tx pgx.Tx, n *domain.OutboundNotification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *n
	r.notifications[n.ID] = &cp
	id := n.ID
	stageUndo(tx, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.notifications, id)
	})
	return nil
}

func (r *inMemoryNotificationRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.OutboundNotification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.notifications[id]
	if !ok {
		return nil, nil
	}
	cp := *n
	return &cp, nil
}

func (r *inMemoryNotificationRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.OutboundNotification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var due []domain.OutboundNotification
	for _, n := range r.notifications {
		if n.Status == domain.NotificationStatusQueued && !n.ScheduledFor.After(now) {
			due = append(due, *n)
			if len(due) == limit {
				break
			}
		}
	}
	return due, nil
}

func (r *inMemoryNotificationRepo) Resolve(ctx context.Context, id uuid.UUID, status domain.NotificationStatus, lastError *string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.notifications[id]
	if !ok || n.Status != domain.NotificationStatusQueued {
		return false, nil
	}
	n.Status = status
	n.LastError = lastError
	n.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (r *inMemoryNotificationRepo) CreateAttempt(ctx context.Context, attempt *domain.DeliveryAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, *attempt)
	return nil
}

func (r *inMemoryNotificationRepo) ListAttempts(ctx context.Context, notificationID uuid.UUID) ([]domain.DeliveryAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.DeliveryAttempt
	for _, a := range r.attempts {
		if a.NotificationID == notificationID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *inMemoryNotificationRepo) all() []domain.OutboundNotification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.OutboundNotification, 0, len(r.notifications))
	for _, n := range r.notifications {
		out = append(out, *n)
	}
	return out
}

// --- In-Memory Template Repo ---

type inMemoryTemplateRepo struct {
	mu        sync.RWMutex
	templates map[string]*domain.NotificationTemplate
}

func newInMemoryTemplateRepo() *inMemoryTemplateRepo {
	return &inMemoryTemplateRepo{templates: make(map[string]*domain.NotificationTemplate)}
}

func (r *inMemoryTemplateRepo) seed(t *domain.NotificationTemplate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *t
	r.templates[t.Key+"/"+string(t.Channel)] = &cp
}

func (r *inMemoryTemplateRepo) GetActive(ctx context.Context, key string, channel domain.Channel) (*domain.NotificationTemplate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.templates[key+"/"+string(channel)]
	if !ok || !t.Active {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

// --- In-Memory Preference Provider ---

type inMemoryPreferenceRepo struct {
	mu    sync.RWMutex
	prefs map[string]bool
}

func newInMemoryPreferenceRepo() *inMemoryPreferenceRepo {
	return &inMemoryPreferenceRepo{prefs: make(map[string]bool)}
}

func prefKey(userID uuid.UUID, category string, channel domain.Channel) string {
	return userID.String() + "/" + category + "/" + string(channel)
}

func (r *inMemoryPreferenceRepo) set(userID uuid.UUID, category string, channel domain.Channel, enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prefs[prefKey(userID, category, channel)] = enabled
}

func (r *inMemoryPreferenceRepo) IsEnabled(ctx context.Context, userID uuid.UUID, category string, channel domain.Channel) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	enabled, ok := r.prefs[prefKey(userID, category, channel)]
	if !ok {
		return true, nil
	}
	return enabled, nil
}

// --- In-Memory User Directory ---

type inMemoryUserDirectory struct {
	mu     sync.RWMutex
	emails map[uuid.UUID]string
}

func newInMemoryUserDirectory() *inMemoryUserDirectory {
	return &inMemoryUserDirectory{emails: make(map[uuid.UUID]string)}
}

func (r *inMemoryUserDirectory) set(userID uuid.UUID, email string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emails[userID] = email
}

func (r *inMemoryUserDirectory) EmailOf(ctx context.Context, userID uuid.UUID) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	email, ok := r.emails[userID]
	if !ok {
		return "", fmt.Errorf("user not found: %s", userID)
	}
	return email, nil
}

// --- Recording Transports ---

type sentMail struct {
	To      string
	Subject string
	Body    string
}

type recordingMailTransport struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (t *recordingMailTransport) Send(ctx context.Context, to, subject, body string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return "", t.err
	}
	t.sent = append(t.sent, sentMail{To: to, Subject: subject, Body: body})
	return "250 ok", nil
}

func (t *recordingMailTransport) all() []sentMail {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]sentMail(nil), t.sent...)
}

type recordingInAppTransport struct {
	mu        sync.Mutex
	delivered []uuid.UUID
}

func (t *recordingInAppTransport) Deliver(ctx context.Context, n *domain.OutboundNotification, subject, body string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.delivered = append(t.delivered, n.ID)
	return fmt.Sprintf("inbox message %s", uuid.New()), nil
}

// --- In-Memory Transactor ---

type inMemoryTransactor struct{}

func newInMemoryTransactor() *inMemoryTransactor {
	return &inMemoryTransactor{}
}

func (t *inMemoryTransactor) Begin(ctx context.Context) (pgx.Tx, error) {
	return &memTx{}, nil
}

// memTx models transaction semantics with an undo log: repos stage a
// compensating action for every write made through the tx, Commit discards
// the log, Rollback replays it in reverse. Writes stay visible mid-tx, which
// keeps the receipt gate race-correct the way the unique constraint does.
type memTx struct {
	noopTx
	mu   sync.Mutex
	undo []func()
	done bool
}

func (t *memTx) onRollback(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.undo = append(t.undo, fn)
}

func (t *memTx) Commit(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.undo = nil
	t.done = true
	return nil
}

func (t *memTx) Rollback(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return nil
	}
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
	t.done = true
	return nil
}

// stageUndo registers a compensating action when the tx supports rollback.
func stageUndo(tx pgx.Tx, fn func()) {
	if m, ok := tx.(*memTx); ok {
		m.onRollback(fn)
	}
}

type noopTx struct{}

func (t *noopTx) Begin(ctx context.Context) (pgx.Tx, error) { return t, nil }
func (t *noopTx) Commit(ctx context.Context) error          { return nil }
func (t *noopTx) Rollback(ctx context.Context) error        { return nil }
func (t *noopTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *noopTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (t *noopTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (t *noopTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *noopTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}
func (t *noopTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (t *noopTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}
func (t *noopTx) Conn() *pgx.Conn { return nil }
