//go:build !integration

package usecase_test

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"sort"
	"sync"
	"testing/fstest"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"bizbilling/internal/domain"
	"bizbilling/internal/domain/model"
	"bizbilling/internal/domain/ports/adapter"
	"bizbilling/internal/domain/ports/repository"
	"bizbilling/internal/infra/i18n"
	"bizbilling/internal/usecase"
)

// -----------------------------
// Payments
// -----------------------------

type MockPaymentRepo struct {
	mu    sync.Mutex
	data  map[string]*model.Payment // by id
	byRef map[string]string         // reference -> id

	SaveFunc                  func(ctx context.Context, tx repository.Tx, p *model.Payment) error
	UpdateStatusIfPendingFunc func(ctx context.Context, tx repository.Tx, p *model.Payment) (bool, error)
}

var _ repository.PaymentRepository = (*MockPaymentRepo)(nil)

func NewMockPaymentRepo() *MockPaymentRepo {
	return &MockPaymentRepo{data: map[string]*model.Payment{}, byRef: map[string]string{}}
}

func (r *MockPaymentRepo) Save(ctx context.Context, tx repository.Tx, p *model.Payment) error {
	if r.SaveFunc != nil {
		return r.SaveFunc(ctx, tx, p)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byRef[p.Reference]; ok {
		return domain.ErrAlreadyExists
	}
	cp := *p
	r.data[p.ID] = &cp
	r.byRef[p.Reference] = p.ID
	return nil
}

func (r *MockPaymentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.data[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *MockPaymentRepo) FindByReference(ctx context.Context, tx repository.Tx, reference string) (*model.Payment, error) {
	r.mu.Lock()
	id, ok := r.byRef[reference]
	r.mu.Unlock()
	if !ok {
		return nil, domain.ErrNotFound
	}
	return r.FindByID(ctx, tx, id)
}

func (r *MockPaymentRepo) SetPollHandle(ctx context.Context, tx repository.Tx, id, pollHandle string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.data[id]
	if !ok {
		return domain.ErrNotFound
	}
	p.PollHandle = pollHandle
	return nil
}

func (r *MockPaymentRepo) UpdateStatusIfPending(ctx context.Context, tx repository.Tx, p *model.Payment) (bool, error) {
	if r.UpdateStatusIfPendingFunc != nil {
		return r.UpdateStatusIfPendingFunc(ctx, tx, p)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.data[p.ID]
	if !ok || cur.Status != model.PaymentStatusPending {
		return false, nil
	}
	cur.Status = p.Status
	cur.ExternalTxnID = p.ExternalTxnID
	cur.ErrorMessage = p.ErrorMessage
	cur.CompletedAt = p.CompletedAt
	cur.FailedAt = p.FailedAt
	cur.UpdatedAt = p.UpdatedAt
	return true, nil
}

func (r *MockPaymentRepo) ListPendingOlderThan(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Payment
	for _, p := range r.data {
		if p.Status == model.PaymentStatusPending && p.CreatedAt.Before(olderThan) {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// -----------------------------
// Orders
// -----------------------------

type MockOrderRepo struct {
	mu   sync.Mutex
	data map[string]*model.Order // by id

	UpdateStatusCalls int
}

var _ repository.OrderRepository = (*MockOrderRepo)(nil)

func NewMockOrderRepo() *MockOrderRepo { return &MockOrderRepo{data: map[string]*model.Order{}} }

func (r *MockOrderRepo) Save(ctx context.Context, tx repository.Tx, o *model.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *o
	r.data[o.ID] = &cp
	return nil
}

func (r *MockOrderRepo) find(pred func(o *model.Order) bool) (*model.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.data {
		if pred(o) {
			cp := *o
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *MockOrderRepo) FindByPaymentID(ctx context.Context, tx repository.Tx, paymentID string) (*model.Order, error) {
	return r.find(func(o *model.Order) bool { return o.PaymentID == paymentID })
}

func (r *MockOrderRepo) FindByReference(ctx context.Context, tx repository.Tx, reference string) (*model.Order, error) {
	return r.find(func(o *model.Order) bool { return o.Reference == reference })
}

func (r *MockOrderRepo) UpdateStatus(ctx context.Context, tx repository.Tx, id string, status model.OrderStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.data[id]
	if !ok {
		return domain.ErrNotFound
	}
	o.Status = status
	r.UpdateStatusCalls++
	return nil
}

// -----------------------------
// Catalog
// -----------------------------

type MockServiceDefinitionRepo struct {
	mu   sync.Mutex
	data map[string]*model.ServiceDefinition
}

var _ repository.ServiceDefinitionRepository = (*MockServiceDefinitionRepo)(nil)

func NewMockServiceDefinitionRepo() *MockServiceDefinitionRepo {
	return &MockServiceDefinitionRepo{data: map[string]*model.ServiceDefinition{}}
}

func (r *MockServiceDefinitionRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.ServiceDefinition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.data[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (r *MockServiceDefinitionRepo) Save(ctx context.Context, tx repository.Tx, d *model.ServiceDefinition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *d
	r.data[d.ID] = &cp
	return nil
}

// -----------------------------
// Client services
// -----------------------------

type MockClientServiceRepo struct {
	mu   sync.Mutex
	data map[string]*model.ClientService

	SaveFunc  func(ctx context.Context, tx repository.Tx, cs *model.ClientService) error
	SaveCalls int
}

var _ repository.ClientServiceRepository = (*MockClientServiceRepo)(nil)

func NewMockClientServiceRepo() *MockClientServiceRepo {
	return &MockClientServiceRepo{data: map[string]*model.ClientService{}}
}

func cloneCS(cs *model.ClientService) *model.ClientService {
	cp := *cs
	if cs.NextBillingDate != nil {
		d := *cs.NextBillingDate
		cp.NextBillingDate = &d
	}
	return &cp
}

// Save upserts on (user, definition) like the Postgres repository.
func (r *MockClientServiceRepo) Save(ctx context.Context, tx repository.Tx, cs *model.ClientService) error {
	if r.SaveFunc != nil {
		if err := r.SaveFunc(ctx, tx, cs); err != nil {
			return err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.SaveCalls++
	for id, cur := range r.data {
		if cur.UserID == cs.UserID && cur.DefinitionID == cs.DefinitionID {
			cs.ID = id
		}
	}
	r.data[cs.ID] = cloneCS(cs)
	return nil
}

func (r *MockClientServiceRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.ClientService, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cs, ok := r.data[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneCS(cs), nil
}

func (r *MockClientServiceRepo) FindByUserAndDefinition(ctx context.Context, tx repository.Tx, userID, definitionID string) (*model.ClientService, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, cs := range r.data {
		if cs.UserID == userID && cs.DefinitionID == definitionID {
			return cloneCS(cs), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *MockClientServiceRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string) ([]*model.ClientService, error) {
	return r.list(func(cs *model.ClientService) bool { return cs.UserID == userID }), nil
}

func (r *MockClientServiceRepo) ListDue(ctx context.Context, tx repository.Tx, before time.Time) ([]*model.ClientService, error) {
	return r.list(func(cs *model.ClientService) bool { return cs.DueBy(before) }), nil
}

func (r *MockClientServiceRepo) ListUpcoming(ctx context.Context, tx repository.Tx, from, to time.Time) ([]*model.ClientService, error) {
	return r.list(func(cs *model.ClientService) bool {
		return cs.Billable() && !cs.NextBillingDate.Before(from) && cs.NextBillingDate.Before(to)
	}), nil
}

func (r *MockClientServiceRepo) list(pred func(cs *model.ClientService) bool) []*model.ClientService {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.ClientService
	for _, cs := range r.data {
		if pred(cs) {
			out = append(out, cloneCS(cs))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// -----------------------------
// Maintenance
// -----------------------------

type MockMaintenanceRepo struct {
	mu   sync.Mutex
	data map[string]*model.Maintenance
}

var _ repository.MaintenanceRepository = (*MockMaintenanceRepo)(nil)

func NewMockMaintenanceRepo() *MockMaintenanceRepo {
	return &MockMaintenanceRepo{data: map[string]*model.Maintenance{}}
}

func cloneM(m *model.Maintenance) *model.Maintenance {
	cp := *m
	if m.NextBillingDate != nil {
		d := *m.NextBillingDate
		cp.NextBillingDate = &d
	}
	return &cp
}

func (r *MockMaintenanceRepo) Save(ctx context.Context, tx repository.Tx, m *model.Maintenance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[m.ID] = cloneM(m)
	return nil
}

func (r *MockMaintenanceRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Maintenance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.data[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneM(m), nil
}

func (r *MockMaintenanceRepo) ListDue(ctx context.Context, tx repository.Tx, before time.Time) ([]*model.Maintenance, error) {
	return r.list(func(m *model.Maintenance) bool { return m.DueBy(before) }), nil
}

func (r *MockMaintenanceRepo) ListUpcoming(ctx context.Context, tx repository.Tx, from, to time.Time) ([]*model.Maintenance, error) {
	return r.list(func(m *model.Maintenance) bool {
		return m.Billable() && !m.NextBillingDate.Before(from) && m.NextBillingDate.Before(to)
	}), nil
}

func (r *MockMaintenanceRepo) list(pred func(m *model.Maintenance) bool) []*model.Maintenance {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Maintenance
	for _, m := range r.data {
		if pred(m) {
			out = append(out, cloneM(m))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// -----------------------------
// Notification log
// -----------------------------

type MockNotificationLogRepo struct {
	mu   sync.Mutex
	sent map[string]bool
}

var _ repository.NotificationLogRepository = (*MockNotificationLogRepo)(nil)

func NewMockNotificationLogRepo() *MockNotificationLogRepo {
	return &MockNotificationLogRepo{sent: map[string]bool{}}
}

func logKey(subjectID, kind string, cycle time.Time) string {
	return fmt.Sprintf("%s|%s|%s", subjectID, kind, cycle.UTC().Format("2006-01-02"))
}

func (r *MockNotificationLogRepo) Save(ctx context.Context, tx repository.Tx, subjectID, userID, kind string, cycle time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent[logKey(subjectID, kind, cycle)] = true
	return nil
}

func (r *MockNotificationLogRepo) Exists(ctx context.Context, tx repository.Tx, subjectID, kind string, cycle time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sent[logKey(subjectID, kind, cycle)], nil
}

// -----------------------------
// Users
// -----------------------------

type MockUserRepo struct {
	mu   sync.Mutex
	data map[string]*model.User
}

var _ repository.UserRepository = (*MockUserRepo)(nil)

func NewMockUserRepo() *MockUserRepo { return &MockUserRepo{data: map[string]*model.User{}} }

func (r *MockUserRepo) Save(ctx context.Context, tx repository.Tx, u *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *u
	r.data[u.ID] = &cp
	return nil
}

func (r *MockUserRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.data[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

// -----------------------------
// Transactions
// -----------------------------

// MockTxManager serializes transactions, which stands in for the row locks the
// Postgres repositories take inside a transaction.
type MockTxManager struct {
	mu         sync.Mutex
	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
}

func NewMockTxManager() *MockTxManager {
	return &MockTxManager{}
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(ctx, repository.NoTX)
}

// -----------------------------
// Gateway
// -----------------------------

type MockPaymentGateway struct {
	mu sync.Mutex

	InitiateFunc     func(ctx context.Context, req adapter.InitiateRequest) (*adapter.InitiateResult, error)
	CheckStatusFunc  func(ctx context.Context, pollHandle string) (*adapter.StatusResult, error)
	ParseWebhookFunc func(form url.Values) (*adapter.WebhookPayload, error)

	Initiated    []adapter.InitiateRequest
	StatusChecks int
}

var _ adapter.PaymentGateway = (*MockPaymentGateway)(nil)

func (g *MockPaymentGateway) Name() string { return "mock" }

func (g *MockPaymentGateway) Initiate(ctx context.Context, req adapter.InitiateRequest) (*adapter.InitiateResult, error) {
	g.mu.Lock()
	g.Initiated = append(g.Initiated, req)
	g.mu.Unlock()
	if g.InitiateFunc != nil {
		return g.InitiateFunc(ctx, req)
	}
	return &adapter.InitiateResult{
		RedirectURL: "https://pay.example/checkout/" + req.Reference,
		PollHandle:  "https://pay.example/poll/" + req.Reference,
	}, nil
}

func (g *MockPaymentGateway) CheckStatus(ctx context.Context, pollHandle string) (*adapter.StatusResult, error) {
	g.mu.Lock()
	g.StatusChecks++
	g.mu.Unlock()
	if g.CheckStatusFunc != nil {
		return g.CheckStatusFunc(ctx, pollHandle)
	}
	return &adapter.StatusResult{Status: "Created"}, nil
}

// ParseWebhook defaults to trusting the form as-is.
func (g *MockPaymentGateway) ParseWebhook(form url.Values) (*adapter.WebhookPayload, error) {
	if g.ParseWebhookFunc != nil {
		return g.ParseWebhookFunc(form)
	}
	if form.Get("reference") == "" {
		return nil, domain.ErrInvalidArgument
	}
	amount, _ := model.ParseMinor(form.Get("amount"))
	return &adapter.WebhookPayload{
		Reference:     form.Get("reference"),
		ExternalTxnID: form.Get("paynowreference"),
		Amount:        amount,
		Status:        form.Get("status"),
		PollHandle:    form.Get("pollurl"),
	}, nil
}

// -----------------------------
// Delivery
// -----------------------------

type sentNotification struct {
	UserID  string
	Type    model.NotificationType
	Title   string
	Message string
}

type MockNotifier struct {
	mu         sync.Mutex
	Sent       []sentNotification
	NotifyFunc func(ctx context.Context, userID string, typ model.NotificationType, title, message string) error
}

var _ adapter.Notifier = (*MockNotifier)(nil)

func (n *MockNotifier) Notify(ctx context.Context, userID string, typ model.NotificationType, title, message string) error {
	if n.NotifyFunc != nil {
		if err := n.NotifyFunc(ctx, userID, typ, title, message); err != nil {
			return err
		}
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Sent = append(n.Sent, sentNotification{UserID: userID, Type: typ, Title: title, Message: message})
	return nil
}

func (n *MockNotifier) Count(typ model.NotificationType) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, s := range n.Sent {
		if s.Type == typ {
			c++
		}
	}
	return c
}

type sentEmail struct{ To, Subject, HTML, Text string }

type MockMailer struct {
	mu            sync.Mutex
	Sent          []sentEmail
	SendEmailFunc func(ctx context.Context, to, subject, html, text string) error
}

var _ adapter.EmailSender = (*MockMailer)(nil)

func (m *MockMailer) SendEmail(ctx context.Context, to, subject, html, text string) error {
	if m.SendEmailFunc != nil {
		if err := m.SendEmailFunc(ctx, to, subject, html, text); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, sentEmail{To: to, Subject: subject, HTML: html, Text: text})
	return nil
}

func (m *MockMailer) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Sent)
}

type MockAlerter struct {
	mu     sync.Mutex
	Alerts []string
}

var _ adapter.OperatorAlerter = (*MockAlerter)(nil)

func (a *MockAlerter) Alert(ctx context.Context, text string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Alerts = append(a.Alerts, text)
	return nil
}

func (a *MockAlerter) Count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.Alerts)
}

// -----------------------------
// Utilities
// -----------------------------

// newTestLogger creates a silent zerolog.Logger for use in tests.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

func newTestTranslator() *i18n.Translator {
	testFS := fstest.MapFS{
		"locales/en.yaml": {Data: []byte(`
receipt_title: "Payment received"
receipt_message: "We received %s for order %s."
receipt_email_subject: "Receipt %s"
receipt_email_body: "Hello %s, we received %s (ref %s)."
fulfilled_title: "Purchase ready"
fulfilled_message: "%s %s fulfilled"
payment_due_title: "Payment due"
payment_due_message: "%s due for %s, next %s"
payment_due_email_subject: "Payment due: %s"
payment_due_email_body: "Hello %s, %s for %s was due %s, next %s"
reminder_title: "Upcoming payment"
reminder_message: "%s will be billed %s on %s"
reminder_email_subject: "Upcoming payment for %s"
reminder_email_body: "Hello %s, %s will be billed %s on %s"
alert_provisioning_gap: "gap %s %s %s %s: %s"
alert_job_failed: "job %s failed %d of %d"
`)},
	}
	tr, err := i18n.NewTranslator(testFS, "en")
	if err != nil {
		panic(err)
	}
	return tr
}

// testEnv wires every use case over in-memory collaborators.
type testEnv struct {
	payments     *MockPaymentRepo
	orders       *MockOrderRepo
	defs         *MockServiceDefinitionRepo
	services     *MockClientServiceRepo
	maintenances *MockMaintenanceRepo
	noticeLog    *MockNotificationLogRepo
	users        *MockUserRepo
	tm           *MockTxManager
	gateway      *MockPaymentGateway
	notifier     *MockNotifier
	mailer       *MockMailer
	alerter      *MockAlerter

	fulfillment usecase.FulfillmentUseCase
	payment     usecase.PaymentUseCase
	clientSvc   usecase.ClientServiceUseCase
	maintenance usecase.MaintenanceUseCase
}

func newTestEnv() *testEnv {
	e := &testEnv{
		payments:     NewMockPaymentRepo(),
		orders:       NewMockOrderRepo(),
		defs:         NewMockServiceDefinitionRepo(),
		services:     NewMockClientServiceRepo(),
		maintenances: NewMockMaintenanceRepo(),
		noticeLog:    NewMockNotificationLogRepo(),
		users:        NewMockUserRepo(),
		tm:           NewMockTxManager(),
		gateway:      &MockPaymentGateway{},
		notifier:     &MockNotifier{},
		mailer:       &MockMailer{},
		alerter:      &MockAlerter{},
	}
	logger := newTestLogger()
	e.fulfillment = usecase.NewFulfillmentUseCase(e.orders, e.services, e.defs, e.delivery(), logger)
	e.payment = usecase.NewPaymentUseCase(e.payments, e.orders, e.services, e.defs, e.fulfillment, e.gateway, e.tm,
		usecase.PaymentConfig{Currency: "USD", GatewayTimeout: time.Second, PollRate: 1000, PollBurst: 1000}, e.delivery(), logger)
	e.clientSvc = usecase.NewClientServiceUseCase(e.services, e.defs, e.tm, logger)
	e.maintenance = usecase.NewMaintenanceUseCase(e.maintenances, e.tm, "USD", logger)

	ctx := context.Background()
	_ = e.users.Save(ctx, nil, &model.User{ID: "user-1", Email: "client@example.com", FullName: "Client One", Role: model.RoleClient})
	_ = e.defs.Save(ctx, nil, &model.ServiceDefinition{
		ID: "def-web", Name: "Website hosting", OneOffPrice: 1500, RecurringPrice: 500,
		BillingCycleDays: 30, Currency: "USD", Active: true,
	})
	return e
}

func (e *testEnv) delivery() usecase.Delivery {
	return usecase.Delivery{
		Notifier: e.notifier,
		Mailer:   e.mailer,
		Alerter:  e.alerter,
		Users:    e.users,
		Text:     newTestTranslator(),
	}
}

func (e *testEnv) billing(cfg usecase.BillingConfig) usecase.BillingUseCase {
	return usecase.NewBillingUseCase(e.services, e.maintenances, e.defs, e.noticeLog, e.tm, cfg, e.delivery(), newTestLogger())
}

// provision creates an ACTIVE (or cash-pending) client service for user-1.
func (e *testEnv) provision(spec model.ProvisionSpec) *model.ClientService {
	if spec.UserID == "" {
		spec.UserID = "user-1"
	}
	if spec.DefinitionID == "" {
		spec.DefinitionID = "def-web"
	}
	if spec.Units == 0 {
		spec.Units = 1
	}
	cs, err := e.clientSvc.Provision(context.Background(), spec)
	if err != nil {
		panic(err)
	}
	return cs
}
