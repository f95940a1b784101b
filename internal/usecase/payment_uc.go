package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"bizbilling/internal/domain"
	"bizbilling/internal/domain/model"
	"bizbilling/internal/domain/ports/adapter"
	"bizbilling/internal/domain/ports/repository"
	"bizbilling/internal/infra/logging"
	"bizbilling/internal/infra/metrics"
)

// Compile-time check
var _ PaymentUseCase = (*paymentUC)(nil)

// Reconciliation sources, used for logs and metrics.
const (
	SourceWebhook = "webhook"
	SourcePoll    = "poll"
	SourceSweep   = "sweep"
)

// PurchaseRequest starts a gateway purchase. Amount is required for PRODUCT and
// PACKAGE items and derived from the catalog for SERVICE items.
type PurchaseRequest struct {
	UserID      string
	PayerEmail  string
	Item        model.Item
	Quantity    int
	Amount      int64
	Currency    string
	Method      string
	Description string
	ReturnURL   string
}

type PurchaseResult struct {
	Payment     *model.Payment
	Order       *model.Order
	RedirectURL string
}

// StatusReport is a normalized gateway status.
type StatusReport struct {
	Status model.PaymentStatus
	Raw    adapter.StatusResult
}

type PaymentUseCase interface {
	// InitiatePurchase creates a PENDING payment and its order, then starts the
	// hosted payment at the gateway.
	InitiatePurchase(ctx context.Context, req PurchaseRequest) (*PurchaseResult, error)
	// CreatePendingPayment inserts a PENDING payment; a reused reference fails with domain.ErrAlreadyExists.
	CreatePendingPayment(ctx context.Context, tx repository.Tx, amount int64, currency, method, reference string) (*model.Payment, error)
	// Reconcile applies a terminal gateway status to the payment with the given
	// reference. It is idempotent and never fails for an unknown reference: it
	// returns a nil payment instead. transitioned is true only for the call that
	// moved the payment out of PENDING.
	Reconcile(ctx context.Context, reference string, status model.PaymentStatus, externalTxnID, source string) (p *model.Payment, transitioned bool, err error)
	// CheckStatus queries the gateway directly and does not touch the ledger.
	CheckStatus(ctx context.Context, pollHandle string) (*StatusReport, error)
	// Poll is the client-driven fallback: CheckStatus followed by Reconcile.
	// An empty userID skips the ownership check.
	Poll(ctx context.Context, userID, reference string) (*model.Payment, error)
	// HandleWebhook processes a gateway push. Errors are logged, never returned,
	// because the gateway must always be acknowledged.
	HandleWebhook(ctx context.Context, form url.Values)
	// SweepStale polls PENDING payments older than the configured age.
	SweepStale(ctx context.Context, now time.Time) (int, error)
	GetPayment(ctx context.Context, userID, reference string) (*model.Payment, *model.Order, error)
}

type PaymentConfig struct {
	Currency       string
	ReturnURL      string
	GatewayTimeout time.Duration
	StaleAfter     time.Duration
	SweepBatch     int
	// PollRate bounds outbound status checks per second across all callers.
	PollRate  float64
	PollBurst int
}

func (c PaymentConfig) withDefaults() PaymentConfig {
	if c.Currency == "" {
		c.Currency = "USD"
	}
	if c.GatewayTimeout <= 0 {
		c.GatewayTimeout = 15 * time.Second
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = 15 * time.Minute
	}
	if c.SweepBatch <= 0 {
		c.SweepBatch = 100
	}
	if c.PollRate <= 0 {
		c.PollRate = 5
	}
	if c.PollBurst <= 0 {
		c.PollBurst = 10
	}
	return c
}

type paymentUC struct {
	payments    repository.PaymentRepository
	orders      repository.OrderRepository
	services    repository.ClientServiceRepository
	defs        repository.ServiceDefinitionRepository
	fulfillment FulfillmentUseCase
	gateway     adapter.PaymentGateway
	tm          repository.TransactionManager
	cfg         PaymentConfig
	limiter     *rate.Limiter
	courier     *courier
	log         *zerolog.Logger
}

func NewPaymentUseCase(
	payments repository.PaymentRepository,
	orders repository.OrderRepository,
	services repository.ClientServiceRepository,
	defs repository.ServiceDefinitionRepository,
	fulfillment FulfillmentUseCase,
	gateway adapter.PaymentGateway,
	tm repository.TransactionManager,
	cfg PaymentConfig,
	delivery Delivery,
	logger *zerolog.Logger,
) *paymentUC {
	cfg = cfg.withDefaults()
	compLog := logger.With().Str("component", "PaymentUseCase").Str("gateway", gateway.Name()).Logger()
	return &paymentUC{
		payments:    payments,
		orders:      orders,
		services:    services,
		defs:        defs,
		fulfillment: fulfillment,
		gateway:     gateway,
		tm:          tm,
		cfg:         cfg,
		limiter:     rate.NewLimiter(rate.Limit(cfg.PollRate), cfg.PollBurst),
		courier:     newCourier(delivery, &compLog),
		log:         &compLog,
	}
}

// NewReference returns a fresh, time-sortable merchant reference.
func NewReference() string {
	return "PAY-" + ulid.Make().String()
}

func (u *paymentUC) CreatePendingPayment(ctx context.Context, tx repository.Tx, amount int64, currency, method, reference string) (*model.Payment, error) {
	p, err := model.NewPendingPayment(uuid.NewString(), amount, currency, method, reference, time.Now())
	if err != nil {
		return nil, err
	}
	if err := u.payments.Save(ctx, tx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (u *paymentUC) InitiatePurchase(ctx context.Context, req PurchaseRequest) (*PurchaseResult, error) {
	log := logging.With(ctx, u.log)
	defer logging.TraceDuration(log, "PaymentUC.InitiatePurchase")()

	if req.UserID == "" {
		return nil, domain.ErrInvalidArgument
	}
	if err := req.Item.Validate(); err != nil {
		return nil, err
	}
	if req.Quantity <= 0 {
		req.Quantity = 1
	}
	if req.Currency == "" {
		req.Currency = u.cfg.Currency
	}
	if req.ReturnURL == "" {
		req.ReturnURL = u.cfg.ReturnURL
	}

	settles, err := u.priceItem(ctx, &req)
	if err != nil {
		return nil, err
	}

	reference := NewReference()
	var (
		payment *model.Payment
		order   *model.Order
	)
	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		p, err := u.CreatePendingPayment(ctx, tx, req.Amount, req.Currency, req.Method, reference)
		if err != nil {
			return err
		}
		o, err := model.NewOrder(uuid.NewString(), p, req.UserID, req.Item, req.Quantity)
		if err != nil {
			return err
		}
		o.Settles = settles
		if err := u.orders.Save(ctx, tx, o); err != nil {
			return err
		}
		payment, order = p, o
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}
	metrics.IncPayment("initiated")

	gctx, cancel := context.WithTimeout(ctx, u.cfg.GatewayTimeout)
	defer cancel()
	start := time.Now()
	res, gerr := u.gateway.Initiate(gctx, adapter.InitiateRequest{
		Reference:   reference,
		PayerEmail:  req.PayerEmail,
		Amount:      req.Amount,
		Currency:    payment.Currency,
		Method:      req.Method,
		Description: req.Description,
		ReturnURL:   req.ReturnURL,
	})
	if gerr == nil && (res == nil || res.RedirectURL == "") {
		gerr = fmt.Errorf("empty redirect url: %w", domain.ErrGatewayRejected)
	}
	if gerr != nil {
		gerr = classifyGatewayError(gctx, gerr)
		metrics.ObserveGatewayCall(u.gateway.Name(), "initiate", gatewayResult(gerr), time.Since(start))
		log.Warn().Err(gerr).Str("reference", reference).Int64("amount", req.Amount).Msg("gateway initiation failed")
		if ferr := u.failInitiation(ctx, payment, order, gerr); ferr != nil {
			log.Error().Err(ferr).Str("reference", reference).Msg("could not record initiation failure")
		}
		return &PurchaseResult{Payment: payment, Order: order}, gerr
	}
	metrics.ObserveGatewayCall(u.gateway.Name(), "initiate", "ok", time.Since(start))

	if err := u.payments.SetPollHandle(ctx, repository.NoTX, payment.ID, res.PollHandle); err != nil {
		// The webhook still reconciles; only the poll fallback is lost.
		log.Error().Err(err).Str("reference", reference).Msg("failed to store poll handle")
	}
	payment.PollHandle = res.PollHandle

	log.Info().
		Str("reference", reference).
		Str("payment_id", payment.ID).
		Str("item_kind", string(req.Item.Kind)).
		Int64("amount", req.Amount).
		Str("payer", logging.Redact(req.PayerEmail, false)).
		Msg("purchase initiated")
	return &PurchaseResult{Payment: payment, Order: order, RedirectURL: res.RedirectURL}, nil
}

// priceItem fills req.Amount. SERVICE items are always priced from the catalog
// and the returned track is the one the payment will settle.
func (u *paymentUC) priceItem(ctx context.Context, req *PurchaseRequest) (model.CashTrackKind, error) {
	var settles model.CashTrackKind
	switch req.Item.Kind {
	case model.ItemService:
		cs, err := u.services.FindByID(ctx, repository.NoTX, req.Item.ID)
		if err != nil {
			return "", err
		}
		if cs.UserID != req.UserID {
			return "", domain.ErrForbidden
		}
		if cs.Status == model.ServiceStatusCancelled {
			return "", &domain.TransitionError{Op: "purchase", From: string(cs.Status), Msg: "cannot pay for a cancelled service"}
		}
		def, err := u.defs.FindByID(ctx, repository.NoTX, cs.DefinitionID)
		if err != nil {
			return "", err
		}
		if !def.Active && !cs.OneOffPricePaid {
			return "", domain.ErrInactiveDefinition
		}
		req.Amount, settles = cs.AmountDue(def)
		req.Quantity = 1
		if def.Currency != "" {
			req.Currency = def.Currency
		}
		if req.Description == "" {
			req.Description = def.Name
		}
	case model.ItemProduct, model.ItemPackage:
		// Priced by the catalog collaborator.
	}
	if req.Amount <= 0 {
		return "", fmt.Errorf("amount must be positive: %w", domain.ErrInvalidArgument)
	}
	return settles, nil
}

func (u *paymentUC) failInitiation(ctx context.Context, p *model.Payment, o *model.Order, cause error) error {
	return u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		p.MarkFailed(cause.Error(), time.Now())
		if _, err := u.payments.UpdateStatusIfPending(ctx, tx, p); err != nil {
			return err
		}
		o.MirrorPayment(model.PaymentStatusFailed, time.Now())
		if err := u.orders.UpdateStatus(ctx, tx, o.ID, model.OrderStatusFailed); err != nil {
			return err
		}
		metrics.IncPayment(string(model.PaymentStatusFailed))
		return nil
	})
}

func (u *paymentUC) Reconcile(ctx context.Context, reference string, status model.PaymentStatus, externalTxnID, source string) (*model.Payment, bool, error) {
	log := logging.With(ctx, u.log).With().Str("reference", reference).Str("source", source).Logger()

	var (
		payment      *model.Payment
		transitioned bool
		fulfilled    *Fulfillment
	)
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		payment, transitioned, fulfilled = nil, false, nil

		p, err := u.payments.FindByReference(ctx, tx, reference)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil
			}
			return err
		}
		payment = p
		if p.Status.Terminal() || !status.Terminal() {
			return nil
		}

		now := time.Now()
		if status == model.PaymentStatusPaid {
			p.MarkPaid(externalTxnID, now)
		} else {
			p.MarkFailed("gateway reported failure", now)
		}
		ok, err := u.payments.UpdateStatusIfPending(ctx, tx, p)
		if err != nil {
			return err
		}
		if !ok {
			// Lost a race despite the row lock; report the stored state.
			payment, err = u.payments.FindByReference(ctx, tx, reference)
			return err
		}
		transitioned = true

		if status == model.PaymentStatusFailed {
			o, err := u.orders.FindByPaymentID(ctx, tx, p.ID)
			if errors.Is(err, domain.ErrNotFound) {
				log.Error().Str("payment_id", p.ID).Msg("failed payment has no order")
				return nil
			}
			if err != nil {
				return err
			}
			return u.orders.UpdateStatus(ctx, tx, o.ID, model.OrderStatusFailed)
		}

		fulfilled, err = u.fulfillment.Fulfill(ctx, tx, p)
		return err
	})
	if err != nil {
		metrics.IncReconciliation(source, "error")
		log.Error().Err(err).Msg("reconciliation failed")
		return nil, false, fmt.Errorf("reconcile %s: %w", reference, err)
	}

	switch {
	case payment == nil:
		metrics.IncReconciliation(source, "unmatched")
		log.Warn().Str("status", string(status)).Msg("gateway report for unknown reference dropped")
		return nil, false, nil
	case !transitioned && status.Terminal():
		metrics.IncReconciliation(source, "duplicate")
		log.Debug().Str("stored_status", string(payment.Status)).Msg("payment already terminal; report ignored")
		return payment, false, nil
	case !transitioned:
		metrics.IncReconciliation(source, "pending")
		return payment, false, nil
	}

	metrics.IncReconciliation(source, string(payment.Status))
	metrics.IncPayment(string(payment.Status))
	if payment.Status == model.PaymentStatusPaid {
		metrics.AddPaymentRevenue(payment.Currency, payment.Amount)
	}
	log.Info().
		Str("payment_id", payment.ID).
		Str("status", string(payment.Status)).
		Int64("amount", payment.Amount).
		Msg("payment reconciled")

	u.fulfillment.Deliver(ctx, fulfilled)
	return payment, true, nil
}

func (u *paymentUC) CheckStatus(ctx context.Context, pollHandle string) (*StatusReport, error) {
	if pollHandle == "" {
		return nil, domain.ErrInvalidArgument
	}
	if err := u.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("status check throttled: %w", domain.ErrGatewayUnavailable)
	}

	gctx, cancel := context.WithTimeout(ctx, u.cfg.GatewayTimeout)
	defer cancel()
	start := time.Now()
	res, err := u.gateway.CheckStatus(gctx, pollHandle)
	if err != nil {
		err = classifyGatewayError(gctx, err)
		metrics.ObserveGatewayCall(u.gateway.Name(), "status", gatewayResult(err), time.Since(start))
		return nil, err
	}
	metrics.ObserveGatewayCall(u.gateway.Name(), "status", "ok", time.Since(start))
	return &StatusReport{Status: model.MapGatewayStatus(res.Status), Raw: *res}, nil
}

func (u *paymentUC) Poll(ctx context.Context, userID, reference string) (*model.Payment, error) {
	p, _, err := u.GetPayment(ctx, userID, reference)
	if err != nil {
		return nil, err
	}
	return u.pollPayment(ctx, p, SourcePoll)
}

func (u *paymentUC) pollPayment(ctx context.Context, p *model.Payment, source string) (*model.Payment, error) {
	if p.Status.Terminal() || p.PollHandle == "" {
		return p, nil
	}
	report, err := u.CheckStatus(ctx, p.PollHandle)
	if err != nil {
		return p, err
	}
	if !u.reportMatches(ctx, p, report.Raw.Reference, report.Raw.Amount, report.Status, source) {
		return p, nil
	}
	updated, _, err := u.Reconcile(ctx, p.Reference, report.Status, report.Raw.ExternalTxnID, source)
	if err != nil {
		return p, err
	}
	if updated == nil {
		return p, nil
	}
	return updated, nil
}

// reportMatches guards against a gateway report that names another reference
// or a different amount than the one we asked for.
func (u *paymentUC) reportMatches(ctx context.Context, p *model.Payment, reference string, amount int64, status model.PaymentStatus, source string) bool {
	if reference != "" && !strings.EqualFold(reference, p.Reference) {
		u.log.Error().Str("reference", p.Reference).Str("reported_reference", reference).Str("source", source).
			Msg("gateway status names a different reference; ignored")
		return false
	}
	if status == model.PaymentStatusPaid && amount != 0 && amount != p.Amount {
		u.log.Error().Str("reference", p.Reference).Int64("expected", p.Amount).Int64("reported", amount).Str("source", source).
			Msg("gateway reported a different paid amount; left pending for review")
		u.courier.alert(ctx, fmt.Sprintf("Payment %s reported paid with amount %s, expected %s. Left pending.",
			p.Reference, model.FormatMinor(amount), model.FormatMinor(p.Amount)))
		return false
	}
	return true
}

func (u *paymentUC) HandleWebhook(ctx context.Context, form url.Values) {
	log := logging.With(ctx, u.log)

	payload, err := u.gateway.ParseWebhook(form)
	if err != nil {
		result := "bad_payload"
		if errors.Is(err, domain.ErrInvalidSignature) {
			result = "bad_signature"
		}
		metrics.IncWebhook(result)
		log.Warn().Err(err).Msg("webhook rejected")
		return
	}

	p, err := u.payments.FindByReference(ctx, repository.NoTX, payload.Reference)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			metrics.IncWebhook("ok")
			metrics.IncReconciliation(SourceWebhook, "unmatched")
			log.Warn().Str("reference", payload.Reference).Msg("webhook for unknown reference dropped")
			return
		}
		metrics.IncWebhook("error")
		log.Error().Err(err).Str("reference", payload.Reference).Msg("webhook lookup failed")
		return
	}

	if payload.Status == "" {
		// No status pushed: ask the gateway ourselves.
		if payload.PollHandle != "" && p.PollHandle == "" {
			p.PollHandle = payload.PollHandle
		}
		if _, err := u.pollPayment(ctx, p, SourceWebhook); err != nil {
			metrics.IncWebhook("error")
			log.Warn().Err(err).Str("reference", p.Reference).Msg("webhook status lookup failed")
			return
		}
		metrics.IncWebhook("ok")
		return
	}

	status := model.MapGatewayStatus(payload.Status)
	if !u.reportMatches(ctx, p, payload.Reference, payload.Amount, status, SourceWebhook) {
		metrics.IncWebhook("ok")
		return
	}
	if _, _, err := u.Reconcile(ctx, p.Reference, status, payload.ExternalTxnID, SourceWebhook); err != nil {
		metrics.IncWebhook("error")
		return
	}
	metrics.IncWebhook("ok")
}

func (u *paymentUC) SweepStale(ctx context.Context, now time.Time) (int, error) {
	pending, err := u.payments.ListPendingOlderThan(ctx, repository.NoTX, now.Add(-u.cfg.StaleAfter), u.cfg.SweepBatch)
	if err != nil {
		return 0, fmt.Errorf("list stale payments: %w", err)
	}
	settled := 0
	for _, p := range pending {
		if ctx.Err() != nil {
			return settled, ctx.Err()
		}
		updated, err := u.pollPayment(ctx, p, SourceSweep)
		if err != nil {
			metrics.IncJobItem("payment_sweep", "failed")
			u.log.Warn().Err(err).Str("reference", p.Reference).Msg("stale payment check failed")
			continue
		}
		if updated.Status.Terminal() {
			settled++
			metrics.IncJobItem("payment_sweep", "ok")
		} else {
			metrics.IncJobItem("payment_sweep", "skipped")
		}
	}
	if len(pending) > 0 {
		u.log.Info().Int("scanned", len(pending)).Int("settled", settled).Msg("stale payment sweep finished")
	}
	return settled, nil
}

func (u *paymentUC) GetPayment(ctx context.Context, userID, reference string) (*model.Payment, *model.Order, error) {
	p, err := u.payments.FindByReference(ctx, repository.NoTX, reference)
	if err != nil {
		return nil, nil, err
	}
	o, err := u.orders.FindByPaymentID(ctx, repository.NoTX, p.ID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, nil, err
	}
	if userID != "" && (o == nil || o.UserID != userID) {
		return nil, nil, domain.ErrNotFound
	}
	return p, o, nil
}

// classifyGatewayError maps deadline and cancellation to a transient failure.
func classifyGatewayError(ctx context.Context, err error) error {
	if errors.Is(err, domain.ErrGatewayRejected) || errors.Is(err, domain.ErrGatewayUnavailable) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("gateway timed out: %w", domain.ErrGatewayUnavailable)
	}
	return fmt.Errorf("%v: %w", err, domain.ErrGatewayUnavailable)
}

func gatewayResult(err error) string {
	if errors.Is(err, domain.ErrGatewayRejected) {
		return "rejected"
	}
	return "unavailable"
}
