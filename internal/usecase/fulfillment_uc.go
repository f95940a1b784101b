package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"bizbilling/internal/domain"
	"bizbilling/internal/domain/model"
	"bizbilling/internal/domain/ports/repository"
	"bizbilling/internal/infra/metrics"
)

var _ FulfillmentUseCase = (*fulfillmentUC)(nil)

// Fulfillment is the outcome of provisioning one paid order. Gap is set when the
// money was received but the item could not be provisioned.
type Fulfillment struct {
	Payment *model.Payment
	Order   *model.Order
	Gap     error
}

type FulfillmentUseCase interface {
	// Fulfill completes the order bound to a freshly PAID payment and provisions
	// its item inside tx. Business failures are returned as Fulfillment.Gap and
	// leave the order COMPLETED; storage failures are returned as errors so the
	// whole reconciliation rolls back.
	Fulfill(ctx context.Context, tx repository.Tx, p *model.Payment) (*Fulfillment, error)
	// Deliver sends the receipt and any follow-up after the transaction
	// committed. It never fails.
	Deliver(ctx context.Context, f *Fulfillment)
}

type fulfillmentUC struct {
	orders   repository.OrderRepository
	services repository.ClientServiceRepository
	defs     repository.ServiceDefinitionRepository
	courier  *courier
	log      *zerolog.Logger
}

func NewFulfillmentUseCase(
	orders repository.OrderRepository,
	services repository.ClientServiceRepository,
	defs repository.ServiceDefinitionRepository,
	delivery Delivery,
	logger *zerolog.Logger,
) *fulfillmentUC {
	compLog := logger.With().Str("component", "FulfillmentUseCase").Logger()
	return &fulfillmentUC{
		orders:   orders,
		services: services,
		defs:     defs,
		courier:  newCourier(delivery, &compLog),
		log:      &compLog,
	}
}

func (u *fulfillmentUC) Fulfill(ctx context.Context, tx repository.Tx, p *model.Payment) (*Fulfillment, error) {
	order, err := u.orders.FindByPaymentID(ctx, tx, p.ID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			metrics.IncFulfillment("unknown", "missing_order")
			u.log.Error().Str("payment_id", p.ID).Str("reference", p.Reference).Msg("paid payment has no order; skipping fulfillment")
			return nil, nil
		}
		return nil, fmt.Errorf("find order for payment %s: %w", p.ID, err)
	}
	if order.Status != model.OrderStatusPending {
		u.log.Warn().Str("order_id", order.ID).Str("status", string(order.Status)).Msg("order already settled; skipping fulfillment")
		return nil, nil
	}

	if err := u.orders.UpdateStatus(ctx, tx, order.ID, model.OrderStatusCompleted); err != nil {
		return nil, fmt.Errorf("complete order %s: %w", order.ID, err)
	}
	order.MirrorPayment(model.PaymentStatusPaid, time.Now())

	f := &Fulfillment{Payment: p, Order: order}
	switch order.Item.Kind {
	case model.ItemService:
		gap, err := u.provisionService(ctx, tx, order)
		if err != nil {
			return nil, err
		}
		f.Gap = gap
	case model.ItemProduct, model.ItemPackage:
		// Nothing to provision; the user is notified after commit.
	default:
		f.Gap = fmt.Errorf("unknown item kind %q", order.Item.Kind)
	}

	result := "ok"
	if f.Gap != nil {
		result = "error"
	}
	metrics.IncFulfillment(string(order.Item.Kind), result)
	return f, nil
}

// provisionService unlocks the referenced ClientService. The returned gap is a
// business failure; err is a storage failure.
func (u *fulfillmentUC) provisionService(ctx context.Context, tx repository.Tx, order *model.Order) (gap error, err error) {
	cs, err := u.services.FindByID(ctx, tx, order.Item.ID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("client service %s not found", order.Item.ID), nil
		}
		return nil, fmt.Errorf("load client service %s: %w", order.Item.ID, err)
	}

	track := order.Settles
	if track == "" {
		// Orders written before the track was recorded: price it again.
		def, err := u.defs.FindByID(ctx, tx, cs.DefinitionID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return fmt.Errorf("service definition %s not found", cs.DefinitionID), nil
			}
			return nil, fmt.Errorf("load service definition %s: %w", cs.DefinitionID, err)
		}
		_, track = cs.AmountDue(def)
	}
	if err := cs.SettleByGateway(track); err != nil {
		return err, nil
	}
	cs.OneOffPricePaid = true
	cs.UpdatedAt = time.Now()

	if err := u.services.Save(ctx, tx, cs); err != nil {
		return nil, fmt.Errorf("save client service %s: %w", cs.ID, err)
	}
	u.log.Info().
		Str("client_service_id", cs.ID).
		Str("order_id", order.ID).
		Str("track", string(track)).
		Str("status", string(cs.Status)).
		Msg("client service unlocked by payment")
	return nil, nil
}

func (u *fulfillmentUC) Deliver(ctx context.Context, f *Fulfillment) {
	if f == nil || f.Order == nil {
		return
	}
	o, p := f.Order, f.Payment
	log := u.log.With().Str("order_id", o.ID).Str("reference", o.Reference).Logger()

	if f.Gap != nil {
		log.Warn().Err(f.Gap).Str("item_kind", string(o.Item.Kind)).Str("item_id", o.Item.ID).
			Msg("payment received but provisioning failed; manual follow-up required")
		u.courier.alert(ctx, u.courier.t("alert_provisioning_gap", p.Reference, o.ID, o.Item.Kind, o.Item.ID, f.Gap.Error()))
	} else if o.Item.Kind == model.ItemProduct || o.Item.Kind == model.ItemPackage {
		_ = u.courier.notify(ctx, o.UserID, model.NotificationFulfilled,
			u.courier.t("fulfilled_title"),
			u.courier.t("fulfilled_message", o.Item.Kind, o.Item.ID))
	}

	amount := model.FormatMoney(p.Amount, p.Currency)
	_ = u.courier.notify(ctx, o.UserID, model.NotificationReceipt,
		u.courier.t("receipt_title"),
		u.courier.t("receipt_message", amount, o.ID))
	_ = u.courier.email(ctx, o.UserID, u.courier.t("receipt_email_subject", p.Reference), func(name string) string {
		return u.courier.t("receipt_email_body", name, amount, p.Reference)
	})
	log.Info().Int64("amount", p.Amount).Msg("receipt delivered")
}
