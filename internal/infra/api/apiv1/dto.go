package apiv1

import (
	"strings"
	"time"

	"bizbilling/internal/domain/model"
)

// ===== Requests =====

// Amounts are integer minor units everywhere on the API.
type PurchaseRequest struct {
	ItemKind    string `json:"item_kind" validate:"required,item_kind"`
	ItemID      string `json:"item_id" validate:"required,max=64"`
	Quantity    int    `json:"quantity" validate:"omitempty,min=1,max=1000"`
	Amount      int64  `json:"amount" validate:"omitempty,min=1"`
	Currency    string `json:"currency" validate:"omitempty,currency"`
	Method      string `json:"method" validate:"omitempty,max=32"`
	Description string `json:"description" validate:"omitempty,max=255"`
	ReturnURL   string `json:"return_url" validate:"omitempty,url"`
	PayerEmail  string `json:"payer_email" validate:"omitempty,email"`
}

type ProvisionRequest struct {
	UserID                 string `json:"user_id" validate:"required"`
	DefinitionID           string `json:"definition_id" validate:"required"`
	Units                  int    `json:"units" validate:"omitempty,min=1"`
	EnableRecurring        bool   `json:"enable_recurring"`
	CustomRecurringPrice   *int64 `json:"custom_recurring_price" validate:"omitempty,min=0"`
	OneOffPaidInCash       bool   `json:"one_off_paid_in_cash"`
	CurrentMonthPaidInCash bool   `json:"current_month_paid_in_cash"`
}

type MaintenanceRequest struct {
	ProjectID        string `json:"project_id" validate:"required"`
	UserID           string `json:"user_id" validate:"required"`
	Title            string `json:"title" validate:"required,max=255"`
	Amount           int64  `json:"amount" validate:"required,min=1"`
	Currency         string `json:"currency" validate:"omitempty,currency"`
	BillingCycleDays int    `json:"billing_cycle_days" validate:"required,min=1,max=366"`
	EnableRecurring  bool   `json:"enable_recurring"`
	PaidInCash       bool   `json:"paid_in_cash"`
}

// ===== Responses =====

type Payment struct {
	ID            string     `json:"id"`
	Reference     string     `json:"reference"`
	Status        string     `json:"status"`
	Amount        int64      `json:"amount"`
	AmountDisplay string     `json:"amount_display"`
	Currency      string     `json:"currency"`
	Method        string     `json:"method,omitempty"`
	ExternalTxnID *string    `json:"external_transaction_id,omitempty"`
	ErrorMessage  string     `json:"error_message,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	FailedAt      *time.Time `json:"failed_at,omitempty"`
	Order         *Order     `json:"order,omitempty"`
}

type Order struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	ItemKind string `json:"item_kind"`
	ItemID   string `json:"item_id"`
	Quantity int    `json:"quantity"`
}

type PurchaseResponse struct {
	Payment     Payment `json:"payment"`
	RedirectURL string  `json:"redirect_url"`
}

type CashTrack struct {
	Claimed     bool       `json:"claimed"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
	ConfirmedBy *string    `json:"confirmed_by,omitempty"`
}

type Lifecycle struct {
	Status          string     `json:"status"`
	EnableRecurring bool       `json:"enable_recurring"`
	NextBillingDate *time.Time `json:"next_billing_date,omitempty"`
	OneOffCash      CashTrack  `json:"one_off_cash"`
	PeriodCash      CashTrack  `json:"current_period_cash"`
}

type ClientService struct {
	ID                   string `json:"id"`
	UserID               string `json:"user_id"`
	DefinitionID         string `json:"definition_id"`
	Units                int    `json:"units"`
	CustomRecurringPrice *int64 `json:"custom_recurring_price,omitempty"`
	OneOffPricePaid      bool   `json:"one_off_price_paid"`
	Lifecycle
	UpdatedAt time.Time `json:"updated_at"`
}

type Maintenance struct {
	ID               string `json:"id"`
	ProjectID        string `json:"project_id"`
	UserID           string `json:"user_id"`
	Title            string `json:"title"`
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency"`
	BillingCycleDays int    `json:"billing_cycle_days"`
	Lifecycle
	UpdatedAt time.Time `json:"updated_at"`
}

type Notification struct {
	ID        string     `json:"id"`
	Type      string     `json:"type"`
	Title     string     `json:"title"`
	Message   string     `json:"message"`
	CreatedAt time.Time  `json:"created_at"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
}

// ===== Mapping =====

func toPayment(p *model.Payment, o *model.Order) Payment {
	out := Payment{
		ID:            p.ID,
		Reference:     p.Reference,
		Status:        string(p.Status),
		Amount:        p.Amount,
		AmountDisplay: model.FormatMoney(p.Amount, p.Currency),
		Currency:      p.Currency,
		Method:        p.Method,
		ExternalTxnID: p.ExternalTxnID,
		ErrorMessage:  p.ErrorMessage,
		CreatedAt:     p.CreatedAt,
		CompletedAt:   p.CompletedAt,
		FailedAt:      p.FailedAt,
	}
	if o != nil {
		out.Order = &Order{
			ID:       o.ID,
			Status:   string(o.Status),
			ItemKind: string(o.Item.Kind),
			ItemID:   o.Item.ID,
			Quantity: o.Quantity,
		}
	}
	return out
}

func toLifecycle(l model.Lifecycle) Lifecycle {
	track := func(t model.CashTrack) CashTrack {
		return CashTrack{Claimed: t.Claimed, ConfirmedAt: t.ConfirmedAt, ConfirmedBy: t.ConfirmedBy}
	}
	return Lifecycle{
		Status:          string(l.Status),
		EnableRecurring: l.EnableRecurring,
		NextBillingDate: l.NextBillingDate,
		OneOffCash:      track(l.Cash.OneOff),
		PeriodCash:      track(l.Cash.CurrentPeriod),
	}
}

func toClientService(cs *model.ClientService) ClientService {
	return ClientService{
		ID:                   cs.ID,
		UserID:               cs.UserID,
		DefinitionID:         cs.DefinitionID,
		Units:                cs.Units,
		CustomRecurringPrice: cs.CustomRecurringPrice,
		OneOffPricePaid:      cs.OneOffPricePaid,
		Lifecycle:            toLifecycle(cs.Lifecycle),
		UpdatedAt:            cs.UpdatedAt,
	}
}

func toMaintenance(m *model.Maintenance) Maintenance {
	return Maintenance{
		ID:               m.ID,
		ProjectID:        m.ProjectID,
		UserID:           m.UserID,
		Title:            m.Title,
		Amount:           m.Amount,
		Currency:         m.Currency,
		BillingCycleDays: m.BillingCycleDays,
		Lifecycle:        toLifecycle(m.Lifecycle),
		UpdatedAt:        m.UpdatedAt,
	}
}

func toNotification(n *model.Notification) Notification {
	return Notification{ID: n.ID, Type: string(n.Type), Title: n.Title, Message: n.Message, CreatedAt: n.CreatedAt, ReadAt: n.ReadAt}
}

func (r PurchaseRequest) item() model.Item {
	return model.Item{Kind: model.ItemKind(strings.ToUpper(r.ItemKind)), ID: r.ItemID}
}
