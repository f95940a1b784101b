package model

import (
	"time"

	"bizbilling/internal/domain"
)

// ItemKind is the closed set of purchasable things an Order can point at.
type ItemKind string

const (
	ItemService ItemKind = "SERVICE" // item id is a ClientService id
	ItemProduct ItemKind = "PRODUCT"
	ItemPackage ItemKind = "PACKAGE"
)

func (k ItemKind) Valid() bool {
	switch k {
	case ItemService, ItemProduct, ItemPackage:
		return true
	}
	return false
}

// Item identifies what was purchased.
type Item struct {
	Kind ItemKind
	ID   string
}

func (i Item) Validate() error {
	if !i.Kind.Valid() || i.ID == "" {
		return domain.ErrInvalidArgument
	}
	return nil
}

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusCompleted OrderStatus = "COMPLETED"
	OrderStatusFailed    OrderStatus = "FAILED"
)

// Order is the fulfillment record bound 1:1 to a Payment.
type Order struct {
	ID        string
	PaymentID string
	UserID    string
	Item      Item
	Quantity  int
	Amount    int64 // minor units
	Reference string
	Status    OrderStatus
	// Settles is the cash track a SERVICE purchase pays for, fixed when the
	// purchase is priced. Empty for other item kinds.
	Settles   CashTrackKind
	CreatedAt time.Time
	UpdatedAt time.Time
}

func NewOrder(id string, p *Payment, userID string, item Item, quantity int) (*Order, error) {
	if id == "" || p == nil || userID == "" || quantity <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	if err := item.Validate(); err != nil {
		return nil, err
	}
	return &Order{
		ID:        id,
		PaymentID: p.ID,
		UserID:    userID,
		Item:      item,
		Quantity:  quantity,
		Amount:    p.Amount,
		Reference: p.Reference,
		Status:    OrderStatusPending,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.CreatedAt,
	}, nil
}

// MirrorPayment sets the order status from a terminal payment status.
func (o *Order) MirrorPayment(status PaymentStatus, at time.Time) {
	switch status {
	case PaymentStatusPaid:
		o.Status = OrderStatusCompleted
	case PaymentStatusFailed:
		o.Status = OrderStatusFailed
	default:
		return
	}
	o.UpdatedAt = at
}
