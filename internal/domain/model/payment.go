package model

import (
	"strings"
	"time"

	"bizbilling/internal/domain"
)

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "PENDING" // created; awaiting a gateway report
	PaymentStatusPaid    PaymentStatus = "PAID"    // money received
	PaymentStatusFailed  PaymentStatus = "FAILED"  // gateway failure, cancellation or initiation error
)

func (s PaymentStatus) Terminal() bool {
	return s == PaymentStatusPaid || s == PaymentStatusFailed
}

// Payment records one attempt to collect money through the gateway.
type Payment struct {
	ID            string // UUID
	Amount        int64  // minor units (cents)
	Currency      string
	Method        string
	Status        PaymentStatus
	Reference     string  // merchant-assigned, unique, immutable
	ExternalTxnID *string // gateway transaction id, set on success
	PollHandle    string  // gateway poll URL/token
	ErrorMessage  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	CompletedAt   *time.Time
	FailedAt      *time.Time
}

// NewPendingPayment validates and constructs a payment in PENDING.
func NewPendingPayment(id string, amount int64, currency, method, reference string, now time.Time) (*Payment, error) {
	if id == "" || amount <= 0 || strings.TrimSpace(reference) == "" || currency == "" {
		return nil, domain.ErrInvalidArgument
	}
	return &Payment{
		ID:        id,
		Amount:    amount,
		Currency:  strings.ToUpper(currency),
		Method:    method,
		Status:    PaymentStatusPending,
		Reference: reference,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// MarkPaid transitions a pending payment to PAID. Terminal payments are left untouched
// and false is returned.
func (p *Payment) MarkPaid(externalTxnID string, at time.Time) bool {
	if p.Status.Terminal() {
		return false
	}
	p.Status = PaymentStatusPaid
	if externalTxnID != "" {
		p.ExternalTxnID = &externalTxnID
	}
	p.CompletedAt = &at
	p.UpdatedAt = at
	return true
}

// MarkFailed transitions a pending payment to FAILED.
func (p *Payment) MarkFailed(reason string, at time.Time) bool {
	if p.Status.Terminal() {
		return false
	}
	p.Status = PaymentStatusFailed
	p.ErrorMessage = reason
	p.FailedAt = &at
	p.UpdatedAt = at
	return true
}

// MapGatewayStatus normalizes a gateway-reported status string.
// Unknown statuses map to PENDING, which never causes a transition.
func MapGatewayStatus(raw string) PaymentStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "paid", "awaiting delivery", "delivered":
		return PaymentStatusPaid
	case "failed", "cancelled", "canceled":
		return PaymentStatusFailed
	default:
		return PaymentStatusPending
	}
}
