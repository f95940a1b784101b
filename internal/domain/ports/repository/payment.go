package repository

import (
	"context"
	"time"

	"bizbilling/internal/domain/model"
)

// -----------------------------
// Payments
// -----------------------------

type PaymentRepository interface {
	// Save inserts a new payment. A duplicate reference yields domain.ErrAlreadyExists.
	Save(ctx context.Context, tx Tx, p *model.Payment) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Payment, error)
	FindByReference(ctx context.Context, tx Tx, reference string) (*model.Payment, error)
	SetPollHandle(ctx context.Context, tx Tx, id, pollHandle string) error
	// UpdateStatusIfPending writes the terminal fields of p only while the stored
	// row is still PENDING and reports whether a row was changed.
	UpdateStatusIfPending(ctx context.Context, tx Tx, p *model.Payment) (bool, error)
	ListPendingOlderThan(ctx context.Context, tx Tx, olderThan time.Time, limit int) ([]*model.Payment, error)
}

// -----------------------------
// Orders
// -----------------------------

type OrderRepository interface {
	Save(ctx context.Context, tx Tx, o *model.Order) error
	FindByPaymentID(ctx context.Context, tx Tx, paymentID string) (*model.Order, error)
	FindByReference(ctx context.Context, tx Tx, reference string) (*model.Order, error)
	UpdateStatus(ctx context.Context, tx Tx, id string, status model.OrderStatus) error
}
