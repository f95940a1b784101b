package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"bizbilling/internal/domain"
	"bizbilling/internal/domain/model"
	"bizbilling/internal/domain/ports/repository"
)

var _ repository.OrderRepository = (*orderRepo)(nil)

type orderRepo struct{ pool *pgxpool.Pool }

func NewOrderRepo(pool *pgxpool.Pool) *orderRepo {
	return &orderRepo{pool: pool}
}

const orderColumns = `id, payment_id, user_id, item_kind, item_id, quantity, amount, reference, status, settles_track, created_at, updated_at`

func (r *orderRepo) Save(ctx context.Context, tx repository.Tx, o *model.Order) error {
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	if o.UpdatedAt.IsZero() {
		o.UpdatedAt = o.CreatedAt
	}
	const q = `
INSERT INTO orders (` + orderColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12);`
	_, err := execSQL(ctx, r.pool, tx, q, o.ID, o.PaymentID, o.UserID, o.Item.Kind, o.Item.ID, o.Quantity,
		o.Amount, o.Reference, o.Status, o.Settles, o.CreatedAt, o.UpdatedAt)
	return err
}

func (r *orderRepo) FindByPaymentID(ctx context.Context, tx repository.Tx, paymentID string) (*model.Order, error) {
	q := `SELECT ` + orderColumns + ` FROM orders WHERE payment_id=$1` + lockClause(tx) + ";"
	return r.one(ctx, tx, q, paymentID)
}

func (r *orderRepo) FindByReference(ctx context.Context, tx repository.Tx, reference string) (*model.Order, error) {
	q := `SELECT ` + orderColumns + ` FROM orders WHERE reference=$1` + lockClause(tx) + ";"
	return r.one(ctx, tx, q, reference)
}

func (r *orderRepo) UpdateStatus(ctx context.Context, tx repository.Tx, id string, status model.OrderStatus) error {
	const q = `UPDATE orders SET status=$2, updated_at=$3 WHERE id=$1;`
	tag, err := execSQL(ctx, r.pool, tx, q, id, status, time.Now().UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *orderRepo) one(ctx context.Context, tx repository.Tx, q, arg string) (*model.Order, error) {
	row, err := pickRow(ctx, r.pool, tx, q, arg)
	if err != nil {
		return nil, err
	}
	o, err := scanOrder(row)
	if err != nil {
		return nil, mapScanErr(err)
	}
	return o, nil
}

func scanOrder(row pgx.Row) (*model.Order, error) {
	o := &model.Order{}
	if err := row.Scan(&o.ID, &o.PaymentID, &o.UserID, &o.Item.Kind, &o.Item.ID, &o.Quantity, &o.Amount,
		&o.Reference, &o.Status, &o.Settles, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	return o, nil
}
