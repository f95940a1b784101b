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

var _ repository.PaymentRepository = (*paymentRepo)(nil)

type paymentRepo struct{ pool *pgxpool.Pool }

func NewPaymentRepo(pool *pgxpool.Pool) *paymentRepo {
	return &paymentRepo{pool: pool}
}

const paymentColumns = `id, amount, currency, method, status, reference, external_txn_id, poll_handle, error_message, created_at, updated_at, completed_at, failed_at`

func (r *paymentRepo) Save(ctx context.Context, tx repository.Tx, p *model.Payment) error {
	const q = `
INSERT INTO payments (` + paymentColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13);`

	_, err := execSQL(ctx, r.pool, tx, q, p.ID, p.Amount, p.Currency, p.Method, p.Status, p.Reference,
		p.ExternalTxnID, p.PollHandle, p.ErrorMessage, p.CreatedAt, p.UpdatedAt, p.CompletedAt, p.FailedAt)
	return err
}

func (r *paymentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Payment, error) {
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE id=$1` + lockClause(tx) + ";"
	return r.one(ctx, tx, q, id)
}

func (r *paymentRepo) FindByReference(ctx context.Context, tx repository.Tx, reference string) (*model.Payment, error) {
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE reference=$1` + lockClause(tx) + ";"
	return r.one(ctx, tx, q, reference)
}

func (r *paymentRepo) SetPollHandle(ctx context.Context, tx repository.Tx, id, pollHandle string) error {
	const q = `UPDATE payments SET poll_handle=$2, updated_at=$3 WHERE id=$1;`
	tag, err := execSQL(ctx, r.pool, tx, q, id, pollHandle, time.Now().UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// UpdateStatusIfPending is the single conditional write that moves a payment
// out of PENDING. Concurrent callers race on the WHERE clause and only one wins.
func (r *paymentRepo) UpdateStatusIfPending(ctx context.Context, tx repository.Tx, p *model.Payment) (bool, error) {
	const q = `
UPDATE payments
   SET status=$2, external_txn_id=$3, error_message=$4, updated_at=$5, completed_at=$6, failed_at=$7
 WHERE id=$1 AND status='PENDING';`
	tag, err := execSQL(ctx, r.pool, tx, q, p.ID, p.Status, p.ExternalTxnID, p.ErrorMessage, p.UpdatedAt, p.CompletedAt, p.FailedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *paymentRepo) ListPendingOlderThan(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.Payment, error) {
	if limit <= 0 {
		limit = 100
	}
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE status='PENDING' AND created_at < $1 ORDER BY created_at ASC LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, olderThan, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, p)
	}
	if rows.Err() != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func (r *paymentRepo) one(ctx context.Context, tx repository.Tx, q string, arg string) (*model.Payment, error) {
	row, err := pickRow(ctx, r.pool, tx, q, arg)
	if err != nil {
		return nil, err
	}
	p, err := scanPayment(row)
	if err != nil {
		return nil, mapScanErr(err)
	}
	return p, nil
}

func scanPayment(row pgx.Row) (*model.Payment, error) {
	p := &model.Payment{}
	err := row.Scan(&p.ID, &p.Amount, &p.Currency, &p.Method, &p.Status, &p.Reference, &p.ExternalTxnID,
		&p.PollHandle, &p.ErrorMessage, &p.CreatedAt, &p.UpdatedAt, &p.CompletedAt, &p.FailedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}
