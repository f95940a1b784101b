package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"bizbilling/internal/domain"
	"bizbilling/internal/domain/model"
	"bizbilling/internal/domain/ports/repository"
)

var _ repository.ClientServiceRepository = (*clientServiceRepo)(nil)

type clientServiceRepo struct{ pool *pgxpool.Pool }

func NewClientServiceRepo(pool *pgxpool.Pool) *clientServiceRepo {
	return &clientServiceRepo{pool: pool}
}

const clientServiceSelect = `
SELECT id, user_id, definition_id, units, custom_recurring_price, one_off_price_paid, ` + lifecycleColumns + `, created_at, updated_at
  FROM client_services`

// Save upserts on (user_id, definition_id). When a row already exists for the
// pair its id wins and is written back into cs.
func (r *clientServiceRepo) Save(ctx context.Context, tx repository.Tx, cs *model.ClientService) error {
	if cs.ID == "" {
		cs.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if cs.CreatedAt.IsZero() {
		cs.CreatedAt = now
	}
	if cs.UpdatedAt.IsZero() {
		cs.UpdatedAt = now
	}
	const q = `
INSERT INTO client_services (
  id, user_id, definition_id, units, custom_recurring_price, one_off_price_paid, ` + lifecycleColumns + `, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
ON CONFLICT (user_id, definition_id) DO UPDATE SET
  units=EXCLUDED.units,
  custom_recurring_price=EXCLUDED.custom_recurring_price,
  one_off_price_paid=EXCLUDED.one_off_price_paid,
  status=EXCLUDED.status,
  enable_recurring=EXCLUDED.enable_recurring,
  next_billing_date=EXCLUDED.next_billing_date,
  one_off_cash_claimed=EXCLUDED.one_off_cash_claimed,
  one_off_confirmed_at=EXCLUDED.one_off_confirmed_at,
  one_off_confirmed_by=EXCLUDED.one_off_confirmed_by,
  period_cash_claimed=EXCLUDED.period_cash_claimed,
  period_confirmed_at=EXCLUDED.period_confirmed_at,
  period_confirmed_by=EXCLUDED.period_confirmed_by,
  updated_at=EXCLUDED.updated_at
RETURNING id;`

	args := []interface{}{cs.ID, cs.UserID, cs.DefinitionID, cs.Units, cs.CustomRecurringPrice, cs.OneOffPricePaid}
	args = append(args, lifecycleArgs(&cs.Lifecycle)...)
	args = append(args, cs.CreatedAt, cs.UpdatedAt)

	row, err := pickRow(ctx, r.pool, tx, q, args...)
	if err != nil {
		return err
	}
	if err := row.Scan(&cs.ID); err != nil {
		return mapWriteErr(err)
	}
	return nil
}

func (r *clientServiceRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.ClientService, error) {
	return r.one(ctx, tx, clientServiceSelect+` WHERE id=$1`+lockClause(tx)+";", id)
}

func (r *clientServiceRepo) FindByUserAndDefinition(ctx context.Context, tx repository.Tx, userID, definitionID string) (*model.ClientService, error) {
	return r.one(ctx, tx, clientServiceSelect+` WHERE user_id=$1 AND definition_id=$2`+lockClause(tx)+";", userID, definitionID)
}

func (r *clientServiceRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string) ([]*model.ClientService, error) {
	return r.many(ctx, tx, clientServiceSelect+` WHERE user_id=$1 ORDER BY created_at DESC;`, userID)
}

func (r *clientServiceRepo) ListDue(ctx context.Context, tx repository.Tx, before time.Time) ([]*model.ClientService, error) {
	return r.many(ctx, tx, clientServiceSelect+`
 WHERE status='ACTIVE' AND enable_recurring AND next_billing_date < $1
 ORDER BY next_billing_date ASC;`, before)
}

func (r *clientServiceRepo) ListUpcoming(ctx context.Context, tx repository.Tx, from, to time.Time) ([]*model.ClientService, error) {
	return r.many(ctx, tx, clientServiceSelect+`
 WHERE status='ACTIVE' AND enable_recurring AND next_billing_date >= $1 AND next_billing_date < $2
 ORDER BY next_billing_date ASC;`, from, to)
}

func (r *clientServiceRepo) one(ctx context.Context, tx repository.Tx, q string, args ...interface{}) (*model.ClientService, error) {
	row, err := pickRow(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	cs, err := scanClientService(row)
	if err != nil {
		return nil, mapScanErr(err)
	}
	return cs, nil
}

func (r *clientServiceRepo) many(ctx context.Context, tx repository.Tx, q string, args ...interface{}) ([]*model.ClientService, error) {
	rows, err := queryRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.ClientService
	for rows.Next() {
		cs, err := scanClientService(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, cs)
	}
	if rows.Err() != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func scanClientService(row pgx.Row) (*model.ClientService, error) {
	cs := &model.ClientService{}
	dest := []interface{}{&cs.ID, &cs.UserID, &cs.DefinitionID, &cs.Units, &cs.CustomRecurringPrice, &cs.OneOffPricePaid}
	dest = append(dest, lifecycleDest(&cs.Lifecycle)...)
	dest = append(dest, &cs.CreatedAt, &cs.UpdatedAt)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return cs, nil
}
