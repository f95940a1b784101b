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

var _ repository.MaintenanceRepository = (*maintenanceRepo)(nil)

type maintenanceRepo struct{ pool *pgxpool.Pool }

func NewMaintenanceRepo(pool *pgxpool.Pool) *maintenanceRepo {
	return &maintenanceRepo{pool: pool}
}

const maintenanceSelect = `
SELECT id, project_id, user_id, title, amount, currency, billing_cycle_days, ` + lifecycleColumns + `, created_at, updated_at
  FROM maintenances`

func (r *maintenanceRepo) Save(ctx context.Context, tx repository.Tx, m *model.Maintenance) error {
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = time.Now().UTC()
	}
	const q = `
INSERT INTO maintenances (
  id, project_id, user_id, title, amount, currency, billing_cycle_days, ` + lifecycleColumns + `, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
ON CONFLICT (id) DO UPDATE SET
  title=EXCLUDED.title,
  amount=EXCLUDED.amount,
  billing_cycle_days=EXCLUDED.billing_cycle_days,
  status=EXCLUDED.status,
  enable_recurring=EXCLUDED.enable_recurring,
  next_billing_date=EXCLUDED.next_billing_date,
  one_off_cash_claimed=EXCLUDED.one_off_cash_claimed,
  one_off_confirmed_at=EXCLUDED.one_off_confirmed_at,
  one_off_confirmed_by=EXCLUDED.one_off_confirmed_by,
  period_cash_claimed=EXCLUDED.period_cash_claimed,
  period_confirmed_at=EXCLUDED.period_confirmed_at,
  period_confirmed_by=EXCLUDED.period_confirmed_by,
  updated_at=EXCLUDED.updated_at;`

	args := []interface{}{m.ID, m.ProjectID, m.UserID, m.Title, m.Amount, m.Currency, m.BillingCycleDays}
	args = append(args, lifecycleArgs(&m.Lifecycle)...)
	args = append(args, m.CreatedAt, m.UpdatedAt)
	_, err := execSQL(ctx, r.pool, tx, q, args...)
	return err
}

func (r *maintenanceRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Maintenance, error) {
	row, err := pickRow(ctx, r.pool, tx, maintenanceSelect+` WHERE id=$1`+lockClause(tx)+";", id)
	if err != nil {
		return nil, err
	}
	m, err := scanMaintenance(row)
	if err != nil {
		return nil, mapScanErr(err)
	}
	return m, nil
}

func (r *maintenanceRepo) ListDue(ctx context.Context, tx repository.Tx, before time.Time) ([]*model.Maintenance, error) {
	return r.many(ctx, tx, maintenanceSelect+`
 WHERE status='ACTIVE' AND enable_recurring AND next_billing_date < $1
 ORDER BY next_billing_date ASC;`, before)
}

func (r *maintenanceRepo) ListUpcoming(ctx context.Context, tx repository.Tx, from, to time.Time) ([]*model.Maintenance, error) {
	return r.many(ctx, tx, maintenanceSelect+`
 WHERE status='ACTIVE' AND enable_recurring AND next_billing_date >= $1 AND next_billing_date < $2
 ORDER BY next_billing_date ASC;`, from, to)
}

func (r *maintenanceRepo) many(ctx context.Context, tx repository.Tx, q string, args ...interface{}) ([]*model.Maintenance, error) {
	rows, err := queryRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Maintenance
	for rows.Next() {
		m, err := scanMaintenance(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, m)
	}
	if rows.Err() != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func scanMaintenance(row pgx.Row) (*model.Maintenance, error) {
	m := &model.Maintenance{}
	dest := []interface{}{&m.ID, &m.ProjectID, &m.UserID, &m.Title, &m.Amount, &m.Currency, &m.BillingCycleDays}
	dest = append(dest, lifecycleDest(&m.Lifecycle)...)
	dest = append(dest, &m.CreatedAt, &m.UpdatedAt)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return m, nil
}
