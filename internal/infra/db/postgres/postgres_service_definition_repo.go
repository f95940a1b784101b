package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"bizbilling/internal/domain/model"
	"bizbilling/internal/domain/ports/repository"
)

var _ repository.ServiceDefinitionRepository = (*serviceDefinitionRepo)(nil)

type serviceDefinitionRepo struct{ pool *pgxpool.Pool }

func NewServiceDefinitionRepo(pool *pgxpool.Pool) *serviceDefinitionRepo {
	return &serviceDefinitionRepo{pool: pool}
}

func (r *serviceDefinitionRepo) Save(ctx context.Context, tx repository.Tx, d *model.ServiceDefinition) error {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	const q = `
INSERT INTO service_definitions (id, name, one_off_price, recurring_price, recurring_per_unit, billing_cycle_days, currency, active, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (id) DO UPDATE SET
  name=$2, one_off_price=$3, recurring_price=$4, recurring_per_unit=$5, billing_cycle_days=$6, currency=$7, active=$8;`
	_, err := execSQL(ctx, r.pool, tx, q, d.ID, d.Name, d.OneOffPrice, d.RecurringPrice, d.RecurringPerUnit,
		d.BillingCycleDays, d.Currency, d.Active, d.CreatedAt)
	return err
}

func (r *serviceDefinitionRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.ServiceDefinition, error) {
	q := `
SELECT id, name, one_off_price, recurring_price, recurring_per_unit, billing_cycle_days, currency, active, created_at
  FROM service_definitions WHERE id=$1` + lockClause(tx) + ";"
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	d := &model.ServiceDefinition{}
	if err := row.Scan(&d.ID, &d.Name, &d.OneOffPrice, &d.RecurringPrice, &d.RecurringPerUnit,
		&d.BillingCycleDays, &d.Currency, &d.Active, &d.CreatedAt); err != nil {
		return nil, mapScanErr(err)
	}
	return d, nil
}
