package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"bizbilling/internal/domain"
	"bizbilling/internal/domain/ports/repository"
)

var _ repository.NotificationLogRepository = (*notificationLogRepo)(nil)

type notificationLogRepo struct {
	pool *pgxpool.Pool
}

func NewNotificationLogRepo(pool *pgxpool.Pool) repository.NotificationLogRepository {
	return &notificationLogRepo{pool: pool}
}

// cycleDate keeps only the calendar day of the billing date the notice belongs to.
func cycleDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func (r *notificationLogRepo) Save(ctx context.Context, tx repository.Tx, subjectID, userID, kind string, cycle time.Time) error {
	// The primary key (subject_id, kind, cycle_date) swallows repeats.
	const q = `
INSERT INTO billing_notifications (subject_id, user_id, kind, cycle_date, sent_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT DO NOTHING`
	_, err := execSQL(ctx, r.pool, tx, q, subjectID, userID, kind, cycleDate(cycle), time.Now().UTC())
	return err
}

func (r *notificationLogRepo) Exists(ctx context.Context, tx repository.Tx, subjectID, kind string, cycle time.Time) (bool, error) {
	const q = `
SELECT EXISTS(
    SELECT 1 FROM billing_notifications
    WHERE subject_id = $1 AND kind = $2 AND cycle_date = $3
)`
	row, err := pickRow(ctx, r.pool, tx, q, subjectID, kind, cycleDate(cycle))
	if err != nil {
		return false, err
	}
	var exists bool
	if err := row.Scan(&exists); err != nil {
		return false, domain.ErrReadDatabaseRow
	}
	return exists, nil
}
