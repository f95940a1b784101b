package repository

import (
	"context"
	"time"

	"bizbilling/internal/domain/model"
)

// -----------------------------
// Billing notification log
// -----------------------------

// NotificationLogRepository remembers which billing notices went out for which
// cycle so a reminder is not repeated within the same cycle.
type NotificationLogRepository interface {
	// Save records that a notification was sent. Repeats are ignored.
	Save(ctx context.Context, tx Tx, subjectID, userID, kind string, cycle time.Time) error
	// Exists checks if a specific notification has already been sent.
	Exists(ctx context.Context, tx Tx, subjectID, kind string, cycle time.Time) (bool, error)
}

// -----------------------------
// In-app notifications
// -----------------------------

type NotificationRepository interface {
	Save(ctx context.Context, tx Tx, n *model.Notification) error
	ListByUser(ctx context.Context, tx Tx, userID string, limit int) ([]*model.Notification, error)
}
