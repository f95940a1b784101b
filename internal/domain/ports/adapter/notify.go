package adapter

import (
	"context"

	"bizbilling/internal/domain/model"
)

// Notifier delivers in-app notifications. Callers treat it as fire-and-forget.
type Notifier interface {
	Notify(ctx context.Context, userID string, typ model.NotificationType, title, message string) error
}

// EmailSender delivers email. Failures are never fatal to the caller.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, html, text string) error
}

// OperatorAlerter pages operators about reconciliation gaps that need a human.
type OperatorAlerter interface {
	Alert(ctx context.Context, text string) error
}
