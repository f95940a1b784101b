package usecase

import (
	"context"

	"github.com/rs/zerolog"

	"bizbilling/internal/domain"
	"bizbilling/internal/domain/model"
	"bizbilling/internal/domain/ports/repository"
)

// Compile-time check
var _ NotificationUseCase = (*notificationUC)(nil)

type NotificationUseCase interface {
	// ListForUser returns the user's in-app notifications, newest first.
	ListForUser(ctx context.Context, userID string, limit int) ([]*model.Notification, error)
}

type notificationUC struct {
	repo repository.NotificationRepository
	log  *zerolog.Logger
}

func NewNotificationUseCase(repo repository.NotificationRepository, logger *zerolog.Logger) *notificationUC {
	return &notificationUC{repo: repo, log: logger}
}

func (n *notificationUC) ListForUser(ctx context.Context, userID string, limit int) ([]*model.Notification, error) {
	if userID == "" {
		return nil, domain.ErrInvalidArgument
	}
	return n.repo.ListByUser(ctx, repository.NoTX, userID, limit)
}
