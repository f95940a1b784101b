package notify

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"bizbilling/internal/domain"
	"bizbilling/internal/domain/model"
	"bizbilling/internal/domain/ports/adapter"
	"bizbilling/internal/domain/ports/repository"
)

var _ adapter.Notifier = (*InAppNotifier)(nil)

// InAppNotifier writes dashboard notifications to the notifications table.
type InAppNotifier struct {
	repo repository.NotificationRepository
}

func NewInAppNotifier(repo repository.NotificationRepository) *InAppNotifier {
	return &InAppNotifier{repo: repo}
}

func (n *InAppNotifier) Notify(ctx context.Context, userID string, typ model.NotificationType, title, message string) error {
	if strings.TrimSpace(userID) == "" {
		return domain.ErrInvalidArgument
	}
	return n.repo.Save(ctx, repository.NoTX, &model.Notification{
		ID:        uuid.NewString(),
		UserID:    userID,
		Type:      typ,
		Title:     title,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	})
}
