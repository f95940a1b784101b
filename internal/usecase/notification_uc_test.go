//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"testing"

	"bizbilling/internal/domain"
	"bizbilling/internal/domain/model"
	"bizbilling/internal/domain/ports/repository"
	"bizbilling/internal/usecase"
)

type MockNotificationRepo struct {
	ListByUserFunc func(ctx context.Context, tx repository.Tx, userID string, limit int) ([]*model.Notification, error)
}

func (r *MockNotificationRepo) Save(ctx context.Context, tx repository.Tx, n *model.Notification) error {
	return nil
}

func (r *MockNotificationRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string, limit int) ([]*model.Notification, error) {
	return r.ListByUserFunc(ctx, tx, userID, limit)
}

func TestNotificationUseCase_ListForUser(t *testing.T) {
	ctx := context.Background()

	t.Run("passes the user and limit through", func(t *testing.T) {
		var gotUser string
		var gotLimit int
		repo := &MockNotificationRepo{ListByUserFunc: func(ctx context.Context, tx repository.Tx, userID string, limit int) ([]*model.Notification, error) {
			gotUser, gotLimit = userID, limit
			return []*model.Notification{{ID: "n-1", UserID: userID, Type: model.NotificationReceipt}}, nil
		}}
		uc := usecase.NewNotificationUseCase(repo, newTestLogger())

		items, err := uc.ListForUser(ctx, "user-1", 20)
		if err != nil {
			t.Fatal(err)
		}
		if len(items) != 1 || gotUser != "user-1" || gotLimit != 20 {
			t.Errorf("unexpected call: items=%d user=%q limit=%d", len(items), gotUser, gotLimit)
		}
	})

	t.Run("requires a user", func(t *testing.T) {
		uc := usecase.NewNotificationUseCase(&MockNotificationRepo{}, newTestLogger())
		if _, err := uc.ListForUser(ctx, "", 10); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}
