//go:build !integration

package postgres

import (
	"context"
	"time"

	"bizbilling/internal/domain/model"
	"bizbilling/internal/domain/ports/repository"
	red "bizbilling/internal/infra/redis"
)

// --- Mocks for Cache Decorator Tests ---

type mockInnerDefinitionRepo struct {
	SaveFunc     func(ctx context.Context, tx repository.Tx, d *model.ServiceDefinition) error
	FindByIDFunc func(ctx context.Context, tx repository.Tx, id string) (*model.ServiceDefinition, error)
}

func (m *mockInnerDefinitionRepo) Save(ctx context.Context, tx repository.Tx, d *model.ServiceDefinition) error {
	return m.SaveFunc(ctx, tx, d)
}
func (m *mockInnerDefinitionRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.ServiceDefinition, error) {
	return m.FindByIDFunc(ctx, tx, id)
}

type mockInnerUserRepo struct {
	SaveFunc     func(ctx context.Context, tx repository.Tx, u *model.User) error
	FindByIDFunc func(ctx context.Context, tx repository.Tx, id string) (*model.User, error)
}

func (m *mockInnerUserRepo) Save(ctx context.Context, tx repository.Tx, u *model.User) error {
	return m.SaveFunc(ctx, tx, u)
}
func (m *mockInnerUserRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
	return m.FindByIDFunc(ctx, tx, id)
}

// mockRedisClient mocks the redis cache.
type mockRedisClient struct {
	GetFunc func(ctx context.Context, key string) (string, error)
	SetFunc func(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	DelFunc func(ctx context.Context, keys ...string) error
}

var _ red.Cache = &mockRedisClient{}

func (m *mockRedisClient) Get(ctx context.Context, key string) (string, error) {
	return m.GetFunc(ctx, key)
}
func (m *mockRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if m.SetFunc == nil {
		return nil
	}
	return m.SetFunc(ctx, key, value, expiration)
}
func (m *mockRedisClient) Del(ctx context.Context, keys ...string) error {
	if m.DelFunc == nil {
		return nil
	}
	return m.DelFunc(ctx, keys...)
}
