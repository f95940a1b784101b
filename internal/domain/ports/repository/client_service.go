package repository

import (
	"context"
	"time"

	"bizbilling/internal/domain/model"
)

// -----------------------------
// Catalog (read-only here)
// -----------------------------

type ServiceDefinitionRepository interface {
	FindByID(ctx context.Context, tx Tx, id string) (*model.ServiceDefinition, error)
	Save(ctx context.Context, tx Tx, d *model.ServiceDefinition) error
}

// -----------------------------
// Client services
// -----------------------------

type ClientServiceRepository interface {
	// Save upserts on (user_id, definition_id) and writes the stored id back into cs.
	Save(ctx context.Context, tx Tx, cs *model.ClientService) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.ClientService, error)
	FindByUserAndDefinition(ctx context.Context, tx Tx, userID, definitionID string) (*model.ClientService, error)
	ListByUser(ctx context.Context, tx Tx, userID string) ([]*model.ClientService, error)
	// ListDue returns ACTIVE recurring rows with next_billing_date < before.
	ListDue(ctx context.Context, tx Tx, before time.Time) ([]*model.ClientService, error)
	// ListUpcoming returns ACTIVE recurring rows with from <= next_billing_date < to.
	ListUpcoming(ctx context.Context, tx Tx, from, to time.Time) ([]*model.ClientService, error)
}

// -----------------------------
// Maintenance contracts
// -----------------------------

type MaintenanceRepository interface {
	Save(ctx context.Context, tx Tx, m *model.Maintenance) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Maintenance, error)
	ListDue(ctx context.Context, tx Tx, before time.Time) ([]*model.Maintenance, error)
	ListUpcoming(ctx context.Context, tx Tx, from, to time.Time) ([]*model.Maintenance, error)
}
