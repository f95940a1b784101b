package model

import (
	"time"

	"bizbilling/internal/domain"
)

// Maintenance is a recurring maintenance contract on a project. It is billed
// exactly like a ClientService.
type Maintenance struct {
	ID               string
	ProjectID        string
	UserID           string
	Title            string
	Amount           int64 // minor units per cycle
	Currency         string
	BillingCycleDays int
	Lifecycle
	CreatedAt time.Time
	UpdatedAt time.Time
}

func NewMaintenance(id, projectID, userID, title string, amount int64, currency string, cycleDays int, recurring, paidInCash bool, now time.Time) (*Maintenance, error) {
	if id == "" || projectID == "" || userID == "" || amount <= 0 || cycleDays <= 0 || currency == "" {
		return nil, domain.ErrInvalidArgument
	}
	return &Maintenance{
		ID:               id,
		ProjectID:        projectID,
		UserID:           userID,
		Title:            title,
		Amount:           amount,
		Currency:         currency,
		BillingCycleDays: cycleDays,
		Lifecycle:        NewLifecycle(now, recurring, cycleDays, CashGate{CurrentPeriod: CashTrack{Claimed: paidInCash}}),
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}
