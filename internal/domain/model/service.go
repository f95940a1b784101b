package model

import (
	"time"

	"bizbilling/internal/domain"
)

// ServiceDefinition is a catalog entry. It is owned by the catalog and only read here.
type ServiceDefinition struct {
	ID               string
	Name             string
	OneOffPrice      int64 // minor units
	RecurringPrice   int64 // minor units, per unit when RecurringPerUnit
	RecurringPerUnit bool
	BillingCycleDays int
	Currency         string
	Active           bool
	CreatedAt        time.Time
}

func (d *ServiceDefinition) IsZero() bool { return d == nil || d.ID == "" }

// ClientService is a user's subscription to a ServiceDefinition. There is at
// most one per (UserID, DefinitionID).
type ClientService struct {
	ID                   string
	UserID               string
	DefinitionID         string
	Units                int
	CustomRecurringPrice *int64
	OneOffPricePaid      bool
	Lifecycle
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ProvisionSpec carries the caller's request to create or update a ClientService.
type ProvisionSpec struct {
	UserID                 string
	DefinitionID           string
	Units                  int
	EnableRecurring        bool
	CustomRecurringPrice   *int64
	OneOffPaidInCash       bool
	CurrentMonthPaidInCash bool
}

func (s ProvisionSpec) Validate() error {
	if s.UserID == "" || s.DefinitionID == "" || s.Units <= 0 {
		return domain.ErrInvalidArgument
	}
	if s.CustomRecurringPrice != nil && *s.CustomRecurringPrice < 0 {
		return domain.ErrInvalidArgument
	}
	return nil
}

// Apply overwrites cs with a fresh lifecycle computed from spec at now. Identity,
// creation time and the one-off paid flag are preserved across re-provisioning.
func (cs *ClientService) Apply(spec ProvisionSpec, def *ServiceDefinition, now time.Time) {
	cs.UserID = spec.UserID
	cs.DefinitionID = spec.DefinitionID
	cs.Units = spec.Units
	cs.CustomRecurringPrice = spec.CustomRecurringPrice
	cs.Lifecycle = NewLifecycle(now, spec.EnableRecurring, def.BillingCycleDays, CashGate{
		OneOff:        CashTrack{Claimed: spec.OneOffPaidInCash},
		CurrentPeriod: CashTrack{Claimed: spec.CurrentMonthPaidInCash},
	})
	if cs.CreatedAt.IsZero() {
		cs.CreatedAt = now
	}
	cs.UpdatedAt = now
}

// RecurringAmount is the per-cycle charge: the custom price overrides the
// catalog price, multiplied by units for per-unit definitions.
func (cs *ClientService) RecurringAmount(def *ServiceDefinition) int64 {
	price := def.RecurringPrice
	if cs.CustomRecurringPrice != nil {
		price = *cs.CustomRecurringPrice
	}
	if def.RecurringPerUnit {
		return price * int64(cs.Units)
	}
	return price
}

// AmountDue is what a gateway purchase of this service currently collects and
// which cash track it settles.
func (cs *ClientService) AmountDue(def *ServiceDefinition) (int64, CashTrackKind) {
	if !cs.OneOffPricePaid && def.OneOffPrice > 0 {
		return def.OneOffPrice, CashTrackOneOff
	}
	return cs.RecurringAmount(def), CashTrackCurrentPeriod
}
