package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"bizbilling/internal/domain"
	"bizbilling/internal/domain/model"
	"bizbilling/internal/domain/ports/repository"
	"bizbilling/internal/infra/logging"
	"bizbilling/internal/infra/metrics"
)

var _ ClientServiceUseCase = (*clientServiceUC)(nil)

// ClientServiceUseCase drives the ClientService lifecycle. Mutations that take a
// userID reject rows owned by someone else; an empty userID acts as staff.
type ClientServiceUseCase interface {
	// Provision upserts the subscription for (user, definition).
	Provision(ctx context.Context, spec model.ProvisionSpec) (*model.ClientService, error)
	ConfirmCashPayment(ctx context.Context, id string, track model.CashTrackKind, adminID string) (*model.ClientService, error)
	ReportCashPayment(ctx context.Context, id, userID string, track model.CashTrackKind) (*model.ClientService, error)
	Pause(ctx context.Context, id, userID string) (*model.ClientService, error)
	Resume(ctx context.Context, id, userID string) (*model.ClientService, error)
	Cancel(ctx context.Context, id, userID string) (*model.ClientService, error)
	Get(ctx context.Context, id, userID string) (*model.ClientService, error)
	ListByUser(ctx context.Context, userID string) ([]*model.ClientService, error)
}

type clientServiceUC struct {
	services repository.ClientServiceRepository
	defs     repository.ServiceDefinitionRepository
	tm       repository.TransactionManager
	log      *zerolog.Logger
	now      func() time.Time
}

func NewClientServiceUseCase(
	services repository.ClientServiceRepository,
	defs repository.ServiceDefinitionRepository,
	tm repository.TransactionManager,
	logger *zerolog.Logger,
) *clientServiceUC {
	compLog := logger.With().Str("component", "ClientServiceUseCase").Logger()
	return &clientServiceUC{services: services, defs: defs, tm: tm, log: &compLog, now: time.Now}
}

func (u *clientServiceUC) Provision(ctx context.Context, spec model.ProvisionSpec) (*model.ClientService, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	def, err := u.defs.FindByID(ctx, repository.NoTX, spec.DefinitionID)
	if err != nil {
		return nil, fmt.Errorf("load service definition: %w", err)
	}
	if !def.Active {
		return nil, domain.ErrInactiveDefinition
	}
	if spec.EnableRecurring && def.BillingCycleDays <= 0 {
		return nil, fmt.Errorf("definition %s has no billing cycle: %w", def.ID, domain.ErrInvalidArgument)
	}

	var out *model.ClientService
	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		cs, err := u.services.FindByUserAndDefinition(ctx, tx, spec.UserID, spec.DefinitionID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			cs = &model.ClientService{ID: uuid.NewString()}
		case err != nil:
			return err
		case cs.Status == model.ServiceStatusCancelled:
			return &domain.TransitionError{Op: "provision", From: string(cs.Status), Msg: "cannot re-provision a cancelled service"}
		}
		cs.Apply(spec, def, u.now())
		if err := u.services.Save(ctx, tx, cs); err != nil {
			return err
		}
		out = cs
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("provision client service: %w", err)
	}

	metrics.IncLifecycleTransition("client_service", "provision")
	logging.With(ctx, u.log).Info().
		Str("client_service_id", out.ID).
		Str("user_id", out.UserID).
		Str("definition_id", out.DefinitionID).
		Str("status", string(out.Status)).
		Bool("recurring", out.EnableRecurring).
		Msg("client service provisioned")
	return out, nil
}

func (u *clientServiceUC) ConfirmCashPayment(ctx context.Context, id string, track model.CashTrackKind, adminID string) (*model.ClientService, error) {
	if adminID == "" {
		return nil, domain.ErrForbidden
	}
	return u.mutate(ctx, id, "", "confirm_cash", func(cs *model.ClientService, _ *model.ServiceDefinition) (bool, error) {
		changed, err := cs.ConfirmCash(track, adminID, u.now())
		if changed {
			metrics.IncCashEvent(string(track), "confirmed")
		}
		return changed, err
	})
}

func (u *clientServiceUC) ReportCashPayment(ctx context.Context, id, userID string, track model.CashTrackKind) (*model.ClientService, error) {
	return u.mutate(ctx, id, userID, "report_cash", func(cs *model.ClientService, _ *model.ServiceDefinition) (bool, error) {
		if err := cs.ReportCash(track); err != nil {
			return false, err
		}
		metrics.IncCashEvent(string(track), "reported")
		return true, nil
	})
}

func (u *clientServiceUC) Pause(ctx context.Context, id, userID string) (*model.ClientService, error) {
	return u.mutate(ctx, id, userID, "pause", func(cs *model.ClientService, _ *model.ServiceDefinition) (bool, error) {
		return true, cs.Pause()
	})
}

func (u *clientServiceUC) Resume(ctx context.Context, id, userID string) (*model.ClientService, error) {
	return u.mutate(ctx, id, userID, "resume", func(cs *model.ClientService, def *model.ServiceDefinition) (bool, error) {
		return true, cs.Resume(u.now(), def.BillingCycleDays)
	})
}

func (u *clientServiceUC) Cancel(ctx context.Context, id, userID string) (*model.ClientService, error) {
	return u.mutate(ctx, id, userID, "cancel", func(cs *model.ClientService, _ *model.ServiceDefinition) (bool, error) {
		return true, cs.Cancel()
	})
}

// mutate runs fn on a locked row and saves it when fn reports a change.
// A failing fn leaves the stored row untouched.
func (u *clientServiceUC) mutate(ctx context.Context, id, userID, op string, fn func(cs *model.ClientService, def *model.ServiceDefinition) (bool, error)) (*model.ClientService, error) {
	var out *model.ClientService
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		cs, err := u.services.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if userID != "" && cs.UserID != userID {
			return domain.ErrNotFound
		}
		def, err := u.defs.FindByID(ctx, repository.NoTX, cs.DefinitionID)
		if err != nil {
			return err
		}
		changed, err := fn(cs, def)
		if err != nil {
			return err
		}
		if changed {
			cs.UpdatedAt = u.now()
			if err := u.services.Save(ctx, tx, cs); err != nil {
				return err
			}
		}
		out = cs
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.IncLifecycleTransition("client_service", op)
	logging.With(ctx, u.log).Info().
		Str("client_service_id", out.ID).
		Str("op", op).
		Str("status", string(out.Status)).
		Msg("client service updated")
	return out, nil
}

func (u *clientServiceUC) Get(ctx context.Context, id, userID string) (*model.ClientService, error) {
	cs, err := u.services.FindByID(ctx, repository.NoTX, id)
	if err != nil {
		return nil, err
	}
	if userID != "" && cs.UserID != userID {
		return nil, domain.ErrNotFound
	}
	return cs, nil
}

func (u *clientServiceUC) ListByUser(ctx context.Context, userID string) ([]*model.ClientService, error) {
	if userID == "" {
		return nil, domain.ErrInvalidArgument
	}
	return u.services.ListByUser(ctx, repository.NoTX, userID)
}
