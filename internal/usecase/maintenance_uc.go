package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"bizbilling/internal/domain"
	"bizbilling/internal/domain/model"
	"bizbilling/internal/domain/ports/repository"
	"bizbilling/internal/infra/metrics"
)

var _ MaintenanceUseCase = (*maintenanceUC)(nil)

type MaintenanceSpec struct {
	ProjectID        string
	UserID           string
	Title            string
	Amount           int64
	Currency         string
	BillingCycleDays int
	EnableRecurring  bool
	PaidInCash       bool
}

// MaintenanceUseCase manages maintenance contracts with the same lifecycle and
// cash handshake as client services.
type MaintenanceUseCase interface {
	Create(ctx context.Context, spec MaintenanceSpec) (*model.Maintenance, error)
	Get(ctx context.Context, id string) (*model.Maintenance, error)
	ConfirmCashPayment(ctx context.Context, id string, track model.CashTrackKind, adminID string) (*model.Maintenance, error)
	ReportCashPayment(ctx context.Context, id, userID string, track model.CashTrackKind) (*model.Maintenance, error)
	Pause(ctx context.Context, id string) (*model.Maintenance, error)
	Resume(ctx context.Context, id string) (*model.Maintenance, error)
	Cancel(ctx context.Context, id string) (*model.Maintenance, error)
}

type maintenanceUC struct {
	repo     repository.MaintenanceRepository
	tm       repository.TransactionManager
	currency string
	log      *zerolog.Logger
	now      func() time.Time
}

func NewMaintenanceUseCase(repo repository.MaintenanceRepository, tm repository.TransactionManager, defaultCurrency string, logger *zerolog.Logger) *maintenanceUC {
	compLog := logger.With().Str("component", "MaintenanceUseCase").Logger()
	return &maintenanceUC{repo: repo, tm: tm, currency: defaultCurrency, log: &compLog, now: time.Now}
}

func (u *maintenanceUC) Create(ctx context.Context, spec MaintenanceSpec) (*model.Maintenance, error) {
	if spec.Currency == "" {
		spec.Currency = u.currency
	}
	m, err := model.NewMaintenance(uuid.NewString(), spec.ProjectID, spec.UserID, spec.Title, spec.Amount,
		spec.Currency, spec.BillingCycleDays, spec.EnableRecurring, spec.PaidInCash, u.now())
	if err != nil {
		return nil, err
	}
	if err := u.repo.Save(ctx, repository.NoTX, m); err != nil {
		return nil, err
	}
	metrics.IncLifecycleTransition("maintenance", "create")
	u.log.Info().Str("maintenance_id", m.ID).Str("project_id", m.ProjectID).Str("status", string(m.Status)).Msg("maintenance created")
	return m, nil
}

func (u *maintenanceUC) Get(ctx context.Context, id string) (*model.Maintenance, error) {
	return u.repo.FindByID(ctx, repository.NoTX, id)
}

func (u *maintenanceUC) ConfirmCashPayment(ctx context.Context, id string, track model.CashTrackKind, adminID string) (*model.Maintenance, error) {
	if adminID == "" {
		return nil, domain.ErrForbidden
	}
	return u.mutate(ctx, id, "", "confirm_cash", func(m *model.Maintenance) (bool, error) {
		changed, err := m.ConfirmCash(track, adminID, u.now())
		if changed {
			metrics.IncCashEvent(string(track), "confirmed")
		}
		return changed, err
	})
}

func (u *maintenanceUC) ReportCashPayment(ctx context.Context, id, userID string, track model.CashTrackKind) (*model.Maintenance, error) {
	return u.mutate(ctx, id, userID, "report_cash", func(m *model.Maintenance) (bool, error) {
		if err := m.ReportCash(track); err != nil {
			return false, err
		}
		metrics.IncCashEvent(string(track), "reported")
		return true, nil
	})
}

func (u *maintenanceUC) Pause(ctx context.Context, id string) (*model.Maintenance, error) {
	return u.mutate(ctx, id, "", "pause", func(m *model.Maintenance) (bool, error) { return true, m.Pause() })
}

func (u *maintenanceUC) Resume(ctx context.Context, id string) (*model.Maintenance, error) {
	return u.mutate(ctx, id, "", "resume", func(m *model.Maintenance) (bool, error) {
		return true, m.Resume(u.now(), m.BillingCycleDays)
	})
}

func (u *maintenanceUC) Cancel(ctx context.Context, id string) (*model.Maintenance, error) {
	return u.mutate(ctx, id, "", "cancel", func(m *model.Maintenance) (bool, error) { return true, m.Cancel() })
}

func (u *maintenanceUC) mutate(ctx context.Context, id, userID, op string, fn func(m *model.Maintenance) (bool, error)) (*model.Maintenance, error) {
	var out *model.Maintenance
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		m, err := u.repo.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if userID != "" && m.UserID != userID {
			return domain.ErrNotFound
		}
		changed, err := fn(m)
		if err != nil {
			return err
		}
		if changed {
			m.UpdatedAt = u.now()
			if err := u.repo.Save(ctx, tx, m); err != nil {
				return err
			}
		}
		out = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.IncLifecycleTransition("maintenance", op)
	u.log.Info().Str("maintenance_id", out.ID).Str("op", op).Str("status", string(out.Status)).Msg("maintenance updated")
	return out, nil
}
