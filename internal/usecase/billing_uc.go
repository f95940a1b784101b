package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"bizbilling/internal/domain/model"
	"bizbilling/internal/domain/ports/repository"
	"bizbilling/internal/infra/metrics"
)

var _ BillingUseCase = (*billingUC)(nil)

const (
	JobCharge   = "charge"
	JobReminder = "reminder"

	// ReminderOncePerCycle sends at most one reminder per billing cycle.
	ReminderOncePerCycle = "once_per_cycle"
	// ReminderDaily re-sends every day the billing date is inside the window.
	ReminderDaily = "daily"

	noticeReminder   = "reminder"
	noticePaymentDue = "payment_due"

	dateLayout = "2006-01-02"
)

// JobReport summarizes one scheduled run.
type JobReport struct {
	Job       string
	Scanned   int
	Processed int
	Skipped   int
	Failed    int
}

// BillingUseCase holds the two daily billing jobs. Each run depends only on now
// and the stored rows.
type BillingUseCase interface {
	// RunChargeJob advances every due recurring subscription by exactly one
	// cycle and raises a payment-due notice for it.
	RunChargeJob(ctx context.Context, now time.Time) (*JobReport, error)
	// RunReminderJob sends reminders for subscriptions due within the window.
	RunReminderJob(ctx context.Context, now time.Time) (*JobReport, error)
}

type BillingConfig struct {
	Location           *time.Location
	ReminderWindowDays int
	ReminderMode       string
}

func (c BillingConfig) withDefaults() BillingConfig {
	if c.Location == nil {
		c.Location = time.UTC
	}
	if c.ReminderWindowDays <= 0 {
		c.ReminderWindowDays = 7
	}
	if c.ReminderMode != ReminderDaily {
		c.ReminderMode = ReminderOncePerCycle
	}
	return c
}

// billable is the common view of a row the jobs bill: a client service or a
// maintenance contract.
type billable struct {
	kind      string
	id        string
	userID    string
	label     string
	amount    int64
	currency  string
	cycleDays int
	due       time.Time
	next      time.Time
}

type billingUC struct {
	services     repository.ClientServiceRepository
	maintenances repository.MaintenanceRepository
	defs         repository.ServiceDefinitionRepository
	noticeLog    repository.NotificationLogRepository
	tm           repository.TransactionManager
	cfg          BillingConfig
	courier      *courier
	log          *zerolog.Logger
}

func NewBillingUseCase(
	services repository.ClientServiceRepository,
	maintenances repository.MaintenanceRepository,
	defs repository.ServiceDefinitionRepository,
	noticeLog repository.NotificationLogRepository,
	tm repository.TransactionManager,
	cfg BillingConfig,
	delivery Delivery,
	logger *zerolog.Logger,
) *billingUC {
	compLog := logger.With().Str("component", "BillingUseCase").Logger()
	return &billingUC{
		services:     services,
		maintenances: maintenances,
		defs:         defs,
		noticeLog:    noticeLog,
		tm:           tm,
		cfg:          cfg.withDefaults(),
		courier:      newCourier(delivery, &compLog),
		log:          &compLog,
	}
}

// -----------------------------
// Charge job
// -----------------------------

func (u *billingUC) RunChargeJob(ctx context.Context, now time.Time) (*JobReport, error) {
	report := &JobReport{Job: JobCharge}
	cutoff := model.StartOfDay(now, u.cfg.Location).AddDate(0, 0, 1)

	services, err := u.services.ListDue(ctx, repository.NoTX, cutoff)
	if err != nil {
		return report, fmt.Errorf("list due client services: %w", err)
	}
	maints, err := u.maintenances.ListDue(ctx, repository.NoTX, cutoff)
	if err != nil {
		return report, fmt.Errorf("list due maintenances: %w", err)
	}
	report.Scanned = len(services) + len(maints)

	for _, cs := range services {
		b, err := u.advanceService(ctx, cs.ID, cutoff)
		u.finishCharge(ctx, report, "client_service", cs.ID, b, err)
	}
	for _, m := range maints {
		b, err := u.advanceMaintenance(ctx, m.ID, cutoff)
		u.finishCharge(ctx, report, "maintenance", m.ID, b, err)
	}

	u.summarize(ctx, report)
	return report, nil
}

// advanceService re-reads the row under lock, so a row paused, cancelled or
// already advanced since the scan is skipped (nil billable).
func (u *billingUC) advanceService(ctx context.Context, id string, cutoff time.Time) (*billable, error) {
	var out *billable
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		out = nil
		cs, err := u.services.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if !cs.DueBy(cutoff) {
			return nil
		}
		def, err := u.defs.FindByID(ctx, repository.NoTX, cs.DefinitionID)
		if err != nil {
			return err
		}
		due := *cs.NextBillingDate
		next, err := cs.AdvanceCycle(def.BillingCycleDays)
		if err != nil {
			return err
		}
		cs.UpdatedAt = time.Now()
		if err := u.services.Save(ctx, tx, cs); err != nil {
			return err
		}
		out = &billable{
			kind: "client_service", id: cs.ID, userID: cs.UserID, label: def.Name,
			amount: cs.RecurringAmount(def), currency: def.Currency, cycleDays: def.BillingCycleDays,
			due: due, next: next,
		}
		return nil
	})
	return out, err
}

func (u *billingUC) advanceMaintenance(ctx context.Context, id string, cutoff time.Time) (*billable, error) {
	var out *billable
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		out = nil
		m, err := u.maintenances.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if !m.DueBy(cutoff) {
			return nil
		}
		due := *m.NextBillingDate
		next, err := m.AdvanceCycle(m.BillingCycleDays)
		if err != nil {
			return err
		}
		m.UpdatedAt = time.Now()
		if err := u.maintenances.Save(ctx, tx, m); err != nil {
			return err
		}
		out = &billable{
			kind: "maintenance", id: m.ID, userID: m.UserID, label: m.Title,
			amount: m.Amount, currency: m.Currency, cycleDays: m.BillingCycleDays,
			due: due, next: next,
		}
		return nil
	})
	return out, err
}

// finishCharge sends the payment-due notice after the advance committed.
// Delivery failures never undo the advance.
func (u *billingUC) finishCharge(ctx context.Context, report *JobReport, kind, id string, b *billable, err error) {
	log := u.log.With().Str("job", JobCharge).Str("kind", kind).Str("id", id).Logger()
	if err != nil {
		report.Failed++
		metrics.IncJobItem(JobCharge, "failed")
		log.Error().Err(err).Msg("failed to advance billing cycle")
		return
	}
	if b == nil {
		report.Skipped++
		metrics.IncJobItem(JobCharge, "skipped")
		return
	}
	report.Processed++
	metrics.IncJobItem(JobCharge, "ok")

	amount := model.FormatMoney(b.amount, b.currency)
	dueStr, nextStr := b.due.In(u.cfg.Location).Format(dateLayout), b.next.In(u.cfg.Location).Format(dateLayout)
	_ = u.courier.notify(ctx, b.userID, model.NotificationPaymentDue,
		u.courier.t("payment_due_title"),
		u.courier.t("payment_due_message", amount, b.label, nextStr))
	_ = u.courier.email(ctx, b.userID, u.courier.t("payment_due_email_subject", b.label), func(name string) string {
		return u.courier.t("payment_due_email_body", name, amount, b.label, dueStr, nextStr)
	})
	if err := u.noticeLog.Save(ctx, repository.NoTX, b.id, b.userID, noticePaymentDue, b.due); err != nil {
		log.Warn().Err(err).Msg("failed to record payment-due notice")
	}
	log.Info().Time("due", b.due).Time("next", b.next).Int64("amount", b.amount).Msg("billing cycle advanced")
}

// -----------------------------
// Reminder job
// -----------------------------

func (u *billingUC) RunReminderJob(ctx context.Context, now time.Time) (*JobReport, error) {
	report := &JobReport{Job: JobReminder}
	from := model.StartOfDay(now, u.cfg.Location)
	to := from.AddDate(0, 0, u.cfg.ReminderWindowDays+1)

	services, err := u.services.ListUpcoming(ctx, repository.NoTX, from, to)
	if err != nil {
		return report, fmt.Errorf("list upcoming client services: %w", err)
	}
	maints, err := u.maintenances.ListUpcoming(ctx, repository.NoTX, from, to)
	if err != nil {
		return report, fmt.Errorf("list upcoming maintenances: %w", err)
	}
	report.Scanned = len(services) + len(maints)

	for _, cs := range services {
		def, err := u.defs.FindByID(ctx, repository.NoTX, cs.DefinitionID)
		if err != nil {
			report.Failed++
			metrics.IncJobItem(JobReminder, "failed")
			u.log.Error().Err(err).Str("client_service_id", cs.ID).Msg("reminder skipped: definition lookup failed")
			continue
		}
		u.remind(ctx, report, billable{
			kind: "client_service", id: cs.ID, userID: cs.UserID, label: def.Name,
			amount: cs.RecurringAmount(def), currency: def.Currency, due: *cs.NextBillingDate,
		})
	}
	for _, m := range maints {
		u.remind(ctx, report, billable{
			kind: "maintenance", id: m.ID, userID: m.UserID, label: m.Title,
			amount: m.Amount, currency: m.Currency, due: *m.NextBillingDate,
		})
	}

	u.summarize(ctx, report)
	return report, nil
}

func (u *billingUC) remind(ctx context.Context, report *JobReport, b billable) {
	log := u.log.With().Str("job", JobReminder).Str("kind", b.kind).Str("id", b.id).Logger()

	if u.cfg.ReminderMode == ReminderOncePerCycle {
		sent, err := u.noticeLog.Exists(ctx, repository.NoTX, b.id, noticeReminder, b.due)
		if err != nil {
			report.Failed++
			metrics.IncJobItem(JobReminder, "failed")
			log.Error().Err(err).Msg("reminder log lookup failed")
			return
		}
		if sent {
			report.Skipped++
			metrics.IncJobItem(JobReminder, "skipped")
			return
		}
	}

	amount := model.FormatMoney(b.amount, b.currency)
	dueStr := b.due.In(u.cfg.Location).Format(dateLayout)
	if err := u.courier.notify(ctx, b.userID, model.NotificationReminder,
		u.courier.t("reminder_title"),
		u.courier.t("reminder_message", b.label, amount, dueStr)); err != nil {
		report.Failed++
		metrics.IncJobItem(JobReminder, "failed")
		return
	}
	_ = u.courier.email(ctx, b.userID, u.courier.t("reminder_email_subject", b.label), func(name string) string {
		return u.courier.t("reminder_email_body", name, b.label, amount, dueStr)
	})

	if err := u.noticeLog.Save(ctx, repository.NoTX, b.id, b.userID, noticeReminder, b.due); err != nil {
		log.Warn().Err(err).Msg("failed to record reminder")
	}
	report.Processed++
	metrics.IncJobItem(JobReminder, "ok")
	log.Debug().Str("due", dueStr).Msg("reminder sent")
}

func (u *billingUC) summarize(ctx context.Context, r *JobReport) {
	ev := u.log.Info()
	if r.Failed > 0 {
		ev = u.log.Warn()
		u.courier.alert(ctx, u.courier.t("alert_job_failed", r.Job, r.Failed, r.Scanned))
	}
	ev.Str("job", r.Job).
		Int("scanned", r.Scanned).
		Int("processed", r.Processed).
		Int("skipped", r.Skipped).
		Int("failed", r.Failed).
		Msg("billing job finished")
}
