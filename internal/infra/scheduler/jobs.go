package scheduler

import (
	"context"
	"time"

	"bizbilling/internal/usecase"
)

const (
	JobCharge       = usecase.JobCharge
	JobReminder     = usecase.JobReminder
	JobPaymentSweep = "payment_sweep"
)

// ChargeJob advances due subscriptions by one cycle per run. It only fires
// on its daily trigger: an extra run at startup would advance an overdue
// subscription one more cycle on every restart.
func ChargeJob(uc usecase.BillingUseCase, at Daily) Job {
	return Job{
		Name:     JobCharge,
		Schedule: at,
		Run: func(ctx context.Context, now time.Time) error {
			_, err := uc.RunChargeJob(ctx, now)
			return err
		},
	}
}

func ReminderJob(uc usecase.BillingUseCase, at Daily) Job {
	return Job{
		Name:     JobReminder,
		Schedule: at,
		Run: func(ctx context.Context, now time.Time) error {
			_, err := uc.RunReminderJob(ctx, now)
			return err
		},
	}
}

// PaymentSweepJob settles PENDING payments whose webhook never arrived.
func PaymentSweepJob(uc usecase.PaymentUseCase, every time.Duration) Job {
	return Job{
		Name:       JobPaymentSweep,
		Schedule:   Every(every),
		RunOnStart: true,
		Timeout:    every,
		Run: func(ctx context.Context, now time.Time) error {
			_, err := uc.SweepStale(ctx, now)
			return err
		},
	}
}
