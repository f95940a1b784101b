package postgres

import "bizbilling/internal/domain/model"

// Both client_services and maintenances persist a model.Lifecycle with the same
// column set, in this order.
const lifecycleColumns = `status, enable_recurring, next_billing_date,
  one_off_cash_claimed, one_off_confirmed_at, one_off_confirmed_by,
  period_cash_claimed, period_confirmed_at, period_confirmed_by`

func lifecycleArgs(l *model.Lifecycle) []interface{} {
	return []interface{}{
		l.Status, l.EnableRecurring, l.NextBillingDate,
		l.Cash.OneOff.Claimed, l.Cash.OneOff.ConfirmedAt, l.Cash.OneOff.ConfirmedBy,
		l.Cash.CurrentPeriod.Claimed, l.Cash.CurrentPeriod.ConfirmedAt, l.Cash.CurrentPeriod.ConfirmedBy,
	}
}

func lifecycleDest(l *model.Lifecycle) []interface{} {
	return []interface{}{
		&l.Status, &l.EnableRecurring, &l.NextBillingDate,
		&l.Cash.OneOff.Claimed, &l.Cash.OneOff.ConfirmedAt, &l.Cash.OneOff.ConfirmedBy,
		&l.Cash.CurrentPeriod.Claimed, &l.Cash.CurrentPeriod.ConfirmedAt, &l.Cash.CurrentPeriod.ConfirmedBy,
	}
}
