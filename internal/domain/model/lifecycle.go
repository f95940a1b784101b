package model

import (
	"fmt"
	"strings"
	"time"

	"bizbilling/internal/domain"
)

type ServiceStatus string

const (
	ServiceStatusPendingPayment ServiceStatus = "PENDING_PAYMENT"
	ServiceStatusActive         ServiceStatus = "ACTIVE"
	ServiceStatusSuspended      ServiceStatus = "SUSPENDED"
	ServiceStatusCancelled      ServiceStatus = "CANCELLED"
)

// CashTrackKind selects one of the two cash-confirmation tracks.
type CashTrackKind string

const (
	CashTrackOneOff        CashTrackKind = "one_off"
	CashTrackCurrentPeriod CashTrackKind = "current_period"
)

func ParseCashTrackKind(s string) (CashTrackKind, error) {
	switch k := CashTrackKind(strings.ToLower(strings.TrimSpace(s))); k {
	case CashTrackOneOff, CashTrackCurrentPeriod:
		return k, nil
	}
	return "", fmt.Errorf("unknown cash track %q: %w", s, domain.ErrInvalidArgument)
}

// CashTrack is one half of the client-report / admin-confirm handshake.
type CashTrack struct {
	Claimed     bool
	ConfirmedAt *time.Time
	ConfirmedBy *string
}

func (t CashTrack) Confirmed() bool { return t.ConfirmedAt != nil }

// Settled reports whether the track does not block activation.
func (t CashTrack) Settled() bool { return !t.Claimed || t.Confirmed() }

// CashGate holds both tracks. The gate is open when neither track holds an
// unconfirmed claim.
type CashGate struct {
	OneOff        CashTrack
	CurrentPeriod CashTrack
}

func (g CashGate) Open() bool { return g.OneOff.Settled() && g.CurrentPeriod.Settled() }

func (g *CashGate) track(kind CashTrackKind) (*CashTrack, error) {
	switch kind {
	case CashTrackOneOff:
		return &g.OneOff, nil
	case CashTrackCurrentPeriod:
		return &g.CurrentPeriod, nil
	}
	return nil, fmt.Errorf("unknown cash track %q: %w", kind, domain.ErrInvalidArgument)
}

// Lifecycle is the status machine shared by client services and maintenance
// contracts. All transitions are guarded and leave the value untouched on error.
type Lifecycle struct {
	Status          ServiceStatus
	EnableRecurring bool
	NextBillingDate *time.Time
	Cash            CashGate
}

// NewLifecycle starts a lifecycle at now. A recurring lifecycle is first due
// one cycle later.
func NewLifecycle(now time.Time, recurring bool, cycleDays int, cash CashGate) Lifecycle {
	l := Lifecycle{EnableRecurring: recurring, Cash: cash}
	if recurring {
		next := now.AddDate(0, 0, cycleDays)
		l.NextBillingDate = &next
	}
	l.Status = ServiceStatusActive
	if !cash.Open() {
		l.Status = ServiceStatusPendingPayment
	}
	return l
}

func (l *Lifecycle) Pause() error {
	if l.Status != ServiceStatusActive {
		return &domain.TransitionError{Op: "pause", From: string(l.Status), Msg: "can only pause an active service"}
	}
	l.Status = ServiceStatusSuspended
	return nil
}

// Resume reactivates a suspended lifecycle. The suspended time is not credited:
// a recurring lifecycle is next due one full cycle from now.
func (l *Lifecycle) Resume(now time.Time, cycleDays int) error {
	if l.Status != ServiceStatusSuspended {
		return &domain.TransitionError{Op: "resume", From: string(l.Status), Msg: "can only resume a suspended service"}
	}
	l.Status = ServiceStatusActive
	if l.EnableRecurring {
		next := now.AddDate(0, 0, cycleDays)
		l.NextBillingDate = &next
	}
	return nil
}

func (l *Lifecycle) Cancel() error {
	if l.Status == ServiceStatusCancelled {
		return &domain.TransitionError{Op: "cancel", From: string(l.Status), Msg: "service is already cancelled"}
	}
	l.Status = ServiceStatusCancelled
	return nil
}

// ReportCash records the client's claim that a track was paid in cash. Any
// earlier confirmation on that track is discarded and the gate is re-evaluated,
// so an active lifecycle with a fresh unconfirmed claim drops back to
// PENDING_PAYMENT.
func (l *Lifecycle) ReportCash(kind CashTrackKind) error {
	if l.Status == ServiceStatusCancelled {
		return &domain.TransitionError{Op: "report cash", From: string(l.Status), Msg: "cannot report cash for a cancelled service"}
	}
	t, err := l.Cash.track(kind)
	if err != nil {
		return err
	}
	*t = CashTrack{Claimed: true}
	l.reevaluate()
	return nil
}

// ConfirmCash is the admin side of the handshake. Confirming an already
// confirmed track is a no-op and reports changed=false.
func (l *Lifecycle) ConfirmCash(kind CashTrackKind, by string, at time.Time) (bool, error) {
	if l.Status == ServiceStatusCancelled {
		return false, &domain.TransitionError{Op: "confirm cash", From: string(l.Status), Msg: "cannot confirm cash for a cancelled service"}
	}
	t, err := l.Cash.track(kind)
	if err != nil {
		return false, err
	}
	if !t.Claimed {
		return false, domain.ErrCashNotClaimed
	}
	if t.Confirmed() {
		return false, nil
	}
	t.ConfirmedAt = &at
	t.ConfirmedBy = &by
	l.reevaluate()
	return true, nil
}

// SettleByGateway clears the cash claim on a track that was paid through the
// gateway and activates a pending lifecycle once the gate is open. Suspended
// lifecycles stay suspended.
func (l *Lifecycle) SettleByGateway(kind CashTrackKind) error {
	if l.Status == ServiceStatusCancelled {
		return &domain.TransitionError{Op: "activate", From: string(l.Status), Msg: "cannot activate a cancelled service"}
	}
	t, err := l.Cash.track(kind)
	if err != nil {
		return err
	}
	*t = CashTrack{}
	l.reevaluate()
	return nil
}

// reevaluate recomputes the gate from scratch. Only PENDING_PAYMENT and ACTIVE
// are driven by the gate.
func (l *Lifecycle) reevaluate() {
	switch l.Status {
	case ServiceStatusPendingPayment, ServiceStatusActive:
		if l.Cash.Open() {
			l.Status = ServiceStatusActive
		} else {
			l.Status = ServiceStatusPendingPayment
		}
	}
}

// Billable reports whether the lifecycle takes part in recurring billing.
func (l Lifecycle) Billable() bool {
	return l.Status == ServiceStatusActive && l.EnableRecurring && l.NextBillingDate != nil
}

// DueBy reports whether the lifecycle is billable and due strictly before cutoff.
func (l Lifecycle) DueBy(cutoff time.Time) bool {
	return l.Billable() && l.NextBillingDate.Before(cutoff)
}

// AdvanceCycle moves the billing date forward by exactly one cycle from the
// previous billing date and opens a fresh current-period cash track.
func (l *Lifecycle) AdvanceCycle(cycleDays int) (time.Time, error) {
	if !l.Billable() {
		return time.Time{}, &domain.TransitionError{Op: "advance", From: string(l.Status), Msg: "can only advance an active recurring service"}
	}
	if cycleDays <= 0 {
		return time.Time{}, domain.ErrInvalidArgument
	}
	next := l.NextBillingDate.AddDate(0, 0, cycleDays)
	l.NextBillingDate = &next
	l.Cash.CurrentPeriod = CashTrack{}
	return next, nil
}

// StartOfDay truncates t to midnight in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
