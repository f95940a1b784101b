//go:build !integration

package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"bizbilling/internal/domain"
	"bizbilling/internal/usecase"
)

type fakeLocker struct {
	mu       sync.Mutex
	held     map[string]string
	lockErr  error
	unlocked []string
}

func newFakeLocker() *fakeLocker { return &fakeLocker{held: map[string]string{}} }

func (l *fakeLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.lockErr != nil {
		return "", l.lockErr
	}
	if _, ok := l.held[key]; ok {
		return "", domain.ErrLockHeld
	}
	l.held[key] = "tok-" + key
	return l.held[key], nil
}

func (l *fakeLocker) Unlock(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == token {
		delete(l.held, key)
	}
	l.unlocked = append(l.unlocked, key)
	return nil
}

func nopLogger() *zerolog.Logger { l := zerolog.Nop(); return &l }

func TestDaily_Next(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	d, err := ParseDaily("09:30", loc)
	if err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"before today's trigger", time.Date(2025, 3, 10, 5, 0, 0, 0, loc), time.Date(2025, 3, 10, 9, 30, 0, 0, loc)},
		{"exactly at the trigger moves to tomorrow", time.Date(2025, 3, 10, 9, 30, 0, 0, loc), time.Date(2025, 3, 11, 9, 30, 0, 0, loc)},
		{"after the trigger", time.Date(2025, 3, 10, 23, 0, 0, 0, loc), time.Date(2025, 3, 11, 9, 30, 0, 0, loc)},
		{"month rollover", time.Date(2025, 1, 31, 10, 0, 0, 0, loc), time.Date(2025, 2, 1, 9, 30, 0, 0, loc)},
		// 07:00 UTC is 10:00 local, already past the trigger.
		{"input in another zone", time.Date(2025, 3, 10, 7, 0, 0, 0, time.UTC), time.Date(2025, 3, 11, 9, 30, 0, 0, loc)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := d.Next(tc.now); !got.Equal(tc.want) {
				t.Errorf("want %s, got %s", tc.want, got)
			}
		})
	}
}

func TestDaily_NextAcrossDST(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	d := Daily{Hour: 9, Minute: 0, Loc: loc}
	// Clocks jump forward on 2025-03-30.
	got := d.Next(time.Date(2025, 3, 29, 12, 0, 0, 0, loc))
	if got.Hour() != 9 || got.Day() != 30 {
		t.Errorf("expected 09:00 local on the 30th, got %s", got)
	}
}

func TestParseDaily_Rejects(t *testing.T) {
	if _, err := ParseDaily("25:00", time.UTC); err == nil {
		t.Error("expected an error for an invalid hour")
	}
}

func TestEvery_Next(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	if got := Every(5 * time.Minute).Next(now); !got.Equal(now.Add(5 * time.Minute)) {
		t.Errorf("unexpected next %s", got)
	}
	if got := Every(0).Next(now); !got.Equal(now.Add(time.Minute)) {
		t.Errorf("zero interval should default to a minute, got %s", got)
	}
}

func TestRunNow(t *testing.T) {
	ctx := context.Background()

	t.Run("runs under the lock and releases it", func(t *testing.T) {
		locker := newFakeLocker()
		s := New(locker, nil, nopLogger())
		fixed := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
		s.now = func() time.Time { return fixed }

		var got time.Time
		err := s.RunNow(ctx, Job{Name: "charge", Timeout: time.Second, Run: func(ctx context.Context, now time.Time) error {
			got = now
			if _, held := locker.held["lock:job:charge"]; !held {
				t.Error("job ran without holding the lock")
			}
			return nil
		}})
		if err != nil {
			t.Fatal(err)
		}
		if !got.Equal(fixed) {
			t.Errorf("job should see the scheduler clock, got %s", got)
		}
		if len(locker.held) != 0 || len(locker.unlocked) != 1 {
			t.Errorf("lock not released: held=%v unlocked=%v", locker.held, locker.unlocked)
		}
	})

	t.Run("another leader skips the run", func(t *testing.T) {
		locker := newFakeLocker()
		locker.held["lock:job:charge"] = "someone-else"
		s := New(locker, nil, nopLogger())

		ran := false
		err := s.RunNow(ctx, Job{Name: "charge", Timeout: time.Second, Run: func(context.Context, time.Time) error {
			ran = true
			return nil
		}})
		if err != nil || ran {
			t.Errorf("expected a silent skip, ran=%v err=%v", ran, err)
		}
	})

	t.Run("lock backend failure is reported and the job does not run", func(t *testing.T) {
		locker := newFakeLocker()
		locker.lockErr = errors.New("redis down")
		s := New(locker, nil, nopLogger())

		ran := false
		err := s.RunNow(ctx, Job{Name: "charge", Timeout: time.Second, Run: func(context.Context, time.Time) error {
			ran = true
			return nil
		}})
		if err == nil || ran {
			t.Errorf("expected an error without a run, ran=%v err=%v", ran, err)
		}
	})

	t.Run("job error is returned and the lock released", func(t *testing.T) {
		locker := newFakeLocker()
		s := New(locker, nil, nopLogger())
		boom := errors.New("boom")
		if err := s.RunNow(ctx, Job{Name: "reminder", Timeout: time.Second, Run: func(context.Context, time.Time) error { return boom }}); !errors.Is(err, boom) {
			t.Errorf("expected boom, got %v", err)
		}
		if len(locker.held) != 0 {
			t.Error("lock must be released after a failure")
		}
	})

	t.Run("panics are recovered", func(t *testing.T) {
		s := New(nil, nil, nopLogger())
		err := s.RunNow(ctx, Job{Name: "sweep", Timeout: time.Second, Run: func(context.Context, time.Time) error { panic("bad row") }})
		if err == nil {
			t.Error("expected the panic to surface as an error")
		}
	})

	t.Run("custom lock key", func(t *testing.T) {
		locker := newFakeLocker()
		s := New(locker, func(job string) string { return "billing:" + job }, nopLogger())
		_ = s.RunNow(ctx, Job{Name: "charge", Timeout: time.Second, Run: func(context.Context, time.Time) error { return nil }})
		if len(locker.unlocked) != 1 || locker.unlocked[0] != "billing:charge" {
			t.Errorf("unexpected lock keys %v", locker.unlocked)
		}
	})
}

func TestStartStop(t *testing.T) {
	s := New(newFakeLocker(), nil, nopLogger())
	var runs atomic.Int32
	started := make(chan struct{}, 1)
	s.Add(Job{
		Name:       "sweep",
		Schedule:   Every(time.Hour),
		RunOnStart: true,
		Run: func(ctx context.Context, now time.Time) error {
			runs.Add(1)
			select {
			case started <- struct{}{}:
			default:
			}
			return nil
		},
	})

	s.Start(context.Background())
	s.Start(context.Background())
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("RunOnStart job did not run")
	}
	s.Stop()
	s.Stop()

	if n := runs.Load(); n != 1 {
		t.Errorf("expected exactly one run, got %d", n)
	}
}

func TestAdd_DefaultsTimeout(t *testing.T) {
	s := New(nil, nil, nopLogger())
	s.Add(Job{Name: "x", Schedule: Every(time.Minute), Run: func(context.Context, time.Time) error { return nil }})
	if s.jobs[0].Timeout != 10*time.Minute {
		t.Errorf("expected default timeout, got %s", s.jobs[0].Timeout)
	}
}

type fakeBilling struct {
	chargeAt, remindAt time.Time
}

func (f *fakeBilling) RunChargeJob(ctx context.Context, now time.Time) (*usecase.JobReport, error) {
	f.chargeAt = now
	return &usecase.JobReport{Job: usecase.JobCharge}, nil
}

func (f *fakeBilling) RunReminderJob(ctx context.Context, now time.Time) (*usecase.JobReport, error) {
	f.remindAt = now
	return nil, errors.New("db down")
}

func TestBillingJobs(t *testing.T) {
	uc := &fakeBilling{}
	at, _ := ParseDaily("00:00", time.UTC)
	now := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	charge := ChargeJob(uc, at)
	if charge.Name != JobCharge {
		t.Errorf("unexpected charge job %+v", charge)
	}
	if charge.RunOnStart {
		t.Error("a restart must not advance overdue subscriptions an extra cycle")
	}
	if err := charge.Run(context.Background(), now); err != nil || !uc.chargeAt.Equal(now) {
		t.Errorf("charge job did not pass now through: %v", err)
	}

	reminder := ReminderJob(uc, at)
	if reminder.RunOnStart {
		t.Error("reminders must not fire on every restart")
	}
	if err := reminder.Run(context.Background(), now); err == nil {
		t.Error("expected the reminder error to surface")
	}
}
