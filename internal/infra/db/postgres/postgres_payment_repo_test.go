//go:build integration

package postgres

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"

	"bizbilling/internal/domain"
	"bizbilling/internal/domain/model"
	"bizbilling/internal/domain/ports/repository"
)

func newTestPayment(t *testing.T, ref string, createdAt time.Time) *model.Payment {
	t.Helper()
	p, err := model.NewPendingPayment(uuid.NewString(), 2500, "USD", "ecocash", ref, createdAt.UTC().Truncate(time.Microsecond))
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestPaymentRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}
	ctx := context.Background()
	repo := NewPaymentRepo(testPool)
	tm := NewTxManager(testPool)

	t.Run("should save and find a payment", func(t *testing.T) {
		cleanup(t)
		p := newTestPayment(t, "PAY-1", time.Now())
		if err := repo.Save(ctx, nil, p); err != nil {
			t.Fatalf("Failed to save payment: %v", err)
		}

		byRef, err := repo.FindByReference(ctx, nil, "PAY-1")
		if err != nil {
			t.Fatalf("FindByReference failed: %v", err)
		}
		if byRef.ID != p.ID || byRef.Status != model.PaymentStatusPending || byRef.Amount != 2500 {
			t.Errorf("unexpected payment %+v", byRef)
		}
		if _, err := repo.FindByID(ctx, nil, p.ID); err != nil {
			t.Errorf("FindByID failed: %v", err)
		}
	})

	t.Run("duplicate reference is rejected", func(t *testing.T) {
		cleanup(t)
		_ = repo.Save(ctx, nil, newTestPayment(t, "PAY-DUP", time.Now()))
		err := repo.Save(ctx, nil, newTestPayment(t, "PAY-DUP", time.Now()))
		if !errors.Is(err, domain.ErrAlreadyExists) {
			t.Errorf("expected ErrAlreadyExists, got %v", err)
		}
	})

	t.Run("unknown reference is not found", func(t *testing.T) {
		cleanup(t)
		if _, err := repo.FindByReference(ctx, nil, "missing"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("SetPollHandle stores the handle", func(t *testing.T) {
		cleanup(t)
		p := newTestPayment(t, "PAY-POLL", time.Now())
		_ = repo.Save(ctx, nil, p)
		if err := repo.SetPollHandle(ctx, nil, p.ID, "https://gw/poll/1"); err != nil {
			t.Fatal(err)
		}
		got, _ := repo.FindByID(ctx, nil, p.ID)
		if got.PollHandle != "https://gw/poll/1" {
			t.Errorf("expected poll handle to be stored, got %q", got.PollHandle)
		}
	})

	t.Run("only one concurrent transition wins", func(t *testing.T) {
		cleanup(t)
		p := newTestPayment(t, "PAY-RACE", time.Now())
		_ = repo.Save(ctx, nil, p)

		var wins int32
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				err := tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
					cur, err := repo.FindByReference(ctx, tx, "PAY-RACE")
					if err != nil {
						return err
					}
					if !cur.MarkPaid("ext-1", time.Now().UTC()) {
						return nil
					}
					ok, err := repo.UpdateStatusIfPending(ctx, tx, cur)
					if ok {
						atomic.AddInt32(&wins, 1)
					}
					return err
				})
				if err != nil {
					t.Errorf("worker %d: %v", i, err)
				}
			}(i)
		}
		wg.Wait()

		if wins != 1 {
			t.Errorf("expected exactly one transition, got %d", wins)
		}
		got, _ := repo.FindByID(ctx, nil, p.ID)
		if got.Status != model.PaymentStatusPaid || got.ExternalTxnID == nil || *got.ExternalTxnID != "ext-1" || got.CompletedAt == nil {
			t.Errorf("unexpected final payment %+v", got)
		}
	})

	t.Run("terminal payments are not overwritten", func(t *testing.T) {
		cleanup(t)
		p := newTestPayment(t, "PAY-TERM", time.Now())
		_ = repo.Save(ctx, nil, p)
		p.MarkFailed("cancelled", time.Now().UTC())
		if ok, err := repo.UpdateStatusIfPending(ctx, nil, p); err != nil || !ok {
			t.Fatalf("first transition should win: %v %v", ok, err)
		}
		again := *p
		again.Status = model.PaymentStatusPaid
		if ok, _ := repo.UpdateStatusIfPending(ctx, nil, &again); ok {
			t.Error("a terminal payment must not transition again")
		}
	})

	t.Run("ListPendingOlderThan returns stale pending payments only", func(t *testing.T) {
		cleanup(t)
		now := time.Now()
		stale := newTestPayment(t, "PAY-OLD", now.Add(-time.Hour))
		fresh := newTestPayment(t, "PAY-NEW", now)
		done := newTestPayment(t, "PAY-DONE", now.Add(-time.Hour))
		for _, p := range []*model.Payment{stale, fresh, done} {
			if err := repo.Save(ctx, nil, p); err != nil {
				t.Fatal(err)
			}
		}
		done.MarkPaid("", now)
		_, _ = repo.UpdateStatusIfPending(ctx, nil, done)

		got, err := repo.ListPendingOlderThan(ctx, nil, now.Add(-15*time.Minute), 10)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 1 || got[0].Reference != "PAY-OLD" {
			t.Errorf("expected only PAY-OLD, got %v", got)
		}
	})
}

func TestOrderRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}
	ctx := context.Background()
	payments := NewPaymentRepo(testPool)
	repo := NewOrderRepo(testPool)
	cleanup(t)

	p := newTestPayment(t, "PAY-ORD", time.Now())
	if err := payments.Save(ctx, nil, p); err != nil {
		t.Fatal(err)
	}
	o, err := model.NewOrder(uuid.NewString(), p, "user-1", model.Item{Kind: model.ItemProduct, ID: "sku-1"}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if err := repo.Save(ctx, nil, o); err != nil {
		t.Fatalf("save order: %v", err)
	}

	byPayment, err := repo.FindByPaymentID(ctx, nil, p.ID)
	if err != nil || byPayment.Item.Kind != model.ItemProduct || byPayment.Quantity != 2 {
		t.Fatalf("unexpected order %+v %v", byPayment, err)
	}
	if err := repo.UpdateStatus(ctx, nil, o.ID, model.OrderStatusCompleted); err != nil {
		t.Fatal(err)
	}
	byRef, _ := repo.FindByReference(ctx, nil, "PAY-ORD")
	if byRef.Status != model.OrderStatusCompleted {
		t.Errorf("expected COMPLETED, got %s", byRef.Status)
	}
	if err := repo.UpdateStatus(ctx, nil, "missing", model.OrderStatusFailed); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if byRef.Settles != "" {
		t.Errorf("expected a product order to settle no track, got %q", byRef.Settles)
	}

	sp := newTestPayment(t, "PAY-SVC", time.Now())
	if err := payments.Save(ctx, nil, sp); err != nil {
		t.Fatal(err)
	}
	so, _ := model.NewOrder(uuid.NewString(), sp, "user-1", model.Item{Kind: model.ItemService, ID: "cs-1"}, 1)
	so.Settles = model.CashTrackCurrentPeriod
	if err := repo.Save(ctx, nil, so); err != nil {
		t.Fatalf("save service order: %v", err)
	}
	got, err := repo.FindByPaymentID(ctx, nil, sp.ID)
	if err != nil || got.Settles != model.CashTrackCurrentPeriod {
		t.Errorf("expected the settled track to round-trip, got %+v %v", got, err)
	}
}

func TestTxManager_RollsBackOnError(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}
	ctx := context.Background()
	repo := NewPaymentRepo(testPool)
	tm := NewTxManager(testPool)
	cleanup(t)

	boom := errors.New("boom")
	err := tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := repo.Save(ctx, tx, newTestPayment(t, "PAY-RB", time.Now())); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected the callback error, got %v", err)
	}
	if _, err := repo.FindByReference(ctx, nil, "PAY-RB"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected the insert to be rolled back, got %v", err)
	}
}
