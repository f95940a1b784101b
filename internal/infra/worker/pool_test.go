//go:build !integration

package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
)

func TestPool(t *testing.T) {
	nop := zerolog.Nop()

	t.Run("runs submitted tasks and drains on stop", func(t *testing.T) {
		p := NewPool("test", 2, &nop)
		p.Start(context.Background())
		var ran int32
		for i := 0; i < 6; i++ {
			if err := p.Submit(func(ctx context.Context) error {
				atomic.AddInt32(&ran, 1)
				return nil
			}); err != nil {
				t.Fatalf("submit %d: %v", i, err)
			}
		}
		p.Stop()
		if got := atomic.LoadInt32(&ran); got != 6 {
			t.Errorf("expected 6 tasks to run, got %d", got)
		}
		p.Stop()
	})

	t.Run("full queue rejects without blocking", func(t *testing.T) {
		p := NewPool("test", 1, &nop) // not started: nothing consumes
		var err error
		for i := 0; i < 10 && err == nil; i++ {
			err = p.Submit(func(ctx context.Context) error { return nil })
		}
		if !errors.Is(err, ErrQueueFull) {
			t.Errorf("expected ErrQueueFull, got %v", err)
		}
	})

	t.Run("a panicking task does not kill the worker", func(t *testing.T) {
		p := NewPool("test", 1, &nop)
		p.Start(context.Background())
		var ran int32
		_ = p.Submit(func(ctx context.Context) error { panic("boom") })
		_ = p.Submit(func(ctx context.Context) error {
			atomic.AddInt32(&ran, 1)
			return nil
		})
		p.Stop()
		if atomic.LoadInt32(&ran) != 1 {
			t.Error("expected the second task to run")
		}
	})
}
