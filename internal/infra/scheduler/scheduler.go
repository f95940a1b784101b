package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"bizbilling/internal/domain"
	"bizbilling/internal/infra/logging"
	"bizbilling/internal/infra/metrics"
)

// Locker elects one runner per job across replicas.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}

// Schedule yields the next trigger strictly after t.
type Schedule interface {
	Next(t time.Time) time.Time
}

// Job is one periodic task. Run must be safe to repeat for the same now.
type Job struct {
	Name     string
	Schedule Schedule
	Run      func(ctx context.Context, now time.Time) error
	// Timeout bounds one run and the leader lock; defaults to 10 minutes.
	Timeout time.Duration
	// RunOnStart fires once immediately, which recovers runs missed while down.
	RunOnStart bool
}

// Scheduler drives jobs on wall-clock triggers until stopped.
type Scheduler struct {
	jobs    []Job
	locker  Locker
	lockKey func(job string) string
	now     func() time.Time
	log     *zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a scheduler. A nil locker runs every job locally, which is only
// correct for a single replica.
func New(locker Locker, lockKey func(job string) string, logger *zerolog.Logger) *Scheduler {
	if lockKey == nil {
		lockKey = func(job string) string { return "lock:job:" + job }
	}
	compLog := logger.With().Str("component", "Scheduler").Logger()
	return &Scheduler{locker: locker, lockKey: lockKey, now: time.Now, log: &compLog}
}

func (s *Scheduler) Add(j Job) {
	if j.Timeout <= 0 {
		j.Timeout = 10 * time.Minute
	}
	s.jobs = append(s.jobs, j)
}

// Start launches one loop per job. Calling Start twice has no effect.
func (s *Scheduler) Start(parent context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	for _, j := range s.jobs {
		s.wg.Add(1)
		go s.loop(ctx, j)
	}
	s.log.Info().Int("jobs", len(s.jobs)).Msg("scheduler started")
}

// Stop cancels every loop and waits for in-flight runs. It is idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	s.wg.Wait()
	s.log.Info().Msg("scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, j Job) {
	defer s.wg.Done()
	if j.RunOnStart {
		_ = s.RunNow(ctx, j)
	}
	for {
		next := j.Schedule.Next(s.now())
		s.log.Debug().Str("job", j.Name).Time("next_run", next).Msg("job scheduled")
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			_ = s.RunNow(ctx, j)
		}
	}
}

// RunNow executes j once under the leader lock. Losing the election is not an
// error.
func (s *Scheduler) RunNow(ctx context.Context, j Job) (err error) {
	runCtx, cancel := context.WithTimeout(ctx, j.Timeout)
	defer cancel()
	log := logging.With(runCtx, s.log).With().Str("job", j.Name).Logger()

	if s.locker != nil {
		key := s.lockKey(j.Name)
		token, lerr := s.locker.TryLock(runCtx, key, j.Timeout)
		if errors.Is(lerr, domain.ErrLockHeld) {
			metrics.IncJobRun(j.Name, "not_leader")
			log.Debug().Msg("another instance holds the job lock; skipping")
			return nil
		}
		if lerr != nil {
			metrics.IncJobRun(j.Name, "error")
			log.Error().Err(lerr).Msg("could not acquire job lock")
			return fmt.Errorf("lock %s: %w", j.Name, lerr)
		}
		defer func() {
			// The run context may be done; release with a fresh one.
			uctx, ucancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer ucancel()
			if uerr := s.locker.Unlock(uctx, key, token); uerr != nil {
				log.Warn().Err(uerr).Msg("job lock release failed; it will expire")
			}
		}()
	}

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("job %s panicked: %v", j.Name, rec)
			metrics.IncJobRun(j.Name, "error")
			log.Error().Interface("panic", rec).Msg("job panicked")
		}
	}()

	start := s.now()
	if err = j.Run(runCtx, start); err != nil {
		metrics.IncJobRun(j.Name, "error")
		log.Error().Err(err).Dur("duration", time.Since(start)).Msg("job failed")
		return err
	}
	metrics.IncJobRun(j.Name, "ok")
	metrics.SetJobLastSuccess(j.Name, s.now())
	log.Info().Dur("duration", time.Since(start)).Msg("job finished")
	return nil
}
