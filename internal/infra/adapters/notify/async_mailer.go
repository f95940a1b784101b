package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"bizbilling/internal/domain/ports/adapter"
	"bizbilling/internal/infra/metrics"
	"bizbilling/internal/infra/worker"
)

var _ adapter.EmailSender = (*AsyncMailer)(nil)

// AsyncMailer hands email delivery to a worker pool so SMTP latency never
// sits on a reconciliation or billing path. The caller only learns about
// queueing failures.
type AsyncMailer struct {
	inner   adapter.EmailSender
	pool    *worker.Pool
	timeout time.Duration
	logger  *zerolog.Logger
}

func NewAsyncMailer(inner adapter.EmailSender, pool *worker.Pool, timeout time.Duration, logger *zerolog.Logger) *AsyncMailer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	l := logger.With().Str("component", "AsyncMailer").Logger()
	return &AsyncMailer{inner: inner, pool: pool, timeout: timeout, logger: &l}
}

func (a *AsyncMailer) SendEmail(_ context.Context, to, subject, html, text string) error {
	err := a.pool.Submit(func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, a.timeout)
		defer cancel()
		if err := a.inner.SendEmail(ctx, to, subject, html, text); err != nil {
			metrics.IncNotification("email", "error")
			return fmt.Errorf("send %q: %w", subject, err)
		}
		return nil
	})
	if err != nil {
		metrics.IncNotification("email", "dropped")
		a.logger.Warn().Err(err).Str("subject", subject).Msg("email not queued")
		return err
	}
	return nil
}
