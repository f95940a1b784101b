package notify

import (
	"context"

	"github.com/rs/zerolog"
)

// LogMailer stands in for SMTP when no relay is configured.
type LogMailer struct{ logger *zerolog.Logger }

func NewLogMailer(logger *zerolog.Logger) *LogMailer {
	l := logger.With().Str("component", "LogMailer").Logger()
	return &LogMailer{logger: &l}
}

func (m *LogMailer) SendEmail(_ context.Context, to, subject, _, _ string) error {
	m.logger.Info().Str("subject", subject).Bool("has_recipient", to != "").Msg("email suppressed: smtp not configured")
	return nil
}

// LogAlerter writes operator alerts to the log when Telegram is not configured.
type LogAlerter struct{ logger *zerolog.Logger }

func NewLogAlerter(logger *zerolog.Logger) *LogAlerter {
	l := logger.With().Str("component", "LogAlerter").Logger()
	return &LogAlerter{logger: &l}
}

func (a *LogAlerter) Alert(_ context.Context, text string) error {
	a.logger.Error().Str("alert", text).Msg("operator alert")
	return nil
}
