package notify

import (
	"context"
	"errors"

	"gopkg.in/gomail.v2"

	"bizbilling/internal/config"
	"bizbilling/internal/domain/ports/adapter"
)

var _ adapter.EmailSender = (*SMTPMailer)(nil)

type dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPMailer sends multipart (text + HTML) mail through one SMTP relay.
type SMTPMailer struct {
	from   string
	dialer dialer
}

func NewSMTPMailer(cfg config.EmailConfig) (*SMTPMailer, error) {
	if cfg.Host == "" || cfg.From == "" {
		return nil, errors.New("smtp: host and from are required")
	}
	return &SMTPMailer{
		from:   cfg.From,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
	}, nil
}

func (m *SMTPMailer) SendEmail(ctx context.Context, to, subject, html, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", text)
	if html != "" {
		msg.AddAlternative("text/html", html)
	}
	return m.dialer.DialAndSend(msg)
}
