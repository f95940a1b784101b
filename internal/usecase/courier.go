package usecase

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/rs/zerolog"

	"bizbilling/internal/domain/model"
	"bizbilling/internal/domain/ports/adapter"
	"bizbilling/internal/domain/ports/repository"
	"bizbilling/internal/infra/i18n"
	"bizbilling/internal/infra/metrics"
)

// Delivery bundles the outbound collaborators shared by the use cases.
// Every send through it is best-effort.
type Delivery struct {
	Notifier adapter.Notifier
	Mailer   adapter.EmailSender
	Alerter  adapter.OperatorAlerter
	Users    repository.UserRepository
	Text     *i18n.Translator
}

type courier struct {
	d   Delivery
	log *zerolog.Logger
}

func newCourier(d Delivery, log *zerolog.Logger) *courier {
	return &courier{d: d, log: log}
}

func (c *courier) t(key string, args ...interface{}) string {
	if c.d.Text == nil {
		return key
	}
	return c.d.Text.T(key, args...)
}

// notify sends an in-app notification and reports the failure to the caller
// after logging it.
func (c *courier) notify(ctx context.Context, userID string, typ model.NotificationType, title, message string) error {
	if c.d.Notifier == nil {
		return nil
	}
	if err := c.d.Notifier.Notify(ctx, userID, typ, title, message); err != nil {
		metrics.IncNotification("in_app", "error")
		c.log.Warn().Err(err).Str("user_id", userID).Str("type", string(typ)).Msg("notification failed")
		return err
	}
	metrics.IncNotification("in_app", "sent")
	return nil
}

// email resolves the user's address and sends subject/body as text and HTML.
func (c *courier) email(ctx context.Context, userID, subject string, body func(name string) string) error {
	if c.d.Mailer == nil || c.d.Users == nil {
		return nil
	}
	u, err := c.d.Users.FindByID(ctx, repository.NoTX, userID)
	if err != nil {
		metrics.IncNotification("email", "dropped")
		c.log.Warn().Err(err).Str("user_id", userID).Msg("email skipped: user lookup failed")
		return err
	}
	if u.Email == "" {
		metrics.IncNotification("email", "dropped")
		return nil
	}
	name := u.FullName
	if name == "" {
		name = u.Email
	}
	text := body(name)
	if err := c.d.Mailer.SendEmail(ctx, u.Email, subject, renderHTML(text), text); err != nil {
		metrics.IncNotification("email", "error")
		c.log.Warn().Err(err).Str("user_id", userID).Str("subject", subject).Msg("email failed")
		return err
	}
	metrics.IncNotification("email", "sent")
	return nil
}

func (c *courier) alert(ctx context.Context, text string) {
	if c.d.Alerter == nil {
		return
	}
	if err := c.d.Alerter.Alert(ctx, text); err != nil {
		metrics.IncNotification("operator", "error")
		c.log.Error().Err(err).Msg("operator alert failed")
		return
	}
	metrics.IncNotification("operator", "sent")
}

func renderHTML(text string) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	for _, para := range strings.Split(text, "\n\n") {
		fmt.Fprintf(&b, "<p>%s</p>", strings.ReplaceAll(html.EscapeString(para), "\n", "<br>"))
	}
	b.WriteString("</body></html>")
	return b.String()
}
