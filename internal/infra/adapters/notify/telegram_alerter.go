package notify

import (
	"context"
	"errors"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"bizbilling/internal/domain/ports/adapter"
	"bizbilling/internal/infra/metrics"
)

var _ adapter.OperatorAlerter = (*TelegramAlerter)(nil)

// Telegram rejects longer messages.
const maxTelegramText = 4096

type botSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramAlerter posts operator alerts into one chat.
type TelegramAlerter struct {
	bot    botSender
	chatID int64
	logger *zerolog.Logger
}

func NewTelegramAlerter(token string, chatID int64, logger *zerolog.Logger) (*TelegramAlerter, error) {
	if token == "" || chatID == 0 {
		return nil, errors.New("telegram: token and alert chat id are required")
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return newTelegramAlerter(bot, chatID, logger), nil
}

func newTelegramAlerter(bot botSender, chatID int64, logger *zerolog.Logger) *TelegramAlerter {
	l := logger.With().Str("component", "TelegramAlerter").Logger()
	return &TelegramAlerter{bot: bot, chatID: chatID, logger: &l}
}

func (t *TelegramAlerter) Alert(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(t.chatID, truncate(text, maxTelegramText))
	msg.DisableWebPagePreview = true
	if _, err := t.bot.Send(msg); err != nil {
		metrics.IncNotification("operator", "error")
		t.logger.Error().Err(err).Msg("operator alert failed")
		return err
	}
	metrics.IncNotification("operator", "sent")
	return nil
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max-1]) + "…"
}
