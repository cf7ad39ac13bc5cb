package notify

import (
	"context"
	"errors"
	"strings"

	tele "gopkg.in/telebot.v4"

	"dosewatch/internal/dose"
	"dosewatch/internal/storage"
)

// TelegramConfig configures the optional Telegram channel. Owners opt
// in by having a chat ID on record.
type TelegramConfig struct {
	Enabled bool
	Token   string
}

type telegramSender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// Telegram delivers transition messages to the owner's chat.
type Telegram struct {
	enabled bool
	bot     telegramSender
}

func NewTelegram(cfg TelegramConfig) (*Telegram, error) {
	t := &Telegram{enabled: cfg.Enabled}
	if !cfg.Enabled || strings.TrimSpace(cfg.Token) == "" {
		t.enabled = false
		return t, nil
	}
	bot, err := tele.NewBot(tele.Settings{Token: strings.TrimSpace(cfg.Token)})
	if err != nil {
		return nil, err
	}
	t.bot = bot
	return t, nil
}

func (t *Telegram) Name() string { return "telegram" }

func (t *Telegram) Configured(o storage.Owner) bool {
	return t.enabled && t.bot != nil && o.TelegramChatID != 0
}

func (t *Telegram) Send(ctx context.Context, o storage.Owner, kind dose.Kind, msg string) error {
	_ = ctx
	_ = kind
	if t.bot == nil {
		return errors.New("telegram not configured")
	}
	_, err := t.bot.Send(tele.ChatID(o.TelegramChatID), msg)
	return err
}
