package notify

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	tele "gopkg.in/telebot.v4"
)

const telegramTextLimit = 4096

// TelegramSender posts text to a chat.
type TelegramSender interface {
	SendText(ctx context.Context, chatID int64, threadID int, text string) error
}

// TelegramChannel sends alerts to one chat (and optional forum topic).
type TelegramChannel struct {
	ChatID   int64
	ThreadID int
	Sender   TelegramSender
}

func (c *TelegramChannel) Kind() Kind   { return KindTelegram }
func (c *TelegramChannel) Name() string { return "telegram" }

func (c *TelegramChannel) Send(ctx context.Context, text string) error {
	if c.Sender == nil {
		return errors.New("telegram sender not configured")
	}
	if c.ChatID == 0 {
		return errors.New("telegram chat_id is empty")
	}
	return c.Sender.SendText(ctx, c.ChatID, c.ThreadID, truncateRunes(text, telegramTextLimit))
}

type telebotSender struct {
	bot *tele.Bot
}

// NewTelebotSender creates a send-only bot; it never polls for updates.
func NewTelebotSender(token string) (TelegramSender, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errors.New("telegram token is empty")
	}
	b, err := tele.NewBot(tele.Settings{Token: token, Offline: true})
	if err != nil {
		return nil, err
	}
	return &telebotSender{bot: b}, nil
}

func (s *telebotSender) SendText(ctx context.Context, chatID int64, threadID int, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.bot.Send(&tele.Chat{ID: chatID}, text, &tele.SendOptions{
		ThreadID:              threadID,
		DisableWebPagePreview: true,
	})
	return err
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	return string(r[:limit])
}
