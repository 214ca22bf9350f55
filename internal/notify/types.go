package notify

import (
	"context"
	"errors"
	"time"
)

var ErrNoRecipients = errors.New("no recipients")

// Kind identifies a channel type.
type Kind int

const (
	KindEmail Kind = iota + 1
	KindWebhook
	KindTelegram
)

func (k Kind) String() string {
	switch k {
	case KindEmail:
		return "EMAIL"
	case KindWebhook:
		return "WEBHOOK"
	case KindTelegram:
		return "TELEGRAM"
	default:
		return "UNKNOWN"
	}
}

// Channel is one delivery target.
type Channel interface {
	Kind() Kind
	Name() string
	Send(ctx context.Context, text string) error
}

// Config is the channel configuration. It is fixed for the process lifetime.
type Config struct {
	Mail     MailConfig
	DingTalk DingTalkConfig
	Telegram TelegramConfig
	// SendTimeout bounds a single channel attempt. 0 means no extra bound.
	SendTimeout time.Duration
}

type MailConfig struct {
	Enabled bool
	From    string
	// To is a comma-separated recipient list.
	To      string
	Subject string
}

type DingTalkConfig struct {
	Enabled     bool
	AccessToken string
	Secret      string
	Endpoint    string
	RatePerMin  int
	Timeout     time.Duration
}

type TelegramConfig struct {
	Enabled  bool
	Token    string
	ChatID   int64
	ThreadID int
}

// DeliveryEvent is published on the event bus after each channel attempt.
type DeliveryEvent struct {
	Channel string        `json:"channel"`
	Kind    string        `json:"kind"`
	At      time.Time     `json:"at"`
	Took    time.Duration `json:"took"`
	Error   string        `json:"error,omitempty"`
}
