package notify

import (
	"errors"
	"fmt"

	"mqwatch/internal/eventbus"
	logx "mqwatch/pkg/logx"
)

// Deps carries the collaborators channels are built on. Nil fields fall back
// to defaults where one exists.
type Deps struct {
	Mail     MailTransport
	HTTP     HTTPPoster
	Telegram TelegramSender
	// Subject is the email subject used when MailConfig.Subject is empty.
	Subject string
	Log     logx.Logger
	Bus     eventbus.Bus
}

// Build constructs a Dispatcher with the enabled channels in the order
// EMAIL, WEBHOOK, TELEGRAM.
func Build(cfg Config, deps Deps) (*Dispatcher, error) {
	var chans []Channel

	if cfg.Mail.Enabled {
		if deps.Mail == nil {
			return nil, errors.New("notify.mail enabled but no mail transport")
		}
		ch := NewEmailChannel(cfg.Mail, deps.Subject, deps.Mail)
		if len(ch.To) == 0 {
			return nil, fmt.Errorf("notify.mail: %w", ErrNoRecipients)
		}
		chans = append(chans, ch)
	}

	if cfg.DingTalk.Enabled {
		if cfg.DingTalk.AccessToken == "" && cfg.DingTalk.Endpoint == "" {
			return nil, errors.New("notify.dingtalk: access_token or endpoint required")
		}
		chans = append(chans, NewWebhookChannel(cfg.DingTalk, deps.HTTP))
	}

	if cfg.Telegram.Enabled {
		sender := deps.Telegram
		if sender == nil {
			s, err := NewTelebotSender(cfg.Telegram.Token)
			if err != nil {
				return nil, fmt.Errorf("notify.telegram: %w", err)
			}
			sender = s
		}
		if cfg.Telegram.ChatID == 0 {
			return nil, errors.New("notify.telegram: chat_id required")
		}
		chans = append(chans, &TelegramChannel{
			ChatID:   cfg.Telegram.ChatID,
			ThreadID: cfg.Telegram.ThreadID,
			Sender:   sender,
		})
	}

	log := deps.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	return NewDispatcher(log.With(logx.String("comp", "notify")), deps.Bus, cfg.SendTimeout, chans...), nil
}
