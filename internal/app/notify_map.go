package app

import (
	"strings"
	"time"

	"mqwatch/internal/notify"
	"mqwatch/internal/transport/smtp"
)

func mapNotifyConfig(cfg *Config) (notify.Config, error) {
	nc := cfg.Notify
	sendTimeout, err := parseDurationOrDefault("notify.send_timeout", nc.SendTimeout, 0)
	if err != nil {
		return notify.Config{}, err
	}
	dtTimeout, err := parseDurationOrDefault("notify.dingtalk.timeout", nc.DingTalk.Timeout, 10*time.Second)
	if err != nil {
		return notify.Config{}, err
	}
	return notify.Config{
		Mail: notify.MailConfig{
			Enabled: nc.Mail.Enabled,
			From:    strings.TrimSpace(nc.Mail.From),
			To:      nc.Mail.To,
			Subject: strings.TrimSpace(nc.Mail.Subject),
		},
		DingTalk: notify.DingTalkConfig{
			Enabled:     nc.DingTalk.Enabled,
			AccessToken: strings.TrimSpace(nc.DingTalk.AccessToken),
			Secret:      strings.TrimSpace(nc.DingTalk.Secret),
			Endpoint:    strings.TrimSpace(nc.DingTalk.Endpoint),
			RatePerMin:  nc.DingTalk.RatePerMin,
			Timeout:     dtTimeout,
		},
		Telegram: notify.TelegramConfig{
			Enabled:  nc.Telegram.Enabled,
			Token:    strings.TrimSpace(nc.Telegram.Token),
			ChatID:   nc.Telegram.ChatID,
			ThreadID: nc.Telegram.ThreadID,
		},
		SendTimeout: sendTimeout,
	}, nil
}

// mapSMTPConfig returns ok=false when mail is disabled.
func mapSMTPConfig(cfg *Config) (smtp.Config, bool, error) {
	mc := cfg.Notify.Mail
	if !mc.Enabled {
		return smtp.Config{}, false, nil
	}
	timeout, err := parseDurationOrDefault("notify.mail.smtp.timeout", mc.SMTP.Timeout, 15*time.Second)
	if err != nil {
		return smtp.Config{}, false, err
	}
	return smtp.Config{
		Host:     strings.TrimSpace(mc.SMTP.Host),
		Port:     mc.SMTP.Port,
		Username: mc.SMTP.Username,
		Password: mc.SMTP.Password,
		TLS:      strings.TrimSpace(mc.SMTP.TLS),
		Timeout:  timeout,
	}, true, nil
}
