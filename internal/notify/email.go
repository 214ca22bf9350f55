package notify

import (
	"context"
	"errors"
	"strings"
)

// MailTransport submits one plain-text message.
type MailTransport interface {
	Send(ctx context.Context, from string, to []string, subject, body string) error
}

// EmailChannel mails the alert text to a fixed recipient list.
type EmailChannel struct {
	From      string
	To        []string
	Subject   string
	Transport MailTransport
}

func NewEmailChannel(cfg MailConfig, subject string, tr MailTransport) *EmailChannel {
	if s := strings.TrimSpace(cfg.Subject); s != "" {
		subject = s
	}
	return &EmailChannel{
		From:      strings.TrimSpace(cfg.From),
		To:        SplitRecipients(cfg.To),
		Subject:   subject,
		Transport: tr,
	}
}

func (c *EmailChannel) Kind() Kind   { return KindEmail }
func (c *EmailChannel) Name() string { return "email" }

func (c *EmailChannel) Send(ctx context.Context, text string) error {
	if c.Transport == nil {
		return errors.New("mail transport not configured")
	}
	if len(c.To) == 0 {
		return ErrNoRecipients
	}
	return c.Transport.Send(ctx, c.From, c.To, c.Subject, text)
}

// SplitRecipients splits a comma-separated list, trimming blanks and dropping
// empty entries.
func SplitRecipients(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
