// Package smtp is the mail transport used by the EMAIL channel.
package smtp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wneessen/go-mail"
)

// Config describes the SMTP relay.
//
// TLS values:
//   - "mandatory": STARTTLS required
//   - "opportunistic" (default): STARTTLS when offered
//   - "ssl": implicit TLS (usually port 465)
//   - "none": plain text
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	TLS      string
	Timeout  time.Duration
}

// Transport sends plain-text messages through one relay. A new connection is
// made per message; alerts are rare enough that pooling is not worth it.
type Transport struct {
	cfg  Config
	opts []mail.Option
}

func New(cfg Config) (*Transport, error) {
	cfg.Host = strings.TrimSpace(cfg.Host)
	if cfg.Host == "" {
		return nil, errors.New("smtp host is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	opts := []mail.Option{mail.WithTimeout(cfg.Timeout)}
	if cfg.Port > 0 {
		opts = append(opts, mail.WithPort(cfg.Port))
	}
	switch strings.ToLower(strings.TrimSpace(cfg.TLS)) {
	case "", "opportunistic":
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	case "mandatory", "starttls":
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	case "ssl", "tls":
		opts = append(opts, mail.WithSSL())
	case "none", "off":
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	default:
		return nil, fmt.Errorf("unknown smtp tls mode: %q", cfg.TLS)
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	return &Transport{cfg: cfg, opts: opts}, nil
}

// Message builds the go-mail message; exposed for tests.
func Message(from string, to []string, subject, body string) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.From(from); err != nil {
		return nil, fmt.Errorf("from %q: %w", from, err)
	}
	if err := m.To(to...); err != nil {
		return nil, fmt.Errorf("to: %w", err)
	}
	m.Subject(subject)
	m.SetBodyString(mail.TypeTextPlain, body)
	return m, nil
}

func (t *Transport) Send(ctx context.Context, from string, to []string, subject, body string) error {
	m, err := Message(from, to, subject, body)
	if err != nil {
		return err
	}
	c, err := mail.NewClient(t.cfg.Host, t.opts...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	if err := c.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("smtp send via %s: %w", t.cfg.Host, err)
	}
	return nil
}
