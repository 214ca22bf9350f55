package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"mqwatch/internal/scheduler"
)

const (
	DefaultSchedule    = "@every 1m"
	DefaultProduct     = "RocketMQ"
	DefaultRegistry    = "./data/monitorConfig.json"
	DefaultOpsAddr     = "127.0.0.1:8086"
	DefaultSMTPTimeout = "15s"
)

// ApplyDefaults fills unset optional fields in place.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}
	if trim(cfg.Logging.Level) == "" {
		cfg.Logging.Level = "info"
	}
	if trim(cfg.Monitor.Schedule) == "" {
		cfg.Monitor.Schedule = DefaultSchedule
	}
	if cfg.Monitor.Workers <= 0 {
		cfg.Monitor.Workers = 1
	}
	if trim(cfg.Monitor.Product) == "" {
		cfg.Monitor.Product = DefaultProduct
	}
	if trim(cfg.Registry.Driver) == "" {
		cfg.Registry.Driver = "file"
	}
	if trim(cfg.Registry.Path) == "" {
		cfg.Registry.Path = DefaultRegistry
	}
	if trim(cfg.Broker.Driver) == "" {
		cfg.Broker.Driver = "dashboard"
	}
	if cfg.Notify.Mail.SMTP.Port == 0 {
		cfg.Notify.Mail.SMTP.Port = 25
	}
	if trim(cfg.Notify.Mail.SMTP.Timeout) == "" {
		cfg.Notify.Mail.SMTP.Timeout = DefaultSMTPTimeout
	}
	if cfg.Ops.Enabled && trim(cfg.Ops.Addr) == "" {
		cfg.Ops.Addr = DefaultOpsAddr
	}
}

// Validate reports every problem it finds, joined.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }
	dur := func(path, raw string) {
		if _, err := ParseDurationField(path, raw); err != nil {
			errs = append(errs, err)
		}
	}

	switch strings.ToLower(trim(cfg.Logging.Level)) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		add("logging.level: unknown level %q", cfg.Logging.Level)
	}
	if cfg.Logging.File.Enabled && trim(cfg.Logging.File.Path) == "" {
		add("logging.file.path: required when file logging is enabled")
	}

	if _, err := scheduler.ParseSchedule(cfg.Monitor.Schedule); err != nil {
		add("monitor.schedule: %w", err)
	}
	if tz := trim(cfg.Monitor.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			add("monitor.timezone: %w", err)
		}
	}
	if cfg.Monitor.Workers < 0 {
		add("monitor.workers: must be >= 0")
	}
	dur("monitor.pass_timeout", cfg.Monitor.PassTimeout)

	switch strings.ToLower(trim(cfg.Registry.Driver)) {
	case "", "file", "sqlite", "sqlite3":
	default:
		add("registry.driver: unknown driver %q", cfg.Registry.Driver)
	}
	dur("registry.busy_timeout", cfg.Registry.BusyTimeout)

	switch strings.ToLower(trim(cfg.Broker.Driver)) {
	case "", "dashboard", "prometheus":
	default:
		add("broker.driver: unknown driver %q", cfg.Broker.Driver)
	}
	if ep := trim(cfg.Broker.Endpoint); ep == "" {
		add("broker.endpoint: required")
	} else if u, err := url.Parse(ep); err != nil || u.Scheme == "" || u.Host == "" {
		add("broker.endpoint: invalid url %q", ep)
	}
	dur("broker.timeout", cfg.Broker.Timeout)

	n := cfg.Notify
	dur("notify.send_timeout", n.SendTimeout)
	if n.Mail.Enabled {
		if trim(n.Mail.From) == "" {
			add("notify.mail.from: required")
		}
		if countRecipients(n.Mail.To) == 0 {
			add("notify.mail.to: at least one recipient required")
		}
		if trim(n.Mail.SMTP.Host) == "" {
			add("notify.mail.smtp.host: required")
		}
		if p := n.Mail.SMTP.Port; p < 0 || p > 65535 {
			add("notify.mail.smtp.port: out of range")
		}
		switch strings.ToLower(trim(n.Mail.SMTP.TLS)) {
		case "", "opportunistic", "mandatory", "starttls", "ssl", "tls", "none", "off":
		default:
			add("notify.mail.smtp.tls: unknown mode %q", n.Mail.SMTP.TLS)
		}
		dur("notify.mail.smtp.timeout", n.Mail.SMTP.Timeout)
	}
	if n.DingTalk.Enabled {
		if trim(n.DingTalk.AccessToken) == "" {
			add("notify.dingtalk.access_token: required")
		}
		if n.DingTalk.RatePerMin < 0 {
			add("notify.dingtalk.rate_per_min: must be >= 0")
		}
		dur("notify.dingtalk.timeout", n.DingTalk.Timeout)
	}
	if n.Telegram.Enabled {
		if trim(n.Telegram.Token) == "" {
			add("notify.telegram.token: required")
		}
		if n.Telegram.ChatID == 0 {
			add("notify.telegram.chat_id: required")
		}
	}

	if cfg.Ops.Enabled {
		if _, _, err := net.SplitHostPort(trim(cfg.Ops.Addr)); err != nil {
			add("ops.addr: %w", err)
		}
	}
	return errors.Join(errs...)
}
