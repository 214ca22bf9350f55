package config

import (
	"strings"

	logx "mqwatch/pkg/logx"
)

// SummarizeConfigChange returns the changed sections, safe attrs for logging
// (never secrets) and the subset of changed sections that only take effect
// after a restart.
func SummarizeConfigChange(oldCfg, newCfg *Config) (changed []string, attrs []logx.Field, restart []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	mark := func(section string, live bool, fields ...logx.Field) {
		changed = append(changed, section)
		attrs = append(attrs, fields...)
		if !live {
			restart = append(restart, section)
		}
	}

	o, n := oldCfg.Logging, newCfg.Logging
	if o.Level != n.Level || o.Console != n.Console || o.File.Enabled != n.File.Enabled || trim(o.File.Path) != trim(n.File.Path) {
		mark("logging", true,
			logx.String("logging.level", n.Level),
			logx.Bool("logging.console", n.Console),
			logx.Bool("logging.file_enabled", n.File.Enabled),
		)
	}

	if oldCfg.Monitor != newCfg.Monitor {
		m := newCfg.Monitor
		mark("monitor", false,
			logx.String("monitor.schedule", trim(m.Schedule)),
			logx.String("monitor.timezone", trim(m.Timezone)),
			logx.Int("monitor.workers", m.Workers),
		)
	}

	if oldCfg.Registry != newCfg.Registry {
		mark("registry", false,
			logx.String("registry.driver", trim(newCfg.Registry.Driver)),
			logx.String("registry.path", trim(newCfg.Registry.Path)),
		)
	}

	if oldCfg.Broker != newCfg.Broker {
		b := newCfg.Broker
		mark("broker", false,
			logx.String("broker.driver", trim(b.Driver)),
			logx.String("broker.endpoint", trim(b.Endpoint)),
			logx.Bool("broker.auth_set", b.Username != "" || b.Password != ""),
		)
	}

	if oldCfg.Notify != newCfg.Notify {
		nt := newCfg.Notify
		mark("notify", false,
			logx.Bool("notify.mail_enabled", nt.Mail.Enabled),
			logx.Int("notify.mail_recipients", countRecipients(nt.Mail.To)),
			logx.Bool("notify.dingtalk_enabled", nt.DingTalk.Enabled),
			logx.Bool("notify.dingtalk_signed", nt.DingTalk.Secret != ""),
			logx.Bool("notify.telegram_enabled", nt.Telegram.Enabled),
		)
	}

	if oldCfg.Ops != newCfg.Ops {
		mark("ops", false,
			logx.Bool("ops.enabled", newCfg.Ops.Enabled),
			logx.String("ops.addr", trim(newCfg.Ops.Addr)),
			logx.Bool("ops.pprof", newCfg.Ops.Pprof),
		)
	}

	attrs = append(attrs, logx.Strings("changed", changed))
	return changed, attrs, restart
}

func trim(s string) string { return strings.TrimSpace(s) }

func countRecipients(list string) int {
	n := 0
	for _, p := range strings.Split(list, ",") {
		if strings.TrimSpace(p) != "" {
			n++
		}
	}
	return n
}
