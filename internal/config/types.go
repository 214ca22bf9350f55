package config

// Config is the on-disk configuration.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m"). String
// values may reference environment variables as ${VAR}.
type Config struct {
	Logging  LoggingConfig  `json:"logging"`
	Monitor  MonitorConfig  `json:"monitor"`
	Registry RegistryConfig `json:"registry"`
	Broker   BrokerConfig   `json:"broker"`
	Notify   NotifyConfig   `json:"notify"`
	Ops      OpsConfig      `json:"ops,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// MonitorConfig controls the scan pass.
//
// Defaults:
//   - schedule: "@every 1m"
//   - workers: 1 (groups evaluated one at a time)
//   - pass_timeout: "0s" (no bound)
type MonitorConfig struct {
	// Schedule accepts cron ("0 */1 * * * *", "@every 1m"), a duration ("1m")
	// or HH:MM ("00:01").
	Schedule   string `json:"schedule"`
	Timezone   string `json:"timezone,omitempty"`
	Workers    int    `json:"workers,omitempty"`
	RunOnStart bool   `json:"run_on_start,omitempty"`
	// PassTimeout bounds one whole pass.
	PassTimeout string `json:"pass_timeout,omitempty"`
	// Product names the monitored system in alert titles (default "RocketMQ").
	Product string `json:"product,omitempty"`
}

// RegistryConfig selects the threshold store.
//
// Example:
//
//	"registry": { "driver": "file", "path": "./data/monitorConfig.json" }
type RegistryConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// BrokerConfig selects where live group statistics come from.
type BrokerConfig struct {
	Driver   string `json:"driver"` // "dashboard" | "prometheus"
	Endpoint string `json:"endpoint"`
	Timeout  string `json:"timeout,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"` // do not log

	GroupLabel     string `json:"group_label,omitempty"`
	ConsumerMetric string `json:"consumer_metric,omitempty"`
	BacklogMetric  string `json:"backlog_metric,omitempty"`
}

type NotifyConfig struct {
	Mail        MailConfig     `json:"mail"`
	DingTalk    DingTalkConfig `json:"dingtalk"`
	Telegram    TelegramConfig `json:"telegram"`
	SendTimeout string         `json:"send_timeout,omitempty"`
}

type MailConfig struct {
	Enabled bool   `json:"enabled"`
	From    string `json:"from"`
	// To is a comma-separated list.
	To      string     `json:"to"`
	Subject string     `json:"subject,omitempty"`
	SMTP    SMTPConfig `json:"smtp"`
}

type SMTPConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"` // do not log
	// TLS is "opportunistic" (default), "mandatory", "ssl" or "none".
	TLS     string `json:"tls,omitempty"`
	Timeout string `json:"timeout,omitempty"`
}

type DingTalkConfig struct {
	Enabled     bool   `json:"enabled"`
	AccessToken string `json:"access_token"` // do not log
	Secret      string `json:"secret,omitempty"`
	Endpoint    string `json:"endpoint,omitempty"`
	RatePerMin  int    `json:"rate_per_min,omitempty"`
	Timeout     string `json:"timeout,omitempty"`
}

type TelegramConfig struct {
	Enabled  bool   `json:"enabled"`
	Token    string `json:"token"` // do not log
	ChatID   int64  `json:"chat_id"`
	ThreadID int    `json:"thread_id,omitempty"`
}

// OpsConfig controls the optional read-only HTTP server.
//
// Prefer binding to localhost (e.g. "127.0.0.1:8086").
type OpsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`
	Pprof   bool   `json:"pprof,omitempty"`
}
