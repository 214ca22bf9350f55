package broker

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"mqwatch/internal/monitor"
)

var (
	ErrUnknownDriver = errors.New("unknown broker driver")
	// ErrGroupNotFound means the broker has no data for the group.
	ErrGroupNotFound = errors.New("consumer group not found")
)

const (
	defaultTimeout        = 10 * time.Second
	defaultGroupLabel     = "group"
	defaultConsumerMetric = "rocketmq_group_count"
	defaultBacklogMetric  = "rocketmq_group_diff"
	maxResponseBytes      = 8 << 20
)

// Config selects and configures a provider.
type Config struct {
	Driver   string
	Endpoint string
	Timeout  time.Duration
	Username string
	Password string

	// prometheus only
	GroupLabel     string
	ConsumerMetric string
	BacklogMetric  string
}

// Open returns the configured status provider. A nil client gets a default
// one bounded by cfg.Timeout.
func Open(cfg Config, client *http.Client) (monitor.StatusProvider, error) {
	ep := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if ep == "" {
		return nil, errors.New("broker.endpoint is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	c := httpClient{client: client, username: cfg.Username, password: cfg.Password}

	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "dashboard":
		return &dashboardProvider{endpoint: ep, http: c}, nil
	case "prometheus", "exporter":
		p := &promProvider{
			url:            ep,
			http:           c,
			groupLabel:     orDefault(cfg.GroupLabel, defaultGroupLabel),
			consumerMetric: orDefault(cfg.ConsumerMetric, defaultConsumerMetric),
			backlogMetric:  orDefault(cfg.BacklogMetric, defaultBacklogMetric),
		}
		return p, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, cfg.Driver)
	}
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return def
}
