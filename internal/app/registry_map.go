package app

import (
	"fmt"
	"strings"
	"time"

	"mqwatch/internal/broker"
	"mqwatch/internal/registry"
)

func mapRegistryConfig(cfg *Config) (registry.Config, error) {
	rc := cfg.Registry
	path := strings.TrimSpace(rc.Path)
	dl := strings.ToLower(strings.TrimSpace(rc.Driver))
	switch dl {
	case "", "file":
		return registry.Config{Driver: "file", Path: path}, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return registry.Config{}, fmt.Errorf("registry.path is required when registry.driver=sqlite")
		}
		busy, err := parseDurationOrDefault("registry.busy_timeout", rc.BusyTimeout, time.Second)
		if err != nil {
			return registry.Config{}, err
		}
		return registry.Config{Driver: dl, Path: path, BusyTimeout: busy}, nil
	default:
		return registry.Config{}, fmt.Errorf("%w: %s", registry.ErrUnknownDriver, rc.Driver)
	}
}

func mapBrokerConfig(cfg *Config) (broker.Config, error) {
	bc := cfg.Broker
	timeout, err := parseDurationOrDefault("broker.timeout", bc.Timeout, 10*time.Second)
	if err != nil {
		return broker.Config{}, err
	}
	return broker.Config{
		Driver:         strings.TrimSpace(bc.Driver),
		Endpoint:       strings.TrimSpace(bc.Endpoint),
		Timeout:        timeout,
		Username:       bc.Username,
		Password:       bc.Password,
		GroupLabel:     strings.TrimSpace(bc.GroupLabel),
		ConsumerMetric: strings.TrimSpace(bc.ConsumerMetric),
		BacklogMetric:  strings.TrimSpace(bc.BacklogMetric),
	}, nil
}
