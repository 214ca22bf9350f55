package registry

import (
	"context"
	"errors"
	"time"

	"mqwatch/internal/monitor"
)

var (
	ErrUnknownDriver = errors.New("unknown registry driver")
	ErrNotFound      = errors.New("group not configured")
)

// Config configures the registry.
//
// Driver values:
//   - "file" (default): JSON/YAML file at Path
//   - "sqlite": SQLite database file at Path
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Registry is a monitor.Registry with writes and a lifecycle.
type Registry interface {
	monitor.Registry
	Put(ctx context.Context, t monitor.ThresholdConfig) error
	Delete(ctx context.Context, group string) error
	Close() error
}
