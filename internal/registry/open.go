package registry

import (
	"fmt"
	"strings"

	logx "mqwatch/pkg/logx"
)

// Open initializes the configured registry.
func Open(cfg Config, log logx.Logger) (Registry, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, driver)
	}
}
