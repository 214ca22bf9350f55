package registry

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"mqwatch/internal/monitor"
	logx "mqwatch/pkg/logx"
)

//go:embed schema.sql
var schemaSQL string

type sqliteRegistry struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Registry, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("registry.path is required for sqlite driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = time.Second
	}
	_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()))
	_, _ = db.Exec("PRAGMA journal_mode = WAL")

	r := &sqliteRegistry{db: db, log: log.With(logx.String("driver", "sqlite"))}
	if _, err := db.ExecContext(context.Background(), schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("registry schema: %w", err)
	}
	return r, nil
}

func (r *sqliteRegistry) QueryAll(ctx context.Context) (map[string]monitor.ThresholdConfig, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT group_name, min_count, max_diff_total FROM consumer_monitor`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]monitor.ThresholdConfig{}
	for rows.Next() {
		var t monitor.ThresholdConfig
		if err := rows.Scan(&t.Group, &t.MinConsumerCount, &t.MaxBacklogTotal); err != nil {
			return nil, err
		}
		if err := t.Validate(); err != nil {
			return nil, err
		}
		out[t.Group] = t
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *sqliteRegistry) Put(ctx context.Context, t monitor.ThresholdConfig) error {
	if err := t.Validate(); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO consumer_monitor(group_name, min_count, max_diff_total, updated_at) VALUES(?,?,?,?)
		 ON CONFLICT(group_name) DO UPDATE SET
		   min_count=excluded.min_count,
		   max_diff_total=excluded.max_diff_total,
		   updated_at=excluded.updated_at`,
		t.Group, t.MinConsumerCount, t.MaxBacklogTotal, time.Now().UnixMilli(),
	)
	if err == nil {
		r.log.Info("threshold stored", logx.String("group", t.Group))
	}
	return err
}

func (r *sqliteRegistry) Delete(ctx context.Context, group string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM consumer_monitor WHERE group_name = ?`, group)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, group)
	}
	return nil
}

func (r *sqliteRegistry) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}
