package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	yaml "go.yaml.in/yaml/v3"

	"mqwatch/internal/monitor"
	logx "mqwatch/pkg/logx"
)

// fileRegistry reads a threshold file on every query.
//
// File shape (JSON shown; YAML uses the same keys):
//
//	{"order-consumer": {"minCount": 2, "maxDiffTotal": 1000}}
type fileRegistry struct {
	path string
	yaml bool
	log  logx.Logger

	// mu serializes writers; readers see whole files via rename.
	mu sync.Mutex
}

type fileEntry struct {
	MinCount     int   `json:"minCount" yaml:"minCount"`
	MaxDiffTotal int64 `json:"maxDiffTotal" yaml:"maxDiffTotal"`
}

func openFile(cfg Config, log logx.Logger) (Registry, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("registry.path is required for file driver")
	}
	ext := strings.ToLower(filepath.Ext(path))
	return &fileRegistry{
		path: path,
		yaml: ext == ".yaml" || ext == ".yml",
		log:  log.With(logx.String("driver", "file")),
	}, nil
}

func (r *fileRegistry) QueryAll(ctx context.Context) (map[string]monitor.ThresholdConfig, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := r.read()
	if err != nil {
		return nil, err
	}
	out := make(map[string]monitor.ThresholdConfig, len(entries))
	for group, e := range entries {
		t := monitor.ThresholdConfig{Group: group, MinConsumerCount: e.MinCount, MaxBacklogTotal: e.MaxDiffTotal}
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", r.path, err)
		}
		out[group] = t
	}
	return out, nil
}

func (r *fileRegistry) read() (map[string]fileEntry, error) {
	b, err := os.ReadFile(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]fileEntry{}, nil
	}
	if err != nil {
		return nil, err
	}
	entries := map[string]fileEntry{}
	if len(bytes.TrimSpace(b)) == 0 {
		return entries, nil
	}
	if r.yaml {
		err = yaml.Unmarshal(b, &entries)
	} else {
		dec := json.NewDecoder(bytes.NewReader(b))
		dec.DisallowUnknownFields()
		err = dec.Decode(&entries)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", r.path, err)
	}
	if entries == nil {
		entries = map[string]fileEntry{}
	}
	return entries, nil
}

func (r *fileRegistry) Put(ctx context.Context, t monitor.ThresholdConfig) error {
	if err := t.Validate(); err != nil {
		return err
	}
	return r.update(ctx, func(m map[string]fileEntry) error {
		m[t.Group] = fileEntry{MinCount: t.MinConsumerCount, MaxDiffTotal: t.MaxBacklogTotal}
		return nil
	})
}

func (r *fileRegistry) Delete(ctx context.Context, group string) error {
	return r.update(ctx, func(m map[string]fileEntry) error {
		if _, ok := m[group]; !ok {
			return fmt.Errorf("%w: %s", ErrNotFound, group)
		}
		delete(m, group)
		return nil
	})
}

func (r *fileRegistry) update(ctx context.Context, fn func(map[string]fileEntry) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	entries, err := r.read()
	if err != nil {
		return err
	}
	if err := fn(entries); err != nil {
		return err
	}
	b, err := r.encode(entries)
	if err != nil {
		return err
	}
	if err := writeFileAtomic(r.path, b); err != nil {
		return err
	}
	r.log.Info("thresholds written", logx.String("path", r.path), logx.Int("groups", len(entries)))
	return nil
}

func (r *fileRegistry) encode(entries map[string]fileEntry) ([]byte, error) {
	if r.yaml {
		return yaml.Marshal(entries)
	}
	// encoding/json sorts map keys, keeping diffs stable.
	b, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

func (r *fileRegistry) Close() error { return nil }

func writeFileAtomic(path string, b []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		_ = os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(name)
		return err
	}
	return os.Rename(name, path)
}
