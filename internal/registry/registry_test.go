package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"mqwatch/internal/monitor"
	logx "mqwatch/pkg/logx"
)

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()
	_, err := Open(Config{Driver: "redis", Path: "x"}, logx.Nop())
	require.ErrorIs(t, err, ErrUnknownDriver)

	_, err = Open(Config{Driver: "file"}, logx.Nop())
	require.Error(t, err)
}

func TestFileRegistryJSON(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "monitorConfig.json")
	r, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	require.NoError(t, err)
	defer r.Close()
	ctx := context.Background()

	// missing file is an empty registry
	m, err := r.QueryAll(ctx)
	require.NoError(t, err)
	require.Empty(t, m)

	require.NoError(t, os.WriteFile(path, []byte(`{
  "order-consumer": {"minCount": 2, "maxDiffTotal": 1000},
  "pay-consumer": {"minCount": 1, "maxDiffTotal": 50}
}`), 0o644))
	m, err = r.QueryAll(ctx)
	require.NoError(t, err)
	want := map[string]monitor.ThresholdConfig{
		"order-consumer": {Group: "order-consumer", MinConsumerCount: 2, MaxBacklogTotal: 1000},
		"pay-consumer":   {Group: "pay-consumer", MinConsumerCount: 1, MaxBacklogTotal: 50},
	}
	if diff := cmp.Diff(want, m); diff != "" {
		t.Fatalf("QueryAll mismatch (-want +got):\n%s", diff)
	}

	// edits are visible on the next query
	require.NoError(t, r.Put(ctx, monitor.ThresholdConfig{Group: "new", MinConsumerCount: 3}))
	require.NoError(t, r.Delete(ctx, "pay-consumer"))
	m, err = r.QueryAll(ctx)
	require.NoError(t, err)
	require.Len(t, m, 2)
	require.Equal(t, 3, m["new"].MinConsumerCount)
	require.ErrorIs(t, r.Delete(ctx, "pay-consumer"), ErrNotFound)
}

func TestFileRegistryRejectsBadData(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	ctx := context.Background()

	neg := filepath.Join(dir, "neg.json")
	require.NoError(t, os.WriteFile(neg, []byte(`{"g": {"minCount": -1, "maxDiffTotal": 0}}`), 0o644))
	r, err := Open(Config{Path: neg}, logx.Nop())
	require.NoError(t, err)
	_, err = r.QueryAll(ctx)
	require.Error(t, err)

	garbled := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(garbled, []byte(`{"g": `), 0o644))
	r, err = Open(Config{Path: garbled}, logx.Nop())
	require.NoError(t, err)
	_, err = r.QueryAll(ctx)
	require.Error(t, err)

	unknown := filepath.Join(dir, "unknown.json")
	require.NoError(t, os.WriteFile(unknown, []byte(`{"g": {"minCnt": 1}}`), 0o644))
	r, err = Open(Config{Path: unknown}, logx.Nop())
	require.NoError(t, err)
	_, err = r.QueryAll(ctx)
	require.Error(t, err)
}

func TestFileRegistryYAML(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "thresholds.yaml")
	require.NoError(t, os.WriteFile(path, []byte("order-consumer:\n  minCount: 2\n  maxDiffTotal: 1000\n"), 0o644))
	r, err := Open(Config{Path: path}, logx.Nop())
	require.NoError(t, err)
	ctx := context.Background()

	m, err := r.QueryAll(ctx)
	require.NoError(t, err)
	require.Equal(t, monitor.ThresholdConfig{Group: "order-consumer", MinConsumerCount: 2, MaxBacklogTotal: 1000}, m["order-consumer"])

	require.NoError(t, r.Put(ctx, monitor.ThresholdConfig{Group: "b", MaxBacklogTotal: 7}))
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(b), "maxDiffTotal: 7")
}

func TestSQLiteRegistry(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "mq.db")
	r, err := Open(Config{Driver: "sqlite", Path: path}, logx.Nop())
	require.NoError(t, err)
	defer r.Close()
	ctx := context.Background()

	m, err := r.QueryAll(ctx)
	require.NoError(t, err)
	require.Empty(t, m)

	require.NoError(t, r.Put(ctx, monitor.ThresholdConfig{Group: "a", MinConsumerCount: 1, MaxBacklogTotal: 10}))
	require.NoError(t, r.Put(ctx, monitor.ThresholdConfig{Group: "a", MinConsumerCount: 4, MaxBacklogTotal: 40}))
	require.NoError(t, r.Put(ctx, monitor.ThresholdConfig{Group: "b", MinConsumerCount: 0, MaxBacklogTotal: 0}))
	require.Error(t, r.Put(ctx, monitor.ThresholdConfig{Group: "c", MinConsumerCount: -2}))

	m, err = r.QueryAll(ctx)
	require.NoError(t, err)
	require.Equal(t, map[string]monitor.ThresholdConfig{
		"a": {Group: "a", MinConsumerCount: 4, MaxBacklogTotal: 40},
		"b": {Group: "b"},
	}, m)

	require.NoError(t, r.Delete(ctx, "b"))
	require.ErrorIs(t, r.Delete(ctx, "b"), ErrNotFound)
}
