package monitor

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"mqwatch/internal/eventbus"
	logx "mqwatch/pkg/logx"
)

type fakeRegistry struct {
	m   map[string]ThresholdConfig
	err error
}

func (r *fakeRegistry) QueryAll(context.Context) (map[string]ThresholdConfig, error) {
	return r.m, r.err
}

type fakeProvider struct {
	mu     sync.Mutex
	calls  []string
	status map[string]GroupStatus
	fail   map[string]error
}

func (p *fakeProvider) QueryGroup(_ context.Context, group string) (GroupStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, group)
	if err := p.fail[group]; err != nil {
		return GroupStatus{}, err
	}
	return p.status[group], nil
}

type fakeDispatcher struct {
	mu    sync.Mutex
	texts []string
	panic bool
}

func (d *fakeDispatcher) Dispatch(_ context.Context, text string) DispatchResult {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.panic {
		panic("boom")
	}
	d.texts = append(d.texts, text)
	return DispatchResult{Sent: []string{"email"}, Failed: []string{"webhook"}}
}

func newTestScanner(reg Registry, prov StatusProvider, disp Dispatcher, buf *bytes.Buffer, workers int) *Scanner {
	s := NewScanner(reg, prov, disp, Options{
		Workers:   workers,
		Formatter: fixedFormatter(),
		Log:       logx.NewWriter(buf, "debug"),
	})
	s.newID = func() string { return "pass-1" }
	return s
}

func logLines(t *testing.T, buf *bytes.Buffer, msg string) []map[string]any {
	t.Helper()
	var out []map[string]any
	sc := bufio.NewScanner(bytes.NewReader(buf.Bytes()))
	for sc.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &m))
		if m["message"] == msg {
			out = append(out, m)
		}
	}
	return out
}

func TestRunPassRegistryFailureSkipsLookups(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	prov := &fakeProvider{}
	disp := &fakeDispatcher{}
	s := newTestScanner(&fakeRegistry{err: errors.New("disk gone")}, prov, disp, &buf, 1)

	rep := s.RunPass(context.Background())
	require.Contains(t, rep.Err, ErrConfigUnavailable.Error())
	require.Empty(t, prov.calls)
	require.Empty(t, disp.texts)

	// next pass still works once the registry recovers
	s.registry = &fakeRegistry{m: map[string]ThresholdConfig{}}
	rep = s.RunPass(context.Background())
	require.Empty(t, rep.Err)
}

func TestRunPassDispatchesOncePerBreach(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	reg := &fakeRegistry{m: map[string]ThresholdConfig{
		"under":   {MinConsumerCount: 5, MaxBacklogTotal: 100},
		"over":    {MinConsumerCount: 5, MaxBacklogTotal: 100},
		"healthy": {MinConsumerCount: 5, MaxBacklogTotal: 100},
	}}
	prov := &fakeProvider{status: map[string]GroupStatus{
		"under":   {ConsumerCount: 3, BacklogTotal: 10},
		"over":    {ConsumerCount: 10, BacklogTotal: 500},
		"healthy": {ConsumerCount: 10, BacklogTotal: 50},
	}}
	disp := &fakeDispatcher{}
	s := newTestScanner(reg, prov, disp, &buf, 1)

	rep := s.RunPass(context.Background())
	require.Equal(t, 3, rep.Groups)
	require.Equal(t, 3, rep.Evaluated)
	require.Equal(t, 2, rep.Breaches)
	require.Equal(t, 2, rep.Dispatched)
	require.Equal(t, 2, rep.ChannelErrors)
	require.Len(t, disp.texts, 2)
	// deterministic group order
	require.Equal(t, []string{"healthy", "over", "under"}, prov.calls)
	require.Contains(t, disp.texts[0], "Consumer group: over")
	require.Contains(t, disp.texts[1], "Consumer group: under")

	// audit: every group evaluated is logged, only breaches logged as breaches
	require.Len(t, logLines(t, &buf, "group evaluated"), 3)
	require.Len(t, logLines(t, &buf, "threshold breached"), 2)
	for _, l := range logLines(t, &buf, "group evaluated") {
		require.Equal(t, "look", l["op"])
		require.Equal(t, "pass-1", l["pass"])
	}
}

func TestRunPassHealthyGroupNeverDispatches(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	reg := &fakeRegistry{m: map[string]ThresholdConfig{"g": {MinConsumerCount: 5, MaxBacklogTotal: 100}}}
	prov := &fakeProvider{status: map[string]GroupStatus{"g": {ConsumerCount: 10, BacklogTotal: 50}}}
	disp := &fakeDispatcher{}
	rep := newTestScanner(reg, prov, disp, &buf, 1).RunPass(context.Background())
	require.Equal(t, 1, rep.Evaluated)
	require.Zero(t, rep.Breaches)
	require.Empty(t, disp.texts)
}

func TestRunPassLookupFailureContinues(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	reg := &fakeRegistry{m: map[string]ThresholdConfig{
		"a": {MinConsumerCount: 1},
		"b": {MinConsumerCount: 1},
		"c": {MinConsumerCount: 1},
	}}
	prov := &fakeProvider{
		status: map[string]GroupStatus{"a": {ConsumerCount: 0}, "c": {ConsumerCount: 0}},
		fail:   map[string]error{"b": errors.New("no route")},
	}
	disp := &fakeDispatcher{}
	rep := newTestScanner(reg, prov, disp, &buf, 1).RunPass(context.Background())
	require.Equal(t, 1, rep.LookupFailures)
	require.Equal(t, 2, rep.Evaluated)
	require.Len(t, disp.texts, 2)
	require.Len(t, logLines(t, &buf, "group status lookup failed"), 1)
}

func TestRunPassRecoversDispatcherPanic(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	reg := &fakeRegistry{m: map[string]ThresholdConfig{"a": {MinConsumerCount: 1}, "b": {MinConsumerCount: 1}}}
	prov := &fakeProvider{status: map[string]GroupStatus{}}
	disp := &fakeDispatcher{panic: true}
	rep := newTestScanner(reg, prov, disp, &buf, 1).RunPass(context.Background())
	require.Equal(t, 2, rep.Evaluated)
	require.Len(t, logLines(t, &buf, "group evaluation panicked"), 2)
}

func TestRunPassConcurrentWorkers(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	m := map[string]ThresholdConfig{}
	status := map[string]GroupStatus{}
	for i := 0; i < 50; i++ {
		g := fmt.Sprintf("group-%02d", i)
		m[g] = ThresholdConfig{MinConsumerCount: 2, MaxBacklogTotal: 10}
		status[g] = GroupStatus{ConsumerCount: 1, BacklogTotal: 0}
	}
	disp := &fakeDispatcher{}
	bus := eventbus.New()
	breaches, unsub := bus.Subscribe(64, eventbus.TypeBreach)
	defer unsub()

	s := newTestScanner(&fakeRegistry{m: m}, &fakeProvider{status: status}, disp, &buf, 8)
	s.bus = bus
	rep := s.RunPass(context.Background())
	require.Equal(t, 50, rep.Evaluated)
	require.Equal(t, 50, rep.Breaches)
	require.Len(t, disp.texts, 50)
	require.Len(t, breaches, 50)
	require.Len(t, logLines(t, &buf, "threshold breached"), 50)
	ev := <-breaches
	be, ok := ev.Data.(BreachEvent)
	require.True(t, ok)
	require.Equal(t, "pass-1", be.PassID)
	require.Equal(t, ReasonUnderMinConsumers, be.Reason)
}

func TestRunPassAbandonsOnCancel(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	reg := &fakeRegistry{m: map[string]ThresholdConfig{"a": {}, "b": {}}}
	prov := &fakeProvider{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rep := newTestScanner(reg, prov, &fakeDispatcher{}, &buf, 1).RunPass(ctx)
	require.True(t, rep.Abandoned)
	require.Empty(t, prov.calls)
}

func TestRunPassPublishesReport(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	bus := eventbus.New()
	passes, unsub := bus.Subscribe(1, eventbus.TypePassFinished)
	defer unsub()
	s := newTestScanner(&fakeRegistry{m: map[string]ThresholdConfig{}}, &fakeProvider{}, &fakeDispatcher{}, &buf, 1)
	s.bus = bus
	rep := s.RunPass(context.Background())
	ev := <-passes
	got, ok := ev.Data.(PassReport)
	require.True(t, ok)
	require.Equal(t, rep, got)
	require.Equal(t, "pass-1", got.ID)
}
