package ops

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mqwatch/internal/eventbus"
	"mqwatch/internal/monitor"
	"mqwatch/internal/notify"
	"mqwatch/internal/scheduler"
)

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthz(t *testing.T) {
	s := New(Config{}, Deps{})
	rec := get(t, s.Handler(), "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestStatusReportsLastPass(t *testing.T) {
	s := New(Config{}, Deps{
		Channels:  func() []string { return []string{"email", "webhook"} },
		Schedules: func() []scheduler.ScheduleInfo { return []scheduler.ScheduleInfo{{Name: "scan", Spec: "@every 1m"}} },
	})

	rec := get(t, s.Handler(), "/status")
	require.Equal(t, http.StatusOK, rec.Code)
	var st Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	require.Nil(t, st.LastPass)
	require.Equal(t, []string{"email", "webhook"}, st.Channels)

	s.observe(eventbus.Event{Type: eventbus.TypePassFinished, Data: monitor.PassReport{ID: "p1", Groups: 3, Breaches: 1}})
	s.observe(eventbus.Event{Type: eventbus.TypeBreach, Data: monitor.BreachEvent{PassID: "p1"}})
	s.observe(eventbus.Event{Type: eventbus.TypeDeliveryFailed, Data: notify.DeliveryEvent{Channel: "email"}})
	s.observe(eventbus.Event{Type: eventbus.TypeDelivered, Data: notify.DeliveryEvent{Channel: "webhook"}})

	rec = get(t, s.Handler(), "/status")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	require.NotNil(t, st.LastPass)
	require.Equal(t, "p1", st.LastPass.ID)
	require.Equal(t, 3, st.LastPass.Groups)
	require.Equal(t, Counters{Passes: 1, Breaches: 1, Delivered: 1, DeliveryFailures: 1}, st.Counters)
	require.Len(t, st.Schedules, 1)
}

func TestPprofRoutesOptIn(t *testing.T) {
	off := New(Config{}, Deps{})
	require.Equal(t, http.StatusNotFound, get(t, off.Handler(), "/debug/pprof/").Code)

	on := New(Config{Pprof: true}, Deps{})
	require.Equal(t, http.StatusOK, get(t, on.Handler(), "/debug/pprof/").Code)
	require.Equal(t, http.StatusOK, get(t, on.Handler(), "/debug/pprof/goroutine?debug=1").Code)
}

func TestRunTracksBusAndShutsDown(t *testing.T) {
	bus := eventbus.New()
	s := New(Config{Addr: "127.0.0.1:0"}, Deps{Bus: bus})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return s.Addr() != "" }, time.Second, 5*time.Millisecond)
	bus.Publish(eventbus.Event{Type: eventbus.TypePassFinished, Data: monitor.PassReport{ID: "live"}})

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + s.Addr() + "/status")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		var st Status
		if json.NewDecoder(resp.Body).Decode(&st) != nil || st.LastPass == nil {
			return false
		}
		return st.LastPass.ID == "live"
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
}
