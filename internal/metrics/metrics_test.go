package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shcheglovnd/us-visa-scheduler-telegram/internal/appointment"
	"github.com/shcheglovnd/us-visa-scheduler-telegram/internal/eventbus"
	"github.com/shcheglovnd/us-visa-scheduler-telegram/internal/notifier"
	"github.com/shcheglovnd/us-visa-scheduler-telegram/internal/orchestrator"
)

// value returns the sample of name whose labels include want (all labels if nil).
func value(t *testing.T, m *Metrics, name string, want map[string]string) float64 {
	t.Helper()
	mfs, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
	metric:
		for _, mt := range mf.GetMetric() {
			for _, lp := range mt.GetLabel() {
				if v, ok := want[lp.GetName()]; ok && v != lp.GetValue() {
					continue metric
				}
			}
			if c := mt.GetCounter(); c != nil {
				return c.GetValue()
			}
			return mt.GetGauge().GetValue()
		}
	}
	t.Fatalf("metric %s%v not found", name, want)
	return 0
}

func TestObserve(t *testing.T) {
	t.Parallel()
	m := New()
	for _, e := range []eventbus.Event{
		{Type: orchestrator.EventState, Data: orchestrator.StateChange{From: orchestrator.StateAuthenticated, To: orchestrator.StatePolling}},
		{Type: orchestrator.EventPoll, Data: orchestrator.PollResult{Requests: 3, Dates: 5}},
		{Type: orchestrator.EventBan, Data: orchestrator.PollResult{Requests: 4}},
		{Type: orchestrator.EventAuthFailed},
		{Type: orchestrator.EventFault, Data: "boom"},
		{Type: orchestrator.EventOutcome, Data: appointment.Outcome{Kind: appointment.OutcomeSuccess}},
		{Type: orchestrator.EventOutcome, Data: appointment.Outcome{Kind: appointment.OutcomeFailure}},
		{Type: orchestrator.EventOutcome, Data: appointment.Outcome{Kind: appointment.OutcomeFailure}},
		{Type: notifier.EventSent},
		{Type: notifier.EventDropped},
		{Type: "something.else"},
	} {
		m.Observe(e)
	}

	checks := []struct {
		name   string
		labels map[string]string
		want   float64
	}{
		{"visa_scheduler_polls_total", nil, 2},
		{"visa_scheduler_bans_total", nil, 1},
		{"visa_scheduler_auth_failures_total", nil, 1},
		{"visa_scheduler_faults_total", nil, 1},
		{"visa_scheduler_reschedule_attempts_total", map[string]string{"result": "success"}, 1},
		{"visa_scheduler_reschedule_attempts_total", map[string]string{"result": "failure"}, 2},
		{"visa_scheduler_notifications_total", map[string]string{"result": "sent"}, 1},
		{"visa_scheduler_notifications_total", map[string]string{"result": "dropped"}, 1},
		{"visa_scheduler_state", map[string]string{"state": "polling"}, 1},
		{"visa_scheduler_state", map[string]string{"state": "bootstrapping"}, 0},
		{"visa_scheduler_listing_size", nil, 5},
		{"visa_scheduler_cycle_requests", nil, 4},
	}
	for _, c := range checks {
		if got := value(t, m, c.name, c.labels); got != c.want {
			t.Fatalf("%s%v = %v, want %v", c.name, c.labels, got, c.want)
		}
	}
}

func TestConsumeFromBus(t *testing.T) {
	t.Parallel()
	m := New()
	bus := eventbus.New()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.Consume(ctx, bus)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for value(t, m, "visa_scheduler_faults_total", nil) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("event never consumed")
		}
		bus.Publish(eventbus.Event{Type: orchestrator.EventFault})
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	<-done
}

func TestHandlerExposesSeries(t *testing.T) {
	t.Parallel()
	m := New()
	m.Observe(eventbus.Event{Type: orchestrator.EventPoll, Data: orchestrator.PollResult{Requests: 1, Dates: 2}})

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "visa_scheduler_polls_total 1") {
		t.Fatalf("body missing polls counter:\n%s", body)
	}
}

func TestMuxAuthAndPprof(t *testing.T) {
	t.Parallel()
	m := New()
	tests := []struct {
		name      string
		cfg       ServerConfig
		wantPprof bool
	}{
		{"loopback without token", ServerConfig{Addr: "127.0.0.1:9100", Pprof: true}, true},
		{"public without token", ServerConfig{Addr: ":9100", Pprof: true}, false},
		{"public with token", ServerConfig{Addr: "0.0.0.0:9100", Token: "s3cret", Pprof: true}, true},
		{"pprof off", ServerConfig{Addr: "localhost:9100"}, false},
	}
	for _, tt := range tests {
		if _, on := m.Mux(tt.cfg); on != tt.wantPprof {
			t.Fatalf("%s: pprof = %v, want %v", tt.name, on, tt.wantPprof)
		}
	}

	mux, _ := m.Mux(ServerConfig{Addr: "127.0.0.1:0", Token: "s3cret", Pprof: true})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	status := func(path, header string) int {
		t.Helper()
		req, err := http.NewRequest(http.MethodGet, srv.URL+path, nil)
		if err != nil {
			t.Fatalf("NewRequest: %v", err)
		}
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		resp, err := srv.Client().Do(req)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}
	checks := []struct {
		path, header string
		want         int
	}{
		{"/metrics", "", http.StatusUnauthorized},
		{"/metrics", "Bearer wrong", http.StatusUnauthorized},
		{"/metrics", "Bearer s3cret", http.StatusOK},
		{"/metrics?token=s3cret", "", http.StatusOK},
		{"/healthz?token=nope", "", http.StatusUnauthorized},
		{"/debug/pprof/", "Bearer s3cret", http.StatusOK},
	}
	for _, c := range checks {
		if got := status(c.path, c.header); got != c.want {
			t.Fatalf("GET %s (%q) = %d, want %d", c.path, c.header, got, c.want)
		}
	}
}
