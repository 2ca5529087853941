// Package metrics turns orchestrator and notifier events into Prometheus
// series on a private registry.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shcheglovnd/us-visa-scheduler-telegram/internal/appointment"
	"github.com/shcheglovnd/us-visa-scheduler-telegram/internal/eventbus"
	"github.com/shcheglovnd/us-visa-scheduler-telegram/internal/notifier"
	"github.com/shcheglovnd/us-visa-scheduler-telegram/internal/orchestrator"
)

const namespace = "visa_scheduler"

var states = []orchestrator.State{
	orchestrator.StateBootstrapping,
	orchestrator.StateAuthenticated,
	orchestrator.StatePolling,
	orchestrator.StateRescheduling,
	orchestrator.StateBanCooldown,
	orchestrator.StateWorkCooldown,
}

type Metrics struct {
	r *prometheus.Registry

	Polls         prometheus.Counter
	Bans          prometheus.Counter
	AuthFailures  prometheus.Counter
	Faults        prometheus.Counter
	Outcomes      *prometheus.CounterVec
	Notifications *prometheus.CounterVec
	State         *prometheus.GaugeVec
	ListingSize   prometheus.Gauge
	CycleRequests prometheus.Gauge
}

func New() *Metrics {
	r := prometheus.NewRegistry()
	counter := func(name, help string) prometheus.Counter {
		c := prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help})
		r.MustRegister(c)
		return c
	}
	m := &Metrics{
		r:            r,
		Polls:        counter("polls_total", "availability listings fetched"),
		Bans:         counter("bans_total", "empty listings treated as soft bans"),
		AuthFailures: counter("auth_failures_total", "failed login attempts"),
		Faults:       counter("faults_total", "transient faults that forced a re-bootstrap"),
		Outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "reschedule_attempts_total", Help: "reschedule submissions by result",
		}, []string{"result"}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "notifications_total", Help: "notifications by delivery result",
		}, []string{"result"}),
		State: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "state", Help: "1 for the current orchestrator state",
		}, []string{"state"}),
		ListingSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "listing_size", Help: "dates in the last non-empty listing",
		}),
		CycleRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "cycle_requests", Help: "polls in the current work cycle",
		}),
	}
	r.MustRegister(m.Outcomes, m.Notifications, m.State, m.ListingSize, m.CycleRequests)
	m.setState(orchestrator.StateBootstrapping)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.r }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.r, promhttp.HandlerOpts{Registry: m.r, EnableOpenMetrics: true})
}

// Observe folds one bus event into the series. Unknown events are ignored.
func (m *Metrics) Observe(e eventbus.Event) {
	switch e.Type {
	case orchestrator.EventState:
		if sc, ok := e.Data.(orchestrator.StateChange); ok {
			m.setState(sc.To)
		}
	case orchestrator.EventPoll:
		m.Polls.Inc()
		if p, ok := e.Data.(orchestrator.PollResult); ok {
			m.ListingSize.Set(float64(p.Dates))
			m.CycleRequests.Set(float64(p.Requests))
		}
	case orchestrator.EventBan:
		m.Polls.Inc()
		m.Bans.Inc()
		if p, ok := e.Data.(orchestrator.PollResult); ok {
			m.CycleRequests.Set(float64(p.Requests))
		}
	case orchestrator.EventAuthFailed:
		m.AuthFailures.Inc()
	case orchestrator.EventFault:
		m.Faults.Inc()
	case orchestrator.EventOutcome:
		if oc, ok := e.Data.(appointment.Outcome); ok {
			m.Outcomes.WithLabelValues(oc.Kind.String()).Inc()
		}
	case notifier.EventSent:
		m.Notifications.WithLabelValues("sent").Inc()
	case notifier.EventFailed:
		m.Notifications.WithLabelValues("failed").Inc()
	case notifier.EventDropped:
		m.Notifications.WithLabelValues("dropped").Inc()
	}
}

func (m *Metrics) setState(cur orchestrator.State) {
	for _, s := range states {
		v := 0.0
		if s == cur {
			v = 1
		}
		m.State.WithLabelValues(s.String()).Set(v)
	}
}

// Consume feeds events from bus until ctx is done.
func (m *Metrics) Consume(ctx context.Context, bus eventbus.Bus) {
	ch, unsub := bus.Subscribe(64)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			m.Observe(e)
		}
	}
}
