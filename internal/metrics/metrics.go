package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jwebster45206/fateweaver/pkg/workflow"
)

const namespace = "fateweaver"

// Exchange outcomes
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Metrics owns a private registry so tests can create as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	exchanges *prometheus.CounterVec
	duration  prometheus.Histogram
	events    *prometheus.CounterVec
	endings   *prometheus.CounterVec
	actions   *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		exchanges: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exchanges_total",
			Help:      "Workflow exchanges, partitioned by outcome.",
		}, []string{"outcome"}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "exchange_duration_seconds",
			Help:      "Time from request to end of stream.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 120},
		}),
		events: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_events_total",
			Help:      "Decoded stream events, partitioned by node type.",
		}, []string{"node_type"}),
		endings: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "endings_total",
			Help:      "Playthroughs that reached an ending.",
		}, []string{"ending_id"}),
		actions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_total",
			Help:      "Player actions handled by the API.",
		}, []string{"action", "status"}),
	}
}

// Handler exposes the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) EndingReached(id string) {
	m.endings.WithLabelValues(id).Inc()
}

func (m *Metrics) Action(action, status string) {
	m.actions.WithLabelValues(action, status).Inc()
}

// Instrument wraps a Streamer so every exchange is counted and timed.
func (m *Metrics) Instrument(s workflow.Streamer) workflow.Streamer {
	return &instrumentedStreamer{next: s, m: m}
}

type instrumentedStreamer struct {
	next workflow.Streamer
	m    *Metrics
}

func (s *instrumentedStreamer) Stream(ctx context.Context, req *workflow.RunRequest, fn func(workflow.Event) error) error {
	start := time.Now()
	err := s.next.Stream(ctx, req, func(ev workflow.Event) error {
		s.m.events.WithLabelValues(string(ev.Class())).Inc()
		return fn(ev)
	})
	s.m.duration.Observe(time.Since(start).Seconds())

	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	s.m.exchanges.WithLabelValues(outcome).Inc()
	return err
}
