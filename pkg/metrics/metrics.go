package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chative"

// Metrics holds the service's Prometheus collectors. A nil *Metrics is valid
// and records nothing, so components can take one optionally.
type Metrics struct {
	registry *prometheus.Registry

	TurnsTotal    *prometheus.CounterVec
	TurnDuration  prometheus.Histogram
	ModelRounds   prometheus.Histogram
	ToolCalls     *prometheus.CounterVec
	ToolDuration  *prometheus.HistogramVec
	SessionsSwept prometheus.Counter
	HTTPRequests  *prometheus.CounterVec
	HTTPDuration  *prometheus.HistogramVec
	MessagesSent  *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		TurnsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "agent_turns_total",
				Help:      "Conversation turns processed, by outcome.",
			},
			[]string{"outcome"},
		),
		TurnDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "agent_turn_duration_seconds",
				Help:      "Wall time of one conversation turn.",
				Buckets:   []float64{.25, .5, 1, 2, 4, 8, 16, 32},
			},
		),
		ModelRounds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "agent_tool_rounds",
				Help:      "Tool dispatch rounds per turn.",
				Buckets:   prometheus.LinearBuckets(0, 1, 11),
			},
		),
		ToolCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tool_executions_total",
				Help:      "Tool executions, by tool and status.",
			},
			[]string{"tool", "status"},
		),
		ToolDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "tool_execution_duration_seconds",
				Help:      "Duration of tool executions.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"tool"},
		),
		SessionsSwept: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_swept_total",
				Help:      "Idle sessions discarded by the retention sweep.",
			},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests, by method, route and status code.",
			},
			[]string{"method", "route", "code"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency, by route.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		MessagesSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "channel_messages_sent_total",
				Help:      "Outbound channel messages, by status.",
			},
			[]string{"status"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.TurnsTotal,
		m.TurnDuration,
		m.ModelRounds,
		m.ToolCalls,
		m.ToolDuration,
		m.SessionsSwept,
		m.HTTPRequests,
		m.HTTPDuration,
		m.MessagesSent,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) RecordTurn(outcome string, took time.Duration, rounds int) {
	if m == nil {
		return
	}
	m.TurnsTotal.WithLabelValues(outcome).Inc()
	m.TurnDuration.Observe(took.Seconds())
	m.ModelRounds.Observe(float64(rounds))
}

func (m *Metrics) RecordTool(tool string, took time.Duration, ok bool) {
	if m == nil {
		return
	}
	m.ToolCalls.WithLabelValues(tool, status(ok)).Inc()
	m.ToolDuration.WithLabelValues(tool).Observe(took.Seconds())
}

func (m *Metrics) RecordSweep(removed int) {
	if m == nil || removed <= 0 {
		return
	}
	m.SessionsSwept.Add(float64(removed))
}

func (m *Metrics) RecordHTTP(method, route string, code int, took time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.HTTPDuration.WithLabelValues(route).Observe(took.Seconds())
}

func (m *Metrics) RecordMessageSent(ok bool) {
	if m == nil {
		return
	}
	m.MessagesSent.WithLabelValues(status(ok)).Inc()
}

func status(ok bool) string {
	if ok {
		return "success"
	}
	return "error"
}
