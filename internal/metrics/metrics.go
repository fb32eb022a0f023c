// Package metrics exposes Prometheus counters for the duty tracker.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "staffduty"

// Metrics holds every collector on a private registry
type Metrics struct {
	registry *prometheus.Registry

	messages      prometheus.Counter
	voiceSeconds  prometheus.Counter
	dutyEvents    *prometheus.CounterVec
	clockouts     *prometheus.CounterVec
	sweepDuration prometheus.Histogram
	reports       *prometheus.CounterVec
}

// New registers the collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		messages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_recorded_total",
			Help:      "Messages counted into daily buckets.",
		}),
		voiceSeconds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "voice_seconds_total",
			Help:      "Voice seconds credited on leave or move.",
		}),
		dutyEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duty_events_total",
			Help:      "Manual duty sign-in and sign-out attempts by outcome.",
		}, []string{"event", "outcome"}),
		clockouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auto_clockouts_total",
			Help:      "Stale duty entries handled by the sweeper.",
		}, []string{"result"}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_duration_seconds",
			Help:      "Time spent in one auto clock-out pass.",
			Buckets:   prometheus.DefBuckets,
		}),
		reports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "weekly_reports_total",
			Help:      "Weekly report attempts per guild by result.",
		}, []string{"result"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.messages, m.voiceSeconds, m.dutyEvents, m.clockouts, m.sweepDuration, m.reports,
	)
	return m
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) MessageRecorded() {
	m.messages.Inc()
}

func (m *Metrics) VoiceCredited(d time.Duration) {
	m.voiceSeconds.Add(d.Seconds())
}

// DutyEvent counts a sign-in or sign-out with its outcome label
func (m *Metrics) DutyEvent(event, outcome string) {
	m.dutyEvents.WithLabelValues(event, outcome).Inc()
}

// SweepFinished records one sweeper pass
func (m *Metrics) SweepFinished(closed, discarded, failed int, took time.Duration) {
	m.clockouts.WithLabelValues("closed").Add(float64(closed))
	m.clockouts.WithLabelValues("discarded").Add(float64(discarded))
	m.clockouts.WithLabelValues("failed").Add(float64(failed))
	m.sweepDuration.Observe(took.Seconds())
}

// ReportFinished records one per-guild weekly attempt
func (m *Metrics) ReportFinished(result string) {
	m.reports.WithLabelValues(result).Inc()
}
