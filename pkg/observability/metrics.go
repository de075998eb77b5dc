package observability

import (
	"context"
	"net/http"
	"strconv"

	"github.com/aretw0/tradeflow/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tradeflow"

// Metrics holds the Prometheus collectors for one process.
type Metrics struct {
	registry *prometheus.Registry

	statusChanges *prometheus.CounterVec
	stepDuration  *prometheus.HistogramVec
	stepFailures  *prometheus.CounterVec
	stepSkipped   *prometheus.CounterVec
	streamEmits   *prometheus.CounterVec
}

// NewMetrics creates the collectors on a fresh registry, with Go and process collectors included.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		statusChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_status_total",
			Help:      "Workflow status transitions, by target status.",
		}, []string{"status"}),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "workflow_step_duration_seconds",
			Help:      "Duration of completed workflow steps.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"step"}),
		stepFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_step_failures_total",
			Help:      "Failed workflow steps, by step and whether the failure was swallowed.",
		}, []string{"step", "best_effort"}),
		stepSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_step_skipped_total",
			Help:      "Steps skipped on resume because a checkpoint existed.",
		}, []string{"step"}),
		streamEmits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_emits_total",
			Help:      "Stream payloads, by whether a live subscriber received them.",
		}, []string{"delivered"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.statusChanges,
		m.stepDuration,
		m.stepFailures,
		m.stepSkipped,
		m.streamEmits,
	)
	return m
}

// Registry exposes the underlying registry for extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Gauge registers a gauge whose value is read from fn at scrape time.
func (m *Metrics) Gauge(name, help string, fn func() float64) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, fn))
}

// ObserveEmit counts a stream payload.
func (m *Metrics) ObserveEmit(delivered bool) {
	m.streamEmits.WithLabelValues(strconv.FormatBool(delivered)).Inc()
}

// Hooks returns lifecycle hooks that record into these metrics.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStepComplete: func(ctx context.Context, e *domain.StepEvent) {
			if e.Skipped {
				m.stepSkipped.WithLabelValues(e.Step).Inc()
				return
			}
			m.stepDuration.WithLabelValues(e.Step).Observe(e.Duration.Seconds())
		},
		OnStepFailed: func(ctx context.Context, e *domain.StepEvent) {
			m.stepFailures.WithLabelValues(e.Step, strconv.FormatBool(e.BestEffort)).Inc()
		},
		OnStatusChange: func(ctx context.Context, e *domain.StatusEvent) {
			m.statusChanges.WithLabelValues(string(e.To)).Inc()
		},
	}
}
