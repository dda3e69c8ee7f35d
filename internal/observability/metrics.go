package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	TurnsTotal        *prometheus.CounterVec
	StageLatency      *prometheus.HistogramVec
	RateLimitDenials  prometheus.Counter
	ProviderErrors    *prometheus.CounterVec
	EntriesExtracted  prometheus.Counter
	PersistRetries    prometheus.Counter
	IndexInconsistent prometheus.Counter

	stageWindow *stageWindow
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		TurnsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_turns_total",
			Help:      "Chat turns by terminal outcome.",
		}, []string{"outcome"}),
		StageLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_stage_latency_ms",
			Help:      "Latency per orchestrator stage in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		}, []string{"stage"}),
		RateLimitDenials: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_denials_total",
			Help:      "Requests denied by the rate limiter.",
		}),
		ProviderErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Capability provider errors by provider and code.",
		}, []string{"provider", "code"}),
		EntriesExtracted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memory_entries_extracted_total",
			Help:      "Long-term memory entries produced by extraction.",
		}),
		PersistRetries: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_retries_total",
			Help:      "Asynchronous retries of failed turn persistence.",
		}),
		IndexInconsistent: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memory_index_inconsistencies_total",
			Help:      "Vector index hits that resolved to no stored entry.",
		}),
		stageWindow: newStageWindow(256),
	}
}

// ObserveStage records one stage duration into both the Prometheus
// histogram and the in-process sliding window.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	ms := float64(d.Milliseconds())
	m.StageLatency.WithLabelValues(stage).Observe(ms)
	m.stageWindow.Observe(stage, ms)
}

// StageSnapshot exposes recent per-stage latency percentiles.
func (m *Metrics) StageSnapshot() StageSnapshot {
	return m.stageWindow.Snapshot()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
