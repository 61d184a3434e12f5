package scene

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records adapter activity. A nil *Metrics is valid and records nothing.
type Metrics struct {
	loads        *prometheus.CounterVec
	loadSeconds  prometheus.Histogram
	descriptors  *prometheus.CounterVec
	textureBinds *prometheus.CounterVec
	arRequests   *prometheus.CounterVec
}

// NewMetrics registers the adapter collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		loads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reskin",
			Subsystem: "scene",
			Name:      "loads_total",
			Help:      "Scene loads by result (ready, failed, stale).",
		}, []string{"result"}),
		loadSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "reskin",
			Subsystem: "scene",
			Name:      "load_duration_seconds",
			Help:      "Time from load request to ready or failed.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		descriptors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reskin",
			Subsystem: "scene",
			Name:      "edit_descriptors_total",
			Help:      "Edit descriptors by outcome (applied, skipped).",
		}, []string{"outcome"}),
		textureBinds: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reskin",
			Subsystem: "scene",
			Name:      "texture_binds_total",
			Help:      "Texture bind attempts by outcome (bound, stale, superseded, failed).",
		}, []string{"outcome"}),
		arRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reskin",
			Subsystem: "scene",
			Name:      "ar_requests_total",
			Help:      "AR activation requests by outcome (activated, ignored).",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) load(result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.loads.WithLabelValues(result).Inc()
	m.loadSeconds.Observe(elapsed.Seconds())
}

func (m *Metrics) descriptor(outcome string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.descriptors.WithLabelValues(outcome).Add(float64(n))
}

func (m *Metrics) textureBind(outcome string) {
	if m == nil {
		return
	}
	m.textureBinds.WithLabelValues(outcome).Inc()
}

func (m *Metrics) arRequest(outcome string) {
	if m == nil {
		return
	}
	m.arRequests.WithLabelValues(outcome).Inc()
}
