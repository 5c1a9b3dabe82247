package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the engine's Prometheus series. A nil *Collector is a
// valid no-op, which keeps tests free of registry plumbing.
type Collector struct {
	registry      *prometheus.Registry
	transitions   *prometheus.CounterVec
	probeDuration *prometheus.HistogramVec
	backlog       prometheus.Gauge
	inflight      prometheus.Gauge
	observers     prometheus.Gauge
	resolveErrors *prometheus.CounterVec
	storeErrors   *prometheus.CounterVec
	illegal       *prometheus.CounterVec
}

func NewCollector(reg *prometheus.Registry) *Collector {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Collector{
		registry: reg,
		transitions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "checkqueue_transitions_total",
				Help: "Status transitions published, by target status",
			},
			[]string{"status"},
		),
		probeDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "checkqueue_probe_duration_seconds",
				Help:    "Duration of HTTP probes",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),
		backlog: f.NewGauge(prometheus.GaugeOpts{
			Name: "checkqueue_backlog_size",
			Help: "Resolved checks waiting for admission",
		}),
		inflight: f.NewGauge(prometheus.GaugeOpts{
			Name: "checkqueue_inflight_size",
			Help: "Checks currently admitted",
		}),
		observers: f.NewGauge(prometheus.GaugeOpts{
			Name: "checkqueue_observers",
			Help: "Registered observers",
		}),
		resolveErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "checkqueue_resolve_errors_total",
				Help: "Target host resolutions that failed, by class",
			},
			[]string{"class"},
		),
		storeErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "checkqueue_store_errors_total",
				Help: "Store calls that failed, by operation",
			},
			[]string{"op"},
		),
		illegal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "checkqueue_illegal_transitions_total",
				Help: "Status moves refused by the engine",
			},
			[]string{"from", "to"},
		),
	}
}

func (c *Collector) Handler() http.Handler {
	if c == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) RecordTransition(status string) {
	if c == nil {
		return
	}
	c.transitions.WithLabelValues(status).Inc()
}

func (c *Collector) RecordProbe(success bool, d time.Duration) {
	if c == nil {
		return
	}
	outcome := "failure"
	if success {
		outcome = "success"
	}
	c.probeDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

func (c *Collector) SetQueueSizes(backlog, inflight int) {
	if c == nil {
		return
	}
	c.backlog.Set(float64(backlog))
	c.inflight.Set(float64(inflight))
}

func (c *Collector) SetObservers(n int) {
	if c == nil {
		return
	}
	c.observers.Set(float64(n))
}

func (c *Collector) RecordResolveError(class string) {
	if c == nil {
		return
	}
	c.resolveErrors.WithLabelValues(class).Inc()
}

func (c *Collector) RecordStoreError(op string) {
	if c == nil {
		return
	}
	c.storeErrors.WithLabelValues(op).Inc()
}

func (c *Collector) RecordIllegalTransition(from, to string) {
	if c == nil {
		return
	}
	c.illegal.WithLabelValues(from, to).Inc()
}
