package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics exposed by the detector.
type Metrics struct {
	EventsProcessed     *prometheus.CounterVec
	AlertsEmitted       *prometheus.CounterVec
	EntropyReadFailures prometheus.Counter
	WatcherIterations   prometheus.Counter
	WatcherErrors       prometheus.Counter
	CurrentABT          prometheus.Gauge
	WindowEvents        prometheus.Gauge
}

// NewMetrics creates all metric collectors with the ransomguard namespace.
func NewMetrics() *Metrics {
	return &Metrics{
		EventsProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ransomguard",
				Name:      "file_events_total",
				Help:      "Total file change events evaluated, by action",
			},
			[]string{"action"},
		),
		AlertsEmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ransomguard",
				Name:      "alerts_total",
				Help:      "Total alerts emitted, by severity and category",
			},
			[]string{"severity", "category"},
		),
		EntropyReadFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "ransomguard",
				Name:      "entropy_read_failures_total",
				Help:      "Total file reads that failed during entropy sampling",
			},
		),
		WatcherIterations: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "ransomguard",
				Name:      "watcher_iterations_total",
				Help:      "Total completed watcher poll iterations",
			},
		),
		WatcherErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "ransomguard",
				Name:      "watcher_errors_total",
				Help:      "Total watcher poll iterations that failed",
			},
		),
		CurrentABT: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "ransomguard",
				Name:      "adaptive_burst_threshold",
				Help:      "Current adaptive burst threshold (events/second)",
			},
		),
		WindowEvents: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "ransomguard",
				Name:      "window_events",
				Help:      "File change events currently inside the burst window",
			},
		),
	}
}

// Register registers all collectors on the given registry.
func (m *Metrics) Register(reg *prometheus.Registry) error {
	collectors := []prometheus.Collector{
		m.EventsProcessed,
		m.AlertsEmitted,
		m.EntropyReadFailures,
		m.WatcherIterations,
		m.WatcherErrors,
		m.CurrentABT,
		m.WindowEvents,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
