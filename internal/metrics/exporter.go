package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Exporter serves the Prometheus metrics endpoint on its own port.
type Exporter struct {
	server  *http.Server
	metrics *Metrics
	logger  *logrus.Logger
	port    string
}

// NewExporter creates an exporter with a dedicated registry so repeated
// construction in tests never hits duplicate-registration errors.
func NewExporter(port string, logger *logrus.Logger) (*Exporter, error) {
	metrics := NewMetrics()
	registry := prometheus.NewRegistry()
	if err := metrics.Register(registry); err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	server := &http.Server{
		Addr:    ":" + port,
		Handler: mux,
	}

	return &Exporter{
		server:  server,
		metrics: metrics,
		logger:  logger,
		port:    port,
	}, nil
}

// Start runs the exporter until the context is cancelled.
func (e *Exporter) Start(ctx context.Context) error {
	e.logger.Infof("Starting metrics exporter on port %s", e.port)

	go func() {
		if err := e.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			e.logger.Errorf("Failed to start metrics exporter: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	e.logger.Info("Shutting down metrics exporter...")
	return e.server.Shutdown(shutdownCtx)
}

// GetMetrics returns the metrics instance shared with the rest of the process.
func (e *Exporter) GetMetrics() *Metrics {
	return e.metrics
}
