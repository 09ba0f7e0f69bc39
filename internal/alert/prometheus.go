package alert

import (
	"context"
	"errors"
	"net/http"
	"time"

	"conn-guard/internal/client"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// PrometheusExporter quản lý việc expose metrics qua HTTP endpoint
type PrometheusExporter struct {
	server   *http.Server
	metrics  *client.PrometheusMetrics
	registry *prometheus.Registry
	logger   *logrus.Logger
	port     string
}

// CreateCustomRegistry tạo Prometheus registry tùy chỉnh
func CreateCustomRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()

	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return registry
}

// NewPrometheusExporter registers the conn-guard metrics on a fresh registry
// and prepares the /metrics and /health endpoints
func NewPrometheusExporter(port string, logger *logrus.Logger) *PrometheusExporter {
	registry := CreateCustomRegistry()
	metrics := client.NewPrometheusMetrics(registry)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	server := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 15 * time.Second,
	}

	return &PrometheusExporter{
		server:   server,
		metrics:  metrics,
		registry: registry,
		logger:   logger,
		port:     port,
	}
}

// Start serves until ctx is done, then shuts the server down
func (e *PrometheusExporter) Start(ctx context.Context) error {
	e.logger.Infof("Starting Prometheus exporter on port %s", e.port)
	e.logger.Infof("Metrics available at: http://localhost:%s/metrics", e.port)

	go func() {
		if err := e.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.logger.Errorf("Failed to start Prometheus exporter: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	e.logger.Info("Shutting down Prometheus exporter...")
	return e.server.Shutdown(shutdownCtx)
}

// Handler exposes the HTTP handler, for tests
func (e *PrometheusExporter) Handler() http.Handler {
	return e.server.Handler
}

// GetMetrics trả về instance của PrometheusMetrics
func (e *PrometheusExporter) GetMetrics() *client.PrometheusMetrics {
	return e.metrics
}

func (e *PrometheusExporter) Registry() *prometheus.Registry {
	return e.registry
}
