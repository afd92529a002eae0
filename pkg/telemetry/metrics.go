package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for nodekeeper.
type Metrics struct {
	config MetricsConfig

	// Operation metrics
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec

	// Registry metrics
	registryRequests  *prometheus.CounterVec
	downloadedBytes   prometheus.Counter
	cacheLookupsTotal *prometheus.CounterVec

	// Error metrics
	errorsByClass *prometheus.CounterVec
	errorsByCode  *prometheus.CounterVec

	// Package inventory metrics
	installedPackages *prometheus.GaugeVec
	corruptCopies     prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// No-op metrics instance
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		operationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Total number of package operations",
			},
			[]string{"operation", "status"},
		),
		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Duration of package operations in seconds",
				Buckets:   buckets,
			},
			[]string{"operation"},
		),

		registryRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "registry_requests_total",
				Help:      "Total number of registry requests",
			},
			[]string{"kind", "status"},
		),
		downloadedBytes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "downloaded_bytes_total",
				Help:      "Total bytes downloaded from the registry",
			},
		),
		cacheLookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "registry_cache_lookups_total",
				Help:      "Total number of registry cache lookups",
			},
			[]string{"result"},
		),

		errorsByClass: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_class_total",
				Help:      "Total number of errors by error class",
			},
			[]string{"class"},
		),
		errorsByCode: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_code_total",
				Help:      "Total number of errors by error code",
			},
			[]string{"code"},
		),

		installedPackages: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "installed_packages",
				Help:      "Current number of installed package copies",
			},
			[]string{"kind", "location"},
		),
		corruptCopies: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "corrupt_copies",
				Help:      "Current number of corrupt package copies on disk",
			},
		),
	}

	registry.MustRegister(
		m.operationsTotal,
		m.operationDuration,
		m.registryRequests,
		m.downloadedBytes,
		m.cacheLookupsTotal,
		m.errorsByClass,
		m.errorsByCode,
		m.installedPackages,
		m.corruptCopies,
	)

	return m, nil
}

// RecordOperation records a finished package operation.
func (m *Metrics) RecordOperation(operation, status string, duration time.Duration) {
	if m.operationsTotal == nil {
		return
	}
	m.operationsTotal.WithLabelValues(operation, status).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordRegistryRequest records a registry API or download request.
func (m *Metrics) RecordRegistryRequest(kind, status string) {
	if m.registryRequests == nil {
		return
	}
	m.registryRequests.WithLabelValues(kind, status).Inc()
}

// RecordDownloadedBytes adds to the downloaded byte counter.
func (m *Metrics) RecordDownloadedBytes(n float64) {
	if m.downloadedBytes == nil {
		return
	}
	m.downloadedBytes.Add(n)
}

// RecordCacheLookup records a registry cache lookup result (hit, miss).
func (m *Metrics) RecordCacheLookup(result string) {
	if m.cacheLookupsTotal == nil {
		return
	}
	m.cacheLookupsTotal.WithLabelValues(result).Inc()
}

// RecordError records an error by class and optionally by code.
func (m *Metrics) RecordError(errorClass, errorCode string) {
	if m.errorsByClass == nil {
		return
	}
	m.errorsByClass.WithLabelValues(errorClass).Inc()
	if errorCode != "" && m.errorsByCode != nil {
		m.errorsByCode.WithLabelValues(errorCode).Inc()
	}
}

// SetInstalledPackages sets the current count of package copies for one
// kind and location.
func (m *Metrics) SetInstalledPackages(kind, location string, count float64) {
	if m.installedPackages == nil {
		return
	}
	m.installedPackages.WithLabelValues(kind, location).Set(count)
}

// SetCorruptCopies sets the current count of corrupt copies.
func (m *Metrics) SetCorruptCopies(count float64) {
	if m.corruptCopies == nil {
		return
	}
	m.corruptCopies.Set(count)
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts an HTTP server to expose metrics.
func (m *Metrics) StartMetricsServer() error {
	if !m.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("metrics server error: %v\n", err)
		}
	}()

	return nil
}
