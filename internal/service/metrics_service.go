package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the upload
// pipeline.
type MetricsService struct {
	registry *prometheus.Registry
	handler  http.Handler

	requestDuration    *prometheus.HistogramVec
	requestTotal       *prometheus.CounterVec
	uploadsTotal       *prometheus.CounterVec
	uploadBytes        prometheus.Counter
	validationDuration *prometheus.HistogramVec
	rateLimitRejects   *prometheus.CounterVec
	threatsDetected    *prometheus.CounterVec
	quarantineCount    prometheus.Gauge
	quarantineBytes    prometheus.Gauge
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	uploadsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "uploads_total",
		Help: "Upload attempts by outcome",
	}, []string{"result"})

	uploadBytes := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "upload_bytes_total",
		Help: "Total bytes accepted for storage",
	})

	validationDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "upload_validation_duration_seconds",
		Help:    "Duration of full validation pipeline runs",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})

	rateLimitRejects := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rate_limit_rejections_total",
		Help: "Uploads rejected by the rate limiter, by tier",
	}, []string{"tier"})

	threatsDetected := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "threats_detected_total",
		Help: "Threats found by the content scanner, by category",
	}, []string{"category"})

	quarantineCount := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "quarantine_files",
		Help: "Files currently held in quarantine",
	})

	quarantineBytes := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "quarantine_bytes",
		Help: "Bytes currently held in quarantine",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, uploadsTotal, uploadBytes,
		validationDuration, rateLimitRejects, threatsDetected, quarantineCount, quarantineBytes, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:           registry,
		handler:            handler,
		requestDuration:    requestDuration,
		requestTotal:       requestTotal,
		uploadsTotal:       uploadsTotal,
		uploadBytes:        uploadBytes,
		validationDuration: validationDuration,
		rateLimitRejects:   rateLimitRejects,
		threatsDetected:    threatsDetected,
		quarantineCount:    quarantineCount,
		quarantineBytes:    quarantineBytes,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordUpload counts one upload attempt by outcome and, when accepted,
// its size.
func (m *MetricsService) RecordUpload(result string, sizeBytes int64) {
	if m == nil {
		return
	}
	m.uploadsTotal.WithLabelValues(result).Inc()
	if result == "accepted" && sizeBytes > 0 {
		m.uploadBytes.Add(float64(sizeBytes))
	}
}

// ObserveValidation records one full validation pipeline run.
func (m *MetricsService) ObserveValidation(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.validationDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordRateLimitRejection counts a limiter denial for a tier.
func (m *MetricsService) RecordRateLimitRejection(tier string) {
	if m == nil {
		return
	}
	m.rateLimitRejects.WithLabelValues(tier).Inc()
}

// RecordThreat counts one scanner finding.
func (m *MetricsService) RecordThreat(category string) {
	if m == nil {
		return
	}
	m.threatsDetected.WithLabelValues(category).Inc()
}

// SetQuarantineUsage publishes the current quarantine footprint.
func (m *MetricsService) SetQuarantineUsage(files int, bytes int64) {
	if m == nil {
		return
	}
	m.quarantineCount.Set(float64(files))
	m.quarantineBytes.Set(float64(bytes))
}
