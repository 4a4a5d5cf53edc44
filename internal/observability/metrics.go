package observability

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Metrics collects per-run counters. A CLI process is short lived, so they
// are exported by writing a node-exporter textfile rather than serving
// /metrics.
type Metrics struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	polls           *prometheus.CounterVec
	waits           *prometheus.CounterVec
	waitDuration    prometheus.Histogram
	downloads       *prometheus.CounterVec
	downloadBytes   *prometheus.CounterVec
}

// NewMetrics registers the expobuild collectors on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "expobuild_http_requests_total",
			Help: "HTTP requests issued, by client, status code and method.",
		}, []string{"client", "code", "method"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "expobuild_http_request_duration_seconds",
			Help:    "HTTP request latency, by client.",
			Buckets: prometheus.DefBuckets,
		}, []string{"client", "code", "method"}),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "expobuild_polls_total",
			Help: "Status polls that kept wait:build waiting, by observed status.",
		}, []string{"status"}),
		waits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "expobuild_waits_total",
			Help: "Completed waits, by outcome.",
		}, []string{"outcome"}),
		waitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "expobuild_wait_duration_seconds",
			Help:    "Time spent in wait:build.",
			Buckets: prometheus.ExponentialBuckets(30, 2, 8),
		}),
		downloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "expobuild_downloads_total",
			Help: "Artifact downloads, by platform and result.",
		}, []string{"platform", "result"}),
		downloadBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "expobuild_download_bytes_total",
			Help: "Artifact bytes written, by platform.",
		}, []string{"platform"}),
	}
	m.registry.MustRegister(
		m.requests,
		m.requestDuration,
		m.polls,
		m.waits,
		m.waitDuration,
		m.downloads,
		m.downloadBytes,
	)
	return m
}

// CLIMetrics is the process-wide collector set.
var CLIMetrics = NewMetrics()

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObservePoll counts one non-terminal poll.
func (m *Metrics) ObservePoll(status string) {
	if status == "" {
		status = "error"
	}
	m.polls.WithLabelValues(status).Inc()
}

// ObserveWait records how a wait ended.
func (m *Metrics) ObserveWait(outcome string, elapsed time.Duration) {
	m.waits.WithLabelValues(outcome).Inc()
	m.waitDuration.Observe(elapsed.Seconds())
}

// ObserveDownload records one artifact download.
func (m *Metrics) ObserveDownload(platform string, bytes int64, err error) {
	if err != nil {
		m.downloads.WithLabelValues(platform, "error").Inc()
		return
	}
	m.downloads.WithLabelValues(platform, "ok").Inc()
	m.downloadBytes.WithLabelValues(platform).Add(float64(bytes))
}

// WriteTextfile writes every metric to path in the Prometheus text format.
// The file is replaced atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("metrics: create directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("metrics: write %s: %w", path, err)
	}
	return nil
}

// InstrumentTransport wraps next with request metrics for client and an
// OpenTelemetry client span per request. Nil uses http.DefaultTransport.
func (m *Metrics) InstrumentTransport(client string, next http.RoundTripper) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	labels := prometheus.Labels{"client": client}
	rt := promhttp.InstrumentRoundTripperCounter(m.requests.MustCurryWith(labels),
		promhttp.InstrumentRoundTripperDuration(m.requestDuration.MustCurryWith(labels), next))
	return otelhttp.NewTransport(rt,
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return client + " " + r.Method
		}))
}

// HTTPClient returns an instrumented client for the named upstream.
func HTTPClient(client string, timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: CLIMetrics.InstrumentTransport(client, nil),
	}
}
