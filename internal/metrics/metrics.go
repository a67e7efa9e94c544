package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Recorder interface {
	IncRequestsTotal(endpoint string, status int)
	ObserveRequestDuration(endpoint string, duration time.Duration)
	IncScannerState(state string)
	IncFrames(found bool)
	IncPayloads(kind, outcome string)
	IncCodesRendered(kind string)
	IncCacheHits()
	IncCacheMisses()
	ObserveBackupDuration(op string, duration time.Duration)
	Handler() http.Handler
}

type Provider struct {
	registry        *prometheus.Registry
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	scannerStates   *prometheus.CounterVec
	frames          *prometheus.CounterVec
	payloads        *prometheus.CounterVec
	codesRendered   *prometheus.CounterVec
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	backupDuration  *prometheus.HistogramVec
}

// New returns a Prometheus-backed recorder on its own registry, or a no-op when disabled.
func New(enabled bool) Recorder {
	if !enabled {
		return Noop()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Provider{
		registry: reg,
		requestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "triad_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"endpoint", "status"}),
		requestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "triad_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		scannerStates: f.NewCounterVec(prometheus.CounterOpts{
			Name: "triad_scanner_state_transitions_total",
			Help: "Scanner state transitions by target state",
		}, []string{"state"}),
		frames: f.NewCounterVec(prometheus.CounterOpts{
			Name: "triad_scanner_frames_total",
			Help: "Frames processed by the scanner",
		}, []string{"result"}),
		payloads: f.NewCounterVec(prometheus.CounterOpts{
			Name: "triad_payloads_processed_total",
			Help: "Processed code payloads by kind and outcome",
		}, []string{"kind", "outcome"}),
		codesRendered: f.NewCounterVec(prometheus.CounterOpts{
			Name: "triad_codes_rendered_total",
			Help: "Rendered codes by kind",
		}, []string{"kind"}),
		cacheHits: f.NewCounter(prometheus.CounterOpts{
			Name: "triad_code_cache_hits_total",
			Help: "Total number of rendered code cache hits",
		}),
		cacheMisses: f.NewCounter(prometheus.CounterOpts{
			Name: "triad_code_cache_misses_total",
			Help: "Total number of rendered code cache misses",
		}),
		backupDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "triad_backup_duration_seconds",
			Help:    "Duration of export and import in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
	}
}

func (m *Provider) IncRequestsTotal(endpoint string, status int) {
	m.requestsTotal.WithLabelValues(endpoint, httpStatusBucket(status)).Inc()
}

func (m *Provider) ObserveRequestDuration(endpoint string, duration time.Duration) {
	m.requestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

func (m *Provider) IncScannerState(state string) {
	m.scannerStates.WithLabelValues(state).Inc()
}

func (m *Provider) IncFrames(found bool) {
	result := "miss"
	if found {
		result = "found"
	}
	m.frames.WithLabelValues(result).Inc()
}

func (m *Provider) IncPayloads(kind, outcome string) {
	if kind == "" {
		kind = "unknown"
	}
	m.payloads.WithLabelValues(kind, outcome).Inc()
}

func (m *Provider) IncCodesRendered(kind string) {
	m.codesRendered.WithLabelValues(kind).Inc()
}

func (m *Provider) IncCacheHits()   { m.cacheHits.Inc() }
func (m *Provider) IncCacheMisses() { m.cacheMisses.Inc() }

func (m *Provider) ObserveBackupDuration(op string, duration time.Duration) {
	m.backupDuration.WithLabelValues(op).Observe(duration.Seconds())
}

func (m *Provider) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func httpStatusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}

// Noop returns a recorder that discards everything.
func Noop() Recorder { return noopMetrics{} }

type noopMetrics struct{}

func (noopMetrics) IncRequestsTotal(_ string, _ int)                 {}
func (noopMetrics) ObserveRequestDuration(_ string, _ time.Duration) {}
func (noopMetrics) IncScannerState(_ string)                         {}
func (noopMetrics) IncFrames(_ bool)                                 {}
func (noopMetrics) IncPayloads(_, _ string)                          {}
func (noopMetrics) IncCodesRendered(_ string)                        {}
func (noopMetrics) IncCacheHits()                                    {}
func (noopMetrics) IncCacheMisses()                                  {}
func (noopMetrics) ObserveBackupDuration(_ string, _ time.Duration)  {}
func (noopMetrics) Handler() http.Handler                            { return http.NotFoundHandler() }

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Middleware records request count and latency. endpoint maps a request to a
// low-cardinality label such as its route template.
func Middleware(m Recorder, endpoint func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(sw, r)

			label := endpoint(r)
			m.IncRequestsTotal(label, sw.status)
			m.ObserveRequestDuration(label, time.Since(start))
		})
	}
}
