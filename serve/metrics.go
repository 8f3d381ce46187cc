package serve

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors of a service. It uses its own registry so tests and multiple
// apps in one process do not collide on the global one.
type Metrics struct {
	registry *prometheus.Registry

	// responses counts dispatched responses by method and status class.
	responses *prometheus.CounterVec
	// duration records how long it took to produce a response.
	duration *prometheus.HistogramVec
	// bytes counts response body bytes written to the transport.
	bytes prometheus.Counter
	// inflight tracks requests being served.
	inflight prometheus.Gauge
}

// NewMetrics creates the collectors and registers them, together with the Go runtime collectors.
func NewMetrics(env Environment) *Metrics {
	labels := prometheus.Labels{"service": env.serviceName()}
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		responses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "bmicro_responses_total",
			Help:        "Dispatched responses",
			ConstLabels: labels,
		}, []string{"method", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "bmicro_response_duration_seconds",
			Help:        "Time until the response was complete",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}, []string{"method"}),
		bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "bmicro_response_bytes_total",
			Help:        "Response body bytes written",
			ConstLabels: labels,
		}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "bmicro_requests_inflight",
			Help:        "Requests being served",
			ConstLabels: labels,
		}),
	}

	m.registry.MustRegister(
		m.responses, m.duration, m.bytes, m.inflight,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the registry the collectors are registered with.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Middleware records the metrics for every request served by 'next'.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		m.inflight.Inc()
		defer m.inflight.Dec()

		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		// status class label like "2xx", "4xx", "5xx".
		statusStr := strconv.Itoa(sw.status/100) + "xx"

		m.responses.WithLabelValues(r.Method, statusStr).Inc()
		m.duration.WithLabelValues(r.Method).Observe(time.Since(start).Seconds())
		m.bytes.Add(float64(sw.written))
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code and the body size.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	written     int64
}

// WriteHeader captures the status code and delegates to the underlying writer.
func (sw *statusWriter) WriteHeader(code int) {
	if !sw.wroteHeader {
		sw.status = code
		sw.wroteHeader = true
	}
	sw.ResponseWriter.WriteHeader(code)
}

// Write counts the bytes and delegates to the underlying writer.
func (sw *statusWriter) Write(b []byte) (int, error) {
	sw.wroteHeader = true
	n, err := sw.ResponseWriter.Write(b)
	sw.written += int64(n)
	return n, err
}

// Flush keeps streamed responses flowing through the wrapper.
func (sw *statusWriter) Flush() {
	if f, ok := sw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap allows http.ResponseController to reach the underlying writer.
func (sw *statusWriter) Unwrap() http.ResponseWriter { return sw.ResponseWriter }
