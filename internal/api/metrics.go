package api

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"

	log "github.com/go-pkgz/lgr"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics registers and serves the process's prometheus counters,
// grounded on the teacher's app/mgmt/metrics.go. The label set is
// narrower: this server only ever serves a handful of fixed routes, so
// there's no low-cardinality mode to opt into.
type Metrics struct {
	totalRequests  *prometheus.CounterVec
	responseStatus *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
}

// NewMetrics builds and registers the counters. Safe to call once per
// process; a second registration attempt is logged and ignored.
func NewMetrics() *Metrics {
	m := &Metrics{
		totalRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "revp_http_requests_total",
			Help: "Number of served management/API requests.",
		}, []string{"path"}),
		responseStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "revp_response_status",
			Help: "Status of HTTP responses.",
		}, []string{"status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "revp_http_response_time_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 3, 5},
		}, []string{"path"}),
	}

	if err := prometheus.Register(m.totalRequests); err != nil {
		log.Printf("[WARN] api: can't register prometheus totalRequests, %v", err)
	}
	if err := prometheus.Register(m.responseStatus); err != nil {
		log.Printf("[WARN] api: can't register prometheus responseStatus, %v", err)
	}
	if err := prometheus.Register(m.httpDuration); err != nil {
		log.Printf("[WARN] api: can't register prometheus httpDuration, %v", err)
	}
	return m
}

// Middleware records per-request counters and latency.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		timer := prometheus.NewTimer(m.httpDuration.WithLabelValues(path))
		rw := newResponseWriter(w)
		next.ServeHTTP(rw, r)

		m.responseStatus.WithLabelValues(strconv.Itoa(rw.statusCode)).Inc()
		m.totalRequests.WithLabelValues(path).Inc()
		timer.ObserveDuration()
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{w, http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack delegates to the underlying writer if it supports it, needed
// so this wrapper doesn't break websocket/connection-upgrade paths.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("hijack not supported")
	}
	conn, buf, err := h.Hijack()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to hijack connection: %w", err)
	}
	return conn, buf, nil
}
