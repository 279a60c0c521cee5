// Package metrics tracks request counts, status codes, and latency, and
// exposes them as JSON or Prometheus text exposition format.
package metrics

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Stats is a point-in-time snapshot of collected metrics.
type Stats struct {
	RequestCount      int64            `json:"request_count"`
	ErrorCount        int64            `json:"error_count"`
	StatusCodes       map[int]int64    `json:"status_codes"`
	PathCounts        map[string]int64 `json:"path_counts"`
	AverageDurationMs float64          `json:"average_duration_ms"`
}

// Metrics collects request metrics and exposes them via Handler/Prometheus.
type Metrics struct {
	mu            sync.Mutex
	requestCount  int64
	errorCount    int64
	statusCodes   map[int]int64
	pathCounts    map[string]int64
	totalDuration time.Duration
}

// New creates a Metrics collector and its middleware.
func New() (*Metrics, func(http.Handler) http.Handler) {
	m := &Metrics{
		statusCodes: make(map[int]int64),
		pathCounts:  make(map[string]int64),
	}
	return m, m.middleware
}

func (m *Metrics) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		elapsed := time.Since(start)

		atomic.AddInt64(&m.requestCount, 1)
		if sw.status >= 500 {
			atomic.AddInt64(&m.errorCount, 1)
		}

		m.mu.Lock()
		m.statusCodes[sw.status]++
		m.pathCounts[r.URL.Path]++
		m.totalDuration += elapsed
		m.mu.Unlock()
	})
}

// Stats returns a snapshot of the current metrics.
func (m *Metrics) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := atomic.LoadInt64(&m.requestCount)
	var avg float64
	if count > 0 {
		avg = float64(m.totalDuration.Microseconds()) / 1000 / float64(count)
	}

	s := Stats{
		RequestCount:      count,
		ErrorCount:        atomic.LoadInt64(&m.errorCount),
		StatusCodes:       make(map[int]int64, len(m.statusCodes)),
		PathCounts:        make(map[string]int64, len(m.pathCounts)),
		AverageDurationMs: avg,
	}
	for k, v := range m.statusCodes {
		s.StatusCodes[k] = v
	}
	for k, v := range m.pathCounts {
		s.PathCounts[k] = v
	}
	return s
}

// Reset clears all collected metrics.
func (m *Metrics) Reset() {
	atomic.StoreInt64(&m.requestCount, 0)
	atomic.StoreInt64(&m.errorCount, 0)

	m.mu.Lock()
	m.statusCodes = make(map[int]int64)
	m.pathCounts = make(map[string]int64)
	m.totalDuration = 0
	m.mu.Unlock()
}

// JSON marshals the current stats.
func (m *Metrics) JSON() ([]byte, error) {
	return json.Marshal(m.Stats())
}

// Handler serves the current stats as JSON.
func (m *Metrics) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := m.JSON()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(data)
	}
}

// Prometheus serves the current stats in Prometheus text exposition format.
func (m *Metrics) Prometheus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats := m.Stats()

		var b strings.Builder
		b.WriteString("# HELP http_requests_total Total number of HTTP requests.\n")
		b.WriteString("# TYPE http_requests_total counter\n")
		fmt.Fprintf(&b, "http_requests_total %d\n", stats.RequestCount)

		b.WriteString("# HELP http_errors_total Total number of HTTP 5xx responses.\n")
		b.WriteString("# TYPE http_errors_total counter\n")
		fmt.Fprintf(&b, "http_errors_total %d\n", stats.ErrorCount)

		codes := make([]int, 0, len(stats.StatusCodes))
		for c := range stats.StatusCodes {
			codes = append(codes, c)
		}
		sort.Ints(codes)

		b.WriteString("# HELP http_requests_status_total Total HTTP requests by status code.\n")
		b.WriteString("# TYPE http_requests_status_total counter\n")
		for _, c := range codes {
			fmt.Fprintf(&b, "http_requests_status_total{code=\"%d\"} %d\n", c, stats.StatusCodes[c])
		}

		paths := make([]string, 0, len(stats.PathCounts))
		for p := range stats.PathCounts {
			paths = append(paths, p)
		}
		sort.Strings(paths)

		b.WriteString("# HELP http_requests_path_total Total HTTP requests by path.\n")
		b.WriteString("# TYPE http_requests_path_total counter\n")
		for _, p := range paths {
			fmt.Fprintf(&b, "http_requests_path_total{path=%q} %d\n", p, stats.PathCounts[p])
		}

		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_, _ = w.Write([]byte(b.String()))
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (s *statusWriter) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}
