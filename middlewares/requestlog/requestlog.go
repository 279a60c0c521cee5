// Package requestlog logs completed HTTP requests with slog, grounded in
// the same structured-logging idiom as the rest of the module.
package requestlog

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"
)

// Options configures the request logger.
type Options struct {
	Logger      *slog.Logger
	LogHeaders  bool
	LogBody     bool
	SkipPaths   []string
	SkipMethods []string
}

var sensitiveHeaders = []string{"authorization", "cookie", "set-cookie", "x-api-key"}

const maxLoggedBody = 4096

// WithLogger returns a middleware that logs method/path/status/duration to logger.
func WithLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return WithOptions(Options{Logger: logger})
}

// WithOptions returns a middleware configured by opts.
func WithOptions(opts Options) func(http.Handler) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	skipPath := func(p string) bool {
		for _, s := range opts.SkipPaths {
			if s == p {
				return true
			}
		}
		return false
	}
	skipMethod := func(m string) bool {
		for _, s := range opts.SkipMethods {
			if strings.EqualFold(s, m) {
				return true
			}
		}
		return false
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skipPath(r.URL.Path) || skipMethod(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()

			var bodyBuf bytes.Buffer
			var tee *teeReadCloser
			if opts.LogBody && r.Body != nil {
				tee = &teeReadCloser{r: r.Body, buf: &bodyBuf, limit: maxLoggedBody}
				r.Body = tee
			}

			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)

			// The handler may have left part of the body unread; read the rest
			// of the logged prefix through the tee so it still appears in the log.
			if tee != nil && bodyBuf.Len() < maxLoggedBody {
				_, _ = io.CopyN(io.Discard, tee, int64(maxLoggedBody-bodyBuf.Len()))
			}

			attrs := []any{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", sw.status),
				slog.Duration("duration", time.Since(start)),
			}
			if q := r.URL.RawQuery; q != "" {
				attrs = append(attrs, slog.String("query", q))
			}
			if opts.LogHeaders {
				attrs = append(attrs, slog.String("headers", formatHeaders(r.Header)))
			}
			if opts.LogBody && bodyBuf.Len() > 0 {
				attrs = append(attrs, slog.String("body", bodyBuf.String()))
			}

			logger.Info("request", attrs...)
		})
	}
}

// Full logs method, path, status, duration, headers and body.
func Full(logger *slog.Logger) func(http.Handler) http.Handler {
	return WithOptions(Options{Logger: logger, LogHeaders: true, LogBody: true})
}

func formatHeaders(h http.Header) string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteString("; ")
		}
		v := strings.Join(h[k], ",")
		if isSensitive(k) {
			v = "REDACTED"
		}
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(v)
	}
	return b.String()
}

func isSensitive(header string) bool {
	lower := strings.ToLower(header)
	for _, s := range sensitiveHeaders {
		if s == lower {
			return true
		}
	}
	return false
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (s *statusWriter) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// teeReadCloser mirrors reads into buf (capped at limit) while leaving the
// underlying body fully readable by the handler.
type teeReadCloser struct {
	r     io.ReadCloser
	buf   *bytes.Buffer
	limit int
}

func (t *teeReadCloser) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if n > 0 && t.buf.Len() < t.limit {
		remaining := t.limit - t.buf.Len()
		if remaining > n {
			remaining = n
		}
		t.buf.Write(p[:remaining])
	}
	return n, err
}

func (t *teeReadCloser) Close() error { return t.r.Close() }
