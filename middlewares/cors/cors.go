// Package cors implements Cross-Origin Resource Sharing as a standard
// net/http middleware.
package cors

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Options configures the CORS middleware.
type Options struct {
	AllowOrigins        []string
	AllowOriginFunc     func(origin string) bool
	AllowMethods        []string
	AllowHeaders        []string
	ExposeHeaders       []string
	AllowCredentials    bool
	AllowPrivateNetwork bool
	MaxAge              time.Duration
}

var defaultMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"}

// New returns a middleware enforcing opts.
func New(opts Options) func(http.Handler) http.Handler {
	methods := opts.AllowMethods
	if len(methods) == 0 {
		methods = defaultMethods
	}
	allowMethods := strings.Join(methods, ", ")
	allowHeaders := strings.Join(opts.AllowHeaders, ", ")
	exposeHeaders := strings.Join(opts.ExposeHeaders, ", ")
	maxAge := strconv.FormatFloat(opts.MaxAge.Seconds(), 'f', 0, 64)

	allowed := func(origin string) bool {
		if opts.AllowOriginFunc != nil {
			return opts.AllowOriginFunc(origin)
		}
		for _, o := range opts.AllowOrigins {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Add("Vary", "Origin")

			if !allowed(origin) {
				next.ServeHTTP(w, r)
				return
			}

			if opts.AllowCredentials {
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Credentials", "true")
			} else if containsStar(opts.AllowOrigins) {
				h.Set("Access-Control-Allow-Origin", "*")
			} else {
				h.Set("Access-Control-Allow-Origin", origin)
			}

			if exposeHeaders != "" {
				h.Set("Access-Control-Expose-Headers", exposeHeaders)
			}

			if r.Method == http.MethodOptions {
				h.Set("Access-Control-Allow-Methods", allowMethods)
				if allowHeaders != "" {
					h.Set("Access-Control-Allow-Headers", allowHeaders)
				} else if reqHeaders := r.Header.Get("Access-Control-Request-Headers"); reqHeaders != "" {
					h.Set("Access-Control-Allow-Headers", reqHeaders)
				}
				if opts.MaxAge > 0 {
					h.Set("Access-Control-Max-Age", maxAge)
				}
				if opts.AllowPrivateNetwork && r.Header.Get("Access-Control-Request-Private-Network") == "true" {
					h.Set("Access-Control-Allow-Private-Network", "true")
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func containsStar(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}

// AllowAll returns a permissive middleware suitable for public read APIs.
func AllowAll() func(http.Handler) http.Handler {
	return New(Options{AllowOrigins: []string{"*"}})
}

// WithOrigins returns a middleware allowing exactly the given origins.
func WithOrigins(origins ...string) func(http.Handler) http.Handler {
	return New(Options{AllowOrigins: origins})
}
