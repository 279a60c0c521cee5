// Package recover converts panics in downstream handlers into a 500
// response instead of crashing the server.
package recover

import (
	"log/slog"
	"net/http"
	"runtime"
)

// Options configures the recover middleware.
type Options struct {
	ErrorHandler      func(w http.ResponseWriter, r *http.Request, err any, stack []byte)
	DisablePrintStack bool
	Logger            *slog.Logger
	StackSize         int
}

const defaultStackSize = 4096

// New returns a middleware with default behavior: log and reply 500.
func New() func(http.Handler) http.Handler {
	return WithOptions(Options{})
}

// WithOptions returns a middleware configured by opts.
func WithOptions(opts Options) func(http.Handler) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	stackSize := opts.StackSize
	if stackSize <= 0 {
		stackSize = defaultStackSize
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}

				buf := make([]byte, stackSize)
				n := runtime.Stack(buf, false)
				stack := buf[:n]

				if opts.ErrorHandler != nil {
					opts.ErrorHandler(w, r, rec, stack)
					return
				}

				attrs := []any{slog.Any("error", rec)}
				if !opts.DisablePrintStack {
					attrs = append(attrs, slog.String("stack", string(stack)))
				}
				logger.Error("panic recovered", attrs...)

				http.Error(w, "internal server error", http.StatusInternalServerError)
			}()

			next.ServeHTTP(w, r)
		})
	}
}
