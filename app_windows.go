//go:build windows

package strobe

import (
	"context"
	"net/http"
)

func (a *App) serveWithSignals(srv *http.Server, serveFn func() error) error {
	// Signals are not reliably injectable on this platform. Run under a
	// plain background context; shutdown still happens via ServeContext
	// if the caller cancels it some other way (e.g. a wrapping process
	// supervisor sending Shutdown through a different channel).
	return a.ServeContext(context.Background(), srv, serveFn)
}
