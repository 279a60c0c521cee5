//go:build !windows

package strobe

import (
	"net/http"
	"testing"
	"time"
)

func TestAppListenWithSignals(t *testing.T) {
	app := New()
	done := make(chan error, 1)
	go func() {
		done <- app.Listen("127.0.0.1:0")
	}()

	sendInterrupt(t)

	err := <-done
	if !isBenignServeErr(err) {
		t.Fatalf("Listen returned unexpected error: %v", err)
	}
}

func TestAppServeWithSignalsStopsOnInterrupt(t *testing.T) {
	app := New(WithPreShutdownDelay(0), WithShutdownTimeout(200*time.Millisecond))
	ln := mustListen(t)
	defer func() { _ = ln.Close() }()

	done := make(chan error, 1)
	go func() {
		done <- app.Serve(ln, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
	}()

	sendInterrupt(t)

	err := <-done
	if !isBenignServeErr(err) {
		t.Fatalf("Serve returned unexpected error: %v", err)
	}
}
