package ingest

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"

	"github.com/go-mizu/strobe/internal/wire"
)

// ErrQueueFull is returned by Submit when the bounded queue could not
// accept a record within the backpressure window (spec.md §7 "Queue
// full... short time-bounded backpressure, then reject").
var ErrQueueFull = errors.New("ingest: queue full")

// Queue is the bounded ingest channel one shard's writer drains from. A
// rate.Limiter caps the rate of admission so a burst of submitters cannot
// instantly fill the channel ahead of slower, already-waiting callers.
type Queue struct {
	ch           chan wire.Record
	limiter      *rate.Limiter
	backpressure time.Duration
}

// NewQueue builds a Queue with the given channel capacity, admission rate
// (per second) and burst, and backpressure window.
func NewQueue(capacity int, ratePerSecond float64, burst int, backpressure time.Duration) *Queue {
	return &Queue{
		ch:           make(chan wire.Record, capacity),
		limiter:      rate.NewLimiter(rate.Limit(ratePerSecond), burst),
		backpressure: backpressure,
	}
}

// Submit admits rec, waiting up to the configured backpressure window for
// both rate-limiter headroom and channel space before rejecting.
func (q *Queue) Submit(ctx context.Context, rec wire.Record) error {
	cctx, cancel := context.WithTimeout(ctx, q.backpressure)
	defer cancel()

	if !q.limiter.Allow() {
		if err := q.limiter.Wait(cctx); err != nil {
			return ErrQueueFull
		}
	}

	select {
	case q.ch <- rec:
		return nil
	default:
	}

	select {
	case q.ch <- rec:
		return nil
	case <-cctx.Done():
		return ErrQueueFull
	}
}

// Drain removes up to max items from the queue in a single non-blocking
// burst (spec.md §4.6 step 1), returning immediately once the queue runs
// dry.
func (q *Queue) Drain(max int) []wire.Record {
	out := make([]wire.Record, 0, max)
	for len(out) < max {
		select {
		case rec := <-q.ch:
			out = append(out, rec)
		default:
			return out
		}
	}
	return out
}
