package shard

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/go-mizu/strobe/internal/ingest"
	"github.com/go-mizu/strobe/internal/walpack"
	"github.com/go-mizu/strobe/internal/wire"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOpenOnEmptyDirStartsWithEmptyView(t *testing.T) {
	dir := t.TempDir()
	q := ingest.NewQueue(16, 1000, 1000, 50*time.Millisecond)
	cfg := Config{ShardID: 0, DataDir: dir, FlushDocs: 4096, FlushInterval: 5 * time.Millisecond, ReplaySegDocs: 200000, WalSync: walpack.SyncAlways}

	s, err := Open(cfg, testLogger(), q)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if s.Published().Load().TotalDocs() != 0 {
		t.Fatalf("expected empty initial view, got %d docs", s.Published().Load().TotalDocs())
	}
}

func TestSubmitThenRunPublishesSegmentOnFlushDocs(t *testing.T) {
	dir := t.TempDir()
	q := ingest.NewQueue(16, 1000, 1000, 50*time.Millisecond)
	cfg := Config{ShardID: 0, DataDir: dir, FlushDocs: 3, FlushInterval: time.Hour, ReplaySegDocs: 200000, WalSync: walpack.SyncAlways}

	s, err := Open(cfg, testLogger(), q)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := q.Submit(ctx, wire.Record{ID: wire.AssignID, Search: "doc"}); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}

	if n := s.drainOnce(); n != 3 {
		t.Fatalf("expected drainOnce to consume 3 items, got %d", n)
	}

	if got := s.Published().Load().TotalDocs(); got != 3 {
		t.Fatalf("expected flush-by-count to publish a segment with 3 docs, got %d", got)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	dir := t.TempDir()
	q := ingest.NewQueue(16, 1000, 1000, 50*time.Millisecond)
	cfg := Config{ShardID: 0, DataDir: dir, FlushDocs: 4096, FlushInterval: 5 * time.Millisecond, ReplaySegDocs: 200000, WalSync: walpack.SyncAlways}

	s, err := Open(cfg, testLogger(), q)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case err := <-done:
		if err != context.DeadlineExceeded {
			t.Fatalf("expected Run to stop with DeadlineExceeded, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after context cancellation")
	}
}

func TestReplayRecoversDocsAndMaxID(t *testing.T) {
	dir := t.TempDir()
	w, err := walpack.Open(dir, 2, walpack.SyncAlways, 0)
	if err != nil {
		t.Fatalf("Open wal: %v", err)
	}
	for i := uint32(1); i <= 5; i++ {
		if err := w.Append(wire.Record{ID: i, Search: "doc"}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	q := ingest.NewQueue(16, 1000, 1000, 50*time.Millisecond)
	cfg := Config{ShardID: 2, DataDir: dir, FlushDocs: 4096, FlushInterval: time.Hour, ReplaySegDocs: 2}

	s, err := Open(cfg, testLogger(), q)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if got := s.Published().Load().TotalDocs(); got != 5 {
		t.Fatalf("expected replay to recover 5 docs, got %d", got)
	}
	if s.Published().Load().SegmentCount() < 2 {
		t.Fatalf("expected replay to seal multiple segments at ReplaySegDocs granularity, got %d", s.Published().Load().SegmentCount())
	}

	ctx := context.Background()
	if err := q.Submit(ctx, wire.Record{ID: wire.AssignID, Search: "next"}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	s.drainOnce()
	// drainOnce doesn't force a seal here (FlushInterval is an hour and
	// FlushDocs is 4096), but the WAL append must have used the next
	// sequential id after the recovered max of 5.
	r, err := walpack.OpenReader(dir, 2)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer r.Close()
	var last wire.Record
	for {
		rec, ok, err := r.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			break
		}
		last = rec
	}
	if last.ID != 6 {
		t.Fatalf("expected assigned id to continue from recovered max (6), got %d", last.ID)
	}
}
