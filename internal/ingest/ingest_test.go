package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/go-mizu/strobe/internal/wire"
)

func TestParsePackRejectsTruncatedTail(t *testing.T) {
	buf := wire.AppendRecord(nil, wire.Record{ID: 1, Search: "abcdef"})
	_, err := ParsePack(buf[:len(buf)-2])
	if err == nil {
		t.Fatal("expected ParsePack to reject a truncated record")
	}
}

func TestParsePackValid(t *testing.T) {
	var buf []byte
	buf = wire.AppendRecord(buf, wire.Record{ID: 1, Search: "a"})
	buf = wire.AppendRecord(buf, wire.Record{ID: wire.AssignID, Search: "b"})

	recs, err := ParsePack(buf)
	if err != nil {
		t.Fatalf("ParsePack: %v", err)
	}
	if len(recs) != 2 || recs[1].ID != wire.AssignID {
		t.Fatalf("unexpected records: %+v", recs)
	}
}

func TestParseLinesHandlesTabAndBareForms(t *testing.T) {
	body := []byte("7\tsome title\nno tab here\n\n")
	recs := ParseLines(body)
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d (%+v)", len(recs), recs)
	}
	if recs[0].ID != 7 || recs[0].Search != "some title" {
		t.Fatalf("unexpected first record: %+v", recs[0])
	}
	if recs[1].ID != wire.AssignID || recs[1].Search != "no tab here" {
		t.Fatalf("unexpected second record: %+v", recs[1])
	}
}

func TestParseBinDropsTruncatedTail(t *testing.T) {
	body := make([]byte, 0, 16)
	body = append(body, 1, 0, 0, 0) // id=1
	body = append(body, 3, 0, 0, 0) // len=3
	body = append(body, 'a', 'b', 'c')
	body = append(body, 2, 0, 0, 0) // second record's id
	body = append(body, 99, 0, 0, 0) // claims len=99 but no bytes follow

	recs := ParseBin(body)
	if len(recs) != 1 || recs[0].ID != 1 || recs[0].Search != "abc" {
		t.Fatalf("unexpected records: %+v", recs)
	}
}

func TestQueueDrainReturnsNothingWhenEmpty(t *testing.T) {
	q := NewQueue(10, 1000, 1000, 50*time.Millisecond)
	if got := q.Drain(8192); len(got) != 0 {
		t.Fatalf("expected empty drain, got %v", got)
	}
}

func TestQueueSubmitThenDrain(t *testing.T) {
	q := NewQueue(10, 1000, 1000, 50*time.Millisecond)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := q.Submit(ctx, wire.Record{ID: uint32(i), Search: "x"}); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}
	got := q.Drain(8192)
	if len(got) != 5 {
		t.Fatalf("expected 5 drained records, got %d", len(got))
	}
}

func TestQueueSubmitRejectsWhenFull(t *testing.T) {
	q := NewQueue(1, 1000, 1000, 10*time.Millisecond)
	ctx := context.Background()
	if err := q.Submit(ctx, wire.Record{ID: 1, Search: "x"}); err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	if err := q.Submit(ctx, wire.Record{ID: 2, Search: "y"}); err != ErrQueueFull {
		t.Fatalf("expected ErrQueueFull on a full queue, got %v", err)
	}
}
