// Package shard implements the single-writer ingest loop and boot-time
// recovery described in spec.md §4.6 and §5: one writer task owns a
// shard's WAL file and current builder; readers only ever see published,
// immutable views.
package shard

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/go-mizu/strobe/internal/indexview"
	"github.com/go-mizu/strobe/internal/ingest"
	"github.com/go-mizu/strobe/internal/segment"
	"github.com/go-mizu/strobe/internal/walpack"
	"github.com/go-mizu/strobe/internal/wire"
)

// Config holds one shard's static configuration (spec.md §6.6).
type Config struct {
	ShardID          int
	DataDir          string
	FlushDocs        int
	FlushInterval    time.Duration
	ReplaySegDocs    int
	WalSync          walpack.SyncMode
	WalCoalesceBytes int
	DrainBurst       int
}

// DefaultDrainBurst matches spec.md §4.6 step 1.
const DefaultDrainBurst = 8192

// idleSleep is the pause taken when a drain comes back empty, to avoid
// spinning the writer loop (spec.md §4.6 step 6).
const idleSleep = time.Millisecond

// Shard owns one shard's WAL file, builder, and published view.
type Shard struct {
	cfg       Config
	log       *slog.Logger
	wal       *walpack.Writer
	builder   *segment.Builder
	published *indexview.Published
	queue     *ingest.Queue
	nextID    atomic.Uint32
	lastSeal  time.Time
}

// Open replays the shard's WAL (if any) into an initial view, opens the
// WAL for further appends, and returns a ready Shard.
func Open(cfg Config, log *slog.Logger, queue *ingest.Queue) (*Shard, error) {
	view, maxID, err := replay(cfg)
	if err != nil {
		return nil, err
	}

	wal, err := walpack.Open(cfg.DataDir, cfg.ShardID, cfg.WalSync, cfg.WalCoalesceBytes)
	if err != nil {
		return nil, err
	}

	s := &Shard{
		cfg:       cfg,
		log:       log,
		wal:       wal,
		builder:   segment.NewBuilder(),
		published: indexview.NewPublished(view),
		queue:     queue,
		lastSeal:  time.Now(),
	}
	s.nextID.Store(maxID + 1)
	return s, nil
}

// replay streams every WAL record through a single builder, sealing
// whenever it reaches ReplaySegDocs rows, and returns the resulting view
// plus the highest external id observed (spec.md §4.6 "Recovery").
func replay(cfg Config) (*indexview.View, uint32, error) {
	r, err := walpack.OpenReader(cfg.DataDir, cfg.ShardID)
	if err != nil {
		return nil, 0, err
	}
	defer r.Close()

	b := segment.NewBuilder()
	var segments []*segment.Segment
	var maxID uint32

	for {
		rec, ok, err := r.Next()
		if err != nil {
			return nil, 0, err
		}
		if !ok {
			break
		}
		if rec.ID > maxID {
			maxID = rec.ID
		}
		b.Add(recordToDoc(rec))
		if b.Len() >= cfg.ReplaySegDocs {
			segments = append(segments, b.Seal())
		}
	}
	if b.Len() > 0 {
		segments = append(segments, b.Seal())
	}
	return indexview.New(segments), maxID, nil
}

func recordToDoc(rec wire.Record) segment.Doc {
	return segment.Doc{
		ID:     rec.ID,
		Search: rec.Search,
		Title:  rec.Title,
		Author: rec.Author,
		Genres: rec.Genres,
		URL:    rec.URL,
		URI:    rec.URI,
	}
}

// Published returns the shard's atomically swappable view pointer.
func (s *Shard) Published() *indexview.Published { return s.published }

// Close closes the shard's WAL file.
func (s *Shard) Close() error { return s.wal.Close() }

// Run drives the writer loop until ctx is cancelled (spec.md §4.6).
// cmd/strobed runs it in an errgroup alongside the HTTP listener.
func (s *Shard) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		drained := s.drainOnce()
		if drained == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(idleSleep):
			}
		}
	}
}

// drainOnce performs one non-blocking burst: drain, WAL-append, builder
// add, and a possible seal+publish. It returns the number of items
// drained, so Run can decide whether to sleep.
func (s *Shard) drainOnce() int {
	burst := s.cfg.DrainBurst
	if burst <= 0 {
		burst = DefaultDrainBurst
	}
	items := s.queue.Drain(burst)

	for _, rec := range items {
		id := rec.ID
		if id == wire.AssignID {
			id = s.nextID.Add(1) - 1
		}
		rec.ID = id

		if err := s.wal.Append(rec); err != nil {
			s.log.Error("wal append failed, skipping document", slog.Int("shard", s.cfg.ShardID), slog.Any("error", err))
			continue
		}
		s.builder.Add(recordToDoc(rec))
	}

	if s.shouldSeal() {
		s.sealAndPublish()
	}
	return len(items)
}

func (s *Shard) shouldSeal() bool {
	if s.builder.Len() == 0 {
		return false
	}
	return s.builder.DocsSinceSeal() >= s.cfg.FlushDocs || time.Since(s.lastSeal) >= s.cfg.FlushInterval
}

func (s *Shard) sealAndPublish() {
	seg := s.builder.Seal()
	s.published.Publish(s.published.Load().WithAppended(seg))
	s.lastSeal = time.Now()
}
