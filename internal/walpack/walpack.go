// Package walpack implements the packed write-ahead log described in
// spec.md §4.3 and §6.5: one append-only file per shard, no header, no
// footer, no checksums, with a torn trailing record tolerated on replay.
package walpack

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/go-mizu/strobe/internal/wire"
)

// SyncMode controls when Writer.Append flushes to the OS (spec.md §4.3,
// §6.6 "wal_sync").
type SyncMode int

const (
	// SyncAlways fsyncs after every record.
	SyncAlways SyncMode = iota
	// SyncCoalesceBytes fsyncs once at least N unflushed bytes have been
	// written since the last sync.
	SyncCoalesceBytes
	// SyncNever never calls fsync explicitly, relying on the OS to flush
	// eventually.
	SyncNever
)

// Path returns the fixed WAL file path for a shard: <dataDir>/shard<id>.pack.
func Path(dataDir string, shardID int) string {
	return filepath.Join(dataDir, fmt.Sprintf("shard%d.pack", shardID))
}

// Writer appends packed records to one shard's WAL file. It is owned by
// exactly one writer task (spec.md §5); it is not safe for concurrent use.
type Writer struct {
	f                 *os.File
	mode              SyncMode
	coalesceThreshold int
	unsynced          int
}

// Open creates dataDir if needed and opens (or creates) the shard's WAL
// file for appending.
func Open(dataDir string, shardID int, mode SyncMode, coalesceThreshold int) (*Writer, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(Path(dataDir, shardID), os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	return &Writer{f: f, mode: mode, coalesceThreshold: coalesceThreshold}, nil
}

// Append encodes rec and writes it to the log, applying the configured
// sync policy. On a write error the caller must log and skip the document
// (spec.md §7 "WAL write error") rather than treat it as fatal.
func (w *Writer) Append(rec wire.Record) error {
	buf := wire.AppendRecord(make([]byte, 0, wire.RecordLen(rec)), rec)
	if _, err := w.f.Write(buf); err != nil {
		return err
	}

	w.unsynced += len(buf)
	switch w.mode {
	case SyncAlways:
		if err := w.f.Sync(); err != nil {
			return err
		}
		w.unsynced = 0
	case SyncCoalesceBytes:
		if w.unsynced >= w.coalesceThreshold {
			if err := w.f.Sync(); err != nil {
				return err
			}
			w.unsynced = 0
		}
	case SyncNever:
	}
	return nil
}

// Close closes the underlying file.
func (w *Writer) Close() error { return w.f.Close() }

// Reader streams records back out of a shard's WAL file for boot-time
// recovery.
type Reader struct {
	f *os.File
	r *bufio.Reader
}

// OpenReader opens the shard's WAL file read-only. A missing file is not an
// error: the returned Reader's first Next call reports ok=false with a nil
// error, so "no file yet" reads as "no records yet".
func OpenReader(dataDir string, shardID int) (*Reader, error) {
	f, err := os.Open(Path(dataDir, shardID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Reader{}, nil
		}
		return nil, err
	}
	return &Reader{f: f, r: bufio.NewReaderSize(f, 1<<20)}, nil
}

// Next returns the next record, or ok=false once the log is exhausted —
// whether by a clean boundary or a torn trailing record (spec.md §4.3: "a
// short read mid-record terminates replay without surfacing corruption
// upward"). err is non-nil only for a genuine I/O error unrelated to EOF.
func (r *Reader) Next() (wire.Record, bool, error) {
	if r.r == nil {
		return wire.Record{}, false, nil
	}
	rec, err := wire.DecodeRecord(r.r)
	switch {
	case err == nil:
		return rec, true, nil
	case errors.Is(err, io.EOF), errors.Is(err, wire.ErrTornRecord):
		return wire.Record{}, false, nil
	default:
		return wire.Record{}, false, err
	}
}

// Close closes the underlying file, if one was opened.
func (r *Reader) Close() error {
	if r.f == nil {
		return nil
	}
	return r.f.Close()
}
