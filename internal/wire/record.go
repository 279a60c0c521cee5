// Package wire implements the binary layouts in spec.md §6: the WAL/ingest
// packed record, and the search request/response pair.
package wire

import (
	"encoding/binary"
	"errors"
	"io"
	"math"
)

// AssignID is the sentinel external id meaning "server assigns one"
// (spec.md §4.6 step 2, §6.3).
const AssignID uint32 = math.MaxUint32

// recordHeaderSize is 1 u32 id + 6 u16 lengths.
const recordHeaderSize = 4 + 6*2

// Record is one ingest/WAL record (spec.md §4.3).
type Record struct {
	ID                                          uint32
	Search, Title, Author, Genres, URL, URI string
}

// AppendRecord encodes r and appends it to dst, returning the grown slice.
func AppendRecord(dst []byte, r Record) []byte {
	var hdr [recordHeaderSize]byte
	binary.LittleEndian.PutUint32(hdr[0:4], r.ID)
	binary.LittleEndian.PutUint16(hdr[4:6], uint16(len(r.Search)))
	binary.LittleEndian.PutUint16(hdr[6:8], uint16(len(r.Title)))
	binary.LittleEndian.PutUint16(hdr[8:10], uint16(len(r.Author)))
	binary.LittleEndian.PutUint16(hdr[10:12], uint16(len(r.Genres)))
	binary.LittleEndian.PutUint16(hdr[12:14], uint16(len(r.URL)))
	binary.LittleEndian.PutUint16(hdr[14:16], uint16(len(r.URI)))

	dst = append(dst, hdr[:]...)
	dst = append(dst, r.Search...)
	dst = append(dst, r.Title...)
	dst = append(dst, r.Author...)
	dst = append(dst, r.Genres...)
	dst = append(dst, r.URL...)
	dst = append(dst, r.URI...)
	return dst
}

// RecordLen returns the number of bytes AppendRecord would add for r,
// without encoding it.
func RecordLen(r Record) int {
	return recordHeaderSize + len(r.Search) + len(r.Title) + len(r.Author) + len(r.Genres) + len(r.URL) + len(r.URI)
}

// ErrTornRecord is returned when a record's header is readable but its body
// is truncated. Callers performing WAL recovery treat this the same as a
// clean EOF (spec.md §4.3 "torn tail tolerated"); callers parsing a
// complete in-memory ingest payload should treat it as a malformed request.
var ErrTornRecord = errors.New("wire: torn record body")

// DecodeRecord reads exactly one record from r. It returns io.EOF if r is
// at a clean record boundary with nothing left, and ErrTornRecord if a
// partial header or body was read (the torn-tail case recovery must
// tolerate silently). Any other read error is returned as is.
func DecodeRecord(r io.Reader) (Record, error) {
	var hdr [recordHeaderSize]byte
	n, err := io.ReadFull(r, hdr[:])
	if err != nil {
		if n == 0 && errors.Is(err, io.EOF) {
			return Record{}, io.EOF
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return Record{}, ErrTornRecord
		}
		return Record{}, err
	}

	id := binary.LittleEndian.Uint32(hdr[0:4])
	lens := [6]uint16{
		binary.LittleEndian.Uint16(hdr[4:6]),
		binary.LittleEndian.Uint16(hdr[6:8]),
		binary.LittleEndian.Uint16(hdr[8:10]),
		binary.LittleEndian.Uint16(hdr[10:12]),
		binary.LittleEndian.Uint16(hdr[12:14]),
		binary.LittleEndian.Uint16(hdr[14:16]),
	}

	total := 0
	for _, l := range lens {
		total += int(l)
	}
	body := make([]byte, total)
	if _, err := io.ReadFull(r, body); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return Record{}, ErrTornRecord
		}
		return Record{}, err
	}

	fields := make([]string, 6)
	off := 0
	for i, l := range lens {
		fields[i] = string(body[off : off+int(l)])
		off += int(l)
	}

	return Record{
		ID:     id,
		Search: fields[0],
		Title:  fields[1],
		Author: fields[2],
		Genres: fields[3],
		URL:    fields[4],
		URI:    fields[5],
	}, nil
}

// DecodeAllRecords parses a complete, in-memory packed ingest body (spec.md
// §6.3) into records. Any truncation — even a torn tail — is a malformed
// request in this context, since the whole body was supposed to have
// arrived in one POST.
func DecodeAllRecords(buf []byte) ([]Record, error) {
	r := newSliceReader(buf)
	var out []Record
	for {
		rec, err := DecodeRecord(r)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
}

type sliceReader struct {
	b []byte
	i int
}

func newSliceReader(b []byte) *sliceReader { return &sliceReader{b: b} }

func (s *sliceReader) Read(p []byte) (int, error) {
	if s.i >= len(s.b) {
		return 0, io.EOF
	}
	n := copy(p, s.b[s.i:])
	s.i += n
	return n, nil
}
