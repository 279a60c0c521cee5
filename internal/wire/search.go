package wire

import (
	"encoding/binary"
	"errors"
	"math"

	"github.com/go-mizu/strobe/internal/qgram"
	"github.com/go-mizu/strobe/internal/query"
)

// searchRequestMinLen is the fixed header size (spec.md §6.1): k, flags,
// and the 256-bit signature, with no trailing query text.
const searchRequestMinLen = 2 + 2 + 32

// ErrShortRequest is returned when a search request is under the 36-byte
// fixed header, or when its declared query text runs past the end of the
// buffer.
var ErrShortRequest = errors.New("wire: search request truncated")

// DecodeSearchRequest parses a search request (spec.md §6.1).
func DecodeSearchRequest(buf []byte) (query.Request, error) {
	if len(buf) < searchRequestMinLen {
		return query.Request{}, ErrShortRequest
	}

	k := binary.LittleEndian.Uint16(buf[0:2])
	flags := binary.LittleEndian.Uint16(buf[2:4])

	var sig qgram.Sig256
	for lane := 0; lane < qgram.Sig256Lanes; lane++ {
		off := 4 + lane*8
		sig[lane] = binary.LittleEndian.Uint64(buf[off : off+8])
	}

	var text string
	if len(buf) >= searchRequestMinLen+2 {
		qlen := int(binary.LittleEndian.Uint16(buf[36:38]))
		if len(buf) < 38+qlen {
			return query.Request{}, ErrShortRequest
		}
		text = string(buf[38 : 38+qlen])
	}

	return query.Request{K: k, Flags: flags, Sig: sig, QueryText: text}, nil
}

// EncodeSearchRequest is the inverse of DecodeSearchRequest, used by tests
// and by any same-process client.
func EncodeSearchRequest(req query.Request) []byte {
	buf := make([]byte, searchRequestMinLen, searchRequestMinLen+2+len(req.QueryText))
	binary.LittleEndian.PutUint16(buf[0:2], req.K)
	binary.LittleEndian.PutUint16(buf[2:4], req.Flags)
	for lane := 0; lane < qgram.Sig256Lanes; lane++ {
		off := 4 + lane*8
		binary.LittleEndian.PutUint64(buf[off:off+8], req.Sig[lane])
	}
	if req.QueryText == "" {
		return buf
	}
	var qlenBuf [2]byte
	binary.LittleEndian.PutUint16(qlenBuf[:], uint16(len(req.QueryText)))
	buf = append(buf, qlenBuf[:]...)
	buf = append(buf, req.QueryText...)
	return buf
}

// HitMeta is the metadata attached to a response hit when
// query.FlagWithMeta is set.
type HitMeta struct {
	Title, Author, Genres, URL, URI string
}

// MetaLookup resolves a hit's (segment index, row) to its metadata.
type MetaLookup func(seg int, row uint32) HitMeta

// EncodeSearchResponse builds the response body (spec.md §6.2). lookup may
// be nil if withMeta is false.
func EncodeSearchResponse(hits []query.Hit, withMeta bool, lookup MetaLookup) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(hits)))

	for _, h := range hits {
		var rec [8]byte
		binary.LittleEndian.PutUint32(rec[0:4], h.ID)
		binary.LittleEndian.PutUint32(rec[4:8], math.Float32bits(h.Score))
		buf = append(buf, rec[:]...)

		if !withMeta {
			continue
		}
		m := lookup(h.Seg, h.Row)
		var lens [10]byte
		binary.LittleEndian.PutUint16(lens[0:2], uint16(len(m.Title)))
		binary.LittleEndian.PutUint16(lens[2:4], uint16(len(m.Author)))
		binary.LittleEndian.PutUint16(lens[4:6], uint16(len(m.Genres)))
		binary.LittleEndian.PutUint16(lens[6:8], uint16(len(m.URL)))
		binary.LittleEndian.PutUint16(lens[8:10], uint16(len(m.URI)))
		buf = append(buf, lens[:]...)
		buf = append(buf, m.Title...)
		buf = append(buf, m.Author...)
		buf = append(buf, m.Genres...)
		buf = append(buf, m.URL...)
		buf = append(buf, m.URI...)
	}
	return buf
}

// DecodedHit is one decoded response entry, used by tests and same-process
// clients.
type DecodedHit struct {
	ID    uint32
	Score float32
	Meta  HitMeta
}

// DecodeSearchResponse is the inverse of EncodeSearchResponse.
func DecodeSearchResponse(buf []byte, withMeta bool) ([]DecodedHit, error) {
	if len(buf) < 4 {
		return nil, errors.New("wire: response shorter than length prefix")
	}
	n := binary.LittleEndian.Uint32(buf[0:4])
	off := 4
	out := make([]DecodedHit, 0, n)
	for i := uint32(0); i < n; i++ {
		if off+8 > len(buf) {
			return nil, errors.New("wire: truncated response hit")
		}
		id := binary.LittleEndian.Uint32(buf[off : off+4])
		score := math.Float32frombits(binary.LittleEndian.Uint32(buf[off+4 : off+8]))
		off += 8

		var meta HitMeta
		if withMeta {
			if off+10 > len(buf) {
				return nil, errors.New("wire: truncated response metadata lengths")
			}
			tl := int(binary.LittleEndian.Uint16(buf[off : off+2]))
			al := int(binary.LittleEndian.Uint16(buf[off+2 : off+4]))
			gl := int(binary.LittleEndian.Uint16(buf[off+4 : off+6]))
			ul := int(binary.LittleEndian.Uint16(buf[off+6 : off+8]))
			il := int(binary.LittleEndian.Uint16(buf[off+8 : off+10]))
			off += 10
			fields := make([]string, 0, 5)
			for _, l := range []int{tl, al, gl, ul, il} {
				if off+l > len(buf) {
					return nil, errors.New("wire: truncated response metadata body")
				}
				fields = append(fields, string(buf[off:off+l]))
				off += l
			}
			meta = HitMeta{Title: fields[0], Author: fields[1], Genres: fields[2], URL: fields[3], URI: fields[4]}
		}

		out = append(out, DecodedHit{ID: id, Score: score, Meta: meta})
	}
	return out, nil
}
