package segment

import (
	"math/bits"
	"sort"

	"github.com/go-mizu/strobe/internal/qgram"
)

// Doc is one document as handed to a Builder. Search is the only field the
// signature is derived from; Title/Author/Genres feed the prefix and exact
// postings (spec.md §4.4's deliberate asymmetry: signatures are for recall
// over the caller-chosen field, prefix/exact postings are for precision
// ranking over structured metadata).
type Doc struct {
	ID     uint32
	Search string
	Title  string
	Author string
	Genres string
	URL    string
	URI    string
}

// Builder accumulates documents and seals them into an immutable Segment.
// It is not safe for concurrent use — spec.md §5 gives each shard exactly
// one writer.
type Builder struct {
	meta      []Meta
	sig       []qgram.Sig256
	pop       []uint16
	idToRow   map[uint32]int
	sinceSeal int
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{
		idToRow: make(map[uint32]int, 64_000),
	}
}

// Len returns the number of distinct rows accumulated so far.
func (b *Builder) Len() int { return len(b.sig) }

// DocsSinceSeal returns the count of new (non-overwrite) rows added since
// the last Seal, used by the ingest pipeline's flush-by-count policy.
func (b *Builder) DocsSinceSeal() int { return b.sinceSeal }

// Add appends d, or — if d.ID was already added to this builder — overwrites
// that row's signature, popcount, and metadata in place (spec.md §4.4).
func (b *Builder) Add(d Doc) {
	sig := qgram.Sig256FromText(d.Search)
	pop := uint16(qgram.Popcnt4(sig))
	m := Meta{ID: d.ID, Title: d.Title, Author: d.Author, Genres: d.Genres, URL: d.URL, URI: d.URI}

	if row, ok := b.idToRow[d.ID]; ok {
		b.sig[row] = sig
		b.pop[row] = pop
		b.meta[row] = m
		return
	}

	row := len(b.meta)
	b.idToRow[d.ID] = row
	b.sig = append(b.sig, sig)
	b.pop = append(b.pop, pop)
	b.meta = append(b.meta, m)
	b.sinceSeal++
}

// Seal converts the accumulated rows into an immutable Segment and clears
// (but does not deallocate) the builder's buffers for reuse.
func (b *Builder) Seal() *Segment {
	n := len(b.sig)

	s0 := make([]uint64, n)
	s1 := make([]uint64, n)
	s2 := make([]uint64, n)
	s3 := make([]uint64, n)
	for row, sig := range b.sig {
		s0[row], s1[row], s2[row], s3[row] = sig[0], sig[1], sig[2], sig[3]
	}

	seg := &Segment{
		s0:   s0,
		s1:   s1,
		s2:   s2,
		s3:   s3,
		pop:  b.pop,
		meta: b.meta,
	}

	buildBitPostings(seg, b.sig)
	buildPrefixAndExactPostings(seg)

	b.sig = nil
	b.pop = nil
	b.meta = nil
	b.idToRow = make(map[uint32]int, 64_000)
	b.sinceSeal = 0

	return seg
}

func buildBitPostings(seg *Segment, sigs []qgram.Sig256) {
	for row, sig := range sigs {
		for lane := 0; lane < qgram.Sig256Lanes; lane++ {
			w := sig[lane]
			for w != 0 {
				tz := bits.TrailingZeros64(w)
				bit := (lane << 6) | tz
				seg.bitPostings[bit] = append(seg.bitPostings[bit], uint32(row))
				w &= w - 1
			}
		}
	}
	for b := 0; b < 256; b++ {
		list := dedupSortedUint32(seg.bitPostings[b])
		seg.bitPostings[b] = list
		seg.bitFreq[b] = uint32(len(list))
	}
}

// buildPrefixAndExactPostings scans every row's "title author genres" text
// for tokens, populating pref1, pref3, and full6 (spec.md §3, §4.4).
func buildPrefixAndExactPostings(seg *Segment) {
	full6 := make(map[uint64]map[uint32]struct{})

	for row := range seg.meta {
		m := &seg.meta[row]
		text := m.Title + " " + m.Author + " " + m.Genres
		norm := qgram.Normalize(text)
		for _, tok := range qgram.Tokens(norm) {
			if len(tok) == 0 {
				continue
			}
			seg.pref1[tok[0]] = appendRow(seg.pref1[tok[0]], uint32(row))

			if ix, ok := qgram.Pref3Index(tok); ok {
				seg.pref3[ix] = appendRow(seg.pref3[ix], uint32(row))
			}

			if len(tok) <= 6 {
				key := qgram.TokenHash64(tok)
				rows, ok := full6[key]
				if !ok {
					rows = make(map[uint32]struct{})
					full6[key] = rows
				}
				rows[uint32(row)] = struct{}{}
			}
		}
	}

	for c := 0; c < 256; c++ {
		seg.pref1[c] = dedupSortedUint32(seg.pref1[c])
	}
	for i := 0; i < Pref3Size; i++ {
		seg.pref3[i] = dedupSortedUint32(seg.pref3[i])
	}

	seg.full6 = make([]full6Entry, 0, len(full6))
	for key, rowSet := range full6 {
		rows := make([]uint32, 0, len(rowSet))
		for row := range rowSet {
			rows = append(rows, row)
		}
		sort.Slice(rows, func(i, j int) bool { return rows[i] < rows[j] })
		seg.full6 = append(seg.full6, full6Entry{Key: key, Rows: rows})
	}
	sort.Slice(seg.full6, func(i, j int) bool { return seg.full6[i].Key < seg.full6[j].Key })
}

func appendRow(list []uint32, row uint32) []uint32 {
	return append(list, row)
}

// dedupSortedUint32 sorts and removes duplicates in place.
func dedupSortedUint32(list []uint32) []uint32 {
	if len(list) == 0 {
		return list
	}
	sort.Slice(list, func(i, j int) bool { return list[i] < list[j] })
	out := list[:1]
	for _, v := range list[1:] {
		if v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}
