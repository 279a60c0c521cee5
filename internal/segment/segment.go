// Package segment holds the sealed, immutable columnar block at the heart
// of the engine (spec.md §3 "Segment", §4.4 "Segment builder").
package segment

import (
	"sort"

	"github.com/go-mizu/strobe/internal/qgram"
)

// Pref3Size is the size of the 3-char base-36 prefix posting table: 36^3.
const Pref3Size = 36 * 36 * 36

// Meta holds the caller-supplied, non-searched fields for one row.
type Meta struct {
	ID     uint32
	Title  string
	Author string
	Genres string
	URL    string
	URI    string
}

// full6Entry is one (key, sorted rows) pair in the full6 exact-token index.
type full6Entry struct {
	Key  uint64
	Rows []uint32
}

// Segment is a sealed, immutable, columnar block of rows plus every
// posting list the query engine needs. Once returned by Builder.Seal, a
// Segment is never mutated again.
type Segment struct {
	s0, s1, s2, s3 []uint64 // parallel signature lanes, row-indexed
	pop            []uint16
	meta           []Meta

	bitPostings [256][]uint32
	bitFreq     [256]uint32

	pref1 [256][]uint32
	pref3 [Pref3Size][]uint32

	full6 []full6Entry
}

// Len returns the number of rows in the segment.
func (s *Segment) Len() int { return len(s.s0) }

// IsEmpty reports whether the segment has no rows.
func (s *Segment) IsEmpty() bool { return len(s.s0) == 0 }

// Sig returns row's 256-bit signature.
func (s *Segment) Sig(row uint32) qgram.Sig256 {
	return qgram.Sig256{s.s0[row], s.s1[row], s.s2[row], s.s3[row]}
}

// Pop returns row's precomputed popcount.
func (s *Segment) Pop(row uint32) uint16 { return s.pop[row] }

// Meta returns row's metadata.
func (s *Segment) Meta(row uint32) Meta { return s.meta[row] }

// BitPostings returns the ascending, deduplicated row list for bit b.
func (s *Segment) BitPostings(b int) []uint32 { return s.bitPostings[b] }

// BitFreq returns len(BitPostings(b)) precomputed.
func (s *Segment) BitFreq(b int) uint32 { return s.bitFreq[b] }

// Pref1 returns rows whose first normalized metadata-token byte is c.
func (s *Segment) Pref1(c byte) []uint32 { return s.pref1[c] }

// Pref3 returns rows whose first three normalized metadata-token bytes
// linearize to index ix (see qgram.Pref3Index).
func (s *Segment) Pref3(ix int) []uint32 { return s.pref3[ix] }

// Full6 returns the rows containing a metadata token of length <= 6 whose
// hash equals key, via binary search over the sorted key list.
func (s *Segment) Full6(key uint64) []uint32 {
	i := sort.Search(len(s.full6), func(i int) bool { return s.full6[i].Key >= key })
	if i < len(s.full6) && s.full6[i].Key == key {
		return s.full6[i].Rows
	}
	return nil
}
