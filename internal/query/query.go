// Package query implements the per-segment candidate generation, scoring,
// and top-K merge described in spec.md §4.5. It is the "hard part": every
// constant and step below is named after the spec section that pins it down.
package query

import (
	"math/bits"
	"sort"

	"github.com/go-mizu/strobe/internal/accum"
	"github.com/go-mizu/strobe/internal/qgram"
	"github.com/go-mizu/strobe/internal/segment"
)

// Flag bits recognized on the wire (spec.md §6.1).
const (
	FlagFuzzy    uint16 = 1 << 0
	FlagWithMeta uint16 = 1 << 1
)

const (
	candidateCap    = 512
	wExactLast      = 1000.0
	wExactAny       = 200.0
	wFuzzy          = 100.0
	fuzzyMinJaccard = 0.05
	maxOtherTokens  = 4
	maxTokenLen     = 6
	prefixBonusUnit = 30.0
	prefixBonusCap  = 10
)

// Request is one parsed search request.
type Request struct {
	K         uint16
	Flags     uint16
	Sig       qgram.Sig256
	QueryText string
}

func (r Request) fuzzy() bool    { return r.Flags&FlagFuzzy != 0 }
func (r Request) withMeta() bool { return r.Flags&FlagWithMeta != 0 }

// Hit is one scored result. Seg and Row locate the source row for metadata
// lookup; ID is the external document id already resolved at scoring time.
type Hit struct {
	ID    uint32
	Score float32
	Seg   int
	Row   uint32
}

// parsedQuery holds the tokenization and bit-ordering work shared by every
// segment search for one request — computed once per request, not once per
// segment.
type parsedQuery struct {
	lastToken    []byte
	otherTokens  [][]byte
	bitsByRarity []int // each entry is (lane<<6)|bit, to be sorted per-segment by that segment's bit_freq
	grams        uint32
}

func parseQuery(req Request) parsedQuery {
	pq := parsedQuery{grams: popcountSig(req.Sig)}

	norm := qgram.Normalize(req.QueryText)
	toks := qgram.Tokens(norm)
	if len(toks) > 0 {
		pq.lastToken = toks[len(toks)-1]
		for _, t := range toks[:len(toks)-1] {
			if len(t) == 0 || len(t) > maxTokenLen {
				continue
			}
			pq.otherTokens = append(pq.otherTokens, t)
			if len(pq.otherTokens) == maxOtherTokens {
				break
			}
		}
	}

	for lane := 0; lane < qgram.Sig256Lanes; lane++ {
		w := req.Sig[lane]
		for w != 0 {
			tz := bits.TrailingZeros64(w)
			pq.bitsByRarity = append(pq.bitsByRarity, (lane<<6)|tz)
			w &= w - 1
		}
	}
	return pq
}

func popcountSig(s qgram.Sig256) uint32 { return qgram.Popcnt4(s) }

// mustSet returns the prefix posting list the last query token gates
// against (spec.md §4.5 step 3), or nil if no usable last token exists.
func mustSet(seg *segment.Segment, lastToken []byte) []uint32 {
	if len(lastToken) >= 3 {
		if ix, ok := qgram.Pref3Index(lastToken); ok {
			return seg.Pref3(ix)
		}
	}
	if len(lastToken) >= 1 {
		return seg.Pref1(lastToken[0])
	}
	return nil
}

// Search runs the per-segment algorithm (spec.md §4.5 steps 1-8) and returns
// up to req.K hits, best first.
func Search(seg *segment.Segment, segIdx int, req Request, s *Scratch) []Hit {
	if seg.IsEmpty() {
		return nil
	}
	pq := parseQuery(req)
	return searchParsed(seg, segIdx, req, pq, s)
}

func searchParsed(seg *segment.Segment, segIdx int, req Request, pq parsedQuery, s *Scratch) []Hit {
	bits := append(s.bits[:0], pq.bitsByRarity...)
	sort.Slice(bits, func(i, j int) bool { return seg.BitFreq(bits[i]) < seg.BitFreq(bits[j]) })
	s.bits = bits

	must := mustSet(seg, pq.lastToken)

	var candidates []uint32
	usedBitForSeed := false
	if len(must) > 0 {
		candidates = takeUpTo(s.candidates[:0], must, candidateCap)
	} else if len(bits) > 0 {
		candidates = takeUpTo(s.candidates[:0], seg.BitPostings(bits[0]), candidateCap)
		usedBitForSeed = true
	} else {
		return nil
	}
	s.candidates = candidates
	if len(candidates) == 0 {
		return nil
	}

	numExtra := 3
	if pq.grams < 5 {
		numExtra = 1
	} else if pq.grams < 10 {
		numExtra = 2
	}
	start := 0
	if usedBitForSeed {
		start = 1
	}
	for i := start; i < len(bits) && i < start+numExtra; i++ {
		if len(candidates) == 0 {
			break
		}
		next := intersectSorted(s.inter[:0], candidates, seg.BitPostings(bits[i]), candidateCap)
		s.inter = candidates[:0]
		candidates, s.inter = next, s.inter
		s.candidates = candidates
	}

	if len(must) > 0 {
		next := intersectSorted(s.inter[:0], candidates, must, candidateCap)
		s.inter = candidates[:0]
		candidates, s.inter = next, s.inter
		s.candidates = candidates
		if len(candidates) == 0 {
			return nil
		}
	}

	lastHash, lastUsable := uint64(0), false
	if len(pq.lastToken) > 0 && len(pq.lastToken) <= maxTokenLen {
		lastHash, lastUsable = qgram.TokenHash64(pq.lastToken), true
	}
	otherHashes := make([]uint64, len(pq.otherTokens))
	for i, t := range pq.otherTokens {
		otherHashes[i] = qgram.TokenHash64(t)
	}

	s.accum.Begin()
	for _, row := range candidates {
		sig := seg.Sig(row)
		inter := qgram.OverlapPopcnt(sig, req.Sig)
		if inter == 0 {
			continue
		}
		pop := seg.Pop(row)
		score := scoreRow(req, pq, seg, row, inter, pop, must, lastHash, lastUsable, otherHashes)

		if s.accum.Inc(row) {
			s.accum.SetScore(row, score)
		} else {
			s.accum.UpdateMax(row, score)
		}
	}

	return topK(seg, segIdx, s.accum, int(req.K))
}

func scoreRow(
	req Request,
	pq parsedQuery,
	seg *segment.Segment,
	row uint32,
	inter uint32,
	pop uint16,
	must []uint32,
	lastHash uint64,
	lastUsable bool,
	otherHashes []uint64,
) float32 {
	base := float32(inter)/(1+0.02*float32(pop)) + minF32(0.25, float32(inter)*0.02)
	score := base

	if len(must) > 0 && containsSorted(must, row) {
		n := len(pq.lastToken)
		if n > prefixBonusCap {
			n = prefixBonusCap
		}
		score += float32(n) * prefixBonusUnit
	}

	if lastUsable && containsSorted(seg.Full6(lastHash), row) {
		score += wExactLast
	} else {
		for _, h := range otherHashes {
			if containsSorted(seg.Full6(h), row) {
				score += wExactAny
				break
			}
		}
	}

	if req.fuzzy() {
		qpop := popcountSig(req.Sig)
		union := int64(qpop) + int64(pop) - int64(inter)
		if union < 1 {
			union = 1
		}
		j := float32(inter) / float32(union)
		if j >= fuzzyMinJaccard {
			score += wFuzzy * j
		}
	}

	return score
}

func topK(seg *segment.Segment, segIdx int, a *accum.Accum, k int) []Hit {
	if k <= 0 {
		return nil
	}
	h := make(minHeap, 0, k)
	for _, row := range a.Touched() {
		hit := Hit{ID: seg.Meta(row).ID, Score: a.GetScore(row), Seg: segIdx, Row: row}
		if len(h) < k {
			h = append(h, hit)
			h.up(len(h) - 1)
			continue
		}
		if rankBetter(hit, h[0]) {
			h[0] = hit
			h.down(0)
		}
	}
	return h.sortedDescending()
}

// Merge combines per-segment top-K pools into a single global top-K
// (spec.md §4.5 "Global merge").
func Merge(pool []Hit, k int) []Hit {
	if len(pool) <= k {
		out := append([]Hit(nil), pool...)
		sort.Slice(out, func(i, j int) bool { return rankBetter(out[i], out[j]) })
		return out
	}
	h := make(minHeap, 0, k)
	for _, hit := range pool {
		if len(h) < k {
			h = append(h, hit)
			h.up(len(h) - 1)
			continue
		}
		if rankBetter(hit, h[0]) {
			h[0] = hit
			h.down(0)
		}
	}
	return h.sortedDescending()
}

func minF32(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

func containsSorted(list []uint32, v uint32) bool {
	i := sort.Search(len(list), func(i int) bool { return list[i] >= v })
	return i < len(list) && list[i] == v
}

func takeUpTo(dst []uint32, src []uint32, cap int) []uint32 {
	n := len(src)
	if n > cap {
		n = cap
	}
	return append(dst, src[:n]...)
}

// intersectSorted performs a bounded sorted two-pointer merge of a and b
// into dst, stopping once dst reaches capacity (spec.md §4.5 step 5).
func intersectSorted(dst []uint32, a, b []uint32, capAt int) []uint32 {
	i, j := 0, 0
	for i < len(a) && j < len(b) && len(dst) < capAt {
		switch {
		case a[i] == b[j]:
			dst = append(dst, a[i])
			i++
			j++
		case a[i] < b[j]:
			i++
		default:
			j++
		}
	}
	return dst
}
