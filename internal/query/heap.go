package query

import (
	"math"
	"sort"
)

// rankBetter reports whether a ranks strictly ahead of b: higher score
// first, then higher row, then higher seg (spec.md §4.5 "Ordering /
// tie-breaks"). NaN scores compare equal to anything, per spec, so a NaN
// comparison falls straight through to the tie-break.
func rankBetter(a, b Hit) bool {
	if !scoreEqual(a.Score, b.Score) {
		return a.Score > b.Score
	}
	if a.Row != b.Row {
		return a.Row > b.Row
	}
	return a.Seg > b.Seg
}

func scoreEqual(a, b float32) bool {
	if math.IsNaN(float64(a)) || math.IsNaN(float64(b)) {
		return true
	}
	return a == b
}

// minHeap is a fixed-capacity min-heap over Hit ordered by rankBetter, used
// to keep the k best hits seen so far without sorting the full candidate
// set (spec.md §4.5 steps 8 and "Global merge"). The root (index 0) is
// always the worst-ranked hit currently kept.
type minHeap []Hit

func (h minHeap) worse(i, j int) bool { return !rankBetter(h[i], h[j]) }

func (h minHeap) up(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if !h.worse(i, parent) {
			return
		}
		h[i], h[parent] = h[parent], h[i]
		i = parent
	}
}

func (h minHeap) down(i int) {
	n := len(h)
	for {
		left, right := 2*i+1, 2*i+2
		smallest := i
		if left < n && h.worse(left, smallest) {
			smallest = left
		}
		if right < n && h.worse(right, smallest) {
			smallest = right
		}
		if smallest == i {
			return
		}
		h[i], h[smallest] = h[smallest], h[i]
		i = smallest
	}
}

// sortedDescending drains the heap into a best-first slice. The heap only
// needs to keep the top-k efficiently as candidates stream in; once
// streaming is done, a plain sort of the (small, size-k) result is simpler
// than heap-popping it out one at a time.
func (h minHeap) sortedDescending() []Hit {
	out := make([]Hit, len(h))
	copy(out, h)
	sort.Slice(out, func(i, j int) bool { return rankBetter(out[i], out[j]) })
	return out
}
