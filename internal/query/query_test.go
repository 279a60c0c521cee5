package query

import (
	"testing"

	"github.com/go-mizu/strobe/internal/qgram"
	"github.com/go-mizu/strobe/internal/segment"
)

func searchOne(t *testing.T, seg *segment.Segment, req Request) []Hit {
	t.Helper()
	pool := NewPool(1 << 12)
	s := pool.Get()
	defer pool.Put(s)
	return Search(seg, 0, req, s)
}

func reqFor(text string, k uint16, flags uint16) Request {
	return Request{K: k, Flags: flags, Sig: qgram.Sig256FromText(text), QueryText: text}
}

// scenario 1 from spec.md §8: exact short-token wins.
func TestExactShortTokenWins(t *testing.T) {
	b := segment.NewBuilder()
	b.Add(segment.Doc{ID: 1, Search: "alpha beta", Title: "alpha beta"})
	b.Add(segment.Doc{ID: 2, Search: "alpha gamma", Title: "alpha gamma"})
	seg := b.Seal()

	hits := searchOne(t, seg, reqFor("beta", 2, 0))
	if len(hits) == 0 {
		t.Fatal("expected at least one hit")
	}
	if hits[0].ID != 1 {
		t.Fatalf("expected id 1 to rank first, got %d (hits=%v)", hits[0].ID, hits)
	}
	if hits[0].Score < wExactLast {
		t.Fatalf("expected exact-last bonus in winning score, got %v", hits[0].Score)
	}
}

// scenario 2 from spec.md §8: prefix bonus scales with query-token length.
func TestPrefixBonusScalesWithLength(t *testing.T) {
	b := segment.NewBuilder()
	b.Add(segment.Doc{ID: 10, Search: "charleston", Title: "charleston"})
	seg := b.Seal()

	var scores []float32
	for _, q := range []string{"cha", "char", "charl"} {
		hits := searchOne(t, seg, reqFor(q, 1, 0))
		if len(hits) != 1 || hits[0].ID != 10 {
			t.Fatalf("query %q: expected a single hit for id 10, got %v", q, hits)
		}
		scores = append(scores, hits[0].Score)
	}
	for i := 1; i < len(scores); i++ {
		if scores[i] <= scores[i-1] {
			t.Fatalf("expected strictly increasing scores, got %v", scores)
		}
	}
}

// scenario 3 from spec.md §8: fuzzy rescue.
func TestFuzzyRescue(t *testing.T) {
	b := segment.NewBuilder()
	b.Add(segment.Doc{ID: 42, Search: "michelangelo", Title: "michelangelo"})
	seg := b.Seal()

	req := reqFor("michaelangelo", 1, FlagFuzzy)
	hits := searchOne(t, seg, req)
	if len(hits) != 1 || hits[0].ID != 42 {
		t.Fatalf("expected fuzzy match to recover id 42, got %v", hits)
	}
}

func TestSearchOnEmptySegmentReturnsNoHits(t *testing.T) {
	seg := segment.NewBuilder().Seal()
	hits := searchOne(t, seg, reqFor("anything", 5, 0))
	if len(hits) != 0 {
		t.Fatalf("expected no hits on an empty segment, got %v", hits)
	}
}

func TestMergeReturnsSortedDescendingWhenUnderK(t *testing.T) {
	pool := []Hit{
		{ID: 1, Score: 5, Seg: 0, Row: 0},
		{ID: 2, Score: 9, Seg: 0, Row: 1},
		{ID: 3, Score: 7, Seg: 1, Row: 0},
	}
	merged := Merge(pool, 10)
	if len(merged) != 3 || merged[0].ID != 2 || merged[1].ID != 3 || merged[2].ID != 1 {
		t.Fatalf("unexpected merge order: %v", merged)
	}
}

func TestMergeCapsAtK(t *testing.T) {
	pool := []Hit{
		{ID: 1, Score: 5, Seg: 0, Row: 0},
		{ID: 2, Score: 9, Seg: 0, Row: 1},
		{ID: 3, Score: 7, Seg: 1, Row: 0},
	}
	merged := Merge(pool, 2)
	if len(merged) != 2 || merged[0].ID != 2 || merged[1].ID != 3 {
		t.Fatalf("unexpected capped merge: %v", merged)
	}
}
