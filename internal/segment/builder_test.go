package segment

import (
	"testing"

	"github.com/go-mizu/strobe/internal/qgram"
)

func tokenHashForTest(t *testing.T, tok string) uint64 {
	t.Helper()
	return qgram.TokenHash64([]byte(tok))
}

func TestAddThenSealProducesOneRowPerDoc(t *testing.T) {
	b := NewBuilder()
	b.Add(Doc{ID: 1, Search: "the great gatsby", Title: "The Great Gatsby", Author: "Fitzgerald"})
	b.Add(Doc{ID: 2, Search: "moby dick", Title: "Moby Dick", Author: "Melville"})

	seg := b.Seal()
	if seg.Len() != 2 {
		t.Fatalf("expected 2 rows, got %d", seg.Len())
	}
}

func TestAddOverwritesByExternalID(t *testing.T) {
	b := NewBuilder()
	b.Add(Doc{ID: 1, Search: "first version", Title: "First"})
	b.Add(Doc{ID: 1, Search: "second version", Title: "Second"})

	seg := b.Seal()
	if seg.Len() != 1 {
		t.Fatalf("expected overwrite to keep a single row, got %d", seg.Len())
	}
	if got := seg.Meta(0).Title; got != "Second" {
		t.Fatalf("expected overwritten metadata, got %q", got)
	}
}

func TestSealResetsBuilderForReuse(t *testing.T) {
	b := NewBuilder()
	b.Add(Doc{ID: 1, Search: "anything"})
	b.Seal()

	if b.Len() != 0 {
		t.Fatalf("expected builder to be empty after seal, got %d", b.Len())
	}
	if b.DocsSinceSeal() != 0 {
		t.Fatalf("expected sinceSeal reset, got %d", b.DocsSinceSeal())
	}

	b.Add(Doc{ID: 2, Search: "reused"})
	seg := b.Seal()
	if seg.Len() != 1 {
		t.Fatalf("expected fresh segment with 1 row after reuse, got %d", seg.Len())
	}
}

func TestBitPostingsAreSortedAndDeduped(t *testing.T) {
	b := NewBuilder()
	b.Add(Doc{ID: 1, Search: "alpha beta gamma"})
	b.Add(Doc{ID: 2, Search: "alpha beta gamma"})
	seg := b.Seal()

	seen := false
	for bit := 0; bit < 256; bit++ {
		list := seg.BitPostings(bit)
		if len(list) == 0 {
			continue
		}
		seen = true
		for i := 1; i < len(list); i++ {
			if list[i] <= list[i-1] {
				t.Fatalf("bit %d postings not strictly increasing: %v", bit, list)
			}
		}
		if uint32(len(list)) != seg.BitFreq(bit) {
			t.Fatalf("bit %d: BitFreq %d != len(postings) %d", bit, seg.BitFreq(bit), len(list))
		}
	}
	if !seen {
		t.Fatal("expected at least one set bit across both rows")
	}
}

func TestPrefixAndExactPostingsFindToken(t *testing.T) {
	b := NewBuilder()
	b.Add(Doc{ID: 7, Search: "ignored", Title: "Dune", Author: "Herbert"})
	seg := b.Seal()

	rows := seg.Pref1('d')
	found := false
	for _, r := range rows {
		if r == 0 {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected row 0 in Pref1('d'), got %v", rows)
	}

	key := tokenHashForTest(t, "dune")
	rows = seg.Full6(key)
	if len(rows) != 1 || rows[0] != 0 {
		t.Fatalf("expected Full6(%q) to return row 0, got %v", "dune", rows)
	}
}
