// Package indexview holds the ordered, immutable segment list that queries
// run against, and the atomic publish mechanism writers use to swap it
// (spec.md §4.7, §9 "Global state").
package indexview

import (
	"sync/atomic"

	"github.com/go-mizu/strobe/internal/query"
	"github.com/go-mizu/strobe/internal/segment"
)

// View is an immutable snapshot of the current segment list. Segments are
// never mutated after seal; adding a segment produces a new View that
// shares all prior segment handles (spec.md §3 "Index view").
type View struct {
	segments []*segment.Segment
}

// Empty returns a View with no segments.
func Empty() *View { return &View{} }

// New returns a View over the given segments, in order.
func New(segments []*segment.Segment) *View {
	return &View{segments: segments}
}

// WithAppended returns a new View equal to v plus seg appended, without
// mutating v. The returned View shares every prior segment handle.
func (v *View) WithAppended(seg *segment.Segment) *View {
	next := make([]*segment.Segment, len(v.segments)+1)
	copy(next, v.segments)
	next[len(v.segments)] = seg
	return &View{segments: next}
}

// SegmentCount returns the number of segments in the view.
func (v *View) SegmentCount() int { return len(v.segments) }

// Segment returns the i'th segment, used by wire-layer metadata lookups
// keyed on a query.Hit's Seg field.
func (v *View) Segment(i int) *segment.Segment { return v.segments[i] }

// TotalDocs returns the sum of every segment's row count.
func (v *View) TotalDocs() int {
	total := 0
	for _, s := range v.segments {
		total += s.Len()
	}
	return total
}

// Search runs the query independently over every segment and merges the
// per-segment top-K pools into a single global top-K (spec.md §4.5 "Global
// merge"). scratch must come from a query.Pool sized for this view's
// expected candidate volume.
func (v *View) Search(req query.Request, scratch *query.Scratch) []query.Hit {
	if len(v.segments) == 0 {
		return nil
	}
	var pool []query.Hit
	for segIdx, seg := range v.segments {
		pool = append(pool, query.Search(seg, segIdx, req, scratch)...)
	}
	return query.Merge(pool, int(req.K))
}

// Published is an atomically swappable owning pointer to the current View
// (spec.md §4.6 "Publish uses an atomically swappable pointer"). Readers
// load the pointer once at query start and hold that snapshot for the
// duration of the call, independent of concurrent publishes.
type Published struct {
	ptr atomic.Pointer[View]
}

// NewPublished creates a Published holding initial.
func NewPublished(initial *View) *Published {
	p := &Published{}
	p.ptr.Store(initial)
	return p
}

// Load returns the currently published View.
func (p *Published) Load() *View { return p.ptr.Load() }

// Publish atomically replaces the published View. The previous View
// remains valid for any reader still holding it.
func (p *Published) Publish(v *View) { p.ptr.Store(v) }
