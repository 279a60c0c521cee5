package query

import (
	"sync"

	"github.com/go-mizu/strobe/internal/accum"
)

// Scratch holds the per-query buffers spec.md §9 requires to be reused
// rather than rebuilt: the query-bit list, candidate and intersection
// vectors, and the accumulator. Acquire one from a Pool for the lifetime of
// a single request and return it afterward.
type Scratch struct {
	bits       []int
	candidates []uint32
	inter      []uint32
	accum      *accum.Accum
}

// Pool vends Scratch values sized for one segment search at a time. It is
// backed by a sync.Pool, so concurrent requests can share one Pool, each
// holding its own Scratch between Get and Put.
type Pool struct {
	pool sync.Pool
}

// NewPool returns a Pool whose accumulators are sized to capacityPow2.
func NewPool(capacityPow2 int) *Pool {
	p := &Pool{}
	p.pool.New = func() any {
		return &Scratch{
			bits:       make([]int, 0, 256),
			candidates: make([]uint32, 0, candidateCap),
			inter:      make([]uint32, 0, candidateCap),
			accum:      accum.New(capacityPow2),
		}
	}
	return p
}

// Get returns a Scratch ready for one search call.
func (p *Pool) Get() *Scratch {
	return p.pool.Get().(*Scratch)
}

// Put returns s to the pool for reuse.
func (p *Pool) Put(s *Scratch) {
	p.pool.Put(s)
}
