// Package zone implements the bump-allocated memory regions the generational
// heap is built from (spec.md §4.1 "Zone & Generation Layout").
package zone

import (
	"sync"
	"unsafe"

	"github.com/pkg/errors"
)

// WordSize is the machine word size in bytes, used throughout the core for
// cell-granularity bookkeeping.
const WordSize = unsafe.Sizeof(uintptr(0))

// ErrExhausted names the condition of a request that cannot fit before End.
// Allot does not return it: Allot reports that case with ok == false.
var ErrExhausted = errors.New("zone: exhausted")

// Segment is a contiguous memory region with start <= here <= end
// (spec.md §3 "Zone" / invariant list). Bump allocation advances Here;
// Reset sets Here back to Start.
type Segment struct {
	Start uintptr
	Here  uintptr
	End   uintptr

	mu      sync.Mutex
	backing []byte // keeps the mapping (or fallback buffer) alive
}

// Size returns the total capacity of the segment in bytes.
func (s *Segment) Size() uintptr { return s.End - s.Start }

// Used returns the number of bytes already allotted.
func (s *Segment) Used() uintptr { return s.Here - s.Start }

// Contains reports whether addr lies within [Start, End).
func (s *Segment) Contains(addr uintptr) bool {
	return addr >= s.Start && addr < s.End
}

// Reset sets here := start, discarding everything allotted (spec.md §4.1
// reset_generation).
func (s *Segment) Reset() {
	s.mu.Lock()
	s.Here = s.Start
	s.mu.Unlock()
}

// Allot bumps Here by size bytes and returns the address of the allotment.
// Mirrors the external allot_zone(zone, size) primitive (§6).
func (s *Segment) Allot(size uintptr) (uintptr, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Here+size > s.End {
		return 0, false
	}
	addr := s.Here
	s.Here += size
	return addr, true
}

// AllocSegment returns a fresh zone of the requested size with here == start
// (spec.md §4.1 alloc_segment). The backing store comes from the platform's
// raw-memory allocator (mmap on unix, a pinned slice elsewhere) so that
// addresses handed out as Cells never move underneath the collector.
func AllocSegment(size uintptr) (*Segment, error) {
	backing, base, err := allocRaw(size)
	if err != nil {
		return nil, errors.Wrapf(err, "zone: allocating %d bytes", size)
	}
	return &Segment{
		Start:   base,
		Here:    base,
		End:     base + size,
		backing: backing,
	}, nil
}

// Release returns the segment's backing store to the platform. The segment
// must not be used afterwards.
func (s *Segment) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.backing == nil {
		return nil
	}
	err := freeRaw(s.backing)
	s.backing = nil
	return err
}
