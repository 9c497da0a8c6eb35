// Package memory implements the kernel's only heap strategy: a lock-free
// bump allocator. There is no free list and no reclamation — dealloc is a
// no-op, by design, matching the single-execution-context model this kernel
// runs under (one allocator, one forward-only cursor, never contended by
// more than a handful of interrupt-serialized callers).
package memory

import (
	"sync/atomic"
)

// AlignUp returns the smallest x >= addr such that x is a multiple of
// align. align must be a power of two.
func AlignUp(addr, align uintptr) uintptr {
	return AlignDown(addr+align-1, align)
}

// AlignDown returns the greatest x <= addr such that x is a multiple of
// align. align must be a power of two, or zero (in which case addr is
// returned unchanged).
func AlignDown(addr, align uintptr) uintptr {
	if align == 0 {
		return addr
	}
	if align&(align-1) != 0 {
		panic("memory: align must be a power of two")
	}
	return addr &^ (align - 1)
}

// Allocator is a bump allocator over a fixed address range. Alloc is safe
// for concurrent use from multiple interrupt contexts: the cursor only ever
// moves forward, via a compare-and-swap loop, so two racing allocations
// either get disjoint ranges or one of them retries — they never overlap
// and Alloc never blocks.
type Allocator struct {
	start uintptr
	end   uintptr
	next  uintptr // atomic
}

// New returns an Allocator serving [start, start+size).
func New(start, size uintptr) *Allocator {
	return &Allocator{start: start, end: start + size, next: start}
}

// Alloc reserves size bytes aligned to align (a power of two) and returns
// its start address, or 0 if the region is exhausted.
func (a *Allocator) Alloc(size, align uintptr) uintptr {
	for {
		current := atomic.LoadUintptr(&a.next)
		start := AlignUp(current, align)
		end := start + size
		if end < start || end > a.end {
			return 0
		}
		if atomic.CompareAndSwapUintptr(&a.next, current, end) {
			return start
		}
	}
}

// Dealloc exists to satisfy callers written against a general allocator
// interface; a bump allocator cannot reclaim individual allocations, so it
// does nothing.
func (a *Allocator) Dealloc(uintptr, uintptr) {}

// NewChild carves a size-byte region out of parent (or, if parent is nil,
// out of the package-level root allocator) and returns a fresh Allocator
// over just that region, with its own cursor independent of the parent's.
// No kernel subsystem calls it; the MMU's tables live in static storage.
func NewChild(parent *Allocator, size uintptr) *Allocator {
	var base uintptr
	if parent != nil {
		base = parent.Alloc(size, 16)
	} else {
		base = Root.Alloc(size, 16)
	}
	if base == 0 {
		panic("memory: out of space for child allocator")
	}
	return New(base, size)
}

// Root is the allocator constructed over the ARM-visible RAM window once
// the kernel has heard back from the VideoCore firmware about where that
// window starts and ends. It is nil until Init runs.
var Root *Allocator

// Init installs Root as an allocator spanning [start, start+size).
func Init(start, size uintptr) {
	Root = New(start, size)
}
