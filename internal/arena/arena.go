// Package arena provides the fixed-size bootstrap allocator. It satisfies
// allocation requests issued while the process-wide allocator backend is
// still being resolved, so that early allocations never route back through
// the resolver.
package arena

import (
	"os"
	"unsafe"

	"github.com/allocguard/allocguard/internal/concurrency"
)

// PoolSize is the capacity of the bootstrap arena. A few megabytes covers
// every allocation the startup path issues before the backend is resolved.
const PoolSize = 8 << 20

// alignment applied to every allocation.
const alignment = 16

// Arena is a bump-pointer byte region. Allocations are never reused and
// Release frees nothing; it only answers ownership. Leaking inside the
// arena is intentional: the region is small, bounded, and consumed only
// during a single-shot bootstrap window.
//
// The zero value is ready to use, so a package-level Arena is fully
// constructed before any code runs.
type Arena struct {
	mu   concurrency.SpinLock
	next uintptr
	pool [PoolSize]byte
}

// Bootstrap is the process-wide bootstrap arena. It is statically
// initialized and lives for the entire process lifetime.
var Bootstrap Arena

// Alloc returns a pointer to size contiguous bytes inside the arena, or nil
// when the remaining capacity is insufficient. The returned memory is
// zeroed: the pool starts zeroed and is never reused.
func (a *Arena) Alloc(size uintptr) unsafe.Pointer {
	if size == 0 {
		return nil
	}
	aligned := (size + alignment - 1) &^ (alignment - 1)
	a.mu.Lock()
	if a.next+aligned > PoolSize {
		a.mu.Unlock()
		os.Stderr.WriteString("allocguard: bootstrap arena exhausted\n")
		return nil
	}
	p := unsafe.Pointer(&a.pool[a.next])
	a.next += aligned
	a.mu.Unlock()
	return p
}

// Owns reports whether p lies inside the arena's byte region. O(1).
func (a *Arena) Owns(p unsafe.Pointer) bool {
	if p == nil {
		return false
	}
	addr := uintptr(p)
	begin := uintptr(unsafe.Pointer(&a.pool[0]))
	return addr >= begin && addr < begin+PoolSize
}

// Release reports whether p was served by this arena. It frees nothing:
// once the arena has serviced an allocation it accepts Release on that
// pointer for the remainder of the process lifetime.
func (a *Arena) Release(p unsafe.Pointer) bool {
	return a.Owns(p)
}

// Realloc serves a reallocation for an arena-owned pointer by allocating a
// new region and copying over the old bytes. The old block's size is not
// tracked, so the copy is bounded by the new size and by the end of the
// pool. Passing a nil pointer behaves like Alloc.
func (a *Arena) Realloc(p unsafe.Pointer, size uintptr) unsafe.Pointer {
	np := a.Alloc(size)
	if np == nil || p == nil {
		return np
	}
	if !a.Owns(p) {
		return np
	}
	n := size
	begin := uintptr(unsafe.Pointer(&a.pool[0]))
	if rest := begin + PoolSize - uintptr(p); rest < n {
		n = rest
	}
	copy(unsafe.Slice((*byte)(np), n), unsafe.Slice((*byte)(p), n))
	if !a.Release(p) {
		os.Stderr.WriteString("allocguard: memory unexpectedly not loaned by bootstrap arena\n")
	}
	return np
}

// BytesAt returns a view of up to max bytes starting at the arena-owned
// pointer p, clipped to the end of the pool. It returns nil when p is not
// arena-owned. The view aliases arena storage and must only be read.
func (a *Arena) BytesAt(p unsafe.Pointer, max uintptr) []byte {
	if !a.Owns(p) {
		return nil
	}
	begin := uintptr(unsafe.Pointer(&a.pool[0]))
	n := max
	if rest := begin + PoolSize - uintptr(p); rest < n {
		n = rest
	}
	return unsafe.Slice((*byte)(p), n)
}

// Used returns the number of bytes bumped so far.
func (a *Arena) Used() uintptr {
	a.mu.Lock()
	used := a.next
	a.mu.Unlock()
	return used
}

// Available returns the remaining capacity.
func (a *Arena) Available() uintptr {
	return PoolSize - a.Used()
}
