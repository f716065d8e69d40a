// Package interpose installs the replacement allocator entry points and
// resolves the original operations they forward to. Every allocation routed
// through the facade enters here: the bootstrap short-circuit first, then
// the per-goroutine guards, then the dispatcher, and finally the original
// backend.
package interpose

import (
	"unsafe"

	"github.com/allocguard/allocguard/internal/arena"
	"github.com/allocguard/allocguard/internal/guard"
	"github.com/allocguard/allocguard/internal/monitor"
)

// Malloc is the replacement allocate entry point.
func Malloc(size uintptr) unsafe.Pointer {
	if initializingOriginalFunctions.IsSet() {
		return arena.Bootstrap.Alloc(size)
	}
	st, ok := enter(guard.OpMalloc)
	if !ok {
		return original.Malloc(size)
	}
	defer st.ExitHook(guard.OpMalloc)
	monitor.Observe(st, guard.OpMalloc)
	return original.Malloc(size)
}

// Calloc is the replacement zero-initialized-allocate entry point. The
// count*size product is overflow-checked; the returned memory is zeroed.
func Calloc(count, size uintptr) unsafe.Pointer {
	if initializingOriginalFunctions.IsSet() {
		total, ok := checkedMul(count, size)
		if !ok {
			return nil
		}
		// Arena memory is never reused, so it is still zeroed.
		return arena.Bootstrap.Alloc(total)
	}
	st, ok := enter(guard.OpCalloc)
	if !ok {
		return original.Calloc(count, size)
	}
	defer st.ExitHook(guard.OpCalloc)
	monitor.Observe(st, guard.OpCalloc)
	return original.Calloc(count, size)
}

// Realloc is the replacement reallocate entry point. Pointers still owned
// by the bootstrap arena are migrated by copy: to a new arena block while
// resolution is in progress, to the resolved backend afterwards.
func Realloc(p unsafe.Pointer, size uintptr) unsafe.Pointer {
	if initializingOriginalFunctions.IsSet() {
		return arena.Bootstrap.Realloc(p, size)
	}
	if arena.Bootstrap.Owns(p) {
		return migrateFromArena(p, size)
	}
	st, ok := enter(guard.OpRealloc)
	if !ok {
		return original.Realloc(p, size)
	}
	defer st.ExitHook(guard.OpRealloc)
	monitor.Observe(st, guard.OpRealloc)
	return original.Realloc(p, size)
}

// Free is the replacement release entry point. For every pointer exactly
// one of two things happens: an arena-owned pointer is a permanent no-op,
// anything else is forwarded to the original release. While resolution is
// still in progress a pointer that is not arena-owned is dropped.
func Free(p unsafe.Pointer) {
	if arena.Bootstrap.Release(p) {
		return
	}
	if initializingOriginalFunctions.IsSet() {
		// Not arena-owned and the original release is not yet resolved;
		// nothing can be done safely.
		return
	}
	st, ok := enter(guard.OpFree)
	if !ok {
		original.Free(p)
		return
	}
	defer st.ExitHook(guard.OpFree)
	monitor.Observe(st, guard.OpFree)
	original.Free(p)
}

// enter runs the common hook preamble: platform gate, goroutine state
// materialization, and the reentry guard. ok is false when the caller must
// bypass monitoring and forward directly; st is non-nil only when ok.
func enter(op guard.Op) (*guard.State, bool) {
	if !platformSupported {
		return nil, false
	}
	st, ok := guard.Current()
	if !ok {
		// This goroutine's state is mid-initialization; serve from the
		// original allocator.
		return nil, false
	}
	if !st.EnterHook(op) {
		// Observation logic is already on the stack for this kind.
		return nil, false
	}
	return st, true
}

// migrateFromArena moves an arena-loaned block into the resolved backend.
// The arena does not track block sizes, so the copy is bounded by the new
// size and the end of the arena pool.
func migrateFromArena(p unsafe.Pointer, size uintptr) unsafe.Pointer {
	np := original.Malloc(size)
	if np == nil {
		return nil
	}
	copy(unsafe.Slice((*byte)(np), size), arena.Bootstrap.BytesAt(p, size))
	arena.Bootstrap.Release(p)
	return np
}
