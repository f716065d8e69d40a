package interpose

import (
	"sync"
	"unsafe"
)

// heapBackend serves allocations from the Go heap. Each allocation's
// backing slice is retained in a registry keyed by its address so the
// pointer stays live until released and so reallocation knows the old size.
type heapBackend struct {
	mu     sync.RWMutex
	slices map[uintptr][]byte
}

func newHeapBackend() *heapBackend {
	return &heapBackend{slices: make(map[uintptr][]byte)}
}

func (h *heapBackend) malloc(size uintptr) unsafe.Pointer {
	if size == 0 {
		return nil
	}
	b := make([]byte, size)
	p := unsafe.Pointer(&b[0])
	h.mu.Lock()
	h.slices[uintptr(p)] = b
	h.mu.Unlock()
	return p
}

func (h *heapBackend) free(p unsafe.Pointer) {
	if p == nil {
		return
	}
	h.mu.Lock()
	delete(h.slices, uintptr(p))
	h.mu.Unlock()
}

func (h *heapBackend) realloc(p unsafe.Pointer, size uintptr) unsafe.Pointer {
	if p == nil {
		return h.malloc(size)
	}
	if size == 0 {
		h.free(p)
		return nil
	}
	h.mu.RLock()
	old, ok := h.slices[uintptr(p)]
	h.mu.RUnlock()
	np := h.malloc(size)
	if np == nil {
		return nil
	}
	if ok {
		n := uintptr(len(old))
		if size < n {
			n = size
		}
		copy(unsafe.Slice((*byte)(np), n), old[:n])
	}
	h.free(p)
	return np
}

func (h *heapBackend) calloc(count, size uintptr) unsafe.Pointer {
	total, ok := checkedMul(count, size)
	if !ok {
		return nil
	}
	// A fresh Go slice is already zeroed.
	return h.malloc(total)
}

// owns reports whether p is a live allocation of this backend.
func (h *heapBackend) owns(p unsafe.Pointer) bool {
	h.mu.RLock()
	_, ok := h.slices[uintptr(p)]
	h.mu.RUnlock()
	return ok
}

func (h *heapBackend) backend() Backend {
	return Backend{
		Name:    "go-heap",
		Malloc:  h.malloc,
		Realloc: h.realloc,
		Calloc:  h.calloc,
		Free:    h.free,
	}
}

// checkedMul multiplies count and size, reporting overflow.
func checkedMul(count, size uintptr) (uintptr, bool) {
	if count == 0 || size == 0 {
		return 0, false
	}
	total := count * size
	if total/count != size {
		return 0, false
	}
	return total, true
}
