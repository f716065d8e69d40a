//go:build linux || darwin

package interpose

import (
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// mmapBackend serves each allocation from its own anonymous private
// mapping. The mapping's slice is retained so release can unmap it and so
// reallocation knows the old length.
type mmapBackend struct {
	mu      sync.Mutex
	regions map[uintptr][]byte
}

func newMmapBackend() *mmapBackend {
	return &mmapBackend{regions: make(map[uintptr][]byte)}
}

func (m *mmapBackend) malloc(size uintptr) unsafe.Pointer {
	if size == 0 {
		return nil
	}
	b, err := unix.Mmap(-1, 0, int(size),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil
	}
	p := unsafe.Pointer(&b[0])
	m.mu.Lock()
	m.regions[uintptr(p)] = b
	m.mu.Unlock()
	return p
}

func (m *mmapBackend) free(p unsafe.Pointer) {
	if p == nil {
		return
	}
	m.mu.Lock()
	b, ok := m.regions[uintptr(p)]
	if ok {
		delete(m.regions, uintptr(p))
	}
	m.mu.Unlock()
	if ok {
		_ = unix.Munmap(b)
	}
}

func (m *mmapBackend) realloc(p unsafe.Pointer, size uintptr) unsafe.Pointer {
	if p == nil {
		return m.malloc(size)
	}
	if size == 0 {
		m.free(p)
		return nil
	}
	m.mu.Lock()
	old, ok := m.regions[uintptr(p)]
	m.mu.Unlock()
	np := m.malloc(size)
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
	m.free(p)
	return np
}

func (m *mmapBackend) calloc(count, size uintptr) unsafe.Pointer {
	total, ok := checkedMul(count, size)
	if !ok {
		return nil
	}
	// Anonymous mappings are zero-filled by the kernel.
	return m.malloc(total)
}

func (m *mmapBackend) backend() Backend {
	return Backend{
		Name:    "mmap",
		Malloc:  m.malloc,
		Realloc: m.realloc,
		Calloc:  m.calloc,
		Free:    m.free,
	}
}
