package interpose

import "unsafe"

// Backend bundles the four unmodified allocator operations the hooks
// forward to. Resolution produces exactly one Backend per process, during
// package load; the table is immutable thereafter and read without
// synchronization.
type Backend struct {
	Name    string
	Malloc  func(size uintptr) unsafe.Pointer
	Realloc func(p unsafe.Pointer, size uintptr) unsafe.Pointer
	Calloc  func(count, size uintptr) unsafe.Pointer
	Free    func(p unsafe.Pointer)
}

// complete reports whether every operation slot is populated.
func (b Backend) complete() bool {
	return b.Malloc != nil && b.Realloc != nil && b.Calloc != nil && b.Free != nil
}
