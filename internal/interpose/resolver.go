package interpose

import (
	"fmt"
	"os"
	"unsafe"

	"github.com/allocguard/allocguard/internal/concurrency"
)

var (
	// initializingOriginalFunctions is set at the start of package init and
	// cleared once the original allocator operations are resolved. Every
	// hook observes it and takes the bootstrap path while it holds.
	initializingOriginalFunctions concurrency.Flag

	// original holds the resolved operations. Written exactly once during
	// package load, read without synchronization thereafter.
	original Backend
)

func init() {
	initializingOriginalFunctions.Set()
	b, err := resolvePlatformBackend()
	if err == nil {
		err = probe(b)
	}
	if err != nil {
		// The hooks cannot raise an error across the allocator boundary,
		// so a resolution failure is fatal.
		fmt.Fprintf(os.Stderr, "allocguard: failed to resolve original allocator functions: %v\n", err)
		os.Exit(1)
	}
	original = b
	initializingOriginalFunctions.Clear()
}

// probe verifies the resolved backend actually serves and releases memory,
// the equivalent of checking that a looked-up symbol came from the expected
// object rather than from this library's own replacements.
func probe(b Backend) error {
	if !b.complete() {
		return fmt.Errorf("backend %q is missing operations", b.Name)
	}
	p := b.Malloc(32)
	if p == nil {
		return fmt.Errorf("backend %q failed the allocation probe", b.Name)
	}
	for i := uintptr(0); i < 32; i++ {
		*(*byte)(unsafe.Add(p, i)) = byte(i)
	}
	p = b.Realloc(p, 64)
	if p == nil {
		return fmt.Errorf("backend %q failed the reallocation probe", b.Name)
	}
	for i := uintptr(0); i < 32; i++ {
		if *(*byte)(unsafe.Add(p, i)) != byte(i) {
			return fmt.Errorf("backend %q lost data across reallocation", b.Name)
		}
	}
	b.Free(p)
	z := b.Calloc(8, 8)
	if z == nil {
		return fmt.Errorf("backend %q failed the zero-allocation probe", b.Name)
	}
	for i := uintptr(0); i < 64; i++ {
		if *(*byte)(unsafe.Add(z, i)) != 0 {
			return fmt.Errorf("backend %q returned non-zeroed memory", b.Name)
		}
	}
	b.Free(z)
	return nil
}

// Supported reports whether allocation interception is installed on this
// platform. When false the facade stays callable but forwards directly to
// the backend and the monitoring logic never runs.
func Supported() bool {
	return platformSupported
}

// BackendName returns the name of the resolved backend.
func BackendName() string {
	return original.Name
}
