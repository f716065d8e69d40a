//go:build darwin

package interpose

import "unsafe"

const platformSupported = true

// The darwin layout is table-based: a static list of (replacement, original)
// operation pairs assembled at load time. The original entries are taken
// straight from the table; no runtime lookup is performed.

var darwinSystem = newMmapBackend()

type interposeEntry struct {
	replacement any
	original    any
}

var interposeTable = []interposeEntry{
	{replacement: Malloc, original: darwinSystem.malloc},
	{replacement: Realloc, original: darwinSystem.realloc},
	{replacement: Calloc, original: darwinSystem.calloc},
	{replacement: Free, original: darwinSystem.free},
}

func resolvePlatformBackend() (Backend, error) {
	return Backend{
		Name:    "darwin-interpose",
		Malloc:  interposeTable[0].original.(func(uintptr) unsafe.Pointer),
		Realloc: interposeTable[1].original.(func(unsafe.Pointer, uintptr) unsafe.Pointer),
		Calloc:  interposeTable[2].original.(func(uintptr, uintptr) unsafe.Pointer),
		Free:    interposeTable[3].original.(func(unsafe.Pointer)),
	}, nil
}
