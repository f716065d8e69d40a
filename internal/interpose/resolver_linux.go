//go:build linux

package interpose

import "errors"

const platformSupported = true

// resolvePlatformBackend locates the original allocator by walking the
// candidate backends in search order and taking the next one that can serve
// memory: the mmap-backed system backend first, the Go heap as fallback.
func resolvePlatformBackend() (Backend, error) {
	for _, b := range []Backend{
		newMmapBackend().backend(),
		newHeapBackend().backend(),
	} {
		if probe(b) == nil {
			return b, nil
		}
	}
	return Backend{}, errors.New("no allocator backend satisfied the resolution probe")
}
