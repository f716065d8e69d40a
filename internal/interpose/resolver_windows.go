//go:build windows

package interpose

// No interception is installed on Windows: the facade stays callable, the
// hooks forward straight to the Go heap, and the monitoring logic is never
// invoked.
const platformSupported = false

func resolvePlatformBackend() (Backend, error) {
	return newHeapBackend().backend(), nil
}
