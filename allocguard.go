// Package allocguard is a test-instrumentation library that intercepts the
// process-wide dynamic allocator facade (allocate, reallocate,
// zero-initialized allocate, release) so tests can assert, over a bounded
// scope, that code under test performs no such operations — or count and
// report them with optional stack traces.
//
// Typical use:
//
//	allocguard.Initialize()
//	defer allocguard.Uninitialize()
//
//	unexpected := 0
//	allocguard.OnUnexpectedMalloc(func(*allocguard.Service) { unexpected++ })
//	allocguard.EnableMonitoring()
//
//	allocguard.ExpectNoMallocBegin()
//	runRealtimePath()
//	allocguard.ExpectNoMallocEnd()
//
// Expectation scopes are per goroutine and nest; monitoring state is
// process-wide. All operations are safe for concurrent use.
package allocguard

import (
	"unsafe"

	"github.com/allocguard/allocguard/internal/guard"
	"github.com/allocguard/allocguard/internal/interpose"
	"github.com/allocguard/allocguard/internal/monitor"
)

// Service describes how one unexpected operation should be reported. A
// callback may call Ignore, Unignore, or PrintBacktrace on it; the mutation
// applies to that event only.
type Service = monitor.Service

// Callback observes one unexpected operation.
type Callback = monitor.Callback

// Verbosity selects the default reporting behavior for observed events. It
// is initialized once from the MEMORY_TOOLS_VERBOSITY environment variable
// (quiet, debug, or trace; default quiet).
type Verbosity = monitor.Verbosity

const (
	VerbosityQuiet = monitor.VerbosityQuiet
	VerbosityDebug = monitor.VerbosityDebug
	VerbosityTrace = monitor.VerbosityTrace
)

// Initialize performs the one-time platform setup and reports whether
// allocation interception is available. It is idempotent; the underlying
// resolution ran at library load. On unsupported platforms it returns false
// and the hooks are never invoked.
func Initialize() bool {
	return interpose.Supported()
}

// Uninitialize disables monitoring and clears every registered callback.
// Idempotent.
func Uninitialize() {
	monitor.Disable()
	monitor.ClearCallbacks()
}

// EnableMonitoring turns the master monitoring switch on.
func EnableMonitoring() {
	monitor.Enable()
}

// DisableMonitoring turns the master switch off. Expectation scopes keep
// nesting while disabled but raise no callbacks until re-enabled.
func DisableMonitoring() {
	monitor.Disable()
}

// MonitoringEnabled reports the last visible value of the master switch.
func MonitoringEnabled() bool {
	return monitor.Enabled()
}

// SetVerbosity overrides the verbosity, bypassing the environment.
func SetVerbosity(v Verbosity) {
	monitor.SetLevel(v)
}

// OnUnexpectedMalloc replaces the callback invoked for each unexpected
// allocate. A nil callback clears it.
func OnUnexpectedMalloc(cb Callback) {
	monitor.SetCallback(guard.OpMalloc, cb)
}

// OnUnexpectedRealloc replaces the callback invoked for each unexpected
// reallocate. A nil callback clears it.
func OnUnexpectedRealloc(cb Callback) {
	monitor.SetCallback(guard.OpRealloc, cb)
}

// OnUnexpectedCalloc replaces the callback invoked for each unexpected
// zero-initialized allocate. A nil callback clears it.
func OnUnexpectedCalloc(cb Callback) {
	monitor.SetCallback(guard.OpCalloc, cb)
}

// OnUnexpectedFree replaces the callback invoked for each unexpected
// release. A nil callback clears it.
func OnUnexpectedFree(cb Callback) {
	monitor.SetCallback(guard.OpFree, cb)
}

// ExpectNoMallocBegin opens a scope on the calling goroutine during which
// any allocate is unexpected. Scopes nest.
func ExpectNoMallocBegin() { beginExpect(guard.OpMalloc) }

// ExpectNoMallocEnd closes one nesting level opened by ExpectNoMallocBegin.
// Closing a scope that is not open panics: it denotes a test-authoring bug.
func ExpectNoMallocEnd() { endExpect(guard.OpMalloc) }

// ExpectNoReallocBegin opens a scope during which any reallocate is
// unexpected.
func ExpectNoReallocBegin() { beginExpect(guard.OpRealloc) }

// ExpectNoReallocEnd closes one nesting level opened by
// ExpectNoReallocBegin.
func ExpectNoReallocEnd() { endExpect(guard.OpRealloc) }

// ExpectNoCallocBegin opens a scope during which any zero-initialized
// allocate is unexpected.
func ExpectNoCallocBegin() { beginExpect(guard.OpCalloc) }

// ExpectNoCallocEnd closes one nesting level opened by ExpectNoCallocBegin.
func ExpectNoCallocEnd() { endExpect(guard.OpCalloc) }

// ExpectNoFreeBegin opens a scope during which any release is unexpected.
func ExpectNoFreeBegin() { beginExpect(guard.OpFree) }

// ExpectNoFreeEnd closes one nesting level opened by ExpectNoFreeBegin.
func ExpectNoFreeEnd() { endExpect(guard.OpFree) }

func beginExpect(op guard.Op) {
	if st, ok := guard.Current(); ok {
		st.BeginExpect(op)
	}
}

func endExpect(op guard.Op) {
	if st, ok := guard.Current(); ok {
		st.EndExpect(op)
	}
}

// Malloc allocates size bytes through the intercepted facade.
func Malloc(size uintptr) unsafe.Pointer {
	return interpose.Malloc(size)
}

// Realloc reallocates p to size bytes through the intercepted facade.
func Realloc(p unsafe.Pointer, size uintptr) unsafe.Pointer {
	return interpose.Realloc(p, size)
}

// Calloc allocates count*size zeroed bytes through the intercepted facade.
func Calloc(count, size uintptr) unsafe.Pointer {
	return interpose.Calloc(count, size)
}

// Free releases p through the intercepted facade.
func Free(p unsafe.Pointer) {
	interpose.Free(p)
}

// Go runs fn on a new goroutine whose hook state is primed before fn
// starts, so the first allocation on the goroutine never pays the
// state-materialization path. The state is discarded when fn returns.
func Go(fn func()) {
	guard.Go(fn)
}
