// Package monitor holds the process-wide monitoring state and the event
// dispatcher that turns raw allocator events into expected or unexpected
// ones, invoking user callbacks accordingly.
package monitor

import (
	"io"
	"os"
	"sync/atomic"

	"github.com/allocguard/allocguard/internal/concurrency"
	"github.com/allocguard/allocguard/internal/guard"
	"github.com/allocguard/allocguard/internal/stacktrace"
)

// Callback observes one unexpected operation. It receives the event's
// Service value and may mutate it to suppress the report or request a
// backtrace for this event only.
type Callback func(*Service)

var (
	// enabled is the master switch. Relaxed: a store on one goroutine is
	// eventually visible to others.
	enabled concurrency.Flag

	// callbacks holds one optional user callback per operation kind.
	// Replacing a callback while another goroutine is dispatching it is a
	// data race the test author must avoid; callbacks belong in test
	// setup, not the test body.
	callbacks [guard.OpCount]atomic.Pointer[Callback]

	// reportWriter receives report lines and backtraces. Overridable so
	// dispatch output is observable in tests.
	reportWriter atomic.Pointer[io.Writer]
)

// Enable turns the master monitoring switch on.
func Enable() {
	enabled.Set()
}

// Disable turns the master monitoring switch off. Expectation scopes keep
// nesting while disabled but raise no callbacks until re-enabled.
func Disable() {
	enabled.Clear()
}

// Enabled reports the last visible value of the master switch.
func Enabled() bool {
	return enabled.IsSet()
}

// SetCallback replaces the callback for op. A nil callback clears it.
func SetCallback(op guard.Op, cb Callback) {
	if cb == nil {
		callbacks[op].Store(nil)
		return
	}
	callbacks[op].Store(&cb)
}

// ClearCallbacks removes every registered callback.
func ClearCallbacks() {
	for op := guard.Op(0); op < guard.OpCount; op++ {
		callbacks[op].Store(nil)
	}
}

// SetReportWriter redirects report output. A nil writer restores stderr.
func SetReportWriter(w io.Writer) {
	if w == nil {
		reportWriter.Store(nil)
		return
	}
	reportWriter.Store(&w)
}

func reportOut() io.Writer {
	if w := reportWriter.Load(); w != nil {
		return *w
	}
	return os.Stderr
}

// Observe runs the monitoring sequence for one intercepted event of kind op
// on the goroutine owning st. It must be called immediately before the
// event is forwarded to the original operation, on the same goroutine, so a
// callback observes the allocator call that is about to happen.
//
// The sequence is strictly ordered: construct a fresh Service from the
// verbosity, invoke the callback when the operation is unexpected and a
// callback is registered, then emit the report and backtrace the final
// Service state asks for. The backtrace is emitted regardless of the
// ignored flag; an ignored event without a requested backtrace writes no
// report.
func Observe(st *guard.State, op guard.Op) {
	if !Enabled() {
		return
	}
	svc := NewService(Level())
	// An absent callback leaves the event silent; the callback is the
	// reporting mechanism.
	invoked := false
	if st.InExpectation(op) {
		if p := callbacks[op].Load(); p != nil {
			(*p)(&svc)
			invoked = true
		}
	}
	if invoked && !svc.ShouldIgnore() {
		// Built without the formatting machinery: this path runs inside
		// an allocator hook.
		out := reportOut()
		io.WriteString(out, "allocguard: unexpected ")
		io.WriteString(out, op.String())
		io.WriteString(out, "\n")
	}
	if svc.ShouldPrintBacktrace() {
		// Skip Observe and the hook entry point above it.
		stacktrace.Print(reportOut(), stacktrace.Capture(2))
	}
}
