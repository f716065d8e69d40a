// Package stacktrace captures and renders call stacks as immutable value
// objects. The dispatcher uses it when an event requests a backtrace; the
// capture itself allocates only on the Go heap, never through the allocator
// facade, so it is safe to run from inside a hook.
package stacktrace

import (
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/petermattis/goid"
)

// initialDepth is the program-counter storage allocated up front; it doubles
// until the whole stack fits.
const initialDepth = 64

// SourceLocation is one resolved source position. Column is always zero:
// the runtime resolves positions to line granularity.
type SourceLocation struct {
	Function string
	Filename string
	Line     int
	Column   int
}

// Frame is a single resolved stack frame. The primary location is the
// outermost (physical) function at the frame's address; any functions the
// compiler inlined into it appear in InlinedLocations, innermost first.
type Frame struct {
	Address          uintptr
	IndexInStack     int
	ObjectFilename   string
	ObjectFunction   string
	Location         SourceLocation
	InlinedLocations []SourceLocation
}

// Stack is an immutable snapshot of one goroutine's call stack.
type Stack struct {
	threadID int64
	frames   []Frame
}

// Capture takes a snapshot of the calling goroutine's stack. skip is the
// number of callers to exclude beyond Capture itself: skip 0 starts the
// snapshot at Capture's caller.
func Capture(skip int) *Stack {
	pcs := make([]uintptr, initialDepth)
	// +2 excludes runtime.Callers and Capture.
	n := runtime.Callers(skip+2, pcs)
	for n == len(pcs) {
		pcs = make([]uintptr, len(pcs)*2)
		n = runtime.Callers(skip+2, pcs)
	}
	pcs = pcs[:n]

	frames := make([]Frame, 0, n)
	for i, pc := range pcs {
		frames = append(frames, resolveFrame(pc, i))
	}
	return &Stack{threadID: goid.Get(), frames: frames}
}

// resolveFrame expands one program counter into its logical frames. The
// runtime yields them innermost first, so the last is the physical function
// and everything before it was inlined into it.
func resolveFrame(pc uintptr, index int) Frame {
	iter := runtime.CallersFrames([]uintptr{pc})
	var locs []SourceLocation
	for {
		f, more := iter.Next()
		locs = append(locs, SourceLocation{
			Function: f.Function,
			Filename: f.File,
			Line:     f.Line,
		})
		if !more {
			break
		}
	}
	primary := locs[len(locs)-1]
	return Frame{
		Address:          pc,
		IndexInStack:     index,
		ObjectFilename:   primary.Filename,
		ObjectFunction:   primary.Function,
		Location:         primary,
		InlinedLocations: locs[:len(locs)-1],
	}
}

// ThreadID returns the id of the goroutine the stack was captured on.
func (s *Stack) ThreadID() int64 {
	return s.threadID
}

// Frames returns the resolved frames, outermost call last. The returned
// slice must not be mutated.
func (s *Stack) Frames() []Frame {
	return s.frames
}

// FramesFromFunction returns the subsequence of frames starting at the first
// frame whose function name begins with prefix. It is used to trim the
// instrumentation library's own frames from a reported trace.
func (s *Stack) FramesFromFunction(prefix string) []Frame {
	for i, f := range s.frames {
		if strings.HasPrefix(f.ObjectFunction, prefix) {
			return s.frames[i:]
		}
	}
	return nil
}

// Print writes a human-readable rendering of the stack to w.
func Print(w io.Writer, s *Stack) {
	fmt.Fprintf(w, "stack trace (goroutine %d):\n", s.threadID)
	if len(s.frames) == 0 {
		fmt.Fprintln(w, "  <empty, possibly corrupt>")
		return
	}
	for _, f := range s.frames {
		for _, in := range f.InlinedLocations {
			fmt.Fprintf(w, "  %#x : %s (inlined) at %s:%d\n", f.Address, in.Function, in.Filename, in.Line)
		}
		fmt.Fprintf(w, "  %#x : %s at %s:%d\n", f.Address, f.ObjectFunction, f.Location.Filename, f.Location.Line)
	}
}
