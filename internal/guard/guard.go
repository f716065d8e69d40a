// Package guard tracks per-goroutine hook state: the reentry flags that keep
// observation logic from recursing into itself, the per-operation expectation
// counters, and the set of goroutines whose state has been materialized.
//
// A goroutine's record is written only by that goroutine once created, so no
// lock is taken on the steady-state path. The only lock in the package is a
// test-and-set spin lock held for O(1) bookkeeping while a goroutine's record
// is being created or discarded; allocation hooks may run where a blocking
// mutex is unsafe.
package guard

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/petermattis/goid"

	"github.com/allocguard/allocguard/internal/concurrency"
)

// Op identifies one of the four intercepted allocator operations.
type Op int

const (
	OpMalloc Op = iota
	OpRealloc
	OpCalloc
	OpFree

	// OpCount is the number of operation kinds; usable as an array length.
	OpCount
)

// String returns the conventional allocator name for the operation.
func (o Op) String() string {
	switch o {
	case OpMalloc:
		return "malloc"
	case OpRealloc:
		return "realloc"
	case OpCalloc:
		return "calloc"
	case OpFree:
		return "free"
	}
	return fmt.Sprintf("Op(%d)", int(o))
}

// State is one goroutine's hook state. Fields are accessed only from the
// owning goroutine after creation.
type State struct {
	id      int64
	index   uint64
	reentry [OpCount]bool
	expect  [OpCount]int
}

var (
	// states maps goroutine id to its *State. Reads are lock-free; the
	// runtime's concurrent map stands in for thread-local storage.
	states sync.Map

	initLock     concurrency.SpinLock
	initializing atomic.Int64 // goroutine id mid-initialization, 0 if none
	nextIndex    uint64       // guarded by initLock
	initialized  = map[uint64]struct{}{}
)

// Current returns the calling goroutine's state record, materializing it on
// first use. ok is false when the record is itself mid-initialization on
// this goroutine; the caller must then take the pass-through path instead of
// re-entering initialization.
func Current() (s *State, ok bool) {
	gid := goid.Get()
	if v, loaded := states.Load(gid); loaded {
		return v.(*State), true
	}
	// First hook on this goroutine. The marker is checked before the lock
	// so a recursive entry short-circuits instead of deadlocking on the
	// spin lock it already holds.
	if initializing.Load() == gid {
		return nil, false
	}
	initLock.Lock()
	initializing.Store(gid)
	s = &State{id: gid, index: nextIndex}
	nextIndex++
	// Touch every reentry flag so the record is fully materialized before
	// any hook consults it.
	for op := Op(0); op < OpCount; op++ {
		s.reentry[op] = false
	}
	states.Store(gid, s)
	initialized[s.index] = struct{}{}
	initializing.Store(0)
	initLock.Unlock()
	return s, true
}

// Forget discards the calling goroutine's record and removes its index from
// the initialized set. Without it the set grows monotonically for the life
// of the process, which is acceptable since membership is keyed by a unique
// small integer; the spawn wrapper installs Forget as an exit hook.
func Forget() {
	gid := goid.Get()
	v, loaded := states.LoadAndDelete(gid)
	if !loaded {
		return
	}
	s := v.(*State)
	initLock.Lock()
	delete(initialized, s.index)
	initLock.Unlock()
}

// InitializedCount returns the number of goroutines currently in the
// initialized set.
func InitializedCount() int {
	initLock.Lock()
	n := len(initialized)
	initLock.Unlock()
	return n
}

// Go runs fn on a new goroutine whose hook state is primed before fn starts,
// so the first allocation fn performs never pays the materialization path.
// The goroutine's assigned index is the value of the counter before it is
// advanced, and the record is discarded when fn returns.
func Go(fn func()) {
	go func() {
		if _, ok := Current(); ok {
			defer Forget()
		}
		fn()
	}()
}

// Index returns the goroutine index assigned when the record was created.
// Indexes increase monotonically across goroutines.
func (s *State) Index() uint64 {
	return s.index
}

// GoroutineID returns the id of the goroutine owning this record.
func (s *State) GoroutineID() int64 {
	return s.id
}

// EnterHook marks op's reentry flag and reports whether the caller holds the
// outermost hook invocation for op on this goroutine. A false return means
// the observation logic is already on the stack and the caller must bypass
// it, calling the original operation directly.
func (s *State) EnterHook(op Op) bool {
	if s.reentry[op] {
		return false
	}
	s.reentry[op] = true
	return true
}

// ExitHook clears op's reentry flag. It must run on every exit path of the
// hook, normal or panicking.
func (s *State) ExitHook(op Op) {
	s.reentry[op] = false
}

// InHook reports whether op's reentry flag is currently set.
func (s *State) InHook(op Op) bool {
	return s.reentry[op]
}

// BeginExpect opens (or nests) an expectation scope for op: while the scope
// is open, events of kind op on this goroutine are unexpected.
func (s *State) BeginExpect(op Op) {
	s.expect[op]++
}

// EndExpect closes one nesting level of op's expectation scope. Closing a
// scope that is not open denotes a test-authoring bug and panics.
func (s *State) EndExpect(op Op) {
	if s.expect[op] == 0 {
		panic(fmt.Sprintf("allocguard: unbalanced end of no-%s expectation", op))
	}
	s.expect[op]--
}

// InExpectation reports whether an expectation scope for op is open on this
// goroutine.
func (s *State) InExpectation(op Op) bool {
	return s.expect[op] > 0
}

// ExpectDepth returns the current nesting depth of op's expectation scope.
func (s *State) ExpectDepth(op Op) int {
	return s.expect[op]
}
