package monitor

import (
	"bytes"
	"strings"
	"testing"

	"github.com/allocguard/allocguard/internal/guard"
)

// withQuietDefaults resets the package state around a test.
func withQuietDefaults(t *testing.T) *guard.State {
	t.Helper()
	SetLevel(VerbosityQuiet)
	Disable()
	ClearCallbacks()
	t.Cleanup(func() {
		Disable()
		ClearCallbacks()
		SetReportWriter(nil)
		SetLevel(VerbosityQuiet)
	})
	st, ok := guard.Current()
	if !ok {
		t.Fatal("guard state unavailable")
	}
	return st
}

func TestParseVerbosity(t *testing.T) {
	cases := []struct {
		in      string
		want    Verbosity
		wantErr bool
	}{
		{"", VerbosityQuiet, false},
		{"quiet", VerbosityQuiet, false},
		{"debug", VerbosityDebug, false},
		{"trace", VerbosityTrace, false},
		{"loud", VerbosityQuiet, true},
	}
	for _, tc := range cases {
		got, err := ParseVerbosity(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("ParseVerbosity(%q) error = %v", tc.in, err)
		}
		if got != tc.want {
			t.Errorf("ParseVerbosity(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestServiceDefaultsFollowVerbosity(t *testing.T) {
	cases := []struct {
		v              Verbosity
		ignored        bool
		printBacktrace bool
	}{
		{VerbosityQuiet, true, false},
		{VerbosityDebug, false, false},
		{VerbosityTrace, false, true},
	}
	for _, tc := range cases {
		svc := NewService(tc.v)
		if svc.ignored != tc.ignored || svc.printBacktrace != tc.printBacktrace {
			t.Errorf("NewService(%v) = {ignored:%v backtrace:%v}, want {%v %v}",
				tc.v, svc.ignored, svc.printBacktrace, tc.ignored, tc.printBacktrace)
		}
	}
}

func TestServiceMutation(t *testing.T) {
	svc := NewService(VerbosityQuiet)
	if !svc.ShouldIgnore() {
		t.Error("quiet service not ignored by default")
	}
	svc.Unignore()
	if svc.ShouldIgnore() {
		t.Error("still ignored after Unignore")
	}
	svc.Ignore()
	if !svc.ShouldIgnore() {
		t.Error("not ignored after Ignore")
	}
	// A requested backtrace carries the report with it.
	svc.PrintBacktrace()
	if svc.ShouldIgnore() {
		t.Error("ignored even though a backtrace was requested")
	}
	if !svc.ShouldPrintBacktrace() {
		t.Error("backtrace not requested after PrintBacktrace")
	}
}

func TestObserveDisabledIsSilent(t *testing.T) {
	st := withQuietDefaults(t)

	calls := 0
	SetCallback(guard.OpMalloc, func(*Service) { calls++ })

	st.BeginExpect(guard.OpMalloc)
	defer st.EndExpect(guard.OpMalloc)

	Observe(st, guard.OpMalloc)
	if calls != 0 {
		t.Errorf("callback invoked %d times while monitoring disabled", calls)
	}
}

func TestObservePermittedIsSilent(t *testing.T) {
	st := withQuietDefaults(t)
	Enable()

	calls := 0
	SetCallback(guard.OpMalloc, func(*Service) { calls++ })

	Observe(st, guard.OpMalloc)
	if calls != 0 {
		t.Errorf("callback invoked %d times without an open scope", calls)
	}
}

func TestObserveForbiddenInvokesCallback(t *testing.T) {
	st := withQuietDefaults(t)
	Enable()

	calls := 0
	SetCallback(guard.OpRealloc, func(*Service) { calls++ })

	st.BeginExpect(guard.OpRealloc)
	Observe(st, guard.OpRealloc)
	Observe(st, guard.OpRealloc)
	st.EndExpect(guard.OpRealloc)

	if calls != 2 {
		t.Errorf("callback invoked %d times for two events, want 2", calls)
	}

	// Closed scope: silent again.
	Observe(st, guard.OpRealloc)
	if calls != 2 {
		t.Error("callback invoked after the scope closed")
	}
}

func TestObservePerKindIsolation(t *testing.T) {
	st := withQuietDefaults(t)
	Enable()

	counts := map[guard.Op]int{}
	for op := guard.Op(0); op < guard.OpCount; op++ {
		op := op
		SetCallback(op, func(*Service) { counts[op]++ })
	}

	st.BeginExpect(guard.OpMalloc)
	for op := guard.Op(0); op < guard.OpCount; op++ {
		Observe(st, op)
	}
	st.EndExpect(guard.OpMalloc)

	if counts[guard.OpMalloc] != 1 {
		t.Errorf("malloc callback count = %d, want 1", counts[guard.OpMalloc])
	}
	for _, op := range []guard.Op{guard.OpRealloc, guard.OpCalloc, guard.OpFree} {
		if counts[op] != 0 {
			t.Errorf("%s callback count = %d, want 0", op, counts[op])
		}
	}
}

func TestObserveReportWriting(t *testing.T) {
	st := withQuietDefaults(t)
	Enable()
	SetLevel(VerbosityDebug)

	var buf bytes.Buffer
	SetReportWriter(&buf)

	// Without a registered callback the event stays silent even at debug
	// verbosity.
	st.BeginExpect(guard.OpMalloc)
	Observe(st, guard.OpMalloc)
	st.EndExpect(guard.OpMalloc)
	if buf.Len() != 0 {
		t.Errorf("callback-less event wrote %q", buf.String())
	}

	// With a callback registered, debug verbosity reports the event.
	SetCallback(guard.OpMalloc, func(*Service) {})
	st.BeginExpect(guard.OpMalloc)
	Observe(st, guard.OpMalloc)
	st.EndExpect(guard.OpMalloc)
	if !strings.Contains(buf.String(), "unexpected malloc") {
		t.Errorf("debug verbosity wrote %q, want a report line", buf.String())
	}

	// The callback can suppress the report for one event.
	buf.Reset()
	SetCallback(guard.OpMalloc, func(s *Service) { s.Ignore() })
	st.BeginExpect(guard.OpMalloc)
	Observe(st, guard.OpMalloc)
	st.EndExpect(guard.OpMalloc)
	if buf.Len() != 0 {
		t.Errorf("ignored event still wrote %q", buf.String())
	}
}

func TestObserveQuietWritesNothing(t *testing.T) {
	st := withQuietDefaults(t)
	Enable()

	var buf bytes.Buffer
	SetReportWriter(&buf)

	// Quiet events start ignored: the callback fires but nothing is
	// written.
	calls := 0
	SetCallback(guard.OpFree, func(*Service) { calls++ })
	st.BeginExpect(guard.OpFree)
	Observe(st, guard.OpFree)
	st.EndExpect(guard.OpFree)

	if calls != 1 {
		t.Errorf("callback invoked %d times, want 1", calls)
	}
	if buf.Len() != 0 {
		t.Errorf("quiet verbosity wrote %q", buf.String())
	}
}

func TestObserveBacktraceOnRequest(t *testing.T) {
	st := withQuietDefaults(t)
	Enable()

	var buf bytes.Buffer
	SetReportWriter(&buf)

	// Ignored report plus an explicit backtrace request: the trace is
	// emitted anyway.
	SetCallback(guard.OpCalloc, func(s *Service) {
		s.Ignore()
		s.PrintBacktrace()
	})
	st.BeginExpect(guard.OpCalloc)
	Observe(st, guard.OpCalloc)
	st.EndExpect(guard.OpCalloc)

	if !strings.Contains(buf.String(), "stack trace") {
		t.Errorf("requested backtrace missing from %q", buf.String())
	}
}

func TestObserveTraceVerbosityCoversEveryEvent(t *testing.T) {
	st := withQuietDefaults(t)
	Enable()
	SetLevel(VerbosityTrace)

	var buf bytes.Buffer
	SetReportWriter(&buf)

	// No scope open: the event is expected, but trace verbosity still
	// requests a backtrace for it.
	Observe(st, guard.OpMalloc)
	if !strings.Contains(buf.String(), "stack trace") {
		t.Errorf("trace verbosity did not emit a backtrace: %q", buf.String())
	}
	if strings.Contains(buf.String(), "unexpected malloc") {
		t.Error("expected event produced an unexpected-operation report")
	}
}

func TestEnableDisable(t *testing.T) {
	withQuietDefaults(t)
	if Enabled() {
		t.Fatal("monitoring enabled at test start")
	}
	Enable()
	if !Enabled() {
		t.Error("Enable did not take effect")
	}
	Disable()
	if Enabled() {
		t.Error("Disable did not take effect")
	}
}

func TestClearCallbacks(t *testing.T) {
	st := withQuietDefaults(t)
	Enable()

	calls := 0
	SetCallback(guard.OpMalloc, func(*Service) { calls++ })
	ClearCallbacks()

	st.BeginExpect(guard.OpMalloc)
	Observe(st, guard.OpMalloc)
	st.EndExpect(guard.OpMalloc)
	if calls != 0 {
		t.Error("cleared callback still invoked")
	}

	// Setting nil clears as well.
	SetCallback(guard.OpMalloc, func(*Service) { calls++ })
	SetCallback(guard.OpMalloc, nil)
	st.BeginExpect(guard.OpMalloc)
	Observe(st, guard.OpMalloc)
	st.EndExpect(guard.OpMalloc)
	if calls != 0 {
		t.Error("nil-cleared callback still invoked")
	}
}
