package monitor

// Service describes how one observed event should be reported. A fresh value
// is constructed for every event from the active verbosity, handed to the
// user callback by reference, and dropped when dispatch completes, so a
// callback's mutations never persist across events.
type Service struct {
	ignored        bool
	printBacktrace bool
}

// NewService builds a Service from the verbosity table: quiet events start
// ignored, debug events start reported, trace events start reported with a
// backtrace.
func NewService(v Verbosity) Service {
	switch v {
	case VerbosityQuiet:
		return Service{ignored: true, printBacktrace: false}
	case VerbosityDebug:
		return Service{ignored: false, printBacktrace: false}
	case VerbosityTrace:
		return Service{ignored: false, printBacktrace: true}
	}
	return Service{ignored: true}
}

// Ignore suppresses the report for this event.
func (s *Service) Ignore() {
	s.ignored = true
}

// Unignore re-enables the report for this event.
func (s *Service) Unignore() {
	s.ignored = false
}

// PrintBacktrace requests a backtrace for this event. The backtrace is
// emitted even after Ignore; the report is then emitted with it, since
// ShouldIgnore is false whenever a backtrace is requested.
func (s *Service) PrintBacktrace() {
	s.printBacktrace = true
}

// ShouldIgnore reports whether the event's report is suppressed. A requested
// backtrace always carries the report with it.
func (s *Service) ShouldIgnore() bool {
	return s.ignored && !s.printBacktrace
}

// ShouldPrintBacktrace reports whether a backtrace was requested, either by
// the verbosity default or by the callback.
func (s *Service) ShouldPrintBacktrace() bool {
	return s.printBacktrace
}
