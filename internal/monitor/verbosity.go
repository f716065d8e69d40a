package monitor

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
)

// EnvVerbosity is the environment variable consulted, once, at first use.
const EnvVerbosity = "MEMORY_TOOLS_VERBOSITY"

// Verbosity controls the initial state of Service values handed to
// unexpected-operation callbacks.
type Verbosity int32

const (
	// VerbosityQuiet suppresses reports unless a callback asks otherwise.
	VerbosityQuiet Verbosity = iota
	// VerbosityDebug reports each unexpected operation that invokes a
	// registered callback.
	VerbosityDebug
	// VerbosityTrace reports like debug and also prints a backtrace for each
	// observed event, expected or not.
	VerbosityTrace
)

// String returns the environment-variable spelling of v.
func (v Verbosity) String() string {
	switch v {
	case VerbosityQuiet:
		return "quiet"
	case VerbosityDebug:
		return "debug"
	case VerbosityTrace:
		return "trace"
	}
	return fmt.Sprintf("Verbosity(%d)", int32(v))
}

// ParseVerbosity converts an environment-variable value to a Verbosity.
// The empty string selects the quiet default.
func ParseVerbosity(s string) (Verbosity, error) {
	switch s {
	case "", "quiet":
		return VerbosityQuiet, nil
	case "debug":
		return VerbosityDebug, nil
	case "trace":
		return VerbosityTrace, nil
	}
	return VerbosityQuiet, fmt.Errorf("unknown verbosity %q (expected quiet, debug, or trace)", s)
}

var (
	verbosityOnce sync.Once
	verbosity     atomic.Int32
)

// Level returns the active verbosity, reading EnvVerbosity the first time it
// is consulted. An unrecognized value falls back to quiet with a diagnostic.
func Level() Verbosity {
	verbosityOnce.Do(func() {
		v, err := ParseVerbosity(os.Getenv(EnvVerbosity))
		if err != nil {
			fmt.Fprintf(os.Stderr, "allocguard: %s: %v\n", EnvVerbosity, err)
		}
		verbosity.Store(int32(v))
	})
	return Verbosity(verbosity.Load())
}

// SetLevel overrides the active verbosity, bypassing the environment.
func SetLevel(v Verbosity) {
	verbosityOnce.Do(func() {})
	verbosity.Store(int32(v))
}
