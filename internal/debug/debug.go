// Package debug provides env-gated diagnostic logging.
//
// Output goes to stderr and is off unless TRIAGE_DEBUG is set or verbose
// mode was enabled by a flag.
package debug

import (
	"fmt"
	"os"
	"sync"
)

var (
	mu          sync.Mutex
	enabled     = os.Getenv("TRIAGE_DEBUG") != ""
	verboseMode = false
	quietMode   = false
)

// Enabled reports whether debug output is active.
func Enabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return enabled || verboseMode
}

// SetVerbose enables verbose/debug output (the --verbose flag).
func SetVerbose(verbose bool) {
	mu.Lock()
	verboseMode = verbose
	mu.Unlock()
}

// SetQuiet suppresses non-essential output (the --quiet flag).
func SetQuiet(quiet bool) {
	mu.Lock()
	quietMode = quiet
	mu.Unlock()
}

// IsQuiet reports whether quiet mode is enabled.
func IsQuiet() bool {
	mu.Lock()
	defer mu.Unlock()
	return quietMode
}

// Logf writes a debug line to stderr when enabled.
func Logf(format string, args ...interface{}) {
	if Enabled() {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}
}

// PrintNormal prints informational output unless quiet mode is on.
func PrintNormal(format string, args ...interface{}) {
	if !IsQuiet() {
		fmt.Printf(format, args...)
	}
}
