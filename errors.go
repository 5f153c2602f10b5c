// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fiber

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/muesli/termenv"
)

// FiberError is a fault raised by user code or by the runtime on its
// behalf. User indicates a program-level error (userError, stack
// overflow) as opposed to a runtime defect. ExceptionStack is filled at
// the loop boundary when the fault is surfaced to the host.
type FiberError struct {
	Message        string
	User           bool
	ExceptionStack string
}

func (e *FiberError) Error() string {
	return e.Message
}

// UserError raises a program-level fault. It propagates by panic and is
// recovered only at the interpreter loop boundary.
func UserError(msg string) {
	panic(&FiberError{Message: msg, User: true})
}

// oops reports runtime protocol misuse (programming error, not a
// program fault).
func oops(msg string) {
	panic("fiber: " + msg)
}

// assert guards runtime invariants. A failure is a defect in the runtime
// or in generated code, never a recoverable program condition.
func assert(cond bool, msg string) {
	if !cond {
		oops("assertion failed: " + msg)
	}
}

// SetupLogging configures the package-level default logger shared by
// runtimes that were not given one explicitly. debug enables lifecycle
// diagnostics; noColor forces a plain profile.
func SetupLogging(debug, noColor bool) {
	log.SetDefault(newLogger(os.Stderr))
	if debug {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.WarnLevel)
	}
	log.SetColorProfile(termenv.ANSI256)
	if noColor {
		log.SetColorProfile(termenv.Ascii)
	}
}

// newLogger builds the runtime diagnostic logger. Timestamps are off:
// the host frames every message with its own clock.
func newLogger(w io.Writer) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: false,
		Prefix:          "fiber",
	})
}

// throwFiberError normalizes a recovered panic value into a *FiberError.
func throwFiberError(v any) *FiberError {
	switch e := v.(type) {
	case *FiberError:
		return e
	case error:
		return &FiberError{Message: e.Error()}
	default:
		return &FiberError{Message: fmt.Sprint(v)}
	}
}
