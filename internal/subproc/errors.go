package subproc

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"
	"syscall"
)

// SpawnError indicates the subprocess could not be started at all.
type SpawnError struct {
	Name string
	Err  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawning %s: %v", e.Name, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// ExitError indicates the subprocess terminated abnormally.
type ExitError struct {
	Name string
	// Code is the exit code; -1 when the process was signaled.
	Code int
	// Signal is the terminating signal name, empty when the process exited.
	Signal string
	// StderrTail holds the most recent diagnostic lines for context.
	StderrTail []string
}

func (e *ExitError) Error() string {
	detail := fmt.Sprintf("exit code %d", e.Code)
	if e.Signal != "" {
		detail = "signal " + e.Signal
	}
	if len(e.StderrTail) > 0 {
		return fmt.Sprintf("%s failed (%s): %s", e.Name, detail, e.StderrTail[len(e.StderrTail)-1])
	}
	return fmt.Sprintf("%s failed (%s)", e.Name, detail)
}

// FatalDiagnosticError indicates a fatal pattern matched on the diagnostic
// stream before the process exited on its own.
type FatalDiagnosticError struct {
	Name    string
	Pattern string
	Line    string
}

func (e *FatalDiagnosticError) Error() string {
	return fmt.Sprintf("%s reported fatal diagnostic %q: %s", e.Name, e.Pattern, e.Line)
}

// IsBenignPipeClosure reports whether err is an early-pipe-closure error:
// the consumer closed its read side before the producer finished writing.
// Such errors are benign only when the logical work already completed;
// callers decide that, this reports the classification only.
func IsBenignPipeClosure(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.EPIPE) || errors.Is(err, fs.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "broken pipe") || strings.Contains(msg, "file already closed")
}
