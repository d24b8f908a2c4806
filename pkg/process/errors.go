package process

import (
	"fmt"
	"strings"
	"time"

	"github.com/pexec/pexec/pkg/errdefs"
)

var (
	ErrAlreadyStarted = fmt.Errorf("%w: process already started", errdefs.ErrFailedPrecondition)
)

// Length of the stdout/stderr excerpts included in error messages.
const errorExcerptBytes = 2048

// StartError is returned when the OS could not spawn the process
// (e.g., missing executable, permission denied, too many open files).
type StartError struct {
	CommandLine string
	Err         error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("failed to start process: %s: %v", e.CommandLine, e.Err)
}

func (e *StartError) Unwrap() error {
	return e.Err
}

// TimeoutError is returned when the process did not exit within its timeout.
// Result holds the output collected before the process was killed.
type TimeoutError struct {
	CommandLine string
	Timeout     time.Duration
	Result      *Result
}

func (e *TimeoutError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "process timed out after %v: %s", e.Timeout, e.CommandLine)
	writeExcerpts(&sb, e.Result)
	return sb.String()
}

// ExitCodeError is returned when the process exited with a non-zero status
// or was terminated by a signal.
type ExitCodeError struct {
	CommandLine string
	Result      *Result
}

func (e *ExitCodeError) Error() string {
	var sb strings.Builder
	if e.Result.Signal != "" && !e.Result.Exited() {
		fmt.Fprintf(&sb, "process terminated by signal %s: %s", e.Result.Signal, e.CommandLine)
	} else {
		fmt.Fprintf(&sb, "process exited with code %d: %s", e.Result.ExitCode, e.CommandLine)
	}
	writeExcerpts(&sb, e.Result)
	return sb.String()
}

// ExitCode returns the exit code of the failed process.
func (e *ExitCodeError) ExitCode() int {
	return e.Result.ExitCode
}

// CanceledError is returned when the caller's context was done before
// the process exited. It unwraps to the context error.
type CanceledError struct {
	CommandLine string
	Result      *Result
	Err         error
}

func (e *CanceledError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "process canceled (%v): %s", e.Err, e.CommandLine)
	writeExcerpts(&sb, e.Result)
	return sb.String()
}

func (e *CanceledError) Unwrap() error {
	return e.Err
}

func writeExcerpts(sb *strings.Builder, r *Result) {
	if r == nil {
		return
	}
	if len(r.Stdout) > 0 {
		fmt.Fprintf(sb, "\nstdout: %s", excerpt(r.Stdout))
	}
	if len(r.Stderr) > 0 {
		fmt.Fprintf(sb, "\nstderr: %s", excerpt(r.Stderr))
	}
}

func excerpt(b []byte) string {
	if len(b) <= errorExcerptBytes {
		return string(b)
	}
	return fmt.Sprintf("%s... (%d more bytes)", b[:errorExcerptBytes], len(b)-errorExcerptBytes)
}
