package common

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/pexec/pexec/pkg/process"
)

const (
	// ExitCodeTimedOut is the exit code for a child that hit its timeout,
	// the same as timeout(1) uses.
	ExitCodeTimedOut = 124
	// ExitCodeCanceled is the exit code for a run interrupted by SIGINT or SIGTERM.
	ExitCodeCanceled = 130
)

// ExitError makes the binary exit with the code.
// An empty message prints nothing.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Message
}

// AsExitError returns the exit error in the chain, if any.
func AsExitError(err error) (*ExitError, bool) {
	var eerr *ExitError
	if !errors.As(err, &eerr) {
		return nil, false
	}
	return eerr, true
}

// ExitCode maps the result of a child to the exit code of pexec.
// A child killed by a signal maps to 128 plus the signal number, as in a shell.
func ExitCode(res *process.Result) int {
	switch {
	case res == nil:
		return 1
	case res.TimedOut:
		return ExitCodeTimedOut
	case res.Canceled:
		return ExitCodeCanceled
	case res.ExitCode >= 0:
		return res.ExitCode
	}
	if sig := unix.SignalNum(res.Signal); sig != 0 {
		return 128 + int(sig)
	}
	return 1
}
