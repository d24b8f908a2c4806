package process

import "time"

// ExitCodeUnknown is the exit code of a process that did not exit on its own,
// e.g., killed after its timeout or terminated by a signal.
const ExitCodeUnknown = -1

// Result is the outcome of a process run.
// It is only mutated by the run loop and is final once returned.
type Result struct {
	// PID of the spawned process.
	PID int
	// ExitCode is the status the process exited with,
	// or ExitCodeUnknown if it was terminated by a signal.
	ExitCode int
	// Signal is the name of the signal that terminated the process, if any.
	Signal string

	Stdout []byte
	Stderr []byte
	// Set when WithMaxOutputBytes discarded part of the stream.
	StdoutTruncated bool
	StderrTruncated bool

	// TimedOut is true if the timeout elapsed before the process exited.
	TimedOut bool
	// Canceled is true if the caller's context was done before the process exited.
	Canceled bool

	// ReadError is set if the final drain of stdout/stderr failed.
	// The output read before the failure is kept.
	ReadError error
	// InputError is set if the input reader failed; stdin was closed early.
	InputError error

	StartedAt time.Time
	Duration  time.Duration
}

func newResult(pid int, startedAt time.Time) *Result {
	return &Result{
		PID:       pid,
		ExitCode:  ExitCodeUnknown,
		StartedAt: startedAt,
	}
}

// Exited returns true if the process exited on its own with a status.
func (r *Result) Exited() bool {
	return r.ExitCode != ExitCodeUnknown
}

// Succeeded returns true if the process exited with zero status
// without timing out or being canceled.
func (r *Result) Succeeded() bool {
	return r.ExitCode == 0 && !r.TimedOut && !r.Canceled
}
