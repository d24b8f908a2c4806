// Package state keeps the history of process runs:
// when each run started, how it ended, and a tail of its output.
package state

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pexec/pexec/pkg/errdefs"
)

var ErrNotFound = fmt.Errorf("%w: run not found", errdefs.ErrNotFound)

// Interface records runs and reads them back.
type Interface interface {
	// RecordStart records a run that is about to start.
	RecordStart(ctx context.Context, id string, commandLine string, startedAt time.Time) error
	// RecordOutcome records how a started run ended.
	// Returns ErrNotFound if RecordStart was never called for the id.
	RecordOutcome(ctx context.Context, id string, outcome Outcome) error
	// Get returns the run with the id, or ErrNotFound.
	Get(ctx context.Context, id string) (*Row, error)
	// LatestByCommand returns the most recently started run of the command line,
	// or ErrNotFound.
	LatestByCommand(ctx context.Context, commandLine string) (*Row, error)
	// List returns up to limit runs, most recent first.
	// A non-positive limit returns every run.
	List(ctx context.Context, limit int) ([]Row, error)
	// Purge deletes the runs that started before the time
	// and returns how many were deleted.
	Purge(ctx context.Context, before time.Time) (int, error)
}

// Outcome is how a run ended.
type Outcome struct {
	// StartedAt overrides the start time recorded by RecordStart, if not zero.
	StartedAt time.Time
	PID       int
	ExitCode  int
	Signal    string
	TimedOut  bool
	Canceled  bool
	Duration  time.Duration

	StdoutBytes int
	StderrBytes int
	// Output is the tail of the output kept for inspection.
	Output string

	// Error is set if the run failed to start.
	Error string
}

// Row is a recorded run.
type Row struct {
	ID          string
	CommandLine string
	StartedAt   time.Time

	// Finished is false until the outcome was recorded.
	Finished bool
	Outcome  Outcome
}

// Status renders the row's outcome in a word.
func (r Row) Status() string {
	switch {
	case !r.Finished:
		return "running"
	case r.Outcome.Error != "":
		return "start-failed"
	case r.Outcome.TimedOut:
		return "timed-out"
	case r.Outcome.Canceled:
		return "canceled"
	case r.Outcome.Signal != "" && r.Outcome.ExitCode < 0:
		return "signaled"
	case r.Outcome.ExitCode == 0:
		return "succeeded"
	default:
		return "failed"
	}
}

// IsNotFound returns true if the error is ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
