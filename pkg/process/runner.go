package process

import (
	"context"
	"fmt"

	"github.com/pexec/pexec/pkg/errdefs"
)

var (
	ErrProcessAlreadyRunning = fmt.Errorf("%w: process already running", errdefs.ErrUnavailable)
)

// Runner runs processes to completion on behalf of a caller.
// Whether a runner accepts a process while another one is running
// is up to the implementation.
type Runner interface {
	// RunUntilCompletion runs the process and blocks until it exits
	// or is killed. The error is the one Run returns.
	RunUntilCompletion(ctx context.Context, p *Process) (*Result, error)
}

var _ Runner = runner{}

// NewRunner returns a runner that runs any number of processes concurrently.
func NewRunner() Runner {
	return runner{}
}

type runner struct{}

func (runner) RunUntilCompletion(ctx context.Context, p *Process) (*Result, error) {
	return p.Run(ctx)
}
