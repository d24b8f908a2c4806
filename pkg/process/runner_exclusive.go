package process

import (
	"context"
	"sync"

	"github.com/pexec/pexec/pkg/log"
)

var _ Runner = &exclusiveRunner{}

// NewExclusiveRunner returns a runner that runs a single process at a time.
// A process handed to it while another one runs is rejected with
// ErrProcessAlreadyRunning, not queued.
func NewExclusiveRunner() Runner {
	return &exclusiveRunner{}
}

type exclusiveRunner struct {
	mu      sync.Mutex
	running *Process
}

func (er *exclusiveRunner) RunUntilCompletion(ctx context.Context, p *Process) (*Result, error) {
	if !er.acquire(p) {
		return nil, ErrProcessAlreadyRunning
	}
	defer er.release()

	res, err := p.Run(ctx)
	if err != nil {
		return nil, err
	}
	log.Logger.Debugw("process exited", "pid", res.PID, "exitCode", res.ExitCode)
	return res, nil
}

func (er *exclusiveRunner) acquire(p *Process) bool {
	er.mu.Lock()
	defer er.mu.Unlock()

	if er.running != nil {
		return false
	}
	er.running = p
	return true
}

func (er *exclusiveRunner) release() {
	er.mu.Lock()
	er.running = nil
	er.mu.Unlock()
}
