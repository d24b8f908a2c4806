package process

import (
	"context"

	"github.com/pexec/pexec/pkg/log"
)

// RunAll runs the processes concurrently from a single polling loop
// and returns their results in the order of procs.
//
// Every process is spawned up front. A process that fails to spawn
// (or was already run) gets a nil result and does not affect the others.
// Each process keeps its own timeout and kill grace period; one process
// timing out or being killed does not delay the others.
func RunAll(ctx context.Context, procs []*Process) []*Result {
	results := make([]*Result, len(procs))
	spawned := make([]bool, len(procs))

	l := newLoop(ctx)
	for i, p := range procs {
		if p == nil {
			continue
		}
		if err := p.spawn(); err != nil {
			recordStartFailure()
			log.Logger.Warnw("failed to start process", "index", i, "error", err)
			continue
		}
		spawned[i] = true
		l.add(p)
	}

	l.run()

	for i, p := range procs {
		if spawned[i] {
			results[i] = p.finish(l.readBuf)
		}
	}
	return results
}
