package process

import (
	"context"
	"errors"
	"os"
	"slices"
	"strings"

	procs "github.com/shirou/gopsutil/v4/process"

	"github.com/pexec/pexec/pkg/log"
)

// ProcessStatus represents the read-only status of a process.
// Derived from "github.com/shirou/gopsutil/v4/process.Process" struct.
// ref. https://pkg.go.dev/github.com/shirou/gopsutil/v4@v4.25.3/process#Process
type ProcessStatus interface {
	Status() ([]string, error)
}

// ZombieChildren returns the pids of the children of the current process
// that exited but were never reaped. Processes run by this package are
// always reaped, so a non-empty result points at a leak elsewhere.
func ZombieChildren(ctx context.Context) ([]int32, error) {
	return zombieChildren(ctx, func(ctx context.Context) (map[int32]ProcessStatus, error) {
		self, err := procs.NewProcessWithContext(ctx, int32(os.Getpid()))
		if err != nil {
			return nil, err
		}
		children, err := self.ChildrenWithContext(ctx)
		if err != nil {
			if errors.Is(err, procs.ErrorNoChildren) {
				return nil, nil
			}
			return nil, err
		}
		m := make(map[int32]ProcessStatus, len(children))
		for _, c := range children {
			m[c.Pid] = c
		}
		return m, nil
	})
}

func zombieChildren(ctx context.Context, listChildren func(ctx context.Context) (map[int32]ProcessStatus, error)) ([]int32, error) {
	children, err := listChildren(ctx)
	if err != nil {
		return nil, err
	}

	var zombies []int32
	for pid, c := range children {
		if c == nil {
			continue
		}
		status, err := c.Status()
		if err != nil {
			ee := strings.ToLower(err.Error())

			// the child went away between listing and reading its status
			// e.g., "open /proc/2342816/status: no such file or directory"
			if strings.Contains(ee, "not found") || strings.Contains(ee, "no such file") {
				continue
			}

			log.Logger.Warnw("failed to get status", "pid", pid, "error", err)
			continue
		}
		if slices.Contains(status, procs.Zombie) {
			zombies = append(zombies, pid)
		}
	}
	slices.Sort(zombies)
	return zombies, nil
}
