package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pexec/pexec/pkg/process"
)

func main() {
	// ignores SIGTERM, so it is killed once the grace period elapses
	p, err := process.New(
		process.WithCommand("sh", "-c", `trap "" TERM; echo started; sleep 30`),
		process.WithTimeout(time.Second),
		process.WithKillGracePeriod(500*time.Millisecond),
	)
	if err != nil {
		panic(err)
	}

	start := time.Now()
	res, err := p.MustRun(context.Background())

	var timeoutErr *process.TimeoutError
	if !errors.As(err, &timeoutErr) {
		panic(fmt.Sprintf("expected a timeout, got %v", err))
	}
	fmt.Printf("timed out: %v, signal: %s, stdout: %q, took %v\n", res.TimedOut, res.Signal, res.Stdout, time.Since(start))
}
