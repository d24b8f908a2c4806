package main

import (
	"context"
	"fmt"
	"time"

	"github.com/pexec/pexec/pkg/process"
)

func main() {
	var procs []*process.Process
	for i := 0; i < 10; i++ {
		opts := []process.OpOption{process.WithTimeout(3 * time.Second)}
		switch i % 3 {
		case 0:
			opts = append(opts, process.WithCommand("echo", fmt.Sprintf("job %d", i)))
		case 1:
			opts = append(opts, process.WithCommand("cat"), process.WithInput([]byte(fmt.Sprintf("input of job %d", i))))
		case 2:
			opts = append(opts, process.WithCommand("sleep", "30"))
		}

		p, err := process.New(opts...)
		if err != nil {
			panic(err)
		}
		procs = append(procs, p)
	}

	start := time.Now()
	results := process.RunAll(context.Background(), procs)
	fmt.Printf("ran %d processes in %v\n", len(procs), time.Since(start))

	for i, res := range results {
		if res == nil {
			fmt.Printf("%d: %s failed to start: %v\n", i, procs[i].CommandLine(), procs[i].SpawnErr())
			continue
		}
		fmt.Printf("%d: %s exit code %d timed out %v signal %q stdout %q\n",
			i, procs[i].CommandLine(), res.ExitCode, res.TimedOut, res.Signal, res.Stdout)
	}
}
