package main

import (
	"context"
	"fmt"

	"github.com/pexec/pexec/pkg/process"
)

func main() {
	p, err := process.New(
		process.WithCommand("printf", "%s\n", "hello", "$HOME", "*"),
	)
	if err != nil {
		panic(err)
	}
	fmt.Println("command:", p.CommandLine())

	res, err := p.MustRun(context.Background())
	if err != nil {
		panic(err)
	}
	fmt.Printf("pid: %d, exit code: %d, took: %v\n", res.PID, res.ExitCode, res.Duration)

	if err := process.ReadLines(
		res,
		process.WithReadStdout(),
		process.WithProcessLine(func(line string) {
			fmt.Println("stdout:", line)
		}),
	); err != nil {
		panic(err)
	}
}
