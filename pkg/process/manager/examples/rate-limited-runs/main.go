package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pexec/pexec/pkg/process"
	"github.com/pexec/pexec/pkg/process/manager"
	"github.com/pexec/pexec/pkg/sqlite"
)

func main() {
	db, err := sqlite.Open(sqlite.InMemory)
	if err != nil {
		panic(err)
	}
	defer db.Close()

	m, err := manager.New(manager.Config{
		SQLite:               db,
		QPS:                  2,
		MinimumRetryInterval: time.Minute,
	})
	if err != nil {
		panic(err)
	}

	ctx := context.Background()
	for i := 0; i < 4; i++ {
		id, res, err := m.Run(ctx, process.WithCommand("echo", fmt.Sprintf("run %d", i)))
		switch {
		case errors.Is(err, manager.ErrQPSLimitExceeded):
			fmt.Printf("run %d: rate limited\n", i)
		case err != nil:
			panic(err)
		default:
			fmt.Printf("run %d: id %s stdout %q\n", i, id, res.Stdout)
		}
	}

	// wait for the limiter to refill, then repeat a command line within the retry interval
	time.Sleep(time.Second)
	if _, _, err := m.Run(ctx, process.WithCommand("echo", "run 0")); errors.Is(err, manager.ErrMinimumRetryInterval) {
		fmt.Println("rejected: ", err)
	}

	rows, err := m.List(ctx, 0)
	if err != nil {
		panic(err)
	}
	for _, row := range rows {
		fmt.Printf("%s %-12s %s\n", row.ID, row.CommandLine, row.Status())
	}
}
