// Package batch implements the "batch" command.
package batch

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli"

	cmdcommon "github.com/pexec/pexec/cmd/pexec/common"
	"github.com/pexec/pexec/pkg/jobfile"
	"github.com/pexec/pexec/pkg/log"
	"github.com/pexec/pexec/pkg/process"
)

var (
	stdin io.Reader = os.Stdin

	zombieChildren = process.ZombieChildren
)

func Command(cliContext *cli.Context) error {
	if err := cmdcommon.SetupLogger(cliContext); err != nil {
		return err
	}
	log.Logger.Debugw("starting batch command")
	stdout := cliContext.App.Writer

	file := cliContext.String("file")
	if file == "" {
		return fmt.Errorf("batch file is required (--file)")
	}
	jobs, err := jobfile.Load(file)
	if err != nil {
		return err
	}

	cfg, err := cmdcommon.ConfigFromContext(cliContext)
	if err != nil {
		return err
	}

	b, err := jobs.Build(stdin, cfg.ProcessOptions()...)
	if err != nil {
		return err
	}
	defer func() {
		if err := b.Close(); err != nil {
			log.Logger.Warnw("failed to close input files", "error", err)
		}
	}()

	session, err := cmdcommon.OpenSession(cfg, false)
	if err != nil {
		return err
	}
	defer session.Close()
	defer session.FlushMetrics()
	m := session.Manager

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	start := time.Now()
	ids, results, runErr := m.RunAll(ctx, b.Processes)
	took := time.Since(start)
	if fds, err := process.OpenFDs(); err == nil {
		log.Logger.Debugw("batch finished", "took", took, "openFDs", fds)
	}
	if runErr != nil {
		log.Logger.Warnw("some jobs were not run", "error", runErr)
		fmt.Fprintf(stdout, "%s %v\n", cmdcommon.WarningSign, runErr)
	}

	RenderTable(stdout, b.Names, ids, b.Processes, results)
	fmt.Fprintf(stdout, "%s ran %d job(s) in %s\n", cmdcommon.InfoSign, len(b.Processes), took.Round(time.Millisecond))

	if cliContext.Bool("show-output") {
		for i, res := range results {
			if res == nil {
				continue
			}
			prefix := b.Names[i]
			if err := process.ReadLines(res,
				process.WithReadStdout(),
				process.WithReadStderr(),
				process.WithProcessLine(func(line string) {
					fmt.Fprintf(stdout, "[%s] %s\n", prefix, line)
				}),
			); err != nil {
				log.Logger.Warnw("failed to read output", "job", prefix, "error", err)
			}
		}
	}

	zctx, zcancel := context.WithTimeout(context.Background(), 10*time.Second)
	zombies, err := zombieChildren(zctx)
	zcancel()
	if err != nil {
		log.Logger.Debugw("failed to check for zombie children", "error", err)
	} else if len(zombies) > 0 {
		fmt.Fprintf(stdout, "%s %d child process(es) left unreaped: %v\n", cmdcommon.WarningSign, len(zombies), zombies)
	}

	for _, res := range results {
		if res == nil || !res.Succeeded() {
			return &cmdcommon.ExitError{Code: 1}
		}
	}
	if runErr != nil {
		return &cmdcommon.ExitError{Code: 1}
	}
	fmt.Fprintf(stdout, "%s all jobs succeeded\n", cmdcommon.CheckMark)
	return nil
}

// RenderTable writes one row per job.
func RenderTable(wr io.Writer, names []string, ids []string, procs []*process.Process, results []*process.Result) {
	table := tablewriter.NewWriter(wr)
	table.SetAlignment(tablewriter.ALIGN_CENTER)
	table.SetHeader([]string{"#", "Name", "Run ID", "PID", "Status", "Exit Code", "Stdout", "Stderr", "Duration"})
	for i := range procs {
		res := results[i]
		if res == nil {
			status := "not run"
			if procs[i].SpawnErr() != nil {
				status = "start-failed"
			}
			table.Append([]string{strconv.Itoa(i), names[i], ids[i], "-", status, "-", "-", "-", "-"})
			continue
		}
		table.Append([]string{
			strconv.Itoa(i),
			names[i],
			ids[i],
			strconv.Itoa(res.PID),
			Status(res),
			strconv.Itoa(res.ExitCode),
			outputSize(len(res.Stdout), res.StdoutTruncated),
			outputSize(len(res.Stderr), res.StderrTruncated),
			res.Duration.Round(time.Millisecond).String(),
		})
	}
	table.Render()
}

// Status renders the result in a word.
func Status(res *process.Result) string {
	switch {
	case res.TimedOut:
		return "timed-out"
	case res.Canceled:
		return "canceled"
	case res.ExitCode < 0 && res.Signal != "":
		return "signaled (" + res.Signal + ")"
	case res.ExitCode == 0:
		return "succeeded"
	default:
		return "failed"
	}
}

func outputSize(n int, truncated bool) string {
	s := humanize.IBytes(uint64(n))
	if truncated {
		s += " (truncated)"
	}
	return s
}
