// Package run implements the "run" command.
package run

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli"

	cmdcommon "github.com/pexec/pexec/cmd/pexec/common"
	"github.com/pexec/pexec/pkg/log"
	"github.com/pexec/pexec/pkg/process"
)

var stdin io.Reader = os.Stdin

func Command(cliContext *cli.Context) error {
	if err := cmdcommon.SetupLogger(cliContext); err != nil {
		return err
	}
	log.Logger.Debugw("starting run command")

	args := cliContext.Args()
	if len(args) == 0 {
		return cmdcommon.ErrNoCommand
	}

	cfg, err := cmdcommon.ConfigFromContext(cliContext)
	if err != nil {
		return err
	}

	opts := append(cfg.ProcessOptions(), process.WithCommand(args...))
	if dir := cliContext.String("dir"); dir != "" {
		opts = append(opts, process.WithDir(dir))
	}
	envs := cliContext.StringSlice("env")
	switch {
	case cliContext.Bool("clear-env"):
		opts = append(opts, process.WithClearEnv(), process.WithEnvs(envs...))
	case len(envs) > 0:
		opts = append(opts, process.WithEnvs(process.MergeEnvs(os.Environ(), envs)...))
	}

	switch inputFile := cliContext.String("input-file"); inputFile {
	case "":
	case "-":
		opts = append(opts, process.WithInputReader(stdin))
	default:
		f, err := os.Open(inputFile)
		if err != nil {
			return err
		}
		defer f.Close()
		opts = append(opts, process.WithInputReader(f))
	}

	session, err := cmdcommon.OpenSession(cfg, cliContext.Bool("exclusive"))
	if err != nil {
		return err
	}
	defer session.Close()
	defer session.FlushMetrics()
	m := session.Manager

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	run := m.Run
	if cliContext.Bool("must") {
		run = m.MustRun
	}
	id, res, runErr := run(ctx, opts...)
	if res != nil {
		_, _ = cliContext.App.Writer.Write(res.Stdout)
		errWriter := cliContext.App.ErrWriter
		if errWriter == nil {
			errWriter = os.Stderr
		}
		_, _ = errWriter.Write(res.Stderr)
		log.Logger.Debugw("run finished", "id", id, "pid", res.PID, "exitCode", res.ExitCode, "duration", res.Duration)
	}

	if runErr != nil {
		if res == nil {
			return runErr
		}
		return &cmdcommon.ExitError{Code: cmdcommon.ExitCode(res), Message: runErr.Error()}
	}
	if res.Succeeded() {
		return nil
	}

	msg := ""
	if res.TimedOut {
		msg = fmt.Sprintf("timed out after %v", cfg.DefaultTimeout.Duration)
	}
	return &cmdcommon.ExitError{Code: cmdcommon.ExitCode(res), Message: msg}
}
