// Package history implements the "history" command.
package history

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli"

	cmdcommon "github.com/pexec/pexec/cmd/pexec/common"
	"github.com/pexec/pexec/pkg/log"
	"github.com/pexec/pexec/pkg/process/state"
)

func Command(cliContext *cli.Context) error {
	if err := cmdcommon.SetupLogger(cliContext); err != nil {
		return err
	}
	log.Logger.Debugw("starting history command")
	stdout := cliContext.App.Writer

	cfg, err := cmdcommon.ConfigFromContext(cliContext)
	if err != nil {
		return err
	}
	session, err := cmdcommon.OpenSession(cfg, false)
	if err != nil {
		return err
	}
	defer session.Close()
	m := session.Manager

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if id := cliContext.String("id"); id != "" {
		row, err := m.Get(ctx, id)
		if err != nil {
			return err
		}
		RenderRun(stdout, *row)
		return nil
	}

	rows, err := m.List(ctx, cliContext.Int("limit"))
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Fprintf(stdout, "%s no runs recorded\n", cmdcommon.InfoSign)
		return nil
	}
	RenderTable(stdout, rows)
	return nil
}

// RenderTable writes one row per recorded run.
func RenderTable(wr io.Writer, rows []state.Row) {
	table := tablewriter.NewWriter(wr)
	table.SetAlignment(tablewriter.ALIGN_CENTER)
	table.SetHeader([]string{"Run ID", "Command", "Started", "Status", "Exit Code", "Stdout", "Stderr", "Duration"})
	for _, row := range rows {
		exitCode, stdoutSize, stderrSize, duration := "-", "-", "-", "-"
		if row.Finished && row.Outcome.Error == "" {
			exitCode = strconv.Itoa(row.Outcome.ExitCode)
			stdoutSize = humanize.IBytes(uint64(row.Outcome.StdoutBytes))
			stderrSize = humanize.IBytes(uint64(row.Outcome.StderrBytes))
			duration = row.Outcome.Duration.Round(time.Millisecond).String()
		}
		table.Append([]string{
			row.ID,
			row.CommandLine,
			humanize.Time(row.StartedAt),
			row.Status(),
			exitCode,
			stdoutSize,
			stderrSize,
			duration,
		})
	}
	table.Render()
}

// RenderRun writes the details of one run, including its output tail.
func RenderRun(wr io.Writer, row state.Row) {
	table := tablewriter.NewWriter(wr)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.Append([]string{"Run ID", row.ID})
	table.Append([]string{"Command", row.CommandLine})
	table.Append([]string{"Started", row.StartedAt.Format(time.RFC3339) + " (" + humanize.Time(row.StartedAt) + ")"})
	table.Append([]string{"Status", row.Status()})
	if row.Finished {
		if row.Outcome.Error != "" {
			table.Append([]string{"Error", row.Outcome.Error})
		} else {
			table.Append([]string{"PID", strconv.Itoa(row.Outcome.PID)})
			table.Append([]string{"Exit Code", strconv.Itoa(row.Outcome.ExitCode)})
			if row.Outcome.Signal != "" {
				table.Append([]string{"Signal", row.Outcome.Signal})
			}
			table.Append([]string{"Duration", row.Outcome.Duration.String()})
			table.Append([]string{"Stdout", humanize.IBytes(uint64(row.Outcome.StdoutBytes))})
			table.Append([]string{"Stderr", humanize.IBytes(uint64(row.Outcome.StderrBytes))})
		}
	}
	table.Render()

	if row.Outcome.Output != "" {
		fmt.Fprintf(wr, "\n%s output tail:\n%s", cmdcommon.InfoSign, row.Outcome.Output)
		if row.Outcome.Output[len(row.Outcome.Output)-1] != '\n' {
			fmt.Fprintln(wr)
		}
	}
}
