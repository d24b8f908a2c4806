// Package metrics implements the "metrics" command.
package metrics

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
	pkgmetrics "github.com/pexec/pexec/pkg/metrics"
)

func Command(cliContext *cli.Context) error {
	if err := cmdcommon.SetupLogger(cliContext); err != nil {
		return err
	}
	log.Logger.Debugw("starting metrics command")

	cfg, err := cmdcommon.ConfigFromContext(cliContext)
	if err != nil {
		return err
	}
	session, err := cmdcommon.OpenSession(cfg, false)
	if err != nil {
		return err
	}
	defer session.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	opts := []pkgmetrics.OpOption{pkgmetrics.WithNames(cliContext.StringSlice("name")...)}
	if since := cliContext.Duration("since"); since > 0 {
		opts = append(opts, pkgmetrics.WithSince(time.Now().Add(-since)))
	}
	ms, err := session.Metrics.Read(ctx, opts...)
	if err != nil {
		return err
	}

	wr := cliContext.App.Writer
	if len(ms) == 0 {
		fmt.Fprintf(wr, "%s no metrics recorded\n", cmdcommon.InfoSign)
		return nil
	}
	RenderTable(wr, ms)
	return nil
}

// RenderTable writes one row per sample, oldest first.
func RenderTable(wr io.Writer, ms pkgmetrics.Metrics) {
	table := tablewriter.NewWriter(wr)
	table.SetAlignment(tablewriter.ALIGN_CENTER)
	table.SetHeader([]string{"Time", "Name", "Labels", "Value"})
	for _, m := range ms {
		table.Append([]string{
			humanize.Time(time.UnixMilli(m.UnixMilliseconds)),
			m.Name,
			m.Labels,
			strconv.FormatFloat(m.Value, 'f', -1, 64),
		})
	}
	table.Render()
}
