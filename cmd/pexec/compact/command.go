// Package compact implements the "compact" command.
package compact

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli"

	cmdcommon "github.com/pexec/pexec/cmd/pexec/common"
	"github.com/pexec/pexec/pkg/errdefs"
	"github.com/pexec/pexec/pkg/log"
	"github.com/pexec/pexec/pkg/sqlite"
)

var runCompact = sqlite.RunCompact

func Command(cliContext *cli.Context) error {
	if err := cmdcommon.SetupLogger(cliContext); err != nil {
		return err
	}
	log.Logger.Debugw("starting compact command")

	cfg, err := cmdcommon.ConfigFromContext(cliContext)
	if err != nil {
		return err
	}
	if cfg.InMemory {
		return fmt.Errorf("%w: nothing to compact for an in-memory history", errdefs.ErrFailedPrecondition)
	}

	rootCtx, rootCancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer rootCancel()

	if cfg.RetentionPeriod.Duration > 0 {
		session, err := cmdcommon.OpenSession(cfg, false)
		if err != nil {
			return err
		}
		before := time.Now().Add(-cfg.RetentionPeriod.Duration)
		runs, samples, err := session.Purge(rootCtx, before)
		session.Close()
		if err != nil {
			return fmt.Errorf("failed to purge run history: %w", err)
		}
		log.Logger.Infow("purged run history", "before", before, "runs", runs, "metrics", samples)
		fmt.Printf("%s purged %d run(s) and %d metric sample(s) older than %v\n", cmdcommon.CheckMark, runs, samples, cfg.RetentionPeriod.Duration)
	}

	if err := runCompact(rootCtx, cfg.State); err != nil {
		return err
	}

	fmt.Printf("%s successfully compacted state file\n", cmdcommon.CheckMark)
	return nil
}
