package compact

import (
	"context"
	"errors"
	"flag"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli"

	"github.com/pexec/pexec/pkg/errdefs"
)

func TestCommand_ReturnsErrorForInvalidLogLevel(t *testing.T) {
	cliContext := newCLIContext(t, []string{
		"--log-level", "not-a-log-level",
	})

	err := Command(cliContext)
	require.Error(t, err)
}

func TestCommand_RejectsInMemoryHistory(t *testing.T) {
	cliContext := newCLIContext(t, []string{
		"--data-dir", t.TempDir(),
		"--db-in-memory",
	})

	err := Command(cliContext)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "in-memory")
	assert.True(t, errdefs.IsFailedPrecondition(err))
}

func TestCommand_CompactsStateFile(t *testing.T) {
	dataDir := t.TempDir()

	var compacted string
	prev := runCompact
	runCompact = func(ctx context.Context, dbFile string) error {
		compacted = dbFile
		return prev(ctx, dbFile)
	}
	t.Cleanup(func() { runCompact = prev })

	cliContext := newCLIContext(t, []string{
		"--data-dir", dataDir,
		"--retention-period", "1h",
	})
	require.NoError(t, Command(cliContext))
	assert.Contains(t, compacted, dataDir)
}

func TestCommand_ReturnsCompactError(t *testing.T) {
	prev := runCompact
	runCompact = func(context.Context, string) error { return errors.New("boom") }
	t.Cleanup(func() { runCompact = prev })

	cliContext := newCLIContext(t, []string{"--data-dir", t.TempDir()})
	err := Command(cliContext)
	require.Error(t, err)
	assert.Equal(t, "boom", err.Error())
}

func newCLIContext(t *testing.T, args []string) *cli.Context {
	t.Helper()

	app := cli.NewApp()
	flags := flag.NewFlagSet("pexec-compact-test", flag.ContinueOnError)
	flags.SetOutput(io.Discard)

	_ = flags.String("log-level", "", "")
	_ = flags.String("data-dir", "", "")
	_ = flags.Bool("db-in-memory", false, "")
	_ = flags.Duration("retention-period", 0, "")

	require.NoError(t, flags.Parse(args))
	return cli.NewContext(app, flags, nil)
}
