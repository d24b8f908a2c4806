package run

import (
	"bytes"
	"flag"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli"

	cmdcommon "github.com/pexec/pexec/cmd/pexec/common"
)

func TestCommand(t *testing.T) {
	t.Setenv("PEXEC_INHERITED", "yes")

	inputFile := filepath.Join(t.TempDir(), "input.txt")
	require.NoError(t, os.WriteFile(inputFile, []byte("a\nb\n"), 0o644))

	tests := []struct {
		name  string
		args  []string
		stdin string

		wantCode   int
		wantStdout string
		// lines the output must contain, when the whole output varies
		wantLines []string
		notLines  []string
		wantErr   string
	}{
		{
			name:       "succeeds",
			args:       []string{"--", "echo", "hello world"},
			wantStdout: "hello world\n",
		},
		{
			name:       "input from stdin",
			args:       []string{"--input-file", "-", "--", "cat"},
			stdin:      "from stdin",
			wantStdout: "from stdin",
		},
		{
			name:       "input from file",
			args:       []string{"--input-file", inputFile, "--", "wc", "-l"},
			wantStdout: "2\n",
		},
		{
			name:      "env merged over inherited",
			args:      []string{"--env", "PEXEC_ADDED=1", "--env", "PEXEC_INHERITED=overridden", "--", "env"},
			wantLines: []string{"PEXEC_ADDED=1", "PEXEC_INHERITED=overridden", "PATH=" + os.Getenv("PATH")},
			notLines:  []string{"PEXEC_INHERITED=yes"},
		},
		{
			name:      "env inherited",
			args:      []string{"--", "env"},
			wantLines: []string{"PEXEC_INHERITED=yes"},
		},
		{
			name:       "clear env",
			args:       []string{"--clear-env", "--env", "PEXEC_ADDED=1", "--", "env"},
			wantStdout: "PEXEC_ADDED=1\n",
		},
		{
			name:     "exit code of the command",
			args:     []string{"--", "false"},
			wantCode: 1,
		},
		{
			name:     "must reports the exit code",
			args:     []string{"--must", "--", "false"},
			wantCode: 1,
			wantErr:  "process exited with code 1",
		},
		{
			name:     "must reports the timeout",
			args:     []string{"--must", "--timeout", "200ms", "--", "sleep", "30"},
			wantCode: 124,
			wantErr:  "process timed out",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prev := stdin
			stdin = strings.NewReader(tt.stdin)
			t.Cleanup(func() { stdin = prev })

			var stdout bytes.Buffer
			args := append([]string{"--data-dir", t.TempDir(), "--db-in-memory"}, tt.args...)
			err := Command(newCLIContext(t, args, &stdout))

			if tt.wantCode == 0 {
				require.NoError(t, err)
			} else {
				eerr, ok := cmdcommon.AsExitError(err)
				require.True(t, ok, "%v", err)
				assert.Equal(t, tt.wantCode, eerr.Code)
				if tt.wantErr != "" {
					assert.Contains(t, eerr.Message, tt.wantErr)
				}
			}

			if tt.wantStdout != "" {
				assert.Equal(t, tt.wantStdout, strings.TrimLeft(stdout.String(), " "))
			}
			lines := strings.Split(stdout.String(), "\n")
			for _, l := range tt.wantLines {
				assert.Contains(t, lines, l)
			}
			for _, l := range tt.notLines {
				assert.NotContains(t, lines, l)
			}
		})
	}
}

func TestCommand_NoCommand(t *testing.T) {
	err := Command(newCLIContext(t, []string{"--data-dir", t.TempDir(), "--db-in-memory"}, io.Discard))
	require.ErrorIs(t, err, cmdcommon.ErrNoCommand)
}

func TestCommand_MissingInputFile(t *testing.T) {
	err := Command(newCLIContext(t, []string{
		"--data-dir", t.TempDir(),
		"--db-in-memory",
		"--input-file", filepath.Join(t.TempDir(), "missing"),
		"--", "cat",
	}, io.Discard))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func newCLIContext(t *testing.T, args []string, stdout io.Writer) *cli.Context {
	t.Helper()

	app := cli.NewApp()
	app.Writer = stdout
	app.ErrWriter = io.Discard

	flags := flag.NewFlagSet("pexec-run-test", flag.ContinueOnError)
	flags.SetOutput(io.Discard)

	_ = flags.String("log-level", "", "")
	_ = flags.String("data-dir", "", "")
	_ = flags.Bool("db-in-memory", false, "")
	_ = flags.Duration("timeout", 0, "")
	_ = flags.String("dir", "", "")
	flags.Var(&cli.StringSlice{}, "env", "")
	_ = flags.Bool("clear-env", false, "")
	_ = flags.String("input-file", "", "")
	_ = flags.Bool("must", false, "")
	_ = flags.Bool("exclusive", false, "")

	require.NoError(t, flags.Parse(args))
	return cli.NewContext(app, flags, nil)
}
