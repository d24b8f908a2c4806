package jobfile

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pexec/pexec/pkg/errdefs"
	"github.com/pexec/pexec/pkg/process"
)

func TestParse(t *testing.T) {
	f, err := Parse([]byte(`
defaults:
  timeout: 30s
  env: ["A=1", "B=2"]
jobs:
  - name: hello
    command: ["echo", "hello world"]
  - command: ["cat"]
    input: ""
    kill_grace_period: 500ms
    max_output_bytes: 10
    env: ["B=3"]
`))
	require.NoError(t, err)
	require.Len(t, f.Jobs, 2)
	assert.Equal(t, 30*time.Second, f.Defaults.Timeout.Duration)
	assert.Equal(t, "hello", f.Jobs[0].Name)
	assert.Equal(t, []string{"echo", "hello world"}, f.Jobs[0].Command)
	require.NotNil(t, f.Jobs[1].Input)
	assert.Equal(t, "", *f.Jobs[1].Input)
	assert.Equal(t, 500*time.Millisecond, f.Jobs[1].KillGracePeriod.Duration)
	assert.Equal(t, 10, *f.Jobs[1].MaxOutputBytes)
}

func TestParseInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "not yaml", yaml: "jobs: ["},
		{name: "unknown field", yaml: "jobs:\n  - command: [ls]\n    shell: true\n"},
		{name: "no jobs", yaml: "jobs: []\n"},
		{name: "no command", yaml: "jobs:\n  - name: x\n"},
		{name: "empty executable", yaml: "jobs:\n  - command: ['']\n"},
		{name: "both inputs", yaml: "jobs:\n  - command: [cat]\n    input: a\n    input_file: b\n"},
		{name: "command in defaults", yaml: "defaults:\n  command: [ls]\njobs:\n  - command: [ls]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.True(t, errdefs.IsInvalidArgument(err), "%v", err)
		})
	}
}

func TestLoadAndRun(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "input.txt"), []byte("a\nb\nc\n"), 0o644))

	file := filepath.Join(dir, "jobs.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
defaults:
  timeout: 10s
jobs:
  - name: count
    command: ["wc", "-l"]
    input_file: input.txt
  - command: ["cat"]
    input: "inline"
  - name: stdin
    command: ["cat"]
    input_file: "-"
`), 0o644))

	f, err := Load(file)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "input.txt"), f.Jobs[0].InputFile)
	assert.Equal(t, "-", f.Jobs[2].InputFile)

	b, err := f.Build(strings.NewReader("from stdin"))
	require.NoError(t, err)
	defer func() {
		assert.NoError(t, b.Close())
	}()

	assert.Equal(t, []string{"count", "cat", "stdin"}, b.Names)
	require.Len(t, b.Processes, 3)
	for _, p := range b.Processes {
		assert.Equal(t, 10*time.Second, p.Timeout())
	}

	results := process.RunAll(context.Background(), b.Processes)
	require.Len(t, results, 3)
	for _, res := range results {
		require.NotNil(t, res)
		assert.True(t, res.Succeeded())
	}
	assert.Equal(t, "3", strings.TrimSpace(string(results[0].Stdout)))
	assert.Equal(t, "inline", string(results[1].Stdout))
	assert.Equal(t, "from stdin", string(results[2].Stdout))
}

func TestBuildJobOverridesBase(t *testing.T) {
	f, err := Parse([]byte(`
defaults:
  timeout: 5s
jobs:
  - command: ["true"]
  - command: ["true"]
    timeout: 1s
`))
	require.NoError(t, err)

	b, err := f.Build(nil, process.WithTimeout(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, b.Processes[0].Timeout())
	assert.Equal(t, time.Second, b.Processes[1].Timeout())
	assert.NoError(t, b.Close())
}

func TestBuildMissingInputFile(t *testing.T) {
	f, err := Parse([]byte("jobs:\n  - command: [cat]\n    input_file: /nonexistent/input\n"))
	require.NoError(t, err)

	_, err = f.Build(nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestBuildEnv(t *testing.T) {
	t.Setenv("PEXEC_INHERITED", "yes")

	f, err := Parse([]byte(`
defaults:
  env: ["PEXEC_DEFAULT=1"]
jobs:
  - command: ["/usr/bin/env"]
    env: ["GOFLAGS=-count=1", "PEXEC_INHERITED=job"]
  - command: ["/usr/bin/env"]
  - command: ["/usr/bin/env"]
    env: ["GOFLAGS=-count=1"]
    clear_env: true
`))
	require.NoError(t, err)

	b, err := f.Build(nil)
	require.NoError(t, err)
	defer func() {
		assert.NoError(t, b.Close())
	}()

	results := process.RunAll(context.Background(), b.Processes)
	require.Len(t, results, 3)
	envOf := func(i int) []string {
		require.NotNil(t, results[i])
		require.True(t, results[i].Succeeded())
		return strings.Split(strings.TrimSpace(string(results[i].Stdout)), "\n")
	}

	merged := envOf(0)
	assert.Contains(t, merged, "PATH="+os.Getenv("PATH"))
	assert.Contains(t, merged, "GOFLAGS=-count=1")
	assert.Contains(t, merged, "PEXEC_DEFAULT=1")
	assert.Contains(t, merged, "PEXEC_INHERITED=job")
	assert.NotContains(t, merged, "PEXEC_INHERITED=yes")

	withDefaults := envOf(1)
	assert.Contains(t, withDefaults, "PATH="+os.Getenv("PATH"))
	assert.Contains(t, withDefaults, "PEXEC_DEFAULT=1")

	assert.ElementsMatch(t, []string{"PEXEC_DEFAULT=1", "GOFLAGS=-count=1"}, envOf(2))
}

func TestParseDuplicateNames(t *testing.T) {
	_, err := Parse([]byte("jobs:\n  - name: a\n    command: [true]\n  - name: a\n    command: [false]\n"))
	require.Error(t, err)
	assert.True(t, errdefs.IsAlreadyExists(err), "%v", err)
	assert.Contains(t, err.Error(), `name "a" is taken by job 0`)
}
