package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_InvalidLogLevel(t *testing.T) {
	var stdout, stderr bytes.Buffer

	exitCode := run(
		[]string{"pexec", "history", "--db-in-memory", "--data-dir", t.TempDir(), "--log-level", "invalid-level"},
		&stdout,
		&stderr,
	)

	require.Equal(t, 1, exitCode)
	assert.Contains(t, stderr.String(), "invalid-level")
}

func TestRun_NoCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer

	exitCode := run([]string{"pexec", "run", "--db-in-memory", "--data-dir", t.TempDir()}, &stdout, &stderr)

	require.Equal(t, 1, exitCode)
	assert.Contains(t, stderr.String(), "no command given")
}

func TestRun_ExitCodeOfChild(t *testing.T) {
	var stdout, stderr bytes.Buffer

	exitCode := run(
		[]string{"pexec", "run", "--db-in-memory", "--data-dir", t.TempDir(), "--", "sh", "-c", "exit 3"},
		&stdout,
		&stderr,
	)
	assert.Equal(t, 3, exitCode)
}

func TestRun_TimedOut(t *testing.T) {
	var stdout, stderr bytes.Buffer

	exitCode := run(
		[]string{"pexec", "run", "--db-in-memory", "--data-dir", t.TempDir(), "--timeout", "200ms", "--", "sleep", "30"},
		&stdout,
		&stderr,
	)
	assert.Equal(t, 124, exitCode)
	assert.Contains(t, stderr.String(), "timed out")
}

func TestRun_BatchFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "jobs.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
jobs:
  - name: ok
    command: ["true"]
  - name: fails
    command: ["false"]
`), 0o644))

	var stdout, stderr bytes.Buffer
	exitCode := run([]string{"pexec", "batch", "--db-in-memory", "--data-dir", dir, "-f", file}, &stdout, &stderr)

	assert.Equal(t, 1, exitCode)
	assert.Contains(t, stdout.String(), "succeeded")
	assert.Contains(t, stdout.String(), "failed")
}

func TestRun_HistoryOfStateFile(t *testing.T) {
	dir := t.TempDir()

	var stdout, stderr bytes.Buffer
	require.Equal(t, 0, run([]string{"pexec", "run", "--data-dir", dir, "--", "true"}, &stdout, &stderr), stderr.String())
	require.Equal(t, 0, run([]string{"pexec", "history", "--data-dir", dir}, &stdout, &stderr), stderr.String())
	assert.Contains(t, stdout.String(), "succeeded")
}
