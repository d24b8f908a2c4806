package history

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/pexec/pexec/pkg/process/state"
)

func TestRenderTable(t *testing.T) {
	now := time.Now()
	rows := []state.Row{
		{ID: "run-1", CommandLine: "echo 'a b'", StartedAt: now, Finished: true, Outcome: state.Outcome{ExitCode: 0, StdoutBytes: 4, Duration: 3 * time.Millisecond}},
		{ID: "run-2", CommandLine: "sleep 30", StartedAt: now},
		{ID: "run-3", CommandLine: "nope", StartedAt: now, Finished: true, Outcome: state.Outcome{ExitCode: -1, Error: "exec: not found"}},
	}

	buf := bytes.NewBuffer(nil)
	RenderTable(buf, rows)

	out := buf.String()
	assert.Contains(t, out, "echo 'a b'")
	assert.Contains(t, out, "succeeded")
	assert.Contains(t, out, "running")
	assert.Contains(t, out, "start-failed")
	assert.Contains(t, out, "4 B")
}

func TestRenderRun(t *testing.T) {
	row := state.Row{
		ID:          "run-1",
		CommandLine: "sh -c 'kill -9 $$'",
		StartedAt:   time.Now(),
		Finished:    true,
		Outcome: state.Outcome{
			PID:      100,
			ExitCode: -1,
			Signal:   "SIGKILL",
			Output:   "last words",
		},
	}

	buf := bytes.NewBuffer(nil)
	RenderRun(buf, row)

	out := buf.String()
	assert.Contains(t, out, "signaled")
	assert.Contains(t, out, "SIGKILL")
	assert.Contains(t, out, "100")
	assert.Contains(t, out, "last words\n")
}
