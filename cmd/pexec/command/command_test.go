package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApp(t *testing.T) {
	app := App()
	require.NotNil(t, app)
	assert.Equal(t, "pexec", app.Name)

	names := make(map[string]bool)
	for _, cmd := range app.Commands {
		names[cmd.Name] = true

		// every command handles the log and state flags
		flags := make(map[string]bool)
		for _, f := range cmd.Flags {
			flags[f.GetName()] = true
		}
		assert.True(t, flags["log-level,l"], cmd.Name)
		assert.True(t, flags["data-dir"], cmd.Name)
		assert.True(t, flags["db-in-memory"], cmd.Name)
	}
	for _, name := range []string{"run", "batch", "history", "metrics", "compact"} {
		assert.True(t, names[name], name)
	}
}
