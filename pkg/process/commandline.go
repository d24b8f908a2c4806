package process

import "github.com/alessio/shellescape"

// QuoteCommandLine renders the argv as a single POSIX shell command line.
// Only used for logs and error messages, never executed.
func QuoteCommandLine(args []string) string {
	return shellescape.QuoteCommand(args)
}
