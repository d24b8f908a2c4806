package main

import (
	"fmt"
	"io"
	"os"

	"github.com/pexec/pexec/cmd/pexec/command"
	cmdcommon "github.com/pexec/pexec/cmd/pexec/common"
)

func main() {
	os.Exit(run(os.Args, os.Stdout, os.Stderr))
}

func run(args []string, stdout io.Writer, stderr io.Writer) int {
	app := command.App()
	app.Writer = stdout
	app.ErrWriter = stderr

	err := app.Run(args)
	if err == nil {
		return 0
	}

	if eerr, ok := cmdcommon.AsExitError(err); ok {
		if eerr.Message != "" {
			fmt.Fprintf(stderr, "%s %s\n", cmdcommon.WarningSign, eerr.Message)
		}
		return eerr.Code
	}
	fmt.Fprintf(stderr, "%s %s\n", cmdcommon.WarningSign, err)
	return 1
}
