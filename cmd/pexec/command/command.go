package command

import (
	"time"

	"github.com/urfave/cli"

	cmdbatch "github.com/pexec/pexec/cmd/pexec/batch"
	cmdcompact "github.com/pexec/pexec/cmd/pexec/compact"
	cmdhistory "github.com/pexec/pexec/cmd/pexec/history"
	cmdmetrics "github.com/pexec/pexec/cmd/pexec/metrics"
	cmdrun "github.com/pexec/pexec/cmd/pexec/run"
	"github.com/pexec/pexec/pkg/config"
	"github.com/pexec/pexec/version"
)

const usage = `
# to run a command with a 10-second timeout
pexec run --timeout 10s -- ls -la /tmp

# to run every job of a batch file in parallel
pexec batch -f jobs.yaml

# to list the recorded runs
pexec history

# to list the metrics of the runs within the last hour
pexec metrics --since 1h
`

func App() *cli.App {
	app := cli.NewApp()

	app.Name = "pexec"
	app.Version = version.Version
	app.Usage = usage
	app.Description = "Runs external processes without a shell, with timeouts and captured output"

	app.Commands = []cli.Command{
		{
			Name:  "run",
			Usage: "run a command and print its output, exiting with its exit code",
			UsageText: `# arguments after '--' are passed as is, never through a shell
pexec run -- printf '%s\n' '$HOME' '*'

# to feed a file to the command's stdin
pexec run --input-file /var/log/syslog -- wc -l

# to fail unless the command exits 0 within 5 seconds
pexec run --must --timeout 5s -- make test
`,
			Action: cmdrun.Command,
			Flags: concatFlags(stateFlags(), logFlags(), processFlags(), []cli.Flag{
				&cli.StringFlag{
					Name:  "dir",
					Usage: "set the working directory of the command",
				},
				&cli.StringSliceFlag{
					Name:  "env,e",
					Usage: "set an environment variable of the command (KEY=VALUE, repeatable)",
				},
				&cli.BoolFlag{
					Name:  "clear-env",
					Usage: "do not inherit the environment; the command gets only what --env sets",
				},
				&cli.StringFlag{
					Name:  "input-file,i",
					Usage: "stream the file to the command's stdin ('-' for the stdin of pexec)",
				},
				&cli.BoolFlag{
					Name:  "must",
					Usage: "fail unless the command exits with zero status in time",
				},
				&cli.BoolFlag{
					Name:  "exclusive",
					Usage: "reject the run while another run of this pexec is in progress",
				},
			}),
		},
		{
			Name:  "batch",
			Usage: "run every job of a batch file in parallel and summarize the results",
			UsageText: `# jobs.yaml:
# defaults:
#   timeout: 30s
# jobs:
#   - name: build
#     command: ["make", "build"]
#   - command: ["wc", "-l"]
#     input_file: /var/log/syslog
pexec batch -f jobs.yaml --show-output
`,
			Action: cmdbatch.Command,
			Flags: concatFlags(stateFlags(), logFlags(), processFlags(), []cli.Flag{
				&cli.StringFlag{
					Name:  "file,f",
					Usage: "set the batch file (YAML)",
				},
				&cli.BoolFlag{
					Name:  "show-output",
					Usage: "print the output of every job, prefixed by its name",
				},
			}),
		},
		{
			Name:   "history",
			Usage:  "list the recorded runs",
			Action: cmdhistory.Command,
			Flags: concatFlags(stateFlags(), logFlags(), []cli.Flag{
				&cli.IntFlag{
					Name:  "limit",
					Usage: "set the maximum number of runs to list (0 to list all)",
					Value: 20,
				},
				&cli.StringFlag{
					Name:  "id",
					Usage: "show the details and the output tail of one run",
				},
			}),
		},
		{
			Name:   "metrics",
			Usage:  "list the metrics recorded by past invocations",
			Action: cmdmetrics.Command,
			Flags: concatFlags(stateFlags(), logFlags(), []cli.Flag{
				&cli.DurationFlag{
					Name:  "since",
					Usage: "list the samples recorded within the duration (0 to list all)",
					Value: 24 * time.Hour,
				},
				&cli.StringSliceFlag{
					Name:  "name",
					Usage: "list the samples of the metric (repeatable, default: all)",
				},
			}),
		},
		{
			Name:   "compact",
			Usage:  "purge the runs older than the retention period and compact the state file",
			Action: cmdcompact.Command,
			Flags: concatFlags(stateFlags(), logFlags(), []cli.Flag{
				&cli.DurationFlag{
					Name:  "retention-period",
					Usage: "set the time period to retain the run history for (0 to keep all)",
					Value: config.DefaultRetentionPeriod.Duration,
				},
			}),
		},
	}

	return app
}

func stateFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "data-dir",
			Usage: "set the data directory for the run history (default: /var/lib/pexec or ~/.pexec for non-root)",
		},
		&cli.BoolFlag{
			Name:  "db-in-memory",
			Usage: "keep the run history in an in-memory SQLite database instead of the state file",
		},
		&cli.StringFlag{
			Name:  "config",
			Usage: "set the config file (YAML) to load over the defaults",
		},
		&cli.StringFlag{
			Name:  "metrics-file",
			Usage: "write the metrics in the Prometheus text format to the file when done",
		},
	}
}

func logFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "log-level,l",
			Usage: "set the logging level [debug, info, warn, error, fatal, panic, dpanic]",
			Value: "warn",
		},
		&cli.StringFlag{
			Name:  "log-file",
			Usage: "set the log file path (set empty to stdout/stderr)",
		},
	}
}

func processFlags() []cli.Flag {
	return []cli.Flag{
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "set the timeout of each command (0 for none)",
		},
		&cli.DurationFlag{
			Name:  "kill-grace-period",
			Usage: "set the time between SIGTERM and SIGKILL for a timed-out command",
			Value: config.DefaultKillGracePeriod.Duration,
		},
		&cli.DurationFlag{
			Name:  "poll-interval",
			Usage: "set how often a terminating command is checked for exit",
			Value: config.DefaultPollInterval.Duration,
		},
		&cli.IntFlag{
			Name:  "max-output-bytes",
			Usage: "cap the captured stdout and stderr of each command (0 for no cap)",
		},
		&cli.IntFlag{
			Name:  "qps",
			Usage: "limit how many runs start per second (0 for no limit)",
		},
	}
}

func concatFlags(lists ...[]cli.Flag) []cli.Flag {
	var flags []cli.Flag
	for _, l := range lists {
		flags = append(flags, l...)
	}
	return flags
}
