package process

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pexec/pexec/pkg/errdefs"
)

const (
	// DefaultPollInterval is how often a terminating process is checked
	// for exit while its grace period runs.
	DefaultPollInterval = time.Millisecond
	// DefaultSelectTimeout bounds a single readiness wait so that
	// timeouts are re-evaluated even when no pipe is ready.
	DefaultSelectTimeout = time.Second
	// DefaultKillGracePeriod is the time between SIGTERM and SIGKILL.
	DefaultKillGracePeriod = 3 * time.Second
)

type OpOption func(*Op)

type Op struct {
	commandArgs []string
	dir         string
	envs        []string

	inputBytes    []byte
	hasInputBytes bool
	inputReader   io.Reader

	timeout         time.Duration
	pollInterval    time.Duration
	selectTimeout   time.Duration
	killGracePeriod time.Duration
	maxOutputBytes  int

	afterStart func(pid int)
}

func (op *Op) applyOpts(opts []OpOption) error {
	for _, opt := range opts {
		opt(op)
	}

	if len(op.commandArgs) == 0 || op.commandArgs[0] == "" {
		return fmt.Errorf("%w: no command provided", errdefs.ErrInvalidArgument)
	}

	foundEnvs := make(map[string]struct{})
	for _, env := range op.envs {
		k, _, ok := strings.Cut(env, "=")
		if !ok || k == "" {
			return fmt.Errorf("%w: invalid environment variable format: %q", errdefs.ErrInvalidArgument, env)
		}
		if _, dup := foundEnvs[k]; dup {
			return fmt.Errorf("%w: duplicate environment variable: %s", errdefs.ErrInvalidArgument, k)
		}
		foundEnvs[k] = struct{}{}
	}

	if op.hasInputBytes && op.inputReader != nil {
		return fmt.Errorf("%w: %w", errdefs.ErrInvalidArgument, errors.New("input bytes and input reader are mutually exclusive"))
	}

	if op.timeout < 0 {
		return fmt.Errorf("%w: negative timeout %v", errdefs.ErrInvalidArgument, op.timeout)
	}
	if op.maxOutputBytes < 0 {
		return fmt.Errorf("%w: negative max output bytes %d", errdefs.ErrInvalidArgument, op.maxOutputBytes)
	}
	if op.killGracePeriod < 0 {
		return fmt.Errorf("%w: negative kill grace period %v", errdefs.ErrInvalidArgument, op.killGracePeriod)
	}

	if op.pollInterval <= 0 {
		op.pollInterval = DefaultPollInterval
	}
	if op.selectTimeout <= 0 {
		op.selectTimeout = DefaultSelectTimeout
	}
	if op.killGracePeriod == 0 {
		op.killGracePeriod = DefaultKillGracePeriod
	}

	return nil
}

// WithCommand sets the executable and its arguments.
// The arguments are passed to the executable as is, never through a shell.
func WithCommand(args ...string) OpOption {
	return func(op *Op) {
		op.commandArgs = args
	}
}

// WithDir sets the working directory of the process.
// Default is the working directory of the caller.
func WithDir(dir string) OpOption {
	return func(op *Op) {
		op.dir = dir
	}
}

// Add a new environment variable to the process
// in the format of `KEY=VALUE`.
// Once any is set, the process no longer inherits the caller's environment.
func WithEnvs(envs ...string) OpOption {
	return func(op *Op) {
		op.envs = append(op.envs, envs...)
	}
}

// WithClearEnv starts the process with an empty environment
// plus whatever WithEnvs adds.
func WithClearEnv() OpOption {
	return func(op *Op) {
		if op.envs == nil {
			op.envs = []string{}
		}
	}
}

// WithInput feeds the bytes to the process's stdin, then closes it.
// An empty (non-nil) slice closes stdin right away.
func WithInput(b []byte) OpOption {
	return func(op *Op) {
		op.inputBytes = b
		op.hasInputBytes = true
	}
}

// WithInputReader streams the reader to the process's stdin in chunks,
// closing stdin once the reader returns io.EOF.
// The reader is never closed by the process.
//
// A reader backed by a file descriptor (*os.File, net.Conn) is read only
// when it polls readable. Any other reader is read by a goroutine, which
// stays blocked in Read after the process ended until Read returns.
func WithInputReader(r io.Reader) OpOption {
	return func(op *Op) {
		op.inputReader = r
	}
}

// WithTimeout sets the wall-clock limit measured from spawn.
// Zero (default) means no timeout.
func WithTimeout(d time.Duration) OpOption {
	return func(op *Op) {
		op.timeout = d
	}
}

func WithPollInterval(d time.Duration) OpOption {
	return func(op *Op) {
		op.pollInterval = d
	}
}

func WithSelectTimeout(d time.Duration) OpOption {
	return func(op *Op) {
		op.selectTimeout = d
	}
}

// WithKillGracePeriod sets how long a timed-out process has to exit
// after SIGTERM before it receives SIGKILL.
func WithKillGracePeriod(d time.Duration) OpOption {
	return func(op *Op) {
		op.killGracePeriod = d
	}
}

// WithMaxOutputBytes caps stdout and stderr at n bytes each.
// Bytes over the cap are read from the pipe and discarded.
// Zero (default) keeps the whole output.
func WithMaxOutputBytes(n int) OpOption {
	return func(op *Op) {
		op.maxOutputBytes = n
	}
}

// WithAfterStart sets a hook called with the pid right after the process
// is spawned, before any of its output is read.
func WithAfterStart(fn func(pid int)) OpOption {
	return func(op *Op) {
		op.afterStart = fn
	}
}

// MergeEnvs merges the `KEY=VALUE` lists into one without duplicate keys.
// A later value of a key replaces an earlier one in place.
func MergeEnvs(lists ...[]string) []string {
	var merged []string
	idx := make(map[string]int)
	for _, envs := range lists {
		for _, env := range envs {
			k, _, _ := strings.Cut(env, "=")
			if i, ok := idx[k]; ok {
				merged[i] = env
				continue
			}
			idx[k] = len(merged)
			merged = append(merged, env)
		}
	}
	return merged
}
