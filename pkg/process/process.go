// Package process runs external processes on the host.
//
// A Process spawns its argv directly (never through a shell), feeds its
// stdin, and collects stdout and stderr from non-blocking pipes in a
// readiness-polling loop. When the timeout fires, the process group gets
// SIGTERM and, after the kill grace period, SIGKILL. RunAll drives many
// processes through one shared loop.
package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/pexec/pexec/pkg/log"
)

// Size of a single read from stdout or stderr.
const readChunkSize = 16 * 1024

// State is the lifecycle stage of a Process.
type State int

const (
	StateCreated State = iota
	StateSpawned
	StateRunning
	StateExited
	StateTimedOut
	StateSignaling
	StateKilled
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateSpawned:
		return "spawned"
	case StateRunning:
		return "running"
	case StateExited:
		return "exited"
	case StateTimedOut:
		return "timed-out"
	case StateSignaling:
		return "signaling"
	case StateKilled:
		return "killed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Process is a single use description of a command to run.
// It is not safe for concurrent use; run it once with Run, MustRun, or RunAll.
type Process struct {
	commandArgs []string
	dir         string
	envs        []string

	timeout         time.Duration
	pollInterval    time.Duration
	selectTimeout   time.Duration
	killGracePeriod time.Duration
	maxOutputBytes  int
	afterStart      func(pid int)

	// nil when the process gets no input
	in *input

	started atomic.Bool
	state   State

	cmd    *exec.Cmd
	pid    int
	pidfd  int
	reaped bool
	// set when the pidfd polled readable
	exitReady bool

	stdin  int
	stdout outputStream
	stderr outputStream

	startedAt  time.Time
	signaledAt time.Time
	cancelErr  error
	spawnErr   error
	// set when the process left the loop
	endedAt time.Time

	result *Result
}

type outputStream struct {
	fd        int
	eof       bool
	buf       bytes.Buffer
	truncated bool
	// read error that ended the stream early
	err error
}

func (s *outputStream) append(b []byte, maxBytes int) {
	if maxBytes > 0 {
		room := maxBytes - s.buf.Len()
		if room < len(b) {
			if room > 0 {
				s.buf.Write(b[:room])
			}
			s.truncated = true
			return
		}
	}
	s.buf.Write(b)
}

// New creates a process from the options. WithCommand is required.
// The executable is not looked up until the process is run.
func New(opts ...OpOption) (*Process, error) {
	op := &Op{}
	if err := op.applyOpts(opts); err != nil {
		return nil, err
	}

	p := &Process{
		commandArgs: op.commandArgs,
		dir:         op.dir,
		envs:        op.envs,

		timeout:         op.timeout,
		pollInterval:    op.pollInterval,
		selectTimeout:   op.selectTimeout,
		killGracePeriod: op.killGracePeriod,
		maxOutputBytes:  op.maxOutputBytes,
		afterStart:      op.afterStart,

		state: StateCreated,
		pidfd: -1,
		stdin: -1,

		stdout: outputStream{fd: -1},
		stderr: outputStream{fd: -1},
	}
	switch {
	case op.hasInputBytes:
		p.in = newBufferInput(op.inputBytes)
	case op.inputReader != nil:
		p.in = newReaderInput(op.inputReader)
	}
	return p, nil
}

// CommandLine returns the shell-quoted command line, for display only.
func (p *Process) CommandLine() string {
	return QuoteCommandLine(p.commandArgs)
}

// Args returns a copy of the argv.
func (p *Process) Args() []string {
	return append([]string(nil), p.commandArgs...)
}

func (p *Process) Timeout() time.Duration {
	return p.timeout
}

// SpawnErr returns the error the process failed to spawn with, if any.
// RunAll reports such a process with a nil result.
func (p *Process) SpawnErr() error {
	return p.spawnErr
}

// PID returns the pid of the spawned process, or 0 if not yet spawned.
func (p *Process) PID() int {
	return p.pid
}

func (p *Process) State() State {
	return p.state
}

// Run spawns the process and blocks until it exits or, once its timeout
// elapsed or ctx is done, until it is killed.
//
// A non-zero exit, a timeout, or a canceled context are reported in the result,
// not as an error. The error is a *StartError if the process could not be
// spawned, or ErrAlreadyStarted if the process was run before.
func (p *Process) Run(ctx context.Context) (*Result, error) {
	if err := p.spawn(); err != nil {
		recordStartFailure()
		return nil, err
	}

	l := newLoop(ctx)
	l.add(p)
	l.run()

	return p.finish(l.readBuf), nil
}

// MustRun runs the process like Run but returns an error unless the process
// exited with zero status in time: a *StartError, *TimeoutError,
// *ExitCodeError, or *CanceledError. The result, when not nil, holds
// the output collected so far.
func (p *Process) MustRun(ctx context.Context) (*Result, error) {
	res, err := p.Run(ctx)
	if err != nil {
		return nil, err
	}
	return res, p.Check(res)
}

// Check classifies a result of this process the way MustRun does.
// Returns nil if the process exited with zero status in time.
func (p *Process) Check(res *Result) error {
	switch {
	case res == nil:
		return &StartError{CommandLine: p.CommandLine(), Err: errors.New("no result")}
	case res.TimedOut:
		return &TimeoutError{CommandLine: p.CommandLine(), Timeout: p.timeout, Result: res}
	case res.Canceled:
		err := p.cancelErr
		if err == nil {
			err = context.Canceled
		}
		return &CanceledError{CommandLine: p.CommandLine(), Result: res, Err: err}
	case res.ExitCode != 0:
		return &ExitCodeError{CommandLine: p.CommandLine(), Result: res}
	}
	return nil
}

func (p *Process) spawn() error {
	if !p.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	err := p.start()
	p.spawnErr = err
	return err
}

func (p *Process) start() error {
	// [0] is the read end, [1] the write end
	var pipes [3][2]int
	for i := range pipes {
		if err := unix.Pipe2(pipes[i][:], unix.O_CLOEXEC); err != nil {
			for j := 0; j < i; j++ {
				_ = unix.Close(pipes[j][0])
				_ = unix.Close(pipes[j][1])
			}
			return &StartError{CommandLine: p.CommandLine(), Err: fmt.Errorf("failed to create pipe: %w", err)}
		}
	}
	childStdin := os.NewFile(uintptr(pipes[0][0]), "|0")
	childStdout := os.NewFile(uintptr(pipes[1][1]), "|1")
	childStderr := os.NewFile(uintptr(pipes[2][1]), "|2")
	parentFds := []int{pipes[0][1], pipes[1][0], pipes[2][0]}

	cmd := exec.Command(p.commandArgs[0], p.commandArgs[1:]...)
	cmd.Dir = p.dir
	cmd.Env = p.envs
	cmd.Stdin = childStdin
	cmd.Stdout = childStdout
	cmd.Stderr = childStderr

	// Run the process in its own group so that signals reach
	// whatever it spawns too (e.g., "sh -c 'a | b'").
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	startedAt := time.Now()
	err := cmd.Start()

	// the child has its own copies of these now
	_ = childStdin.Close()
	_ = childStdout.Close()
	_ = childStderr.Close()

	if err != nil {
		for _, fd := range parentFds {
			_ = unix.Close(fd)
		}
		return &StartError{CommandLine: p.CommandLine(), Err: err}
	}

	p.cmd = cmd
	p.pid = cmd.Process.Pid
	p.startedAt = startedAt
	p.result = newResult(p.pid, startedAt)
	p.stdin = parentFds[0]
	p.stdout.fd = parentFds[1]
	p.stderr.fd = parentFds[2]
	p.state = StateSpawned

	for _, fd := range parentFds {
		if err := unix.SetNonblock(fd, true); err != nil {
			return p.abortStart(fmt.Errorf("failed to set pipe non-blocking: %w", err))
		}
	}
	p.pidfd = openPidfd(p.pid)

	if p.in == nil {
		p.closeStdin()
	} else if err := p.in.open(); err != nil {
		return p.abortStart(fmt.Errorf("failed to open input: %w", err))
	}

	log.Logger.Debugw("spawned process", "pid", p.pid, "command", p.CommandLine())

	if p.afterStart != nil {
		p.afterStart(p.pid)
	}
	p.state = StateRunning
	return nil
}

// abortStart kills and reaps a process that was spawned
// but could not be set up for the loop.
func (p *Process) abortStart(err error) error {
	p.signal(unix.SIGKILL)
	p.reap(true)
	p.closeFds()
	_ = p.cmd.Process.Release()
	return &StartError{CommandLine: p.CommandLine(), Err: err}
}

// readInput reads the next chunk from the input source once it polled
// readable, and hands it to stdin right away.
func (p *Process) readInput() {
	if p.stdin < 0 {
		return
	}
	p.in.fill()
	p.writeInput()
}

// writeInput writes the next chunk of input to stdin,
// closing stdin once all input is written or the child stopped reading.
func (p *Process) writeInput() {
	if p.stdin < 0 {
		return
	}

	chunk, err := p.in.pending()
	if err != nil {
		p.result.InputError = err
		log.Logger.Warnw("input reader failed, closing stdin", "pid", p.pid, "error", err)
		p.closeStdin()
		return
	}
	if len(chunk) == 0 {
		if p.in.done() {
			p.closeStdin()
		}
		return
	}

	n, err := unix.Write(p.stdin, chunk)
	if n > 0 {
		p.in.advance(n)
	}
	switch {
	case err == nil, errors.Is(err, unix.EAGAIN), errors.Is(err, unix.EINTR):
	case errors.Is(err, unix.EPIPE):
		// the child exited or closed its stdin without reading everything
		log.Logger.Debugw("stdin closed by process", "pid", p.pid)
		p.closeStdin()
		return
	default:
		log.Logger.Warnw("failed to write to stdin", "pid", p.pid, "error", err)
		p.closeStdin()
		return
	}

	if p.in.done() {
		p.closeStdin()
	}
}

// readOutput reads one chunk from the stream.
func (p *Process) readOutput(s *outputStream, buf []byte) {
	if s.fd < 0 || s.eof {
		return
	}

	n, err := unix.Read(s.fd, buf)
	switch {
	case n > 0:
		s.append(buf[:n], p.maxOutputBytes)
	case err == nil:
		s.eof = true
	case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.EINTR):
	default:
		log.Logger.Debugw("failed to read output", "pid", p.pid, "error", err)
		s.err = err
		s.eof = true
	}
}

// drain reads whatever is left in both output pipes without blocking.
// A pipe stays open past the drain only if a descendant that outlived
// the process still holds it.
func (p *Process) drain(buf []byte) error {
	var errs []error
	for _, s := range []*outputStream{&p.stdout, &p.stderr} {
		for s.fd >= 0 && !s.eof {
			n, err := unix.Read(s.fd, buf)
			if n > 0 {
				s.append(buf[:n], p.maxOutputBytes)
				continue
			}
			if errors.Is(err, unix.EINTR) {
				continue
			}
			if err == nil {
				s.eof = true
				break
			}
			if !errors.Is(err, unix.EAGAIN) {
				errs = append(errs, err)
			}
			break
		}
	}
	return errors.Join(errs...)
}

// outputDone returns true once both output pipes reached EOF.
func (p *Process) outputDone() bool {
	return (p.stdout.fd < 0 || p.stdout.eof) && (p.stderr.fd < 0 || p.stderr.eof)
}

// reap collects the exit status if the process has exited.
// Blocks until it exits if block is true.
func (p *Process) reap(block bool) bool {
	if p.reaped {
		return true
	}

	flags := unix.WNOHANG
	if block {
		flags = 0
	}

	var ws unix.WaitStatus
	for {
		wpid, err := unix.Wait4(p.pid, &ws, flags, nil)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			// e.g., ECHILD if someone else reaped it
			log.Logger.Warnw("failed to wait for process", "pid", p.pid, "error", err)
			p.reaped = true
			p.closePidfd()
			return true
		}
		if wpid == 0 {
			return false
		}
		break
	}

	switch {
	case ws.Exited():
		p.result.ExitCode = ws.ExitStatus()
	case ws.Signaled():
		p.result.Signal = unix.SignalName(ws.Signal())
	}
	p.reaped = true
	p.closePidfd()
	return true
}

// checkExit reaps the process if it exited.
// With a pidfd, only asks the kernel once the pidfd polled readable.
func (p *Process) checkExit() bool {
	if p.reaped {
		return true
	}
	if p.pidfd >= 0 && !p.exitReady {
		return false
	}
	return p.reap(false)
}

// signal sends the signal to the process group, falling back to the
// process itself in case it moved to another group.
// Once the process is reaped, only the group is signaled.
// ESRCH is expected when the process exits in the meantime.
func (p *Process) signal(sig unix.Signal) {
	err := unix.Kill(-p.pid, sig)
	if err == nil {
		return
	}
	if p.reaped {
		// the pid may belong to another process by now;
		// only what is left of the group can be signaled
		if !errors.Is(err, unix.ESRCH) {
			log.Logger.Warnw("failed to signal process group", "pgid", p.pid, "signal", unix.SignalName(sig), "error", err)
		}
		return
	}
	if err := unix.Kill(p.pid, sig); err != nil && !errors.Is(err, unix.ESRCH) {
		log.Logger.Warnw("failed to signal process", "pid", p.pid, "signal", unix.SignalName(sig), "error", err)
	}
}

// finish drains and closes the pipes and freezes the result.
func (p *Process) finish(buf []byte) *Result {
	if !p.reaped {
		p.reap(true)
	}

	if err := errors.Join(p.stdout.err, p.stderr.err, p.drain(buf)); err != nil {
		p.result.ReadError = err
		log.Logger.Warnw("failed to drain process output", "pid", p.pid, "error", err)
	}
	p.closeFds()
	if p.cmd != nil && p.cmd.Process != nil {
		_ = p.cmd.Process.Release()
	}

	p.result.Stdout = p.stdout.buf.Bytes()
	p.result.Stderr = p.stderr.buf.Bytes()
	p.result.StdoutTruncated = p.stdout.truncated
	p.result.StderrTruncated = p.stderr.truncated
	if p.endedAt.IsZero() {
		p.endedAt = time.Now()
	}
	p.result.Duration = p.endedAt.Sub(p.startedAt)

	recordResult(p.result)
	log.Logger.Debugw("process finished",
		"pid", p.pid,
		"state", p.state.String(),
		"exitCode", p.result.ExitCode,
		"timedOut", p.result.TimedOut,
		"duration", p.result.Duration,
	)
	return p.result
}

func (p *Process) closeStdin() {
	closeFd(&p.stdin)
}

func (p *Process) closePidfd() {
	closeFd(&p.pidfd)
}

func (p *Process) closeFds() {
	if p.in != nil {
		p.in.close()
	}
	closeFd(&p.stdin)
	closeFd(&p.stdout.fd)
	closeFd(&p.stderr.fd)
	closeFd(&p.pidfd)
}

// closeFd closes the fd once and marks it closed.
func closeFd(fd *int) {
	if *fd < 0 {
		return
	}
	_ = unix.Close(*fd)
	*fd = -1
}
