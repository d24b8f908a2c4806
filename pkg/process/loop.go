package process

import (
	"context"
	"errors"
	"math"
	"time"

	"golang.org/x/sys/unix"

	"github.com/pexec/pexec/pkg/log"
)

type fdKind int

const (
	fdStdin fdKind = iota
	fdInput
	fdStdout
	fdStderr
	fdPidfd
)

type pollRef struct {
	p    *Process
	kind fdKind
}

// loop drives spawned processes until every one of them exited or was killed.
// Each iteration waits once for readiness across all their pipes,
// services every ready pipe, then checks exits, timeouts, and escalation.
type loop struct {
	ctx context.Context

	running     []*Process
	terminating []*Process

	pollFds  []unix.PollFd
	pollRefs []pollRef

	readBuf []byte
}

func newLoop(ctx context.Context) *loop {
	return &loop{
		ctx:     ctx,
		readBuf: make([]byte, readChunkSize),
	}
}

func (l *loop) add(p *Process) {
	l.running = append(l.running, p)
}

func (l *loop) run() {
	for len(l.running) > 0 || len(l.terminating) > 0 {
		l.wait()
		l.service()

		now := time.Now()
		l.checkRunning(now)
		l.checkTerminating(now)
	}
}

// wait blocks until any watched fd is ready or the poll timeout elapses.
func (l *loop) wait() {
	l.pollFds = l.pollFds[:0]
	l.pollRefs = l.pollRefs[:0]
	for _, p := range l.running {
		l.watch(p, true)
	}
	for _, p := range l.terminating {
		l.watch(p, false)
	}

	timeout := l.pollTimeout(time.Now())
	_, err := unix.Poll(l.pollFds, toPollMsec(timeout))
	if err != nil && !errors.Is(err, unix.EINTR) {
		log.Logger.Warnw("failed to poll process pipes", "error", err)
		for i := range l.pollFds {
			l.pollFds[i].Revents = 0
		}
		time.Sleep(DefaultPollInterval)
	}
}

func (l *loop) watch(p *Process, withInput bool) {
	p.exitReady = false
	if withInput && p.stdin >= 0 {
		if p.in.wantRead() {
			l.addFd(p, fdInput, p.in.fd, unix.POLLIN)
		} else {
			l.addFd(p, fdStdin, p.stdin, unix.POLLOUT)
		}
	}
	if p.stdout.fd >= 0 && !p.stdout.eof {
		l.addFd(p, fdStdout, p.stdout.fd, unix.POLLIN)
	}
	if p.stderr.fd >= 0 && !p.stderr.eof {
		l.addFd(p, fdStderr, p.stderr.fd, unix.POLLIN)
	}
	if p.pidfd >= 0 {
		l.addFd(p, fdPidfd, p.pidfd, unix.POLLIN)
	}
}

func (l *loop) addFd(p *Process, kind fdKind, fd int, events int16) {
	l.pollFds = append(l.pollFds, unix.PollFd{Fd: int32(fd), Events: events})
	l.pollRefs = append(l.pollRefs, pollRef{p: p, kind: kind})
}

// pollTimeout returns how long the next wait may block: up to the select
// timeout, but no later than the nearest timeout, grace period, or context
// deadline. Processes whose exit cannot wake the poll are checked every
// poll interval instead.
func (l *loop) pollTimeout(now time.Time) time.Duration {
	d := time.Duration(math.MaxInt64)
	if dl, ok := l.ctx.Deadline(); ok {
		d = min(d, dl.Sub(now))
	}
	for _, p := range l.running {
		d = min(d, p.selectTimeout)
		if p.timeout > 0 {
			d = min(d, p.startedAt.Add(p.timeout).Sub(now))
		}
		if p.pidfd < 0 && !p.reaped && p.outputDone() {
			d = min(d, p.pollInterval)
		}
	}
	for _, p := range l.terminating {
		if p.pidfd < 0 && !p.reaped {
			d = min(d, p.pollInterval)
			continue
		}
		d = min(d, p.selectTimeout, p.signaledAt.Add(p.killGracePeriod).Sub(now))
	}
	return max(d, 0)
}

// service performs one write or read on every ready fd,
// so no process waits on another's backlog.
func (l *loop) service() {
	for i, pfd := range l.pollFds {
		if pfd.Revents == 0 {
			continue
		}
		ref := l.pollRefs[i]
		switch ref.kind {
		case fdStdin:
			ref.p.writeInput()
		case fdInput:
			ref.p.readInput()
		case fdStdout:
			ref.p.readOutput(&ref.p.stdout, l.readBuf)
		case fdStderr:
			ref.p.readOutput(&ref.p.stderr, l.readBuf)
		case fdPidfd:
			ref.p.exitReady = true
		}
	}
}

// checkRunning removes exited processes and moves the ones past their
// timeout (or all of them, once the context is done) to the terminating set.
// A process that exited stays until its output pipes reach EOF, since
// a descendant may still write to them.
func (l *loop) checkRunning(now time.Time) {
	ctxErr := l.ctx.Err()

	kept := l.running[:0]
	for _, p := range l.running {
		if p.checkExit() && p.outputDone() {
			p.state = StateExited
			p.endedAt = now
			continue
		}

		switch {
		case p.timeout > 0 && now.Sub(p.startedAt) >= p.timeout:
			p.result.TimedOut = true
			log.Logger.Debugw("process timed out", "pid", p.pid, "timeout", p.timeout)
		case ctxErr != nil:
			p.result.Canceled = true
			p.cancelErr = ctxErr
			log.Logger.Debugw("process canceled", "pid", p.pid, "error", ctxErr)
		default:
			kept = append(kept, p)
			continue
		}

		p.state = StateTimedOut
		l.terminating = append(l.terminating, p)
	}
	clear(l.running[len(kept):])
	l.running = kept
}

// checkTerminating signals each timed-out process once with SIGTERM and,
// once its own grace period elapsed, kills it with SIGKILL.
func (l *loop) checkTerminating(now time.Time) {
	kept := l.terminating[:0]
	for _, p := range l.terminating {
		if p.checkExit() && p.outputDone() {
			p.state = StateKilled
			p.endedAt = now
			continue
		}

		switch {
		case p.signaledAt.IsZero():
			log.Logger.Debugw("sending SIGTERM", "pid", p.pid)
			p.signal(unix.SIGTERM)
			p.signaledAt = now
			p.state = StateSignaling

		case now.Sub(p.signaledAt) >= p.killGracePeriod:
			log.Logger.Debugw("grace period elapsed, sending SIGKILL", "pid", p.pid, "gracePeriod", p.killGracePeriod)
			p.signal(unix.SIGKILL)
			if !p.reaped {
				p.reap(true)
			}
			p.state = StateKilled
			p.endedAt = time.Now()
			recordKill()
			continue
		}
		kept = append(kept, p)
	}
	clear(l.terminating[len(kept):])
	l.terminating = kept
}

// toPollMsec rounds up so that a wait never ends before the deadline it targets.
func toPollMsec(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	ms := (d + time.Millisecond - 1) / time.Millisecond
	if ms > math.MaxInt32 {
		ms = math.MaxInt32
	}
	return int(ms)
}
