package process

import (
	"errors"
	"io"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

const inputChunkSize = 128 * 1024

// input is what remains to be written to the child's stdin.
// Buffer-backed input holds the whole payload in chunk.
// Reader-backed input refills chunk from fd whenever fd polls readable,
// so a source with nothing to offer never blocks the loop.
type input struct {
	chunk []byte
	off   int

	src io.Reader
	// readable end of the source; -1 until opened and after the source is done
	fd int
	// set when fd is the read end of a pipe fed by pump
	ownFd  bool
	pumped chan error

	srcDone bool
	srcErr  error
	readBuf []byte
}

func newBufferInput(b []byte) *input {
	return &input{chunk: b, fd: -1, srcDone: true}
}

func newReaderInput(r io.Reader) *input {
	return &input{src: r, fd: -1}
}

// open prepares the source for polling. A reader that exposes a file
// descriptor (e.g., *os.File, net.Conn) is polled directly. Any other
// reader is copied into a pipe by a goroutine that returns once the
// reader does.
func (in *input) open() error {
	if in.src == nil || in.fd >= 0 || in.srcDone {
		return nil
	}
	if fd, ok := sourceFd(in.src); ok {
		in.fd = fd
		return nil
	}

	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_CLOEXEC); err != nil {
		return err
	}
	in.fd = fds[0]
	in.ownFd = true
	in.pumped = make(chan error, 1)
	go pump(in.src, os.NewFile(uintptr(fds[1]), "|input"), in.pumped)
	return nil
}

// sourceFd returns the descriptor behind the reader, if any.
func sourceFd(r io.Reader) (int, bool) {
	sc, ok := r.(syscall.Conn)
	if !ok {
		return -1, false
	}
	rc, err := sc.SyscallConn()
	if err != nil {
		return -1, false
	}
	fd := -1
	if err := rc.Control(func(s uintptr) { fd = int(s) }); err != nil {
		return -1, false
	}
	return fd, fd >= 0
}

// pump copies src into w, then reports the read error (nil on io.EOF)
// before closing w. A write error means the loop is done with the input.
func pump(src io.Reader, w *os.File, done chan<- error) {
	buf := make([]byte, inputChunkSize)
	var err error
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				break
			}
		}
		if rerr != nil {
			if !errors.Is(rerr, io.EOF) {
				err = rerr
			}
			break
		}
	}
	done <- err
	_ = w.Close()
}

// wantRead returns true if the next chunk has to come from the source.
func (in *input) wantRead() bool {
	return !in.srcDone && in.fd >= 0 && in.off >= len(in.chunk)
}

// fill reads the next chunk once the source polled readable.
// EAGAIN leaves the chunk empty; the source is polled again.
func (in *input) fill() {
	if !in.wantRead() {
		return
	}
	if in.readBuf == nil {
		in.readBuf = make([]byte, inputChunkSize)
	}

	n, err := unix.Read(in.fd, in.readBuf)
	switch {
	case n > 0:
		in.chunk = in.readBuf[:n]
		in.off = 0
	case err == nil:
		if in.ownFd {
			// the pump sent its result before closing the write end
			in.srcErr = <-in.pumped
		}
		in.finishSource()
	case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.EINTR):
	default:
		in.srcErr = err
		in.finishSource()
	}
}

func (in *input) finishSource() {
	in.srcDone = true
	in.close()
}

// pending returns the bytes to write next. Once the source is done and
// every byte read before the source failed was written, it returns the
// source's error, if any. An empty slice means nothing is available
// right now; check done.
func (in *input) pending() ([]byte, error) {
	if in.off < len(in.chunk) {
		return in.chunk[in.off:], nil
	}
	if in.srcDone {
		return nil, in.srcErr
	}
	return nil, nil
}

// advance moves the cursor past the n bytes the pipe accepted.
func (in *input) advance(n int) {
	in.off += n
}

// done returns true once every byte has been handed to the pipe.
func (in *input) done() bool {
	return in.srcDone && in.off >= len(in.chunk)
}

// close releases the pipe the pump writes into.
// A descriptor borrowed from the reader is left to its owner.
func (in *input) close() {
	if in.ownFd {
		closeFd(&in.fd)
		return
	}
	in.fd = -1
}
