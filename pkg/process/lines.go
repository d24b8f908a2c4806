package process

import (
	"bufio"
	"bytes"
	"errors"
	"io"
)

type ReadOpOption func(*ReadOp)

type ReadOp struct {
	readStdout bool
	readStderr bool

	processLine func(line string)
}

func (op *ReadOp) applyOpts(opts []ReadOpOption) error {
	for _, opt := range opts {
		opt(op)
	}

	if op.processLine == nil {
		op.processLine = func(string) {}
	}

	if !op.readStdout && !op.readStderr {
		return errors.New("at least one of readStdout or readStderr must be true")
	}

	return nil
}

func WithReadStdout() ReadOpOption {
	return func(op *ReadOp) {
		op.readStdout = true
	}
}

func WithReadStderr() ReadOpOption {
	return func(op *ReadOp) {
		op.readStderr = true
	}
}

// Sets a function to process each line of the collected output.
func WithProcessLine(fn func(line string)) ReadOpOption {
	return func(op *ReadOp) {
		op.processLine = fn
	}
}

// ReadLines calls the line function for every line of the result's
// stdout, then of its stderr, as selected by the options.
// A final line without a newline is passed too.
func ReadLines(res *Result, opts ...ReadOpOption) error {
	op := &ReadOp{}
	if err := op.applyOpts(opts); err != nil {
		return err
	}
	if res == nil {
		return errors.New("no result")
	}

	readers := []io.Reader{}
	if op.readStdout {
		readers = append(readers, bytes.NewReader(res.Stdout))
	}
	if op.readStderr {
		readers = append(readers, bytes.NewReader(res.Stderr))
	}

	for _, r := range readers {
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), readChunkSize*64)
		for scanner.Scan() {
			op.processLine(scanner.Text())
		}
		if err := scanner.Err(); err != nil {
			return err
		}
	}
	return nil
}
