// Package errdefs defines the common errors shared across pexec packages.
//
// Callers wrap these sentinels with fmt.Errorf("...: %w", ...) and check them
// with the Is* helpers, which see through any wrapping.
package errdefs

import (
	"context"
	"errors"
)

var (
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrNotFound           = errors.New("not found")
	ErrAlreadyExists      = errors.New("already exists")
	ErrFailedPrecondition = errors.New("failed precondition")
	ErrUnavailable        = errors.New("unavailable")
	ErrNotImplemented     = errors.New("not implemented")
)

func IsInvalidArgument(err error) bool {
	return errors.Is(err, ErrInvalidArgument)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

func IsFailedPrecondition(err error) bool {
	return errors.Is(err, ErrFailedPrecondition)
}

func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

func IsNotImplemented(err error) bool {
	return errors.Is(err, ErrNotImplemented)
}

// IsCanceled returns true if the error is or wraps context.Canceled.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}
