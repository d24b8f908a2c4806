package errdefs

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsHelpers(t *testing.T) {
	helpers := map[string]func(error) bool{
		"invalid argument":    IsInvalidArgument,
		"not found":           IsNotFound,
		"already exists":      IsAlreadyExists,
		"failed precondition": IsFailedPrecondition,
		"unavailable":         IsUnavailable,
		"not implemented":     IsNotImplemented,
		"canceled":            IsCanceled,
	}

	// wrapped the way callers do it, e.g. manager.ErrQPSLimitExceeded
	// or a validation error that also carries the parse error
	tests := []struct {
		want string
		err  error
	}{
		{want: "invalid argument", err: fmt.Errorf("%w: job 0: no command", ErrInvalidArgument)},
		{want: "invalid argument", err: fmt.Errorf("%w: %w", ErrInvalidArgument, errors.New("yaml: line 1"))},
		{want: "not found", err: fmt.Errorf("get: %w", fmt.Errorf("%w: run not found", ErrNotFound))},
		{want: "already exists", err: fmt.Errorf("%w: name %q is taken", ErrAlreadyExists, "a")},
		{want: "failed precondition", err: fmt.Errorf("%w: process already started", ErrFailedPrecondition)},
		{want: "unavailable", err: fmt.Errorf("%w: qps limit exceeded", ErrUnavailable)},
		{want: "not implemented", err: fmt.Errorf("%w: linux only", ErrNotImplemented)},
		{want: "canceled", err: fmt.Errorf("waiting: %w", context.Canceled)},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			for name, is := range helpers {
				assert.Equal(t, name == tt.want, is(tt.err), "%s(%v)", name, tt.err)
			}
		})
	}
}

func TestIsHelpersNoMatch(t *testing.T) {
	for _, err := range []error{nil, errors.New("invalid argument"), context.DeadlineExceeded} {
		assert.False(t, IsInvalidArgument(err))
		assert.False(t, IsUnavailable(err))
		assert.False(t, IsCanceled(err))
	}
}
