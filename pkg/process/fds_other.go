//go:build !linux

package process

import (
	"fmt"

	"github.com/pexec/pexec/pkg/errdefs"
)

// OpenFDs is not supported outside of linux.
func OpenFDs() (int, error) {
	return 0, fmt.Errorf("%w: open file descriptors are only readable on linux", errdefs.ErrNotImplemented)
}
