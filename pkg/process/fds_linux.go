//go:build linux

package process

import "github.com/prometheus/procfs"

// OpenFDs returns the number of file descriptors the current process has open,
// same as "process_open_fds" of the prometheus process collector.
// ref. https://pkg.go.dev/github.com/prometheus/procfs
func OpenFDs() (int, error) {
	self, err := procfs.Self()
	if err != nil {
		return 0, err
	}
	return self.FileDescriptorsLen()
}
