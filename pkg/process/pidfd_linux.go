//go:build linux

package process

import "golang.org/x/sys/unix"

// openPidfd returns a pollable fd that becomes readable once the process
// exits, or -1 if the kernel does not support pidfds (Linux < 5.3).
func openPidfd(pid int) int {
	fd, err := unix.PidfdOpen(pid, 0)
	if err != nil {
		return -1
	}
	return fd
}
