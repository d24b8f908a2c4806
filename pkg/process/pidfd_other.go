//go:build unix && !linux

package process

// openPidfd always returns -1; the run loop falls back to polling
// liveness at the poll interval.
func openPidfd(int) int {
	return -1
}
