//go:build unix

package globallock

import (
	"os"
	"syscall"
)

// isProcessAlive reports whether pid refers to a still-running process, used
// to purge self-held lock rows whose process has since exited.
func isProcessAlive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
