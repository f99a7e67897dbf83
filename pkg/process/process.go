// Package process inspects other processes on the host.
package process

import (
	"os"
	"syscall"
)

// IsProcessAlive reports whether a process with the given PID exists.
// Signal 0 probes for existence without delivering anything; EPERM still
// means the process is alive, just owned by someone else.
func IsProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	return err == nil || os.IsPermission(err)
}

// IsSelf reports whether pid is the current process.
func IsSelf(pid int) bool {
	return pid == os.Getpid()
}
