//go:build unix

package cli

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// detachAttr starts the child in a new session, detached from the terminal.
func detachAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setsid: true}
}

func terminateProcess(pid int) error {
	return unix.Kill(pid, unix.SIGTERM)
}
