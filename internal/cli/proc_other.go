//go:build !unix

package cli

import (
	"os"
	"syscall"
)

func detachAttr() *syscall.SysProcAttr {
	return nil
}

func terminateProcess(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return p.Kill()
}
