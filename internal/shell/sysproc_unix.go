//go:build !windows

package shell

import (
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// sysProcAttr puts the child in a new session so terminal signals sent to
// xh's process group do not reach it.
func sysProcAttr(newSession bool) *syscall.SysProcAttr {
	if !newSession {
		return nil
	}
	return &syscall.SysProcAttr{Setsid: true}
}

func terminateProcess(p *os.Process) error {
	return p.Signal(unix.SIGTERM)
}
