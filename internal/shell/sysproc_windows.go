//go:build windows

package shell

import (
	"os"
	"syscall"

	"golang.org/x/sys/windows"
)

// sysProcAttr gives the child its own process group so console Ctrl-C
// events sent to xh are not delivered to it.
func sysProcAttr(newSession bool) *syscall.SysProcAttr {
	if !newSession {
		return nil
	}
	return &syscall.SysProcAttr{CreationFlags: windows.CREATE_NEW_PROCESS_GROUP}
}

// terminateProcess has no graceful equivalent on windows.
func terminateProcess(p *os.Process) error {
	return p.Kill()
}
