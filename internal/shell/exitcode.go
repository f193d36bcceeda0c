package shell

import (
	"os"
	"syscall"
)

// exitCodeOf maps a reaped process to an exit code. A process ended by a
// signal reports -signal, so it is never mistaken for success.
func exitCodeOf(state *os.ProcessState) int {
	if state == nil {
		return -1
	}
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return -int(ws.Signal())
	}
	return state.ExitCode()
}

func signaled(state *os.ProcessState) bool {
	if state == nil {
		return false
	}
	ws, ok := state.Sys().(syscall.WaitStatus)
	return ok && ws.Signaled()
}
