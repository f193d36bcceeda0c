package cmd

import "fmt"

// ExitCodeError carries a child's exit status out of a command so main can
// exit with it.
type ExitCodeError struct {
	Code int
}

func (e *ExitCodeError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// exitError maps a child exit code to a process exit status. Signal deaths
// (negative codes) follow the shell convention of 128+signal.
func exitError(code int) error {
	switch {
	case code == 0:
		return nil
	case code < 0:
		return &ExitCodeError{Code: 128 - code}
	default:
		return &ExitCodeError{Code: code}
	}
}
