package shell

// Status represents where a child process is in its lifecycle.
type Status int

const (
	// StatusPending indicates the process has not been started.
	StatusPending Status = iota
	// StatusRunning indicates the process was started and not yet reaped.
	StatusRunning
	// StatusExited indicates the process exited on its own.
	StatusExited
	// StatusKilled indicates the process was ended by a signal.
	StatusKilled
)

// String returns a human-readable string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusExited:
		return "exited"
	case StatusKilled:
		return "killed"
	default:
		return "unknown"
	}
}

// IsTerminal returns true once the exit status has been collected.
func (s Status) IsTerminal() bool {
	return s == StatusExited || s == StatusKilled
}

// Mode is the consumption mode an execution ran in.
type Mode string

const (
	ModeSync       Mode = "sync"
	ModeIterative  Mode = "iter"
	ModeAsync      Mode = "async"
	ModeBackground Mode = "background"
)
