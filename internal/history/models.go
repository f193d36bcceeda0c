package history

import (
	"encoding/json"
	"time"
)

// Run is one recorded execution.
type Run struct {
	ID        string
	Argv      []string
	Mode      string // sync, iter, async, background
	PID       int
	ExitCode  int
	Status    string // exited, killed
	Error     string // worker failures, empty when none
	StartedAt time.Time
	Duration  time.Duration
}

// Command returns argv[0], or "" for an empty argv.
func (r Run) Command() string {
	if len(r.Argv) == 0 {
		return ""
	}
	return r.Argv[0]
}

// Success reports whether the run exited with code 0.
func (r Run) Success() bool {
	return r.ExitCode == 0
}

// runModel is the database row for the runs table.
type runModel struct {
	ID         string
	Command    string
	Argv       string // JSON encoded
	Mode       string
	PID        int64
	ExitCode   int64
	Status     string
	Error      *string // nullable
	StartedAt  int64   // Unix milliseconds
	DurationMs int64
}

func toRunModel(r Run) (*runModel, error) {
	argv, err := json.Marshal(r.Argv)
	if err != nil {
		return nil, err
	}
	m := &runModel{
		ID:         r.ID,
		Command:    r.Command(),
		Argv:       string(argv),
		Mode:       r.Mode,
		PID:        int64(r.PID),
		ExitCode:   int64(r.ExitCode),
		Status:     r.Status,
		StartedAt:  r.StartedAt.UnixMilli(),
		DurationMs: r.Duration.Milliseconds(),
	}
	if r.Error != "" {
		m.Error = &r.Error
	}
	return m, nil
}

func (m *runModel) toRun() Run {
	var argv []string
	_ = json.Unmarshal([]byte(m.Argv), &argv)

	r := Run{
		ID:        m.ID,
		Argv:      argv,
		Mode:      m.Mode,
		PID:       int(m.PID),
		ExitCode:  int(m.ExitCode),
		Status:    m.Status,
		StartedAt: time.UnixMilli(m.StartedAt),
		Duration:  time.Duration(m.DurationMs) * time.Millisecond,
	}
	if m.Error != nil {
		r.Error = *m.Error
	}
	return r
}
