package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned by Get when no run has the given ID.
var ErrNotFound = errors.New("run not found")

const runColumns = `id, command, argv, mode, pid, exit_code, status, error, started_at, duration_ms`

// ListOptions filters List results.
type ListOptions struct {
	Limit      int    // 0 means no limit
	FailedOnly bool   // only non-zero exit codes
	Command    string // only runs of this argv[0]
}

func scanRun(scanner interface{ Scan(...any) error }) (*runModel, error) {
	var m runModel
	err := scanner.Scan(
		&m.ID, &m.Command, &m.Argv, &m.Mode, &m.PID, &m.ExitCode,
		&m.Status, &m.Error, &m.StartedAt, &m.DurationMs,
	)
	return &m, err
}

// Record stores a finished run. Recording the same ID twice replaces the row.
func (db *DB) Record(ctx context.Context, r Run) error {
	if r.ID == "" {
		return fmt.Errorf("record run: empty id")
	}
	m, err := toRunModel(r)
	if err != nil {
		return fmt.Errorf("encode argv: %w", err)
	}

	_, err = db.conn.ExecContext(ctx,
		`INSERT OR REPLACE INTO runs (`+runColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.Command, m.Argv, m.Mode, m.PID, m.ExitCode, m.Status, m.Error, m.StartedAt, m.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// Get returns the run with the given ID.
func (db *DB) Get(ctx context.Context, id string) (Run, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	m, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Run{}, fmt.Errorf("failed to get run: %w", err)
	}
	return m.toRun(), nil
}

// List returns runs newest first.
func (db *DB) List(ctx context.Context, opts ListOptions) ([]Run, error) {
	var (
		where []string
		args  []any
	)
	if opts.FailedOnly {
		where = append(where, "exit_code != 0")
	}
	if opts.Command != "" {
		where = append(where, "command = ?")
		args = append(args, opts.Command)
	}

	query := `SELECT ` + runColumns + ` FROM runs`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY started_at DESC, id`
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []Run
	for rows.Next() {
		m, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, m.toRun())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return runs, nil
}

// Clear deletes every recorded run and returns how many were removed.
func (db *DB) Clear(ctx context.Context) (int64, error) {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM runs`)
	if err != nil {
		return 0, fmt.Errorf("failed to clear runs: %w", err)
	}
	return res.RowsAffected()
}
