// Package shell runs one external program with discrete arguments and
// exposes its output through four consumption modes:
//
//   - synchronous: Run blocks until exit and returns a *Completed with the
//     full stdout, stderr and exit code.
//   - iterative: Iter returns *Lines, a single-pass sequence of stdout lines
//     read on the caller's goroutine.
//   - asynchronous: Async returns *AsyncLines; lines are read on a separate
//     goroutine and received one at a time.
//   - background: Start returns the live *Handle immediately and drains the
//     streams that have a Consumer on dedicated goroutines.
//
// Arguments are never interpreted by a shell. A non-zero exit is a result,
// not an error; only failing to spawn the program is reported as an error.
package shell
