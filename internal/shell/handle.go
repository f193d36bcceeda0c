package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/xh/internal/log"
	"github.com/zjrosen/xh/internal/tracing"
)

// DoneFunc is called once per execution after output is drained and the
// exit code is known.
type DoneFunc func(h *Handle, success bool, exitCode int)

// Handle owns one spawned process and the goroutines draining its output.
// All methods are safe for concurrent use.
type Handle struct {
	id        string
	argv      []string
	mode      Mode
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	stdout    io.ReadCloser
	stderr    io.ReadCloser
	onStdout  Consumer
	onStderr  Consumer
	onDone    DoneFunc
	startedAt time.Time

	mu       sync.RWMutex
	status   Status
	exitCode int
	endedAt  time.Time
	errs     []error

	workers  conc.WaitGroup
	waitOnce sync.Once
	done     chan struct{}

	// onExit runs inside Wait after onDone; the engine uses it for tracing,
	// events and history.
	onExit func(h *Handle)
	span   trace.Span
}

func (h *Handle) isResult() {}

// ID returns the run ID assigned at spawn time.
func (h *Handle) ID() string {
	return h.id
}

// Argv returns a copy of the argument vector, program name first.
func (h *Handle) Argv() []string {
	out := make([]string, len(h.argv))
	copy(out, h.argv)
	return out
}

// Mode returns the consumption mode this process was started in.
func (h *Handle) Mode() Mode {
	return h.mode
}

// PID returns the OS process ID, or -1 if the process never started.
func (h *Handle) PID() int {
	if h.cmd == nil || h.cmd.Process == nil {
		return -1
	}
	return h.cmd.Process.Pid
}

// Stdin returns the write end of the child's stdin. It is already closed
// in every mode except background.
func (h *Handle) Stdin() io.WriteCloser {
	return h.stdin
}

// Status returns the current process status.
func (h *Handle) Status() Status {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.status
}

// ExitCode returns the exit code, or -1 before the process was reaped.
// A process ended by a signal reports the negated signal number.
func (h *Handle) ExitCode() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.status.IsTerminal() {
		return -1
	}
	return h.exitCode
}

// Err returns the failures of drain workers and callbacks joined together,
// or nil. A non-zero exit is not an error.
func (h *Handle) Err() error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return errors.Join(h.errs...)
}

// StartedAt returns when the process was spawned.
func (h *Handle) StartedAt() time.Time {
	return h.startedAt
}

// Runtime returns how long the process ran, or has been running so far.
func (h *Handle) Runtime() time.Duration {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.endedAt.IsZero() {
		return time.Since(h.startedAt)
	}
	return h.endedAt.Sub(h.startedAt)
}

// Done is closed once the reaping Wait has run the done callback, so
// callers can select on it against a timer.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until every drain worker has finished and the process has
// exited, and returns the exit code. The caller that reaps the process also
// runs the done callback before returning. Every other call, including one
// made from inside the done callback, returns the same code as soon as the
// exit status is known; use Done to wait for the callbacks as well.
func (h *Handle) Wait() int {
	reaper := false
	h.waitOnce.Do(func() {
		reaper = true
		h.reap()
	})
	if reaper {
		h.complete()
	}
	return h.ExitCode()
}

// reap joins the drain workers and collects the exit status.
func (h *Handle) reap() {
	if r := h.workers.WaitAndRecover(); r != nil {
		h.addErr(fmt.Errorf("drain worker: %w", r.AsError()))
	}

	waitErr := h.cmd.Wait()
	code := exitCodeOf(h.cmd.ProcessState)
	status := StatusExited
	if signaled(h.cmd.ProcessState) {
		status = StatusKilled
	}

	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		h.addErr(fmt.Errorf("wait: %w", waitErr))
	}

	h.mu.Lock()
	h.exitCode = code
	h.status = status
	h.endedAt = time.Now()
	h.mu.Unlock()

	log.Debug(log.CatExec, "process reaped",
		"id", h.id, "pid", h.PID(), "exit_code", code, "status", status, "runtime", h.Runtime())
}

// complete runs the done callback and the exit hook, then closes Done.
// It runs outside waitOnce so the callbacks may call Wait.
func (h *Handle) complete() {
	defer close(h.done)

	code := h.ExitCode()
	if h.onDone != nil {
		if r := panics.Try(func() { h.onDone(h, code == 0, code) }); r != nil {
			err := fmt.Errorf("done callback: %w: %w", ErrConsumerPanic, r.AsError())
			log.ErrorErr(log.CatExec, "done callback panicked", err, "id", h.id)
			h.addErr(err)
		}
	}

	if h.onExit != nil {
		h.onExit(h)
	}
}

// Kill ends the process immediately (SIGKILL on unix). It does not wait;
// call Wait to collect the exit status. Killing an exited process is a no-op.
func (h *Handle) Kill() error {
	if h.cmd.Process == nil {
		return nil
	}
	log.Debug(log.CatExec, "kill requested", "id", h.id, "pid", h.PID())
	h.spanEvent(tracing.EventKilled)
	if err := h.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill pid %d: %w", h.PID(), err)
	}
	return nil
}

// Terminate asks the process to exit (SIGTERM on unix, which the child may
// handle; on windows it is the same as Kill). It does not wait.
func (h *Handle) Terminate() error {
	if h.cmd.Process == nil {
		return nil
	}
	log.Debug(log.CatExec, "terminate requested", "id", h.id, "pid", h.PID())
	h.spanEvent(tracing.EventTerminated)
	if err := terminateProcess(h.cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("terminate pid %d: %w", h.PID(), err)
	}
	return nil
}

// WaitContext waits like Wait but gives up when ctx is done, killing the
// process first. The exit code is then the one the killed process reports.
func (h *Handle) WaitContext(ctx context.Context) (int, error) {
	go h.Wait()
	select {
	case <-h.done:
		return h.ExitCode(), nil
	case <-ctx.Done():
		if err := h.Kill(); err != nil {
			return -1, err
		}
		<-h.done
		return h.ExitCode(), ctx.Err()
	}
}

func (h *Handle) spanEvent(name string, attrs ...attribute.KeyValue) {
	if h.span != nil {
		h.span.AddEvent(name, trace.WithAttributes(attrs...))
	}
}

func (h *Handle) addErr(err error) {
	h.mu.Lock()
	h.errs = append(h.errs, err)
	h.mu.Unlock()
}

// startWorker runs the line reader for one stream on its own goroutine.
// A failing worker is logged and recorded; the other stream and the
// process keep going.
func (h *Handle) startWorker(src io.ReadCloser, consumer Consumer, opts ReadOptions, onFail func(error)) {
	h.workers.Go(func() {
		defer h.spanEvent(tracing.EventStreamClosed, attribute.String(tracing.AttrStream, opts.Stream))
		if err := ReadStream(src, consumer, h.stdin, h, opts); err != nil {
			err = fmt.Errorf("%s: %w", opts.Stream, err)
			h.addErr(err)
			if onFail != nil {
				onFail(err)
			}
		}
	})
}

// startDiscard drains a stream nobody consumes so the child never blocks
// on a full pipe.
func (h *Handle) startDiscard(src io.ReadCloser, stream string) {
	h.workers.Go(func() {
		n, err := io.Copy(io.Discard, src)
		_ = src.Close()
		if err != nil && !errors.Is(err, os.ErrClosed) {
			log.Debug(log.CatStream, "discard drain failed", "stream", stream, "error", err)
		}
		log.Debug(log.CatStream, "discarded unconsumed output", "stream", stream, "bytes", n)
	})
}

// readAll copies a whole stream into dst, keeping partial output on failure.
func (h *Handle) readAll(dst *bytes.Buffer, src io.ReadCloser, stream string) {
	if _, err := io.Copy(dst, src); err != nil && !errors.Is(err, os.ErrClosed) {
		log.Debug(log.CatStream, "read failed, keeping partial output", "stream", stream, "bytes", dst.Len(), "error", err)
		h.addErr(fmt.Errorf("%s: %w: %w", stream, ErrStreamRead, err))
	}
}
