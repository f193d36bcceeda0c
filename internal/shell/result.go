package shell

import (
	"context"
	"fmt"
	"io"
	"iter"
	"sync"
	"sync/atomic"
)

// Result is what Execute returns: exactly one of *Completed, *Lines,
// *AsyncLines or *Handle, selected by Options.Mode.
type Result interface {
	isResult()
}

var (
	_ Result = (*Completed)(nil)
	_ Result = (*Lines)(nil)
	_ Result = (*AsyncLines)(nil)
	_ Result = (*Handle)(nil)
)

// Completed is the outcome of a synchronous execution.
type Completed struct {
	Stdout   Text
	Stderr   Text
	ExitCode int

	handle *Handle
}

func (c *Completed) isResult() {}

// Success reports whether the exit code is 0.
func (c *Completed) Success() bool {
	return c.ExitCode == 0
}

// String returns stdout.
func (c *Completed) String() string {
	return c.Stdout.String()
}

// Handle returns the reaped process handle.
func (c *Completed) Handle() *Handle {
	return c.handle
}

// Err reports stream read failures; partial output is still in Stdout
// and Stderr.
func (c *Completed) Err() error {
	return c.handle.Err()
}

// Lines is a single-pass sequence of stdout lines read on the caller's
// goroutine. When the lines run out, or iteration stops early, stdout is
// closed and the process is reaped. Stderr is not drained.
//
// Lines is not safe for concurrent use.
type Lines struct {
	h       *Handle
	lr      *lineReader
	onLine  func(Text)
	started atomic.Bool

	exhausted  bool
	err        error
	finishOnce sync.Once
}

func (l *Lines) isResult() {}

// Handle returns the process handle.
func (l *Lines) Handle() *Handle {
	return l.h
}

// Next returns the next line with its terminator, or false once stdout is
// exhausted. The process has been reaped by the time Next returns false.
func (l *Lines) Next() (Text, bool) {
	if l.exhausted {
		l.finish()
		return Text{}, false
	}

	line, ok, err := l.lr.next()
	if err != nil {
		l.err = err
		l.h.addErr(fmt.Errorf("stdout: %w", err))
		l.exhausted = true
	}
	if ok {
		if l.onLine != nil {
			l.onLine(line)
		}
		return line, true
	}

	l.exhausted = true
	l.finish()
	return Text{}, false
}

// All returns the lines as a range-over-func sequence. Only the first call
// yields anything; later calls yield nothing and Err reports
// ErrAlreadyConsumed.
func (l *Lines) All() iter.Seq[Text] {
	return func(yield func(Text) bool) {
		if l.started.Swap(true) {
			if l.err == nil {
				l.err = ErrAlreadyConsumed
			}
			return
		}
		defer l.finish()

		for {
			line, ok := l.Next()
			if !ok || !yield(line) {
				return
			}
		}
	}
}

// Close abandons the remaining lines, closing stdout and reaping the process.
func (l *Lines) Close() {
	l.exhausted = true
	l.finish()
}

// Err returns the stream read failure that ended iteration, if any.
func (l *Lines) Err() error {
	return l.err
}

func (l *Lines) finish() {
	l.finishOnce.Do(func() {
		_ = l.h.stdout.Close()
		l.h.Wait()
	})
}

// AsyncLines delivers stdout lines read on a separate goroutine. The
// reader blocks until each line is received, so the child is paced by the
// consumer. Only one goroutine may call Next at a time.
//
// Callers must either read until Next returns io.EOF or call Close.
// Otherwise the reader goroutine stays parked on its next line and the
// child is never reaped.
type AsyncLines struct {
	h         *Handle
	ch        chan Text
	quit      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
	receiving atomic.Bool

	mu  sync.Mutex
	err error
}

func (a *AsyncLines) isResult() {}

func newAsyncLines(h *Handle, lr *lineReader, onLine func(Text)) *AsyncLines {
	a := &AsyncLines{
		h:       h,
		ch:      make(chan Text),
		quit:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go a.run(lr, onLine)
	return a
}

func (a *AsyncLines) run(lr *lineReader, onLine func(Text)) {
	defer close(a.stopped)
	defer close(a.ch)
	defer func() {
		_ = a.h.stdout.Close()
		a.h.Wait()
	}()

	for {
		line, ok, err := lr.next()
		if ok {
			if onLine != nil {
				onLine(line)
			}
			select {
			case a.ch <- line:
			case <-a.quit:
				return
			}
		}
		if err != nil {
			a.mu.Lock()
			a.err = err
			a.mu.Unlock()
			a.h.addErr(fmt.Errorf("stdout: %w", err))
			return
		}
		if !ok {
			return
		}
	}
}

// Handle returns the process handle.
func (a *AsyncLines) Handle() *Handle {
	return a.h
}

// Next waits for the next line. It returns io.EOF after the last line, by
// which time the process has been reaped and the done callback has run.
// It returns ctx.Err() if ctx ends first, and ErrAlreadyConsumed if
// another goroutine is already inside Next.
func (a *AsyncLines) Next(ctx context.Context) (Text, error) {
	if !a.receiving.CompareAndSwap(false, true) {
		return Text{}, ErrAlreadyConsumed
	}
	defer a.receiving.Store(false)

	select {
	case line, ok := <-a.ch:
		if !ok {
			return Text{}, io.EOF
		}
		return line, nil
	case <-ctx.Done():
		return Text{}, ctx.Err()
	}
}

// Close abandons the remaining lines: stdout is closed, and Close returns
// once the process has been reaped.
func (a *AsyncLines) Close() {
	a.closeOnce.Do(func() {
		close(a.quit)
		_ = a.h.stdout.Close()
	})
	<-a.stopped
}

// Err returns the stream read failure that ended reading, if any.
func (a *AsyncLines) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}
