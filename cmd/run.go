package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/zjrosen/xh/internal/flags"
	"github.com/zjrosen/xh/internal/log"
	"github.com/zjrosen/xh/internal/pubsub"
	"github.com/zjrosen/xh/internal/shell"
)

var (
	runIter         bool
	runAsync        bool
	runBackground   bool
	runTimeout      time.Duration
	runNoNewSession bool
	runStderr       bool
	runEvents       bool
)

var runCmd = &cobra.Command{
	Use:   "run [flags] -- NAME [ARGS...]",
	Short: "Run a program and print its output",
	Long: `Run NAME with ARGS exactly as given and print its output. xh exits with
the program's exit status (128+N when it was killed by signal N).

By default the program runs to completion and its stdout is printed at the
end. The mode flags change how output is consumed:

  --iter    print stdout line by line as it arrives
  --async   same, with lines read on a separate goroutine
  --bg      start in the background and stream output through callbacks

--events prints the engine's lifecycle events (started, exited,
worker_failed) to stderr as they happen.

Examples:
  xh run -- git log -n 5
  xh run --iter -- ping -c 3 localhost
  xh run --bg --stderr --timeout 10s -- make test`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().BoolVar(&runIter, "iter", false, "print stdout line by line")
	runCmd.Flags().BoolVar(&runAsync, "async", false, "read stdout lines on a separate goroutine")
	runCmd.Flags().BoolVar(&runBackground, "bg", false, "run in the background with line callbacks")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "kill the program after this long (0 = no limit)")
	runCmd.Flags().BoolVar(&runNoNewSession, "no-new-session", false, "keep the program in xh's session")
	runCmd.Flags().BoolVar(&runStderr, "stderr", false, "also print the program's stderr")
	runCmd.Flags().BoolVar(&runEvents, "events", false, "print lifecycle events to stderr")
	rootCmd.AddCommand(runCmd)
}

// runSelection is the parsed form of the run flags.
type runSelection struct {
	opts    []shell.Option
	timeout time.Duration
	stderr  bool
}

func selection() runSelection {
	var opts []shell.Option
	switch {
	case runBackground:
		opts = append(opts, shell.WithBackground())
	case runIter:
		opts = append(opts, shell.WithIterative())
	case runAsync:
		opts = append(opts, shell.WithAsync())
	}
	if runNoNewSession {
		opts = append(opts, shell.WithNewSession(false))
	}
	return runSelection{opts: opts, timeout: runTimeout, stderr: runStderr}
}

func runRun(cmd *cobra.Command, args []string) error {
	// Streaming modes never read stderr themselves
	r, err := newRunner(cfg, flags.FlagDrainUnconsumed)
	if err != nil {
		return err
	}
	defer r.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if runEvents {
		defer printEvents(ctx, r.engine, cmd.ErrOrStderr())()
	}

	code, err := execute(ctx, r.engine, args[0], args[1:], selection(), cmd.OutOrStdout(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	return exitError(code)
}

// execute runs one program in the selected mode, copying its output to
// stdout and stderr, and returns its exit code.
func execute(ctx context.Context, e *shell.Engine, name string, args []string, sel runSelection, stdout, stderr io.Writer) (int, error) {
	mode := shell.NewOptions(sel.opts...).Mode()
	if sel.timeout > 0 && mode != shell.ModeBackground {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, sel.timeout)
		defer cancel()
	}

	call := []any{args, sel.opts}
	if mode == shell.ModeBackground {
		var mu sync.Mutex
		write := func(w io.Writer) shell.Consumer {
			return shell.LineFunc(func(line shell.Text) shell.Action {
				mu.Lock()
				defer mu.Unlock()
				_, _ = w.Write(line.Bytes())
				return shell.Continue
			})
		}
		call = append(call, shell.WithOnStdout(write(stdout)))
		if sel.stderr {
			call = append(call, shell.WithOnStderr(write(stderr)))
		}
	}

	res, err := e.Command(name).Call(ctx, call...)
	if err != nil {
		return -1, err
	}

	switch r := res.(type) {
	case *shell.Completed:
		_, _ = stdout.Write(r.Stdout.Bytes())
		if sel.stderr {
			_, _ = stderr.Write(r.Stderr.Bytes())
		}
		return r.ExitCode, nil

	case *shell.Lines:
		for line := range r.All() {
			_, _ = stdout.Write(line.Bytes())
		}
		return r.Handle().ExitCode(), nil

	case *shell.AsyncLines:
		defer r.Close()
		for {
			line, err := r.Next(ctx)
			if errors.Is(err, io.EOF) {
				return r.Handle().ExitCode(), nil
			}
			if err != nil {
				// Cancelled: the context already killed the process
				r.Close()
				return r.Handle().Wait(), nil
			}
			_, _ = stdout.Write(line.Bytes())
		}

	case *shell.Handle:
		if sel.timeout <= 0 {
			return r.Wait(), nil
		}
		tctx, cancel := context.WithTimeout(ctx, sel.timeout)
		defer cancel()
		code, err := r.WaitContext(tctx)
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			log.Warn(log.CatExec, "timeout reached, killed", "name", name, "timeout", sel.timeout)
			err = nil
		case errors.Is(err, context.Canceled):
			err = nil
		}
		return code, err

	default:
		return -1, fmt.Errorf("unexpected result type %T", res)
	}
}

// printEvents writes one line per engine lifecycle event to w. The returned
// function closes the engine's event stream and waits for the printer to
// drain it.
func printEvents(ctx context.Context, e *shell.Engine, w io.Writer) func() {
	l := pubsub.NewListener[shell.Event](context.WithoutCancel(ctx), e)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			ev, ok := l.Next()
			if !ok {
				return
			}
			_, _ = fmt.Fprintln(w, formatEvent(ev))
		}
	}()
	return func() {
		e.Close()
		<-done
		if n := e.DroppedEvents(); n > 0 {
			_, _ = fmt.Fprintf(w, "xh: %d events dropped\n", n)
		}
	}
}

func formatEvent(ev pubsub.Event[shell.Event]) string {
	p := ev.Payload
	line := fmt.Sprintf("xh: %s %s pid=%d run=%s", ev.Type, p.Mode, p.PID, shortID(p.RunID))
	switch ev.Type {
	case pubsub.StartedEvent:
		line += " argv=" + formatArgv(p.Argv, 60)
	case pubsub.ExitedEvent:
		line += fmt.Sprintf(" exit=%d", p.ExitCode)
	case pubsub.WorkerFailedEvent:
		line += fmt.Sprintf(" error=%v", p.Err)
	}
	return line
}
