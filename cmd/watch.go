package cmd

import (
	"context"
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
	"github.com/zjrosen/xh/internal/shell"
	"github.com/zjrosen/xh/internal/watcher"
)

var watchPaths []string

// terminateGrace is how long a terminated child gets before it is killed.
var terminateGrace = 5 * time.Second

var watchCmd = &cobra.Command{
	Use:   "watch --path P [--path P2] -- NAME [ARGS...]",
	Short: "Run a program and restart it when files change",
	Long: `Run NAME in the background and restart it whenever a file under one of
the watched paths changes. Directories are watched recursively; bursts of
changes are coalesced using watch.debounce from the config.

Examples:
  xh watch --path ./cmd --path ./internal -- go run .
  xh watch --path config.yaml -- ./server --port 8080`,
	Args: cobra.MinimumNArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringArrayVarP(&watchPaths, "path", "p", nil, "file or directory to watch (repeatable)")
	_ = watchCmd.MarkFlagRequired("path")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	r, err := newRunner(cfg, flags.FlagDrainUnconsumed)
	if err != nil {
		return err
	}
	defer r.Close()

	wcfg := watcher.DefaultConfig(watchPaths...)
	if cfg.Watch.Debounce > 0 {
		wcfg.DebounceDur = cfg.Watch.Debounce
	}
	w, err := watcher.New(wcfg)
	if err != nil {
		return err
	}
	defer func() { _ = w.Stop() }()

	changes, err := w.Start()
	if err != nil {
		return fmt.Errorf("watching paths: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	code, err := supervise(ctx, r.engine, args[0], args[1:], changes, cmd.OutOrStdout(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	return exitError(code)
}

// supervise keeps name running in background mode, restarting it on every
// signal from changes, until ctx is done. It returns the exit code of the
// last run.
func supervise(ctx context.Context, e *shell.Engine, name string, args []string, changes <-chan struct{}, stdout, stderr io.Writer) (int, error) {
	var mu sync.Mutex
	copyTo := func(w io.Writer) shell.Consumer {
		return shell.LineFunc(func(line shell.Text) shell.Action {
			mu.Lock()
			defer mu.Unlock()
			_, _ = w.Write(line.Bytes())
			return shell.Continue
		})
	}
	start := func() (*shell.Handle, error) {
		// The child must outlive a cancelled ctx long enough to be terminated
		return e.Start(context.WithoutCancel(ctx), name, args,
			shell.WithOnStdout(copyTo(stdout)),
			shell.WithOnStderr(copyTo(stderr)),
		)
	}

	h, err := start()
	if err != nil {
		return -1, err
	}
	restarts := 0

	for {
		select {
		case <-ctx.Done():
			return stopChild(h), nil

		case _, ok := <-changes:
			if !ok {
				return h.Wait(), nil
			}
			code := stopChild(h)
			restarts++
			log.Info(log.CatWatch, "restarting", "name", name, "previous_exit", code, "restarts", restarts)

			// A rebuild may have moved the program on PATH
			e.Forget(ctx, name)

			h, err = start()
			if err != nil {
				return -1, err
			}
		}
	}
}

// stopChild terminates h, escalating to Kill after terminateGrace, and
// returns its exit code.
func stopChild(h *shell.Handle) int {
	select {
	case <-h.Done():
		return h.ExitCode()
	default:
	}

	if err := h.Terminate(); err != nil {
		log.ErrorErr(log.CatWatch, "terminate failed", err, "pid", h.PID())
	}
	go h.Wait()

	select {
	case <-h.Done():
	case <-time.After(terminateGrace):
		log.Warn(log.CatWatch, "child ignored terminate, killing", "pid", h.PID())
		_ = h.Kill()
		<-h.Done()
	}
	return h.ExitCode()
}
