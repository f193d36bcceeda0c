package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/zjrosen/xh/internal/flags"
	"github.com/zjrosen/xh/internal/history"
	"github.com/zjrosen/xh/internal/log"
	"github.com/zjrosen/xh/internal/pubsub"
	"github.com/zjrosen/xh/internal/tracing"
)

// Event is the payload of lifecycle events published by the engine.
type Event struct {
	RunID    string
	Argv     []string
	Mode     Mode
	PID      int
	ExitCode int // -1 until exited
	Err      error
}

// Recorder persists finished runs. It is called synchronously from Wait.
type Recorder interface {
	Record(ctx context.Context, run history.Run) error
}

// Engine spawns processes and dispatches them to a consumption mode.
type Engine struct {
	resolver   *Resolver
	decoder    *Decoder
	flags      *flags.Registry
	tracer     trace.Tracer
	events     *pubsub.Broker[Event]
	recorder   Recorder
	newSession bool
	stdoutBuf  int
	stderrBuf  int
	newID      func() string
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithResolver sets how program names are resolved.
func WithResolver(r *Resolver) EngineOption {
	return func(e *Engine) { e.resolver = r }
}

// WithDecoder sets the output decoder.
func WithDecoder(d *Decoder) EngineOption {
	return func(e *Engine) { e.decoder = d }
}

// WithFlags sets the feature flag registry.
func WithFlags(f *flags.Registry) EngineOption {
	return func(e *Engine) { e.flags = f }
}

// WithTracer sets the tracer used for execution spans.
func WithTracer(t trace.Tracer) EngineOption {
	return func(e *Engine) { e.tracer = t }
}

// WithRecorder records every finished run.
func WithRecorder(r Recorder) EngineOption {
	return func(e *Engine) { e.recorder = r }
}

// WithDefaultNewSession sets process isolation for executions that do not
// choose it themselves.
func WithDefaultNewSession(enabled bool) EngineOption {
	return func(e *Engine) { e.newSession = enabled }
}

// WithDefaultBufferSizes sets the line reader buffer sizes.
func WithDefaultBufferSizes(stdout, stderr int) EngineOption {
	return func(e *Engine) {
		if stdout > 0 {
			e.stdoutBuf = stdout
		}
		if stderr > 0 {
			e.stderrBuf = stderr
		}
	}
}

// New creates an Engine. Without options it resolves names through a
// 30 second lookup cache, decodes UTF-8 and starts children in a new session.
func New(opts ...EngineOption) *Engine {
	e := &Engine{
		resolver:   NewResolver(30 * time.Second),
		decoder:    UTF8,
		tracer:     noop.NewTracerProvider().Tracer("xh"),
		events:     pubsub.NewBroker[Event](),
		newSession: true,
		stdoutBuf:  DefaultBufferSize,
		stderrBuf:  DefaultBufferSize,
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Subscribe returns lifecycle events (StartedEvent, ExitedEvent,
// WorkerFailedEvent) published after the call.
func (e *Engine) Subscribe(ctx context.Context) <-chan pubsub.Event[Event] {
	return e.events.Subscribe(ctx)
}

// DroppedEvents counts lifecycle events a slow subscriber missed.
func (e *Engine) DroppedEvents() uint64 {
	return e.events.Dropped()
}

// Forget drops the cached executable lookup for name, so the next run
// resolves it from PATH again.
func (e *Engine) Forget(ctx context.Context, name string) {
	e.resolver.Forget(ctx, name)
}

// Close stops event delivery. Running processes are not affected.
func (e *Engine) Close() {
	e.events.Close()
}

// Decoder returns the decoder used for child output.
func (e *Engine) Decoder() *Decoder {
	return e.decoder
}

// Execute spawns name with args and returns the result for the mode that
// opts selects. Failing to spawn is the only error; a non-zero exit is
// reported in the result. Cancelling ctx kills the process.
func (e *Engine) Execute(ctx context.Context, name string, args []string, opts Options) (Result, error) {
	argv := append([]string{name}, args...)
	mode := opts.Mode()
	newSession := e.newSession
	if opts.NewSession != nil {
		newSession = *opts.NewSession
	}

	spanCtx, span := e.tracer.Start(ctx, tracing.SpanPrefixExec+name,
		trace.WithAttributes(
			attribute.String(tracing.AttrCommand, name),
			attribute.StringSlice(tracing.AttrArgv, argv),
			attribute.String(tracing.AttrMode, string(mode)),
			attribute.Bool(tracing.AttrNewSession, newSession),
		),
	)

	fail := func(err error) (Result, error) {
		serr := &SpawnError{Name: name, Argv: argv, Err: err}
		span.RecordError(serr)
		span.SetStatus(codes.Error, serr.Error())
		span.End()
		log.ErrorErr(log.CatExec, "spawn failed", err, "argv", argv)
		return nil, serr
	}

	if name == "" {
		return fail(errors.New("empty program name"))
	}
	path, err := e.resolver.Resolve(ctx, name)
	if err != nil {
		return fail(err)
	}

	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Args[0] = name
	cmd.SysProcAttr = sysProcAttr(newSession)

	stdin, stdout, stderr, err := pipes(cmd)
	if err != nil {
		return fail(err)
	}
	if err := cmd.Start(); err != nil {
		return fail(err)
	}

	h := &Handle{
		id:        e.newID(),
		argv:      argv,
		mode:      mode,
		cmd:       cmd,
		stdin:     stdin,
		stdout:    stdout,
		stderr:    stderr,
		onStdout:  opts.OnStdout,
		onStderr:  opts.OnStderr,
		onDone:    opts.OnDone,
		startedAt: time.Now(),
		status:    StatusRunning,
		exitCode:  -1,
		done:      make(chan struct{}),
		span:      span,
	}
	h.onExit = e.completion(context.WithoutCancel(spanCtx), span)

	span.SetAttributes(
		attribute.String(tracing.AttrRunID, h.id),
		attribute.Int(tracing.AttrPID, h.PID()),
	)
	span.AddEvent(tracing.EventSpawned)
	e.events.Publish(pubsub.StartedEvent, e.event(h))
	log.Debug(log.CatExec, "spawned", "id", h.id, "pid", h.PID(), "argv", argv, "mode", mode, "new_session", newSession)

	outOpts := ReadOptions{
		BufferSize: pick(opts.StdoutBufferSize, e.stdoutBuf),
		Decoder:    e.decoder,
		Stream:     "stdout",
		OnLine:     e.lineObserver(span, "stdout"),
	}
	errOpts := ReadOptions{
		BufferSize: pick(opts.StderrBufferSize, e.stderrBuf),
		Decoder:    e.decoder,
		Stream:     "stderr",
		OnLine:     e.lineObserver(span, "stderr"),
	}

	switch mode {
	case ModeBackground:
		e.startBackground(h, span, outOpts, errOpts)
		return h, nil
	case ModeIterative:
		e.prepareStreaming(h)
		return &Lines{h: h, lr: newLineReader(stdout, outOpts), onLine: outOpts.OnLine}, nil
	case ModeAsync:
		e.prepareStreaming(h)
		return newAsyncLines(h, newLineReader(stdout, outOpts), outOpts.OnLine), nil
	default:
		return e.runSync(h), nil
	}
}

func pipes(cmd *exec.Cmd) (io.WriteCloser, io.ReadCloser, io.ReadCloser, error) {
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		_ = stdin.Close()
		return nil, nil, nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		_ = stdin.Close()
		_ = stdout.Close()
		return nil, nil, nil, fmt.Errorf("stderr pipe: %w", err)
	}
	return stdin, stdout, stderr, nil
}

func pick(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

// startBackground starts one worker per stream that has a consumer.
// Streams without one are left alone unless drain-unconsumed-streams is on.
func (e *Engine) startBackground(h *Handle, span trace.Span, outOpts, errOpts ReadOptions) {
	onFail := func(err error) {
		log.ErrorErr(log.CatStream, "drain worker stopped", err, "id", h.id)
		span.AddEvent(tracing.EventWorkerFailed, trace.WithAttributes(
			attribute.String(tracing.AttrErrorMessage, err.Error()),
		))
		ev := e.event(h)
		ev.Err = err
		e.events.Publish(pubsub.WorkerFailedEvent, ev)
	}

	drain := e.flags.Enabled(flags.FlagDrainUnconsumed)
	streams := []struct {
		src      io.ReadCloser
		consumer Consumer
		opts     ReadOptions
	}{
		{h.stdout, h.onStdout, outOpts},
		{h.stderr, h.onStderr, errOpts},
	}
	for _, s := range streams {
		switch {
		case !s.consumer.IsZero():
			h.startWorker(s.src, s.consumer, s.opts, onFail)
		case drain:
			h.startDiscard(s.src, s.opts.Stream)
		}
	}
}

// prepareStreaming readies a handle for iterative or async reading of
// stdout. No consumer can reach stdin, so it is closed.
func (e *Engine) prepareStreaming(h *Handle) {
	_ = h.stdin.Close()
	if e.flags.Enabled(flags.FlagDrainUnconsumed) {
		h.startDiscard(h.stderr, "stderr")
	}
}

// runSync drains both streams to completion and reaps the process.
func (e *Engine) runSync(h *Handle) *Completed {
	_ = h.stdin.Close()

	var outBuf, errBuf bytes.Buffer
	h.workers.Go(func() { h.readAll(&outBuf, h.stdout, "stdout") })
	h.workers.Go(func() { h.readAll(&errBuf, h.stderr, "stderr") })

	code := h.Wait()
	return &Completed{
		Stdout:   e.decoder.Decode(outBuf.Bytes()),
		Stderr:   e.decoder.Decode(errBuf.Bytes()),
		ExitCode: code,
		handle:   h,
	}
}

func (e *Engine) lineObserver(span trace.Span, stream string) func(Text) {
	if !e.flags.Enabled(flags.FlagTraceLineEvents) {
		return nil
	}
	return func(line Text) {
		span.AddEvent(tracing.EventLine, trace.WithAttributes(
			attribute.String(tracing.AttrStream, stream),
			attribute.Int("bytes", line.Len()),
		))
	}
}

func (e *Engine) event(h *Handle) Event {
	return Event{
		RunID:    h.id,
		Argv:     h.Argv(),
		Mode:     h.mode,
		PID:      h.PID(),
		ExitCode: h.ExitCode(),
		Err:      h.Err(),
	}
}

// completion returns the hook Wait runs after the process is reaped.
func (e *Engine) completion(ctx context.Context, span trace.Span) func(*Handle) {
	return func(h *Handle) {
		code := h.ExitCode()
		err := h.Err()

		span.SetAttributes(
			attribute.Int(tracing.AttrExitCode, code),
			attribute.Bool(tracing.AttrSignaled, h.Status() == StatusKilled),
		)
		switch {
		case err != nil:
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		case code != 0:
			span.SetStatus(codes.Error, fmt.Sprintf("exit code %d", code))
		default:
			span.SetStatus(codes.Ok, "")
		}
		span.End()

		e.events.Publish(pubsub.ExitedEvent, e.event(h))

		if e.recorder == nil {
			return
		}
		run := history.Run{
			ID:        h.id,
			Argv:      h.Argv(),
			Mode:      string(h.mode),
			PID:       h.PID(),
			ExitCode:  code,
			Status:    h.Status().String(),
			StartedAt: h.startedAt,
			Duration:  h.Runtime(),
		}
		if err != nil {
			run.Error = err.Error()
		}
		if rerr := e.recorder.Record(ctx, run); rerr != nil {
			log.ErrorErr(log.CatHistory, "failed to record run", rerr, "id", h.id)
		}
	}
}

// Run executes synchronously.
func (e *Engine) Run(ctx context.Context, name string, args []string, opts ...Option) (*Completed, error) {
	o := NewOptions(opts...)
	o.Background, o.Iterative, o.Async = false, false, false
	res, err := e.Execute(ctx, name, args, o)
	if err != nil {
		return nil, err
	}
	return res.(*Completed), nil
}

// Iter executes in iterative mode.
func (e *Engine) Iter(ctx context.Context, name string, args []string, opts ...Option) (*Lines, error) {
	o := NewOptions(opts...)
	o.Background, o.Iterative = false, true
	res, err := e.Execute(ctx, name, args, o)
	if err != nil {
		return nil, err
	}
	return res.(*Lines), nil
}

// Async executes in asynchronous mode. Close the result unless it is read
// to io.EOF.
func (e *Engine) Async(ctx context.Context, name string, args []string, opts ...Option) (*AsyncLines, error) {
	o := NewOptions(opts...)
	o.Background, o.Iterative, o.Async = false, false, true
	res, err := e.Execute(ctx, name, args, o)
	if err != nil {
		return nil, err
	}
	return res.(*AsyncLines), nil
}

// Start executes in background mode.
func (e *Engine) Start(ctx context.Context, name string, args []string, opts ...Option) (*Handle, error) {
	o := NewOptions(opts...)
	o.Background = true
	res, err := e.Execute(ctx, name, args, o)
	if err != nil {
		return nil, err
	}
	return res.(*Handle), nil
}
