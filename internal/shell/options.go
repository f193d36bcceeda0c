package shell

// Options configure one execution. The zero value runs synchronously in a
// new session.
type Options struct {
	// Background returns the *Handle immediately. Streams with a consumer
	// are drained on their own goroutines.
	Background bool

	// Async returns *AsyncLines. Ignored when Background is set.
	Async bool

	// Iterative returns *Lines. Ignored when Background is set; wins over Async.
	Iterative bool

	// OnStdout and OnStderr consume lines in background mode.
	OnStdout Consumer
	OnStderr Consumer

	// OnDone is called exactly once after the process has been reaped.
	OnDone DoneFunc

	// NewSession detaches the child into its own session or process group.
	// Nil means the engine default (true unless configured otherwise).
	NewSession *bool

	// StdoutBufferSize and StderrBufferSize size the line readers.
	// Zero means the engine default.
	StdoutBufferSize int
	StderrBufferSize int
}

// Option is a functional option for Options.
type Option func(*Options)

// WithBackground selects background mode.
func WithBackground() Option {
	return func(o *Options) { o.Background = true }
}

// WithAsync selects asynchronous mode.
func WithAsync() Option {
	return func(o *Options) { o.Async = true }
}

// WithIterative selects iterative mode.
func WithIterative() Option {
	return func(o *Options) { o.Iterative = true }
}

// WithOnStdout sets the stdout consumer.
func WithOnStdout(c Consumer) Option {
	return func(o *Options) { o.OnStdout = c }
}

// WithOnStderr sets the stderr consumer.
func WithOnStderr(c Consumer) Option {
	return func(o *Options) { o.OnStderr = c }
}

// WithOnDone sets the completion callback.
func WithOnDone(fn DoneFunc) Option {
	return func(o *Options) { o.OnDone = fn }
}

// WithNewSession overrides process isolation for this execution.
func WithNewSession(enabled bool) Option {
	return func(o *Options) { o.NewSession = &enabled }
}

// WithBufferSizes sets the stdout and stderr line reader buffer sizes.
func WithBufferSizes(stdout, stderr int) Option {
	return func(o *Options) {
		o.StdoutBufferSize = stdout
		o.StderrBufferSize = stderr
	}
}

// NewOptions builds Options from functional options.
func NewOptions(opts ...Option) Options {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Mode resolves the mode flags: Background, then Iterative, then Async,
// else synchronous.
func (o Options) Mode() Mode {
	switch {
	case o.Background:
		return ModeBackground
	case o.Iterative:
		return ModeIterative
	case o.Async:
		return ModeAsync
	default:
		return ModeSync
	}
}
