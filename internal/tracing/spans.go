package tracing

// Span attribute keys for execution spans.
const (
	AttrRunID      = "xh.run.id"
	AttrCommand    = "xh.command"
	AttrArgv       = "xh.argv"
	AttrMode       = "xh.mode"
	AttrPID        = "process.pid"
	AttrExitCode   = "process.exit_code"
	AttrSignaled   = "process.signaled"
	AttrNewSession = "process.new_session"
	AttrStream     = "xh.stream"

	AttrErrorMessage = "error.message"
)

// SpanPrefixExec prefixes execution span names, e.g. "exec.git".
const SpanPrefixExec = "exec."

// Event names for span events.
const (
	EventSpawned      = "process.spawned"
	EventStreamClosed = "stream.closed"
	EventWorkerFailed = "worker.failed"
	EventLine         = "stream.line"
	EventKilled       = "process.kill_requested"
	EventTerminated   = "process.terminate_requested"
)
