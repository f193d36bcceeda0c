package shell

import "io"

// Action is what a consumer asks the line reader to do next.
type Action int

const (
	// Continue reads the next line.
	Continue Action = iota
	// Stop closes the stream and ends reading immediately.
	Stop
)

func (a Action) String() string {
	if a == Stop {
		return "stop"
	}
	return "continue"
}

// ConsumerKind tags which callback shape a Consumer holds.
type ConsumerKind int

const (
	// NoConsumer is the zero Consumer.
	NoConsumer ConsumerKind = iota
	// LineOnly receives each line.
	LineOnly
	// LineAndStdin also receives the child's stdin, for interactive replies.
	LineAndStdin
	// LineAndStdinAndProcess also receives the Handle, for process control.
	LineAndStdinAndProcess
)

func (k ConsumerKind) String() string {
	switch k {
	case LineOnly:
		return "line"
	case LineAndStdin:
		return "line+stdin"
	case LineAndStdinAndProcess:
		return "line+stdin+process"
	default:
		return "none"
	}
}

// Consumer receives decoded lines from one stream. Build one with
// LineFunc, InteractiveFunc or ControlFunc.
type Consumer struct {
	kind        ConsumerKind
	line        func(Text) Action
	interactive func(Text, io.WriteCloser) Action
	control     func(Text, io.WriteCloser, *Handle) Action
}

// LineFunc wraps a callback that only needs the line.
func LineFunc(fn func(line Text) Action) Consumer {
	if fn == nil {
		return Consumer{}
	}
	return Consumer{kind: LineOnly, line: fn}
}

// InteractiveFunc wraps a callback that may write to the child's stdin.
func InteractiveFunc(fn func(line Text, stdin io.WriteCloser) Action) Consumer {
	if fn == nil {
		return Consumer{}
	}
	return Consumer{kind: LineAndStdin, interactive: fn}
}

// ControlFunc wraps a callback that also gets the process handle.
func ControlFunc(fn func(line Text, stdin io.WriteCloser, h *Handle) Action) Consumer {
	if fn == nil {
		return Consumer{}
	}
	return Consumer{kind: LineAndStdinAndProcess, control: fn}
}

// Kind reports the callback shape.
func (c Consumer) Kind() ConsumerKind {
	return c.kind
}

// IsZero reports whether no callback is set.
func (c Consumer) IsZero() bool {
	return c.kind == NoConsumer
}

func (c Consumer) call(line Text, stdin io.WriteCloser, h *Handle) Action {
	switch c.kind {
	case LineOnly:
		return c.line(line)
	case LineAndStdin:
		return c.interactive(line, stdin)
	case LineAndStdinAndProcess:
		return c.control(line, stdin, h)
	default:
		return Continue
	}
}
