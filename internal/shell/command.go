package shell

import (
	"context"
	"fmt"

	"github.com/spf13/cast"
)

// Command is a program name bound to an Engine.
//
//	git := engine.Command("git")
//	res, err := git.Run(ctx, "log", "-n", 5, shell.WithNewSession(false))
type Command struct {
	engine *Engine
	name   string
}

// Command returns an invocable bound to name. Nothing is looked up until
// the command is called.
func (e *Engine) Command(name string) *Command {
	return &Command{engine: e, name: name}
}

// Name returns the program name.
func (c *Command) Name() string {
	return c.name
}

func (c *Command) String() string {
	return fmt.Sprintf("Command(%s)", c.name)
}

// Call executes the command. Arguments of type Option (or []Option) set
// options and never reach argv; []string values are spliced in; every
// other value is converted to one argv token.
func (c *Command) Call(ctx context.Context, args ...any) (Result, error) {
	argv, opts, err := splitArgs(args)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.name, err)
	}
	return c.engine.Execute(ctx, c.name, argv, NewOptions(opts...))
}

// Run calls the command synchronously.
func (c *Command) Run(ctx context.Context, args ...any) (*Completed, error) {
	argv, opts, err := splitArgs(args)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.name, err)
	}
	return c.engine.Run(ctx, c.name, argv, opts...)
}

// Iter calls the command in iterative mode.
func (c *Command) Iter(ctx context.Context, args ...any) (*Lines, error) {
	argv, opts, err := splitArgs(args)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.name, err)
	}
	return c.engine.Iter(ctx, c.name, argv, opts...)
}

// Async calls the command in asynchronous mode.
func (c *Command) Async(ctx context.Context, args ...any) (*AsyncLines, error) {
	argv, opts, err := splitArgs(args)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.name, err)
	}
	return c.engine.Async(ctx, c.name, argv, opts...)
}

// Start calls the command in background mode.
func (c *Command) Start(ctx context.Context, args ...any) (*Handle, error) {
	argv, opts, err := splitArgs(args)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.name, err)
	}
	return c.engine.Start(ctx, c.name, argv, opts...)
}

func splitArgs(args []any) ([]string, []Option, error) {
	argv := make([]string, 0, len(args))
	var opts []Option
	for i, arg := range args {
		switch v := arg.(type) {
		case Option:
			opts = append(opts, v)
		case []Option:
			opts = append(opts, v...)
		case []string:
			argv = append(argv, v...)
		case fmt.Stringer:
			argv = append(argv, v.String())
		default:
			s, err := cast.ToStringE(arg)
			if err != nil {
				return nil, nil, fmt.Errorf("argument %d: %w", i, err)
			}
			argv = append(argv, s)
		}
	}
	return argv, opts, nil
}
