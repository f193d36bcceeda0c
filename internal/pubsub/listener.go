package pubsub

import "context"

// Listener wraps a broker subscription for pull-style consumption.
type Listener[T any] struct {
	ctx context.Context
	ch  <-chan Event[T]
}

// NewListener subscribes to the broker. The subscription is cleaned up
// when ctx is cancelled.
func NewListener[T any](ctx context.Context, sub Subscriber[T]) *Listener[T] {
	return &Listener[T]{
		ctx: ctx,
		ch:  sub.Subscribe(ctx),
	}
}

// Next blocks until the next event arrives.
// Returns false once the context is cancelled or the broker is closed.
func (l *Listener[T]) Next() (Event[T], bool) {
	var zero Event[T]
	select {
	case <-l.ctx.Done():
		return zero, false
	case event, ok := <-l.ch:
		if !ok {
			return zero, false
		}
		return event, true
	}
}
