// Package pubsub provides a generic publish/subscribe event system.
// The engine publishes process lifecycle events on it.
package pubsub

import (
	"context"
	"time"
)

// EventType represents the type of event being published.
type EventType string

const (
	// StartedEvent is published after a child process has been spawned.
	StartedEvent EventType = "started"
	// ExitedEvent is published once a child's exit status has been collected.
	ExitedEvent EventType = "exited"
	// WorkerFailedEvent is published when a stream drain worker stops on a failure.
	WorkerFailedEvent EventType = "worker_failed"
)

// Event represents a published event with a typed payload.
type Event[T any] struct {
	Type      EventType
	Payload   T
	Timestamp time.Time
}

// Subscriber provides a subscription channel for events.
type Subscriber[T any] interface {
	Subscribe(ctx context.Context) <-chan Event[T]
}
