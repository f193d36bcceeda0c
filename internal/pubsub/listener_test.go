package pubsub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestListener_Next_ReceivesEvent(t *testing.T) {
	broker := NewBroker[string]()
	defer broker.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := NewListener[string](ctx, broker)
	broker.Publish(StartedEvent, "sh")

	event, ok := l.Next()
	require.True(t, ok)
	require.Equal(t, StartedEvent, event.Type)
	require.Equal(t, "sh", event.Payload)
}

func TestListener_Next_ContextCancelled(t *testing.T) {
	broker := NewBroker[string]()
	defer broker.Close()

	ctx, cancel := context.WithCancel(context.Background())
	l := NewListener[string](ctx, broker)

	done := make(chan bool)
	go func() {
		_, ok := l.Next()
		done <- ok
	}()

	cancel()

	select {
	case ok := <-done:
		require.False(t, ok)
	case <-time.After(time.Second):
		require.Fail(t, "Next did not return after cancel")
	}
}

func TestListener_Next_BrokerClosed(t *testing.T) {
	broker := NewBroker[int]()
	l := NewListener[int](context.Background(), broker)

	broker.Close()

	_, ok := l.Next()
	require.False(t, ok)
}
