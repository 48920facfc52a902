package weave

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestChannelNotifier(t *testing.T) {
	ctx := context.Background()

	t.Run("Delivers", func(t *testing.T) {
		notifier := NewChannelNotifier(4)
		notifier.Publish(ctx, &Event{Type: EventExecutionStarted, RunID: "run-1"})

		select {
		case event := <-notifier.Events():
			require.Equal(t, EventExecutionStarted, event.Type)
			require.Equal(t, "run-1", event.RunID)
		case <-time.After(time.Second):
			t.Fatal("event was not delivered")
		}
	})

	t.Run("NeverBlocksWhenFull", func(t *testing.T) {
		notifier := NewChannelNotifier(1)
		done := make(chan struct{})
		go func() {
			defer close(done)
			for i := 0; i < 100; i++ {
				notifier.Publish(ctx, &Event{Type: EventNodeCompleted})
			}
		}()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("publisher blocked on a full channel")
		}
	})
}

func TestChainNotifier(t *testing.T) {
	first := NewChannelNotifier(1)
	second := NewChannelNotifier(1)
	chain := NewChainNotifier(NewNullNotifier(), first, second)

	chain.Publish(context.Background(), &Event{Type: EventExecutionCompleted})
	require.Len(t, first.Events(), 1)
	require.Len(t, second.Events(), 1)
}
