package weave

import (
	"context"
	"log/slog"
	"time"
)

// Event is a notification emitted by the engine or the approval gate when
// something a human might care about happens: runs changing state, approval
// requests opening and resolving.
type Event struct {
	Type       string         `json:"type"`
	WorkflowID string         `json:"workflow_id,omitempty"`
	RunID      string         `json:"run_id,omitempty"`
	NodeID     string         `json:"node_id,omitempty"`
	RequestID  string         `json:"request_id,omitempty"`
	Message    string         `json:"message,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// Notifier delivers events to an external side channel. Delivery is
// fire-and-forget: implementations must not block workflow progress and
// delivery failures never propagate to the caller.
type Notifier interface {
	Publish(ctx context.Context, event *Event)
}

// NullNotifier discards all events.
type NullNotifier struct{}

func NewNullNotifier() *NullNotifier { return &NullNotifier{} }

func (n *NullNotifier) Publish(ctx context.Context, event *Event) {}

// SlogNotifier writes events to a structured logger.
type SlogNotifier struct {
	logger *slog.Logger
}

func NewSlogNotifier(logger *slog.Logger) *SlogNotifier {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SlogNotifier{logger: logger}
}

func (n *SlogNotifier) Publish(ctx context.Context, event *Event) {
	n.logger.InfoContext(ctx, "workflow event",
		"type", event.Type,
		"workflow_id", event.WorkflowID,
		"run_id", event.RunID,
		"node_id", event.NodeID,
		"request_id", event.RequestID,
		"message", event.Message)
}

// ChainNotifier fans one event out to multiple notifiers in order.
type ChainNotifier struct {
	notifiers []Notifier
}

func NewChainNotifier(notifiers ...Notifier) *ChainNotifier {
	return &ChainNotifier{notifiers: notifiers}
}

func (n *ChainNotifier) Publish(ctx context.Context, event *Event) {
	for _, notifier := range n.notifiers {
		notifier.Publish(ctx, event)
	}
}

// ChannelNotifier delivers events to a Go channel. Events are dropped when
// the channel is full so a slow consumer cannot stall execution.
type ChannelNotifier struct {
	events chan *Event
}

func NewChannelNotifier(buffer int) *ChannelNotifier {
	if buffer <= 0 {
		buffer = 64
	}
	return &ChannelNotifier{events: make(chan *Event, buffer)}
}

// Events returns the receive side of the notifier.
func (n *ChannelNotifier) Events() <-chan *Event {
	return n.events
}

func (n *ChannelNotifier) Publish(ctx context.Context, event *Event) {
	select {
	case n.events <- event:
	default:
	}
}
