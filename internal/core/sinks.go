package core

import (
	"context"
)

// LogEventSink writes each event through the structured logger.
type LogEventSink struct {
	logger Logger
}

// NewLogEventSink returns a sink that logs events at info level.
func NewLogEventSink(logger Logger) *LogEventSink {
	if logger == nil {
		logger = noopLogger{}
	}
	return &LogEventSink{logger: logger}
}

// Emit implements EventSink.
func (s *LogEventSink) Emit(_ context.Context, ev Event) {
	s.logger.Info("event",
		"type", ev.EventType,
		"entity", string(ev.EntityType),
		"entity_id", ev.EntityID,
		"actor", ev.Actor,
	)
}

// ChannelEventSink buffers events on a channel for an external consumer.
// Events are dropped when the buffer is full; the emitting operation
// never blocks.
type ChannelEventSink struct {
	ch chan Event
}

// NewChannelEventSink returns a sink buffering up to size events.
func NewChannelEventSink(size int) *ChannelEventSink {
	if size <= 0 {
		size = 64
	}
	return &ChannelEventSink{ch: make(chan Event, size)}
}

// Emit implements EventSink.
func (s *ChannelEventSink) Emit(_ context.Context, ev Event) {
	select {
	case s.ch <- ev:
	default:
	}
}

// Events exposes the receive side of the buffer.
func (s *ChannelEventSink) Events() <-chan Event {
	return s.ch
}
