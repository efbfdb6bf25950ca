package domain

import (
	"context"
	"time"
)

// Event is the outbound record emitted after a committed transition,
// movement append, or QC append. The core only emits events; delivery to
// audit logs or notification channels is an external concern.
type Event struct {
	EntityType EntityType     `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	EventType  string         `json:"event_type"`
	Actor      string         `json:"actor"`
	Timestamp  time.Time      `json:"timestamp"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Event type identifiers.
const (
	EventSampleCreated       = "sample.created"
	EventSampleStatusChanged = "sample.status_changed"
	EventSampleAnnotated     = "sample.annotated"
	EventMovementAppended    = "movement.appended"
	EventQCRecorded          = "qc.recorded"
	EventLocationProvisioned = "location.provisioned"
	EventZoneProvisioned     = "zone.provisioned"
)

// EventSink receives emitted events. Implementations must not block the
// calling operation; slow consumers should buffer internally.
type EventSink interface {
	Emit(ctx context.Context, event Event)
}

// NoopEventSink discards all events.
type NoopEventSink struct{}

// Emit implements EventSink.
func (NoopEventSink) Emit(context.Context, Event) {}
