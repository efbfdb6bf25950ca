package core

import (
	"context"
	"testing"
	"time"

	"samplecore/pkg/domain"
)

func TestEventsFromChanges(t *testing.T) {
	at := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	locID := "loc-1"

	changes := []Change{
		{Entity: EntitySample, Action: ActionCreate, After: Sample{Base: Base{ID: "s1"}, Barcode: "BC1", Status: StatusPending}},
		{Entity: EntitySample, Action: ActionUpdate,
			Before: Sample{Base: Base{ID: "s1"}, Status: StatusPending},
			After:  Sample{Base: Base{ID: "s1"}, Status: StatusValidated}},
		{Entity: EntityMovement, Action: ActionCreate, After: MovementRecord{SampleID: "s1", ToLocationID: &locID, Seq: 1, Reason: "assign"}},
		{Entity: EntityQCResult, Action: ActionCreate, After: QCResult{SampleID: "s1", QCType: "initial_qc", Outcome: QCPass}},
		{Entity: EntityStorageZone, Action: ActionCreate, After: StorageZone{Base: Base{ID: "z1"}, Name: "Freezer", Category: ZoneUltraLowFreezer}},
		{Entity: EntityStorageLocation, Action: ActionCreate, After: StorageLocation{Base: Base{ID: locID}, ZoneID: "z1", Code: "A1"}},
		// occupancy flips ride along with their movement event
		{Entity: EntityStorageLocation, Action: ActionUpdate, After: StorageLocation{Base: Base{ID: locID}}},
	}

	events := eventsFromChanges(changes, "alice", at)
	wantTypes := []string{
		domain.EventSampleCreated,
		domain.EventSampleStatusChanged,
		domain.EventMovementAppended,
		domain.EventQCRecorded,
		domain.EventZoneProvisioned,
		domain.EventLocationProvisioned,
	}
	if len(events) != len(wantTypes) {
		t.Fatalf("expected %d events, got %d", len(wantTypes), len(events))
	}
	for i, ev := range events {
		if ev.EventType != wantTypes[i] {
			t.Fatalf("event %d: got %s, want %s", i, ev.EventType, wantTypes[i])
		}
		if ev.Actor != "alice" || !ev.Timestamp.Equal(at) {
			t.Fatalf("event %d attribution: %+v", i, ev)
		}
	}

	status := events[1]
	if status.Metadata["from"] != string(StatusPending) || status.Metadata["to"] != string(StatusValidated) {
		t.Fatalf("status event metadata: %+v", status.Metadata)
	}
	movement := events[2]
	if movement.Metadata["to_location_id"] != locID || movement.Metadata["reason"] != "assign" {
		t.Fatalf("movement event metadata: %+v", movement.Metadata)
	}
}

func TestAnnotationEmitsAnnotatedEvent(t *testing.T) {
	changes := []Change{{
		Entity: EntitySample, Action: ActionUpdate,
		Before: Sample{Base: Base{ID: "s1"}, Status: StatusCompleted},
		After:  Sample{Base: Base{ID: "s1"}, Status: StatusCompleted, Metadata: map[string]any{"note": "x"}},
	}}
	events := eventsFromChanges(changes, "a", time.Now())
	if len(events) != 1 || events[0].EventType != domain.EventSampleAnnotated {
		t.Fatalf("expected annotated event, got %+v", events)
	}
}

func TestChannelEventSinkDropsWhenFull(t *testing.T) {
	sink := NewChannelEventSink(1)
	ctx := context.Background()
	sink.Emit(ctx, Event{EventType: "a"})
	sink.Emit(ctx, Event{EventType: "b"}) // dropped, must not block

	select {
	case ev := <-sink.Events():
		if ev.EventType != "a" {
			t.Fatalf("expected first event, got %s", ev.EventType)
		}
	default:
		t.Fatalf("expected buffered event")
	}
	select {
	case ev := <-sink.Events():
		t.Fatalf("expected second event dropped, got %s", ev.EventType)
	default:
	}
}

func TestFailedOperationEmitsNothing(t *testing.T) {
	sink := NewChannelEventSink(8)
	svc := newTestService(t, WithEventSink(sink))

	if _, err := svc.CompleteSample(context.Background(), "missing", "a"); err == nil {
		t.Fatalf("expected error")
	}
	select {
	case ev := <-sink.Events():
		t.Fatalf("failed operation emitted %s", ev.EventType)
	default:
	}
}
