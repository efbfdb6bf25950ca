package core

import (
	"context"
	"time"

	"samplecore/pkg/domain"
)

// eventsFromChanges maps committed transaction changes to outbound events.
// Called after commit only; a failed transaction emits nothing.
func eventsFromChanges(changes []Change, actor string, at time.Time) []Event {
	events := make([]Event, 0, len(changes))
	for _, ch := range changes {
		switch ch.Entity {
		case EntitySample:
			events = append(events, sampleEvent(ch, actor, at)...)
		case EntityStorageZone:
			if ch.Action != ActionCreate {
				continue
			}
			if zone, ok := ch.After.(StorageZone); ok {
				events = append(events, Event{
					EntityType: EntityStorageZone,
					EntityID:   zone.ID,
					EventType:  domain.EventZoneProvisioned,
					Actor:      actor,
					Timestamp:  at,
					Metadata:   map[string]any{"name": zone.Name, "category": string(zone.Category)},
				})
			}
		case EntityStorageLocation:
			if ch.Action != ActionCreate {
				continue
			}
			if loc, ok := ch.After.(StorageLocation); ok {
				events = append(events, Event{
					EntityType: EntityStorageLocation,
					EntityID:   loc.ID,
					EventType:  domain.EventLocationProvisioned,
					Actor:      actor,
					Timestamp:  at,
					Metadata:   map[string]any{"zone_id": loc.ZoneID, "code": loc.Code},
				})
			}
		case EntityMovement:
			if rec, ok := ch.After.(MovementRecord); ok {
				meta := map[string]any{"seq": rec.Seq, "reason": rec.Reason}
				if rec.FromLocationID != nil {
					meta["from_location_id"] = *rec.FromLocationID
				}
				if rec.ToLocationID != nil {
					meta["to_location_id"] = *rec.ToLocationID
				}
				events = append(events, Event{
					EntityType: EntityMovement,
					EntityID:   rec.SampleID,
					EventType:  domain.EventMovementAppended,
					Actor:      actor,
					Timestamp:  at,
					Metadata:   meta,
				})
			}
		case EntityQCResult:
			if qc, ok := ch.After.(QCResult); ok {
				events = append(events, Event{
					EntityType: EntityQCResult,
					EntityID:   qc.SampleID,
					EventType:  domain.EventQCRecorded,
					Actor:      actor,
					Timestamp:  at,
					Metadata:   map[string]any{"qc_type": qc.QCType, "outcome": string(qc.Outcome)},
				})
			}
		}
	}
	return events
}

func sampleEvent(ch Change, actor string, at time.Time) []Event {
	switch ch.Action {
	case ActionCreate:
		sample, ok := ch.After.(Sample)
		if !ok {
			return nil
		}
		return []Event{{
			EntityType: EntitySample,
			EntityID:   sample.ID,
			EventType:  domain.EventSampleCreated,
			Actor:      actor,
			Timestamp:  at,
			Metadata:   map[string]any{"barcode": sample.Barcode, "status": string(sample.Status)},
		}}
	case ActionUpdate:
		before, okB := ch.Before.(Sample)
		after, okA := ch.After.(Sample)
		if !okB || !okA {
			return nil
		}
		var events []Event
		if before.Status != after.Status {
			events = append(events, Event{
				EntityType: EntitySample,
				EntityID:   after.ID,
				EventType:  domain.EventSampleStatusChanged,
				Actor:      actor,
				Timestamp:  at,
				Metadata:   map[string]any{"from": string(before.Status), "to": string(after.Status)},
			})
		} else if !sameLocation(before.CurrentLocationID, after.CurrentLocationID) {
			// Location-only updates ride along with their movement event.
		} else {
			events = append(events, Event{
				EntityType: EntitySample,
				EntityID:   after.ID,
				EventType:  domain.EventSampleAnnotated,
				Actor:      actor,
				Timestamp:  at,
			})
		}
		return events
	default:
		return nil
	}
}

// emitEvents forwards events to the configured sink. Sinks must not
// block; see the EventSink contract.
func (s *Service) emitEvents(ctx context.Context, events []Event) {
	for _, ev := range events {
		s.events.Emit(ctx, ev)
	}
}
