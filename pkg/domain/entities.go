// Package domain defines the core persistent entities, value types, and
// rule evaluation primitives used by samplecore.
package domain

import "time"

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records, events, and
// persistence buckets.
const (
	// EntitySample identifies a tracked specimen record.
	EntitySample EntityType = "sample"
	// EntityStorageZone identifies a storage environment record.
	EntityStorageZone EntityType = "storage_zone"
	// EntityStorageLocation identifies a single storage slot record.
	EntityStorageLocation EntityType = "storage_location"
	// EntityMovement identifies an append-only movement ledger record.
	EntityMovement EntityType = "movement"
	// EntityQCResult identifies an append-only quality-control record.
	EntityQCResult EntityType = "qc_result"
)

// SampleStatus enumerates the sample lifecycle states.
type SampleStatus string

// Canonical sample statuses. Forward order is Pending, Validated,
// InStorage, InSequencing, Completed; Rejected is a side terminal state
// reachable only from Pending or Validated.
const (
	StatusPending      SampleStatus = "pending"
	StatusValidated    SampleStatus = "validated"
	StatusInStorage    SampleStatus = "in_storage"
	StatusInSequencing SampleStatus = "in_sequencing"
	StatusCompleted    SampleStatus = "completed"
	StatusRejected     SampleStatus = "rejected"
)

// ZoneCategory classifies a storage zone's temperature environment.
type ZoneCategory string

// Canonical zone categories used for compatibility checks and free-slot
// lookups.
const (
	ZoneUltraLowFreezer ZoneCategory = "ultra_low_freezer"
	ZoneRefrigerator    ZoneCategory = "refrigerator"
	ZoneRoomTemperature ZoneCategory = "room_temperature"
)

// QCOutcome enumerates quality-control outcomes recorded by the quality gate.
type QCOutcome string

// Canonical QC outcomes.
const (
	QCPass    QCOutcome = "pass"
	QCFail    QCOutcome = "fail"
	QCWarning QCOutcome = "warning"
)

// Base contains common fields for all identified domain records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Sample represents a tracked physical specimen. Samples are never
// physically deleted; terminal statuses retire them in place.
type Sample struct {
	Base
	Name string `json:"name"`
	// Barcode is the globally unique external identifier affixed to the
	// physical container.
	Barcode string       `json:"barcode"`
	Status  SampleStatus `json:"status"`
	// CurrentLocationID points at the occupied storage slot, nil when the
	// sample is not in storage. At most one sample references a given
	// location at a time.
	CurrentLocationID *string `json:"current_location_id"`
	// StorageRequirement, when set, restricts placement to zones of the
	// declared category.
	StorageRequirement ZoneCategory   `json:"storage_requirement,omitempty"`
	ProjectID          *string        `json:"project_id"`
	BatchID            *string        `json:"batch_id"`
	Metadata           map[string]any `json:"metadata,omitempty"`
}

// StorageZone captures a physical storage environment and its temperature
// envelope. Zones own locations and are rarely mutated after provisioning.
type StorageZone struct {
	Base
	Name     string       `json:"name"`
	Category ZoneCategory `json:"category"`
	TempMinC float64      `json:"temp_min_c"`
	TempMaxC float64      `json:"temp_max_c"`
}

// StorageLocation is a single slot within a zone holding at most one
// sample. Occupied and SampleID are mutated only by assign/release,
// never directly.
type StorageLocation struct {
	Base
	ZoneID string `json:"zone_id"`
	// Code is the human-readable slot label, unique within its zone.
	Code     string  `json:"code"`
	Occupied bool    `json:"occupied"`
	SampleID *string `json:"sample_id"`
	// Version increments on every occupancy change; the SQL stores use it
	// as the compare-and-swap column.
	Version int64 `json:"version"`
}

// MovementRecord is one entry in the append-only movement ledger. The
// ordered sequence of records for a sample replays to its current
// location. Records are never updated or deleted.
type MovementRecord struct {
	ID       string `json:"id"`
	SampleID string `json:"sample_id"`
	// FromLocationID is nil for the initial placement.
	FromLocationID *string `json:"from_location_id"`
	// ToLocationID is nil when the sample leaves storage.
	ToLocationID *string `json:"to_location_id"`
	Actor        string  `json:"actor"`
	Reason       string  `json:"reason"`
	// Seq orders records per sample, starting at 1.
	Seq        int64     `json:"seq"`
	RecordedAt time.Time `json:"recorded_at"`
}

// QCResult records a single quality-control event. Immutable once written;
// corrections require a new result plus an explicit recall.
type QCResult struct {
	ID         string         `json:"id"`
	SampleID   string         `json:"sample_id"`
	QCType     string         `json:"qc_type"`
	Outcome    QCOutcome      `json:"outcome"`
	Metrics    map[string]any `json:"metrics,omitempty"`
	Actor      string         `json:"actor"`
	RecordedAt time.Time      `json:"recorded_at"`
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions captured in the transactional change trail. The movement
// ledger and QC history only ever see ActionCreate.
const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
)

// CloneSample returns a deep copy of the sample, including metadata and
// pointer fields.
func CloneSample(s Sample) Sample {
	cp := s
	if s.CurrentLocationID != nil {
		v := *s.CurrentLocationID
		cp.CurrentLocationID = &v
	}
	if s.ProjectID != nil {
		v := *s.ProjectID
		cp.ProjectID = &v
	}
	if s.BatchID != nil {
		v := *s.BatchID
		cp.BatchID = &v
	}
	if s.Metadata != nil {
		cp.Metadata = make(map[string]any, len(s.Metadata))
		for k, v := range s.Metadata {
			cp.Metadata[k] = v
		}
	}
	return cp
}

// CloneLocation returns a copy of the location with an independent sample
// pointer.
func CloneLocation(l StorageLocation) StorageLocation {
	cp := l
	if l.SampleID != nil {
		v := *l.SampleID
		cp.SampleID = &v
	}
	return cp
}

// CloneMovement returns a copy of the record with independent pointers.
func CloneMovement(m MovementRecord) MovementRecord {
	cp := m
	if m.FromLocationID != nil {
		v := *m.FromLocationID
		cp.FromLocationID = &v
	}
	if m.ToLocationID != nil {
		v := *m.ToLocationID
		cp.ToLocationID = &v
	}
	return cp
}

// CloneQCResult returns a copy of the result including its metrics map.
func CloneQCResult(q QCResult) QCResult {
	cp := q
	if q.Metrics != nil {
		cp.Metrics = make(map[string]any, len(q.Metrics))
		for k, v := range q.Metrics {
			cp.Metrics[k] = v
		}
	}
	return cp
}
