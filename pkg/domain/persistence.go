package domain

import (
	"context"
	"iter"
)

// Transaction exposes the domain operations that a persistence
// implementation must support within an atomic scope. AssignLocation and
// ReserveBarcodeBlock are the two contended primitives; implementations
// must make them race-free at the row they touch.
type Transaction interface {
	CreateSample(Sample) (Sample, error)
	UpdateSample(id string, mutator func(*Sample) error) (Sample, error)
	CreateZone(StorageZone) (StorageZone, error)
	CreateLocation(StorageLocation) (StorageLocation, error)
	// AssignLocation atomically checks that the location is free, marks it
	// occupied, and records the reverse pointer. Exactly one of two
	// concurrent calls for the same location succeeds; the loser gets
	// ErrLocationOccupied.
	AssignLocation(locationID, sampleID string) (StorageLocation, error)
	// ReleaseLocation frees the slot. Releasing a free location is a no-op.
	ReleaseLocation(locationID string) (StorageLocation, error)
	// AppendMovement inserts a ledger record. Seq and RecordedAt are
	// assigned by the store. Insert-only.
	AppendMovement(MovementRecord) (MovementRecord, error)
	// AppendQCResult inserts a quality-control record. Insert-only.
	AppendQCResult(QCResult) (QCResult, error)
	// ReserveBarcodeBlock advances the monotonic counter for scope by n and
	// returns the first reserved sequence number. Two concurrent
	// reservations never overlap.
	ReserveBarcodeBlock(scope string, n int) (int64, error)

	FindSample(id string) (Sample, bool)
	FindSampleByBarcode(barcode string) (Sample, bool)
	FindZone(id string) (StorageZone, bool)
	FindLocation(id string) (StorageLocation, bool)
	// FreeLocations returns up to count unoccupied locations in zones of
	// the given category, as seen by this transaction. It does not
	// reserve them.
	FreeLocations(category ZoneCategory, count int) []StorageLocation
	// Changes returns the mutations recorded so far in this transaction.
	Changes() []Change
}

// TransactionView provides read-only access to snapshot data for rules
// and audits.
type TransactionView interface {
	ListSamples() []Sample
	ListZones() []StorageZone
	ListLocations() []StorageLocation
	FindSample(id string) (Sample, bool)
	FindZone(id string) (StorageZone, bool)
	FindLocation(id string) (StorageLocation, bool)
	// MovementHistory returns the sample's ledger records ordered by Seq
	// ascending.
	MovementHistory(sampleID string) []MovementRecord
	// FreeLocations returns up to count unoccupied locations in zones of
	// the given category. It does not reserve them.
	FreeLocations(category ZoneCategory, count int) []StorageLocation
}

// PersistentStore is a minimal abstraction over durable backends. It
// mirrors the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetSample(id string) (Sample, bool)
	GetSampleByBarcode(barcode string) (Sample, bool)
	ListSamples() []Sample
	GetZone(id string) (StorageZone, bool)
	ListZones() []StorageZone
	GetLocation(id string) (StorageLocation, bool)
	ListLocations() []StorageLocation
	// MovementHistory returns a lazy, restartable, finite sequence of the
	// sample's ledger records ordered by Seq ascending.
	MovementHistory(sampleID string) iter.Seq[MovementRecord]
	QCHistory(sampleID string) []QCResult
	Close() error
}
