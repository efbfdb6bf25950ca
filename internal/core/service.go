package core

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"samplecore/internal/blob"
	"samplecore/pkg/domain"
)

// Service exposes the transactional sample-tracking operations. All
// mutating operations run inside a single store transaction; commit-time
// rules block any transaction that would violate a storage invariant.
type Service struct {
	store         PersistentStore
	logger        Logger
	metrics       MetricsRecorder
	events        EventSink
	clock         Clock
	archive       blob.Store
	barcodePrefix string
	intakeWorkers int
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the structured logger. Defaults to a no-op logger.
func WithLogger(logger Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder. Defaults to a no-op recorder.
func WithMetrics(metrics MetricsRecorder) Option {
	return func(s *Service) {
		if metrics != nil {
			s.metrics = metrics
		}
	}
}

// WithEventSink sets the outbound event sink. Defaults to a no-op sink.
func WithEventSink(sink EventSink) Option {
	return func(s *Service) {
		if sink != nil {
			s.events = sink
		}
	}
}

// WithClock overrides the time source, used by tests for determinism.
func WithClock(clock Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithArchive sets the blob store that receives raw intake datasets.
// Without one, intake skips archiving.
func WithArchive(store blob.Store) Option {
	return func(s *Service) { s.archive = store }
}

// WithBarcodePrefix overrides the barcode prefix for generated barcodes.
func WithBarcodePrefix(prefix string) Option {
	return func(s *Service) {
		if prefix != "" {
			s.barcodePrefix = prefix
		}
	}
}

// WithIntakeWorkers bounds batch intake concurrency.
func WithIntakeWorkers(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.intakeWorkers = n
		}
	}
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...Option) *Service {
	s := &Service{
		store:         store,
		logger:        noopLogger{},
		metrics:       noopMetrics{},
		events:        domain.NoopEventSink{},
		clock:         ClockFunc(time.Now),
		barcodePrefix: defaultBarcodePrefix,
		intakeWorkers: defaultIntakeWorkers,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore {
	return s.store
}

// runWrite executes fn in a store transaction, records metrics, and emits
// events derived from the committed changes. On error nothing is emitted.
func (s *Service) runWrite(ctx context.Context, op, actor string, fn func(Transaction) error) error {
	start := time.Now()
	var changes []Change
	_, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		if err := fn(tx); err != nil {
			return err
		}
		changes = tx.Changes()
		return nil
	})
	s.metrics.Observe(ctx, op, err == nil, time.Since(start))
	if err != nil {
		s.logger.Warn("operation failed", "op", op, "actor", actor, "error", err)
		return err
	}
	s.logger.Debug("operation committed", "op", op, "actor", actor, "changes", len(changes))
	s.emitEvents(ctx, eventsFromChanges(changes, actor, s.clock.Now().UTC()))
	return nil
}

// CreateSampleRequest carries the caller-supplied fields for a new sample.
// An empty Barcode requests an allocator-generated one.
type CreateSampleRequest struct {
	Name               string
	Barcode            string
	StorageRequirement ZoneCategory
	ProjectID          *string
	BatchID            *string
	Metadata           map[string]any
	Actor              string
}

// CreateSample registers a sample in Pending status.
func (s *Service) CreateSample(ctx context.Context, req CreateSampleRequest) (Sample, error) {
	if req.Name == "" {
		return Sample{}, fmt.Errorf("%w: sample name required", domain.ErrValidationFailed)
	}
	if req.StorageRequirement != "" && !domain.ValidZoneCategory(req.StorageRequirement) {
		return Sample{}, fmt.Errorf("%w: unknown zone category %q", domain.ErrValidationFailed, req.StorageRequirement)
	}
	var created Sample
	err := s.runWrite(ctx, "create_sample", req.Actor, func(tx Transaction) error {
		barcode := req.Barcode
		if barcode == "" {
			now := s.clock.Now().UTC()
			start, err := tx.ReserveBarcodeBlock(barcodeScope(s.barcodePrefix, now.Year()), 1)
			if err != nil {
				return err
			}
			barcode = s.barcodeFor(now, start)
		}
		var err error
		created, err = tx.CreateSample(Sample{
			Name:               req.Name,
			Barcode:            barcode,
			Status:             StatusPending,
			StorageRequirement: req.StorageRequirement,
			ProjectID:          req.ProjectID,
			BatchID:            req.BatchID,
			Metadata:           req.Metadata,
		})
		return err
	})
	return created, err
}

// RecordQCRequest carries one quality-control observation.
type RecordQCRequest struct {
	QCType  string
	Outcome QCOutcome
	Metrics map[string]any
	Actor   string
}

// RecordQC appends an immutable QC result and applies the gate: a pass
// promotes a Pending sample to Validated, a fail rejects a sample still
// in Pending or Validated, and a warning never transitions. A fail past
// Validated is recorded without a status change.
func (s *Service) RecordQC(ctx context.Context, sampleID string, req RecordQCRequest) (Sample, QCResult, error) {
	switch req.Outcome {
	case QCPass, QCFail, QCWarning:
	default:
		return Sample{}, QCResult{}, fmt.Errorf("%w: unknown qc outcome %q", domain.ErrValidationFailed, req.Outcome)
	}
	var (
		sample Sample
		result QCResult
	)
	err := s.runWrite(ctx, "record_qc", req.Actor, func(tx Transaction) error {
		var ok bool
		sample, ok = tx.FindSample(sampleID)
		if !ok {
			return domain.NotFoundError{Entity: EntitySample, ID: sampleID}
		}
		var err error
		result, err = tx.AppendQCResult(QCResult{
			SampleID: sampleID,
			QCType:   req.QCType,
			Outcome:  req.Outcome,
			Metrics:  req.Metrics,
			Actor:    req.Actor,
		})
		if err != nil {
			return err
		}
		switch {
		case req.Outcome == QCPass && sample.Status == StatusPending:
			sample, err = transitionSample(tx, sampleID, StatusValidated)
		case req.Outcome == QCFail && (sample.Status == StatusPending || sample.Status == StatusValidated):
			sample, err = transitionSample(tx, sampleID, StatusRejected)
		}
		return err
	})
	return sample, result, err
}

// AssignLocation places a Validated sample into a specific free location
// and appends the placement to the movement ledger. Exactly one of two
// concurrent calls for the same location succeeds.
func (s *Service) AssignLocation(ctx context.Context, sampleID, locationID, actor string) (Sample, error) {
	var sample Sample
	err := s.runWrite(ctx, "assign_location", actor, func(tx Transaction) error {
		return s.placeSample(tx, &sample, sampleID, locationID, actor, "assign")
	})
	return sample, err
}

// AssignLocationInZone places a Validated sample into any free location of
// the given category, retrying past slots lost to concurrent assigns.
// FindFreeLocations does not reserve, so each candidate is raced on.
func (s *Service) AssignLocationInZone(ctx context.Context, sampleID string, category ZoneCategory, actor string) (Sample, error) {
	var sample Sample
	err := s.runWrite(ctx, "assign_location", actor, func(tx Transaction) error {
		candidates := tx.FreeLocations(category, freeLocationBatch)
		if len(candidates) == 0 {
			return fmt.Errorf("%w: no free location in category %s", domain.ErrLocationOccupied, category)
		}
		var lastErr error
		for _, cand := range candidates {
			lastErr = s.placeSample(tx, &sample, sampleID, cand.ID, actor, "assign")
			if lastErr == nil {
				return nil
			}
			if !isOccupied(lastErr) {
				return lastErr
			}
		}
		return lastErr
	})
	return sample, err
}

// placeSample performs the validated-sample placement inside tx: status
// gate, zone compatibility, the occupancy CAS, pointer update, and the
// ledger append.
func (s *Service) placeSample(tx Transaction, out *Sample, sampleID, locationID, actor, reason string) error {
	sample, ok := tx.FindSample(sampleID)
	if !ok {
		return domain.NotFoundError{Entity: EntitySample, ID: sampleID}
	}
	if sample.Status != StatusValidated {
		return domain.InvalidTransitionError{SampleID: sampleID, Current: sample.Status, Requested: StatusInStorage}
	}
	if err := s.checkZoneCompat(tx, sample, locationID); err != nil {
		return err
	}
	if _, err := tx.AssignLocation(locationID, sampleID); err != nil {
		return err
	}
	updated, err := tx.UpdateSample(sampleID, func(smp *Sample) error {
		smp.Status = StatusInStorage
		smp.CurrentLocationID = &locationID
		return nil
	})
	if err != nil {
		return err
	}
	if _, err := tx.AppendMovement(MovementRecord{
		SampleID:     sampleID,
		ToLocationID: &locationID,
		Actor:        actor,
		Reason:       reason,
	}); err != nil {
		return err
	}
	*out = updated
	return nil
}

func (s *Service) checkZoneCompat(tx Transaction, sample Sample, locationID string) error {
	loc, ok := tx.FindLocation(locationID)
	if !ok {
		return domain.NotFoundError{Entity: EntityStorageLocation, ID: locationID}
	}
	if sample.StorageRequirement == "" {
		return nil
	}
	zone, ok := tx.FindZone(loc.ZoneID)
	if !ok {
		return domain.NotFoundError{Entity: EntityStorageZone, ID: loc.ZoneID}
	}
	if zone.Category != sample.StorageRequirement {
		return fmt.Errorf("%w: sample %s requires %s, zone %s is %s",
			domain.ErrZoneIncompatible, sample.ID, sample.StorageRequirement, zone.ID, zone.Category)
	}
	return nil
}

// MoveSample relocates an InStorage sample to another free location. The
// release of the old slot and the claim of the new one commit together;
// the ledger gains a single record with both endpoints.
func (s *Service) MoveSample(ctx context.Context, sampleID, toLocationID, actor, reason string) (Sample, error) {
	var sample Sample
	err := s.runWrite(ctx, "move_sample", actor, func(tx Transaction) error {
		current, ok := tx.FindSample(sampleID)
		if !ok {
			return domain.NotFoundError{Entity: EntitySample, ID: sampleID}
		}
		if current.Status != StatusInStorage || current.CurrentLocationID == nil {
			return domain.InvalidTransitionError{SampleID: sampleID, Current: current.Status, Requested: StatusInStorage}
		}
		from := *current.CurrentLocationID
		if from == toLocationID {
			return fmt.Errorf("%w: sample already at %s", domain.ErrValidationFailed, toLocationID)
		}
		if err := s.checkZoneCompat(tx, current, toLocationID); err != nil {
			return err
		}
		if _, err := tx.AssignLocation(toLocationID, sampleID); err != nil {
			return err
		}
		if _, err := tx.ReleaseLocation(from); err != nil {
			return err
		}
		var err error
		sample, err = tx.UpdateSample(sampleID, func(smp *Sample) error {
			smp.CurrentLocationID = &toLocationID
			return nil
		})
		if err != nil {
			return err
		}
		_, err = tx.AppendMovement(MovementRecord{
			SampleID:       sampleID,
			FromLocationID: &from,
			ToLocationID:   &toLocationID,
			Actor:          actor,
			Reason:         reason,
		})
		return err
	})
	return sample, err
}

// SubmitSequencing transitions an InStorage sample to InSequencing. The
// storage location is kept; sequencing typically consumes an aliquot
// while the parent stays in its slot.
func (s *Service) SubmitSequencing(ctx context.Context, sampleID, actor string) (Sample, error) {
	var sample Sample
	err := s.runWrite(ctx, "submit_sequencing", actor, func(tx Transaction) error {
		var err error
		sample, err = transitionSample(tx, sampleID, StatusInSequencing)
		return err
	})
	return sample, err
}

// CompleteSample transitions an InSequencing sample to the terminal
// Completed status. Only metadata annotation is permitted afterwards.
func (s *Service) CompleteSample(ctx context.Context, sampleID, actor string) (Sample, error) {
	var sample Sample
	err := s.runWrite(ctx, "complete_sample", actor, func(tx Transaction) error {
		var err error
		sample, err = transitionSample(tx, sampleID, StatusCompleted)
		return err
	})
	return sample, err
}

// RecallSample pulls an InStorage sample back to Validated for
// re-evaluation, freeing its slot and recording the removal in the
// ledger.
func (s *Service) RecallSample(ctx context.Context, sampleID, actor, reason string) (Sample, error) {
	var sample Sample
	err := s.runWrite(ctx, "recall_sample", actor, func(tx Transaction) error {
		var err error
		sample, err = s.recallInTx(tx, sampleID, actor, reason)
		return err
	})
	return sample, err
}

func (s *Service) recallInTx(tx Transaction, sampleID, actor, reason string) (Sample, error) {
	current, ok := tx.FindSample(sampleID)
	if !ok {
		return Sample{}, domain.NotFoundError{Entity: EntitySample, ID: sampleID}
	}
	if current.Status != StatusInStorage || current.CurrentLocationID == nil {
		return Sample{}, domain.InvalidTransitionError{SampleID: sampleID, Current: current.Status, Requested: StatusValidated}
	}
	from := *current.CurrentLocationID
	if _, err := tx.ReleaseLocation(from); err != nil {
		return Sample{}, err
	}
	updated, err := tx.UpdateSample(sampleID, func(smp *Sample) error {
		smp.Status = StatusValidated
		smp.CurrentLocationID = nil
		return nil
	})
	if err != nil {
		return Sample{}, err
	}
	if _, err := tx.AppendMovement(MovementRecord{
		SampleID:       sampleID,
		FromLocationID: &from,
		Actor:          actor,
		Reason:         reason,
	}); err != nil {
		return Sample{}, err
	}
	return updated, nil
}

// AnnotateSample merges the given metadata into the sample. Allowed in
// every status including terminal ones.
func (s *Service) AnnotateSample(ctx context.Context, sampleID string, metadata map[string]any, actor string) (Sample, error) {
	if len(metadata) == 0 {
		return Sample{}, fmt.Errorf("%w: empty annotation", domain.ErrValidationFailed)
	}
	var sample Sample
	err := s.runWrite(ctx, "annotate_sample", actor, func(tx Transaction) error {
		var err error
		sample, err = tx.UpdateSample(sampleID, func(smp *Sample) error {
			if smp.Metadata == nil {
				smp.Metadata = make(map[string]any, len(metadata))
			}
			for k, v := range metadata {
				smp.Metadata[k] = v
			}
			return nil
		})
		return err
	})
	return sample, err
}

// ProvisionZone registers a storage zone.
func (s *Service) ProvisionZone(ctx context.Context, zone StorageZone, actor string) (StorageZone, error) {
	if zone.Name == "" || !domain.ValidZoneCategory(zone.Category) {
		return StorageZone{}, fmt.Errorf("%w: zone needs a name and a known category", domain.ErrValidationFailed)
	}
	if zone.TempMinC > zone.TempMaxC {
		return StorageZone{}, fmt.Errorf("%w: inverted temperature range", domain.ErrValidationFailed)
	}
	var created StorageZone
	err := s.runWrite(ctx, "provision_zone", actor, func(tx Transaction) error {
		var err error
		created, err = tx.CreateZone(zone)
		return err
	})
	return created, err
}

// ProvisionLocation registers a storage slot within an existing zone.
// Codes are unique per zone.
func (s *Service) ProvisionLocation(ctx context.Context, zoneID, code, actor string) (StorageLocation, error) {
	if code == "" {
		return StorageLocation{}, fmt.Errorf("%w: location code required", domain.ErrValidationFailed)
	}
	var created StorageLocation
	err := s.runWrite(ctx, "provision_location", actor, func(tx Transaction) error {
		if _, ok := tx.FindZone(zoneID); !ok {
			return domain.NotFoundError{Entity: EntityStorageZone, ID: zoneID}
		}
		var err error
		created, err = tx.CreateLocation(StorageLocation{ZoneID: zoneID, Code: code})
		return err
	})
	return created, err
}

// ReleaseLocation frees a slot. Releasing a free location is a no-op.
// Releasing an occupied location recalls its occupant so that the
// occupancy flag and the sample pointer never diverge; an occupant past
// InStorage cannot be recalled and the release fails.
func (s *Service) ReleaseLocation(ctx context.Context, locationID, actor string) (StorageLocation, error) {
	var released StorageLocation
	err := s.runWrite(ctx, "release_location", actor, func(tx Transaction) error {
		loc, ok := tx.FindLocation(locationID)
		if !ok {
			return domain.NotFoundError{Entity: EntityStorageLocation, ID: locationID}
		}
		if loc.Occupied && loc.SampleID != nil {
			if _, err := s.recallInTx(tx, *loc.SampleID, actor, "release"); err != nil {
				return err
			}
		} else if _, err := tx.ReleaseLocation(locationID); err != nil {
			return err
		}
		released, ok = tx.FindLocation(locationID)
		if !ok {
			return domain.NotFoundError{Entity: EntityStorageLocation, ID: locationID}
		}
		return nil
	})
	return released, err
}

// FindFreeLocations lists up to count free slots in zones of the given
// category. No reservation happens; callers race on assign and retry.
func (s *Service) FindFreeLocations(ctx context.Context, category ZoneCategory, count int) ([]StorageLocation, error) {
	if count <= 0 {
		count = freeLocationBatch
	}
	var free []StorageLocation
	err := s.store.View(ctx, func(view TransactionView) error {
		free = view.FreeLocations(category, count)
		return nil
	})
	return free, err
}

// SampleHistory returns the sample's movement ledger as a lazy,
// restartable sequence ordered by per-sample sequence number.
func (s *Service) SampleHistory(sampleID string) iter.Seq[MovementRecord] {
	return s.store.MovementHistory(sampleID)
}

// QCHistory returns the sample's quality-control records in recorded
// order.
func (s *Service) QCHistory(sampleID string) []QCResult {
	return s.store.QCHistory(sampleID)
}

// CurrentLocation derives the sample's position by replaying the ledger.
// A nil result means the sample is not in storage.
func (s *Service) CurrentLocation(sampleID string) *string {
	var current *string
	for rec := range s.store.MovementHistory(sampleID) {
		current = rec.ToLocationID
	}
	return current
}

// GetSample fetches a sample by id.
func (s *Service) GetSample(id string) (Sample, bool) {
	return s.store.GetSample(id)
}

// GetSampleByBarcode fetches a sample by its barcode.
func (s *Service) GetSampleByBarcode(barcode string) (Sample, bool) {
	return s.store.GetSampleByBarcode(barcode)
}

// transitionSample applies the status state machine inside tx.
func transitionSample(tx Transaction, id string, to SampleStatus) (Sample, error) {
	return tx.UpdateSample(id, func(smp *Sample) error {
		if !domain.CanTransition(smp.Status, to) {
			return domain.InvalidTransitionError{SampleID: id, Current: smp.Status, Requested: to}
		}
		smp.Status = to
		return nil
	})
}

// freeLocationBatch bounds candidate lists for zone-preference placement.
const freeLocationBatch = 16

func isOccupied(err error) bool {
	return errors.Is(err, domain.ErrLocationOccupied)
}
