// Package memory provides an in-memory implementation of the core
// persistence store used for tests and ephemeral environments.
package memory

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"iter"
	"sort"
	"sync"
	"time"

	"samplecore/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the
// domain persistence interfaces.
var _ domain.PersistentStore = (*Store)(nil)

type memoryState struct {
	samples   map[string]domain.Sample
	zones     map[string]domain.StorageZone
	locations map[string]domain.StorageLocation
	movements map[string][]domain.MovementRecord
	qcResults map[string][]domain.QCResult
	counters  map[string]int64
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Samples   map[string]domain.Sample            `json:"samples"`
	Zones     map[string]domain.StorageZone       `json:"zones"`
	Locations map[string]domain.StorageLocation   `json:"locations"`
	Movements map[string][]domain.MovementRecord  `json:"movements"`
	QCResults map[string][]domain.QCResult        `json:"qc_results"`
	Counters  map[string]int64                    `json:"counters"`
}

func newMemoryState() memoryState {
	return memoryState{
		samples:   make(map[string]domain.Sample),
		zones:     make(map[string]domain.StorageZone),
		locations: make(map[string]domain.StorageLocation),
		movements: make(map[string][]domain.MovementRecord),
		qcResults: make(map[string][]domain.QCResult),
		counters:  make(map[string]int64),
	}
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.samples {
		cloned.samples[k] = domain.CloneSample(v)
	}
	for k, v := range s.zones {
		cloned.zones[k] = v
	}
	for k, v := range s.locations {
		cloned.locations[k] = domain.CloneLocation(v)
	}
	for k, recs := range s.movements {
		cp := make([]domain.MovementRecord, len(recs))
		for i, r := range recs {
			cp[i] = domain.CloneMovement(r)
		}
		cloned.movements[k] = cp
	}
	for k, recs := range s.qcResults {
		cp := make([]domain.QCResult, len(recs))
		for i, r := range recs {
			cp[i] = domain.CloneQCResult(r)
		}
		cloned.qcResults[k] = cp
	}
	for k, v := range s.counters {
		cloned.counters[k] = v
	}
	return cloned
}

// Store provides an in-memory transactional store for the core domain.
// Transactions run against a clone of the state; registered rules are
// evaluated before the clone replaces the committed state.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *domain.RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules
// engine (may be nil for an unguarded store).
func NewStore(engine *domain.RulesEngine) *Store {
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

// SetNowFunc overrides the transaction clock, for tests.
func (s *Store) SetNowFunc(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nowFn = fn
}

func newID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}

// Tx implements domain.Transaction against a cloned state.
type Tx struct {
	state   *memoryState
	changes []domain.Change
	now     time.Time
}

var _ domain.Transaction = (*Tx)(nil)

// RunInTransaction executes fn within a transactional copy of the store
// state. The clone is committed only when fn succeeds and no registered
// rule reports a blocking violation.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) (domain.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.state.clone()
	tx := &Tx{state: &state, now: s.nowFn()}

	if err := fn(tx); err != nil {
		return domain.Result{}, err
	}

	var result domain.Result
	if s.engine != nil {
		view := newView(&state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return domain.Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(domain.TransactionView) error) error {
	s.mu.RLock()
	snapshot := s.state.clone()
	s.mu.RUnlock()
	return fn(newView(&snapshot))
}

// Close implements domain.PersistentStore; the memory store holds no
// external resources.
func (s *Store) Close() error { return nil }

func (tx *Tx) recordChange(change domain.Change) {
	tx.changes = append(tx.changes, change)
}

// Changes returns the mutations recorded so far.
func (tx *Tx) Changes() []domain.Change {
	out := make([]domain.Change, len(tx.changes))
	copy(out, tx.changes)
	return out
}

// CreateSample stores a new sample, enforcing barcode uniqueness.
func (tx *Tx) CreateSample(sample domain.Sample) (domain.Sample, error) {
	if sample.ID == "" {
		sample.ID = newID()
	}
	if _, exists := tx.state.samples[sample.ID]; exists {
		return domain.Sample{}, fmt.Errorf("sample %q already exists", sample.ID)
	}
	for _, existing := range tx.state.samples {
		if existing.Barcode == sample.Barcode {
			return domain.Sample{}, fmt.Errorf("barcode %q: %w", sample.Barcode, domain.ErrDuplicateBarcode)
		}
	}
	sample.CreatedAt = tx.now
	sample.UpdatedAt = tx.now
	if sample.Metadata == nil {
		sample.Metadata = map[string]any{}
	}
	tx.state.samples[sample.ID] = domain.CloneSample(sample)
	tx.recordChange(domain.Change{Entity: domain.EntitySample, Action: domain.ActionCreate, After: domain.CloneSample(sample)})
	return domain.CloneSample(sample), nil
}

// UpdateSample mutates a sample using the provided mutator function.
func (tx *Tx) UpdateSample(id string, mutator func(*domain.Sample) error) (domain.Sample, error) {
	current, ok := tx.state.samples[id]
	if !ok {
		return domain.Sample{}, domain.NotFoundError{Entity: domain.EntitySample, ID: id}
	}
	before := domain.CloneSample(current)
	if err := mutator(&current); err != nil {
		return domain.Sample{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.samples[id] = domain.CloneSample(current)
	tx.recordChange(domain.Change{Entity: domain.EntitySample, Action: domain.ActionUpdate, Before: before, After: domain.CloneSample(current)})
	return domain.CloneSample(current), nil
}

// CreateZone stores a new storage zone.
func (tx *Tx) CreateZone(zone domain.StorageZone) (domain.StorageZone, error) {
	if zone.ID == "" {
		zone.ID = newID()
	}
	if _, exists := tx.state.zones[zone.ID]; exists {
		return domain.StorageZone{}, fmt.Errorf("zone %q already exists", zone.ID)
	}
	zone.CreatedAt = tx.now
	zone.UpdatedAt = tx.now
	tx.state.zones[zone.ID] = zone
	tx.recordChange(domain.Change{Entity: domain.EntityStorageZone, Action: domain.ActionCreate, After: zone})
	return zone, nil
}

// CreateLocation stores a new slot, enforcing per-zone code uniqueness.
func (tx *Tx) CreateLocation(loc domain.StorageLocation) (domain.StorageLocation, error) {
	if loc.ID == "" {
		loc.ID = newID()
	}
	if _, exists := tx.state.locations[loc.ID]; exists {
		return domain.StorageLocation{}, fmt.Errorf("location %q already exists", loc.ID)
	}
	if _, ok := tx.state.zones[loc.ZoneID]; !ok {
		return domain.StorageLocation{}, domain.NotFoundError{Entity: domain.EntityStorageZone, ID: loc.ZoneID}
	}
	for _, existing := range tx.state.locations {
		if existing.ZoneID == loc.ZoneID && existing.Code == loc.Code {
			return domain.StorageLocation{}, fmt.Errorf("zone %s code %q: %w", loc.ZoneID, loc.Code, domain.ErrDuplicateCode)
		}
	}
	loc.Occupied = false
	loc.SampleID = nil
	loc.Version = 0
	loc.CreatedAt = tx.now
	loc.UpdatedAt = tx.now
	tx.state.locations[loc.ID] = domain.CloneLocation(loc)
	tx.recordChange(domain.Change{Entity: domain.EntityStorageLocation, Action: domain.ActionCreate, After: domain.CloneLocation(loc)})
	return domain.CloneLocation(loc), nil
}

// AssignLocation marks the slot occupied by the sample. The store mutex
// serializes transactions, so the occupancy check and flip are atomic.
func (tx *Tx) AssignLocation(locationID, sampleID string) (domain.StorageLocation, error) {
	loc, ok := tx.state.locations[locationID]
	if !ok {
		return domain.StorageLocation{}, domain.NotFoundError{Entity: domain.EntityStorageLocation, ID: locationID}
	}
	if loc.Occupied {
		return domain.StorageLocation{}, fmt.Errorf("location %s: %w", locationID, domain.ErrLocationOccupied)
	}
	before := domain.CloneLocation(loc)
	loc.Occupied = true
	loc.SampleID = &sampleID
	loc.Version++
	loc.UpdatedAt = tx.now
	tx.state.locations[locationID] = domain.CloneLocation(loc)
	tx.recordChange(domain.Change{Entity: domain.EntityStorageLocation, Action: domain.ActionUpdate, Before: before, After: domain.CloneLocation(loc)})
	return domain.CloneLocation(loc), nil
}

// ReleaseLocation frees the slot. Releasing an already-free slot is a
// no-op, not an error.
func (tx *Tx) ReleaseLocation(locationID string) (domain.StorageLocation, error) {
	loc, ok := tx.state.locations[locationID]
	if !ok {
		return domain.StorageLocation{}, domain.NotFoundError{Entity: domain.EntityStorageLocation, ID: locationID}
	}
	if !loc.Occupied {
		return domain.CloneLocation(loc), nil
	}
	before := domain.CloneLocation(loc)
	loc.Occupied = false
	loc.SampleID = nil
	loc.Version++
	loc.UpdatedAt = tx.now
	tx.state.locations[locationID] = domain.CloneLocation(loc)
	tx.recordChange(domain.Change{Entity: domain.EntityStorageLocation, Action: domain.ActionUpdate, Before: before, After: domain.CloneLocation(loc)})
	return domain.CloneLocation(loc), nil
}

// AppendMovement inserts a ledger record with the next per-sample
// sequence number.
func (tx *Tx) AppendMovement(rec domain.MovementRecord) (domain.MovementRecord, error) {
	if _, ok := tx.state.samples[rec.SampleID]; !ok {
		return domain.MovementRecord{}, domain.NotFoundError{Entity: domain.EntitySample, ID: rec.SampleID}
	}
	if rec.FromLocationID != nil {
		if _, ok := tx.state.locations[*rec.FromLocationID]; !ok {
			return domain.MovementRecord{}, domain.NotFoundError{Entity: domain.EntityStorageLocation, ID: *rec.FromLocationID}
		}
	}
	if rec.ToLocationID != nil {
		if _, ok := tx.state.locations[*rec.ToLocationID]; !ok {
			return domain.MovementRecord{}, domain.NotFoundError{Entity: domain.EntityStorageLocation, ID: *rec.ToLocationID}
		}
	}
	if rec.ID == "" {
		rec.ID = newID()
	}
	rec.Seq = int64(len(tx.state.movements[rec.SampleID])) + 1
	rec.RecordedAt = tx.now
	tx.state.movements[rec.SampleID] = append(tx.state.movements[rec.SampleID], domain.CloneMovement(rec))
	tx.recordChange(domain.Change{Entity: domain.EntityMovement, Action: domain.ActionCreate, After: domain.CloneMovement(rec)})
	return domain.CloneMovement(rec), nil
}

// AppendQCResult inserts an immutable quality-control record.
func (tx *Tx) AppendQCResult(res domain.QCResult) (domain.QCResult, error) {
	if _, ok := tx.state.samples[res.SampleID]; !ok {
		return domain.QCResult{}, domain.NotFoundError{Entity: domain.EntitySample, ID: res.SampleID}
	}
	if res.ID == "" {
		res.ID = newID()
	}
	res.RecordedAt = tx.now
	tx.state.qcResults[res.SampleID] = append(tx.state.qcResults[res.SampleID], domain.CloneQCResult(res))
	tx.recordChange(domain.Change{Entity: domain.EntityQCResult, Action: domain.ActionCreate, After: domain.CloneQCResult(res)})
	return domain.CloneQCResult(res), nil
}

// ReserveBarcodeBlock advances the scoped counter by n and returns the
// first reserved number (1-based).
func (tx *Tx) ReserveBarcodeBlock(scope string, n int) (int64, error) {
	if n <= 0 {
		return 0, fmt.Errorf("block size %d: %w", n, domain.ErrValidationFailed)
	}
	start := tx.state.counters[scope] + 1
	tx.state.counters[scope] += int64(n)
	return start, nil
}

// FindSample retrieves a sample by id from the transactional state.
func (tx *Tx) FindSample(id string) (domain.Sample, bool) {
	s, ok := tx.state.samples[id]
	if !ok {
		return domain.Sample{}, false
	}
	return domain.CloneSample(s), true
}

// FindSampleByBarcode retrieves a sample by barcode.
func (tx *Tx) FindSampleByBarcode(barcode string) (domain.Sample, bool) {
	for _, s := range tx.state.samples {
		if s.Barcode == barcode {
			return domain.CloneSample(s), true
		}
	}
	return domain.Sample{}, false
}

// FindZone retrieves a zone by id.
func (tx *Tx) FindZone(id string) (domain.StorageZone, bool) {
	z, ok := tx.state.zones[id]
	return z, ok
}

// FindLocation retrieves a location by id.
func (tx *Tx) FindLocation(id string) (domain.StorageLocation, bool) {
	l, ok := tx.state.locations[id]
	if !ok {
		return domain.StorageLocation{}, false
	}
	return domain.CloneLocation(l), true
}

// FreeLocations lists free slots visible to this transaction.
func (tx *Tx) FreeLocations(category domain.ZoneCategory, count int) []domain.StorageLocation {
	return newView(tx.state).FreeLocations(category, count)
}

// view implements domain.TransactionView over a state snapshot.
type view struct {
	state *memoryState
}

var _ domain.TransactionView = view{}

func newView(state *memoryState) view { return view{state: state} }

func (v view) ListSamples() []domain.Sample {
	out := make([]domain.Sample, 0, len(v.state.samples))
	for _, s := range v.state.samples {
		out = append(out, domain.CloneSample(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (v view) ListZones() []domain.StorageZone {
	out := make([]domain.StorageZone, 0, len(v.state.zones))
	for _, z := range v.state.zones {
		out = append(out, z)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (v view) ListLocations() []domain.StorageLocation {
	out := make([]domain.StorageLocation, 0, len(v.state.locations))
	for _, l := range v.state.locations {
		out = append(out, domain.CloneLocation(l))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (v view) FindSample(id string) (domain.Sample, bool) {
	s, ok := v.state.samples[id]
	if !ok {
		return domain.Sample{}, false
	}
	return domain.CloneSample(s), true
}

func (v view) FindZone(id string) (domain.StorageZone, bool) {
	z, ok := v.state.zones[id]
	return z, ok
}

func (v view) FindLocation(id string) (domain.StorageLocation, bool) {
	l, ok := v.state.locations[id]
	if !ok {
		return domain.StorageLocation{}, false
	}
	return domain.CloneLocation(l), true
}

func (v view) MovementHistory(sampleID string) []domain.MovementRecord {
	recs := v.state.movements[sampleID]
	out := make([]domain.MovementRecord, len(recs))
	for i, r := range recs {
		out[i] = domain.CloneMovement(r)
	}
	return out
}

func (v view) FreeLocations(category domain.ZoneCategory, count int) []domain.StorageLocation {
	if count <= 0 {
		return nil
	}
	zoneMatch := make(map[string]bool, len(v.state.zones))
	for id, z := range v.state.zones {
		zoneMatch[id] = category == "" || z.Category == category
	}
	candidates := make([]domain.StorageLocation, 0)
	for _, l := range v.state.locations {
		if !l.Occupied && zoneMatch[l.ZoneID] {
			candidates = append(candidates, domain.CloneLocation(l))
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].ZoneID != candidates[j].ZoneID {
			return candidates[i].ZoneID < candidates[j].ZoneID
		}
		return candidates[i].Code < candidates[j].Code
	})
	if len(candidates) > count {
		candidates = candidates[:count]
	}
	return candidates
}

// Read helpers ---------------------------------------------------------------

// GetSample retrieves a sample by id from committed state.
func (s *Store) GetSample(id string) (domain.Sample, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sm, ok := s.state.samples[id]
	if !ok {
		return domain.Sample{}, false
	}
	return domain.CloneSample(sm), true
}

// GetSampleByBarcode retrieves a sample by barcode from committed state.
func (s *Store) GetSampleByBarcode(barcode string) (domain.Sample, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sm := range s.state.samples {
		if sm.Barcode == barcode {
			return domain.CloneSample(sm), true
		}
	}
	return domain.Sample{}, false
}

// ListSamples returns all samples from committed state.
func (s *Store) ListSamples() []domain.Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newView(&s.state).ListSamples()
}

// GetZone retrieves a zone by id.
func (s *Store) GetZone(id string) (domain.StorageZone, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	z, ok := s.state.zones[id]
	return z, ok
}

// ListZones returns all zones.
func (s *Store) ListZones() []domain.StorageZone {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newView(&s.state).ListZones()
}

// GetLocation retrieves a location by id.
func (s *Store) GetLocation(id string) (domain.StorageLocation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.state.locations[id]
	if !ok {
		return domain.StorageLocation{}, false
	}
	return domain.CloneLocation(l), true
}

// ListLocations returns all locations.
func (s *Store) ListLocations() []domain.StorageLocation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newView(&s.state).ListLocations()
}

// MovementHistory returns a lazy, restartable sequence over a snapshot of
// the sample's ledger, ordered by Seq ascending.
func (s *Store) MovementHistory(sampleID string) iter.Seq[domain.MovementRecord] {
	s.mu.RLock()
	recs := s.state.movements[sampleID]
	snapshot := make([]domain.MovementRecord, len(recs))
	for i, r := range recs {
		snapshot[i] = domain.CloneMovement(r)
	}
	s.mu.RUnlock()
	return func(yield func(domain.MovementRecord) bool) {
		for _, r := range snapshot {
			if !yield(r) {
				return
			}
		}
	}
}

// QCHistory returns the sample's QC records in recording order.
func (s *Store) QCHistory(sampleID string) []domain.QCResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	recs := s.state.qcResults[sampleID]
	out := make([]domain.QCResult, len(recs))
	for i, r := range recs {
		out[i] = domain.CloneQCResult(r)
	}
	return out
}

// ExportState returns a deep copy of the committed state.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.state.clone()
	return Snapshot{
		Samples:   st.samples,
		Zones:     st.zones,
		Locations: st.locations,
		Movements: st.movements,
		QCResults: st.qcResults,
		Counters:  st.counters,
	}
}

// ImportState replaces the committed state with the snapshot contents.
// Nil maps are normalized to empty ones.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := newMemoryState()
	for k, v := range snapshot.Samples {
		st.samples[k] = domain.CloneSample(v)
	}
	for k, v := range snapshot.Zones {
		st.zones[k] = v
	}
	for k, v := range snapshot.Locations {
		st.locations[k] = domain.CloneLocation(v)
	}
	for k, recs := range snapshot.Movements {
		cp := make([]domain.MovementRecord, len(recs))
		for i, r := range recs {
			cp[i] = domain.CloneMovement(r)
		}
		st.movements[k] = cp
	}
	for k, recs := range snapshot.QCResults {
		cp := make([]domain.QCResult, len(recs))
		for i, r := range recs {
			cp[i] = domain.CloneQCResult(r)
		}
		st.qcResults[k] = cp
	}
	for k, v := range snapshot.Counters {
		st.counters[k] = v
	}
	s.state = st
}
