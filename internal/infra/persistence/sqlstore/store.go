// Package sqlstore implements the domain persistence contract on a
// relational database. It backs both the embedded sqlite driver and
// postgres; the two differ only in placeholder style and transaction
// isolation options. Occupancy flips and barcode-block reservations are
// guarded by compare-and-swap UPDATEs on the specific row, not a
// process-wide lock, so the occupancy invariant holds across service
// instances sharing a database.
package sqlstore

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"samplecore/pkg/domain"
)

// Compile-time contract assertion ensuring the store satisfies the domain
// interface.
var _ domain.PersistentStore = (*Store)(nil)

const timeLayout = time.RFC3339Nano

// dialect captures the per-engine differences.
type dialect struct {
	name    string
	rebind  func(query string) string
	beginTx *sql.TxOptions
}

func passthrough(query string) string { return query }

// rebindDollar rewrites ? placeholders to $1..$n for postgres.
func rebindDollar(query string) string {
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Store persists state to a relational database.
type Store struct {
	db      *sql.DB
	dialect dialect
	engine  *domain.RulesEngine
	nowFn   func() time.Time
}

func newStore(db *sql.DB, d dialect, engine *domain.RulesEngine) (*Store, error) {
	ctx := context.Background()
	for _, stmt := range splitStatements(schemaDDL) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("execute ddl: %w", err)
		}
	}
	return &Store{
		db:      db,
		dialect: d,
		engine:  engine,
		nowFn:   func() time.Time { return time.Now().UTC() },
	}, nil
}

func splitStatements(ddl string) []string {
	parts := strings.Split(ddl, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// SetNowFunc overrides the transaction clock, for tests.
func (s *Store) SetNowFunc(fn func() time.Time) { s.nowFn = fn }

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

func newID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// RunInTransaction executes fn inside a database transaction. Registered
// rules are evaluated against the uncommitted state; a blocking violation
// rolls the transaction back.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) (domain.Result, error) {
	tx, err := s.db.BeginTx(ctx, s.dialect.beginTx)
	if err != nil {
		return domain.Result{}, fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	st := &sqlTx{store: s, tx: tx, ctx: ctx, now: s.nowFn()}
	if err := fn(st); err != nil {
		return domain.Result{}, err
	}

	var result domain.Result
	if s.engine != nil {
		view := sqlView{store: s, q: tx, ctx: ctx}
		res, err := s.engine.Evaluate(ctx, view, st.changes)
		if err != nil {
			return domain.Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.Result{}, fmt.Errorf("commit: %w", err)
	}
	committed = true
	return result, nil
}

// View executes fn against a read-only snapshot transaction.
func (s *Store) View(ctx context.Context, fn func(domain.TransactionView) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: s.dialect.name == "pgx"})
	if err != nil {
		return fmt.Errorf("begin view tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	return fn(sqlView{store: s, q: tx, ctx: ctx})
}

// sqlTx implements domain.Transaction over an open *sql.Tx.
type sqlTx struct {
	store   *Store
	tx      *sql.Tx
	ctx     context.Context
	now     time.Time
	changes []domain.Change
}

var _ domain.Transaction = (*sqlTx)(nil)

func (t *sqlTx) q(query string) string { return t.store.dialect.rebind(query) }

func (t *sqlTx) recordChange(change domain.Change) {
	t.changes = append(t.changes, change)
}

// Changes returns the mutations recorded so far.
func (t *sqlTx) Changes() []domain.Change {
	out := make([]domain.Change, len(t.changes))
	copy(out, t.changes)
	return out
}

func (t *sqlTx) CreateSample(sample domain.Sample) (domain.Sample, error) {
	if sample.ID == "" {
		sample.ID = newID()
	}
	var exists int
	err := t.tx.QueryRowContext(t.ctx, t.q(`SELECT COUNT(1) FROM samples WHERE barcode = ?`), sample.Barcode).Scan(&exists)
	if err != nil {
		return domain.Sample{}, fmt.Errorf("check barcode: %w", err)
	}
	if exists > 0 {
		return domain.Sample{}, fmt.Errorf("barcode %q: %w", sample.Barcode, domain.ErrDuplicateBarcode)
	}
	sample.CreatedAt = t.now
	sample.UpdatedAt = t.now
	if sample.Metadata == nil {
		sample.Metadata = map[string]any{}
	}
	meta, err := json.Marshal(sample.Metadata)
	if err != nil {
		return domain.Sample{}, fmt.Errorf("encode metadata: %w", err)
	}
	_, err = t.tx.ExecContext(t.ctx, t.q(
		`INSERT INTO samples (id, name, barcode, status, current_location_id, storage_requirement, project_id, batch_id, metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		sample.ID, sample.Name, sample.Barcode, string(sample.Status),
		nullable(sample.CurrentLocationID), string(sample.StorageRequirement),
		nullable(sample.ProjectID), nullable(sample.BatchID), string(meta),
		t.now.Format(timeLayout), t.now.Format(timeLayout),
	)
	if err != nil {
		return domain.Sample{}, fmt.Errorf("insert sample: %w", err)
	}
	t.recordChange(domain.Change{Entity: domain.EntitySample, Action: domain.ActionCreate, After: domain.CloneSample(sample)})
	return sample, nil
}

func (t *sqlTx) UpdateSample(id string, mutator func(*domain.Sample) error) (domain.Sample, error) {
	before, ok := findSample(t.ctx, t.store, t.tx, id)
	if !ok {
		return domain.Sample{}, domain.NotFoundError{Entity: domain.EntitySample, ID: id}
	}
	current := domain.CloneSample(before)
	if err := mutator(&current); err != nil {
		return domain.Sample{}, err
	}
	current.ID = id
	current.UpdatedAt = t.now
	meta, err := json.Marshal(current.Metadata)
	if err != nil {
		return domain.Sample{}, fmt.Errorf("encode metadata: %w", err)
	}
	_, err = t.tx.ExecContext(t.ctx, t.q(
		`UPDATE samples SET name = ?, status = ?, current_location_id = ?, storage_requirement = ?, project_id = ?, batch_id = ?, metadata = ?, updated_at = ?
		 WHERE id = ?`),
		current.Name, string(current.Status), nullable(current.CurrentLocationID),
		string(current.StorageRequirement), nullable(current.ProjectID), nullable(current.BatchID),
		string(meta), t.now.Format(timeLayout), id,
	)
	if err != nil {
		return domain.Sample{}, fmt.Errorf("update sample: %w", err)
	}
	t.recordChange(domain.Change{Entity: domain.EntitySample, Action: domain.ActionUpdate, Before: before, After: domain.CloneSample(current)})
	return current, nil
}

func (t *sqlTx) CreateZone(zone domain.StorageZone) (domain.StorageZone, error) {
	if zone.ID == "" {
		zone.ID = newID()
	}
	zone.CreatedAt = t.now
	zone.UpdatedAt = t.now
	_, err := t.tx.ExecContext(t.ctx, t.q(
		`INSERT INTO zones (id, name, category, temp_min_c, temp_max_c, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`),
		zone.ID, zone.Name, string(zone.Category), zone.TempMinC, zone.TempMaxC,
		t.now.Format(timeLayout), t.now.Format(timeLayout),
	)
	if err != nil {
		return domain.StorageZone{}, fmt.Errorf("insert zone: %w", err)
	}
	t.recordChange(domain.Change{Entity: domain.EntityStorageZone, Action: domain.ActionCreate, After: zone})
	return zone, nil
}

func (t *sqlTx) CreateLocation(loc domain.StorageLocation) (domain.StorageLocation, error) {
	if loc.ID == "" {
		loc.ID = newID()
	}
	if _, ok := t.FindZone(loc.ZoneID); !ok {
		return domain.StorageLocation{}, domain.NotFoundError{Entity: domain.EntityStorageZone, ID: loc.ZoneID}
	}
	var exists int
	err := t.tx.QueryRowContext(t.ctx, t.q(`SELECT COUNT(1) FROM locations WHERE zone_id = ? AND code = ?`), loc.ZoneID, loc.Code).Scan(&exists)
	if err != nil {
		return domain.StorageLocation{}, fmt.Errorf("check code: %w", err)
	}
	if exists > 0 {
		return domain.StorageLocation{}, fmt.Errorf("zone %s code %q: %w", loc.ZoneID, loc.Code, domain.ErrDuplicateCode)
	}
	loc.Occupied = false
	loc.SampleID = nil
	loc.Version = 0
	loc.CreatedAt = t.now
	loc.UpdatedAt = t.now
	_, err = t.tx.ExecContext(t.ctx, t.q(
		`INSERT INTO locations (id, zone_id, code, occupied, sample_id, version, created_at, updated_at) VALUES (?, ?, ?, 0, NULL, 0, ?, ?)`),
		loc.ID, loc.ZoneID, loc.Code, t.now.Format(timeLayout), t.now.Format(timeLayout),
	)
	if err != nil {
		return domain.StorageLocation{}, fmt.Errorf("insert location: %w", err)
	}
	t.recordChange(domain.Change{Entity: domain.EntityStorageLocation, Action: domain.ActionCreate, After: domain.CloneLocation(loc)})
	return loc, nil
}

// AssignLocation flips the occupancy flag with a compare-and-swap UPDATE.
// The WHERE clause only matches a free row, so two racing transactions
// cannot both succeed regardless of which service instance they run in.
func (t *sqlTx) AssignLocation(locationID, sampleID string) (domain.StorageLocation, error) {
	before, ok := findLocation(t.ctx, t.store, t.tx, locationID)
	if !ok {
		return domain.StorageLocation{}, domain.NotFoundError{Entity: domain.EntityStorageLocation, ID: locationID}
	}
	res, err := t.tx.ExecContext(t.ctx, t.q(
		`UPDATE locations SET occupied = 1, sample_id = ?, version = version + 1, updated_at = ? WHERE id = ? AND occupied = 0`),
		sampleID, t.now.Format(timeLayout), locationID,
	)
	if err != nil {
		return domain.StorageLocation{}, fmt.Errorf("assign location: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.StorageLocation{}, fmt.Errorf("assign location: %w", err)
	}
	if n == 0 {
		return domain.StorageLocation{}, fmt.Errorf("location %s: %w", locationID, domain.ErrLocationOccupied)
	}
	after, _ := findLocation(t.ctx, t.store, t.tx, locationID)
	t.recordChange(domain.Change{Entity: domain.EntityStorageLocation, Action: domain.ActionUpdate, Before: before, After: domain.CloneLocation(after)})
	return after, nil
}

func (t *sqlTx) ReleaseLocation(locationID string) (domain.StorageLocation, error) {
	before, ok := findLocation(t.ctx, t.store, t.tx, locationID)
	if !ok {
		return domain.StorageLocation{}, domain.NotFoundError{Entity: domain.EntityStorageLocation, ID: locationID}
	}
	if !before.Occupied {
		return before, nil
	}
	_, err := t.tx.ExecContext(t.ctx, t.q(
		`UPDATE locations SET occupied = 0, sample_id = NULL, version = version + 1, updated_at = ? WHERE id = ? AND occupied = 1`),
		t.now.Format(timeLayout), locationID,
	)
	if err != nil {
		return domain.StorageLocation{}, fmt.Errorf("release location: %w", err)
	}
	after, _ := findLocation(t.ctx, t.store, t.tx, locationID)
	t.recordChange(domain.Change{Entity: domain.EntityStorageLocation, Action: domain.ActionUpdate, Before: before, After: domain.CloneLocation(after)})
	return after, nil
}

func (t *sqlTx) AppendMovement(rec domain.MovementRecord) (domain.MovementRecord, error) {
	if _, ok := t.FindSample(rec.SampleID); !ok {
		return domain.MovementRecord{}, domain.NotFoundError{Entity: domain.EntitySample, ID: rec.SampleID}
	}
	if rec.ID == "" {
		rec.ID = newID()
	}
	var seq int64
	err := t.tx.QueryRowContext(t.ctx, t.q(`SELECT COALESCE(MAX(seq), 0) + 1 FROM movements WHERE sample_id = ?`), rec.SampleID).Scan(&seq)
	if err != nil {
		return domain.MovementRecord{}, fmt.Errorf("next seq: %w", err)
	}
	rec.Seq = seq
	rec.RecordedAt = t.now
	_, err = t.tx.ExecContext(t.ctx, t.q(
		`INSERT INTO movements (id, sample_id, from_location_id, to_location_id, actor, reason, seq, recorded_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		rec.ID, rec.SampleID, nullable(rec.FromLocationID), nullable(rec.ToLocationID),
		rec.Actor, rec.Reason, rec.Seq, t.now.Format(timeLayout),
	)
	if err != nil {
		return domain.MovementRecord{}, fmt.Errorf("insert movement: %w", err)
	}
	t.recordChange(domain.Change{Entity: domain.EntityMovement, Action: domain.ActionCreate, After: domain.CloneMovement(rec)})
	return rec, nil
}

func (t *sqlTx) AppendQCResult(res domain.QCResult) (domain.QCResult, error) {
	if _, ok := t.FindSample(res.SampleID); !ok {
		return domain.QCResult{}, domain.NotFoundError{Entity: domain.EntitySample, ID: res.SampleID}
	}
	if res.ID == "" {
		res.ID = newID()
	}
	res.RecordedAt = t.now
	if res.Metrics == nil {
		res.Metrics = map[string]any{}
	}
	metrics, err := json.Marshal(res.Metrics)
	if err != nil {
		return domain.QCResult{}, fmt.Errorf("encode metrics: %w", err)
	}
	_, err = t.tx.ExecContext(t.ctx, t.q(
		`INSERT INTO qc_results (id, sample_id, qc_type, outcome, metrics, actor, recorded_at) VALUES (?, ?, ?, ?, ?, ?, ?)`),
		res.ID, res.SampleID, res.QCType, string(res.Outcome), string(metrics), res.Actor, t.now.Format(timeLayout),
	)
	if err != nil {
		return domain.QCResult{}, fmt.Errorf("insert qc result: %w", err)
	}
	t.recordChange(domain.Change{Entity: domain.EntityQCResult, Action: domain.ActionCreate, After: domain.CloneQCResult(res)})
	return res, nil
}

// ReserveBarcodeBlock advances the scoped counter inside the transaction.
// The UPDATE locks the counter row, so concurrent reservations serialize
// on it and never hand out overlapping blocks.
func (t *sqlTx) ReserveBarcodeBlock(scope string, n int) (int64, error) {
	if n <= 0 {
		return 0, fmt.Errorf("block size %d: %w", n, domain.ErrValidationFailed)
	}
	_, err := t.tx.ExecContext(t.ctx, t.q(
		`INSERT INTO barcode_counters (scope, next) VALUES (?, 0) ON CONFLICT (scope) DO NOTHING`), scope)
	if err != nil {
		return 0, fmt.Errorf("seed counter: %w", err)
	}
	if _, err := t.tx.ExecContext(t.ctx, t.q(
		`UPDATE barcode_counters SET next = next + ? WHERE scope = ?`), n, scope); err != nil {
		return 0, fmt.Errorf("advance counter: %w", err)
	}
	var next int64
	if err := t.tx.QueryRowContext(t.ctx, t.q(
		`SELECT next FROM barcode_counters WHERE scope = ?`), scope).Scan(&next); err != nil {
		return 0, fmt.Errorf("read counter: %w", err)
	}
	return next - int64(n) + 1, nil
}

func (t *sqlTx) FindSample(id string) (domain.Sample, bool) {
	return findSample(t.ctx, t.store, t.tx, id)
}

func (t *sqlTx) FindSampleByBarcode(barcode string) (domain.Sample, bool) {
	row := t.tx.QueryRowContext(t.ctx, t.q(sampleSelect+` WHERE barcode = ?`), barcode)
	s, err := scanSample(row)
	if err != nil {
		return domain.Sample{}, false
	}
	return s, true
}

func (t *sqlTx) FindZone(id string) (domain.StorageZone, bool) {
	return findZone(t.ctx, t.store, t.tx, id)
}

func (t *sqlTx) FindLocation(id string) (domain.StorageLocation, bool) {
	return findLocation(t.ctx, t.store, t.tx, id)
}

// FreeLocations lists free slots visible to this transaction.
func (t *sqlTx) FreeLocations(category domain.ZoneCategory, count int) []domain.StorageLocation {
	return sqlView{store: t.store, q: t.tx, ctx: t.ctx}.FreeLocations(category, count)
}

// nullable converts a *string into a driver-friendly value.
func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
