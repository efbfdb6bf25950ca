package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"iter"
	"time"

	"samplecore/pkg/domain"
)

const (
	sampleSelect   = `SELECT id, name, barcode, status, current_location_id, storage_requirement, project_id, batch_id, metadata, created_at, updated_at FROM samples`
	zoneSelect     = `SELECT id, name, category, temp_min_c, temp_max_c, created_at, updated_at FROM zones`
	locationSelect = `SELECT id, zone_id, code, occupied, sample_id, version, created_at, updated_at FROM locations`
	movementSelect = `SELECT id, sample_id, from_location_id, to_location_id, actor, reason, seq, recorded_at FROM movements`
	qcSelect       = `SELECT id, sample_id, qc_type, outcome, metrics, actor, recorded_at FROM qc_results`
)

type rowScanner interface {
	Scan(dest ...any) error
}

func parseTime(raw string) time.Time {
	t, err := time.Parse(timeLayout, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

func scanSample(row rowScanner) (domain.Sample, error) {
	var s domain.Sample
	var locID, projID, batchID sql.NullString
	var status, requirement, meta, created, updated string
	err := row.Scan(&s.ID, &s.Name, &s.Barcode, &status, &locID, &requirement, &projID, &batchID, &meta, &created, &updated)
	if err != nil {
		return domain.Sample{}, err
	}
	s.Status = domain.SampleStatus(status)
	s.StorageRequirement = domain.ZoneCategory(requirement)
	if locID.Valid {
		v := locID.String
		s.CurrentLocationID = &v
	}
	if projID.Valid {
		v := projID.String
		s.ProjectID = &v
	}
	if batchID.Valid {
		v := batchID.String
		s.BatchID = &v
	}
	if err := json.Unmarshal([]byte(meta), &s.Metadata); err != nil {
		return domain.Sample{}, fmt.Errorf("decode metadata: %w", err)
	}
	s.CreatedAt = parseTime(created)
	s.UpdatedAt = parseTime(updated)
	return s, nil
}

func scanZone(row rowScanner) (domain.StorageZone, error) {
	var z domain.StorageZone
	var category, created, updated string
	err := row.Scan(&z.ID, &z.Name, &category, &z.TempMinC, &z.TempMaxC, &created, &updated)
	if err != nil {
		return domain.StorageZone{}, err
	}
	z.Category = domain.ZoneCategory(category)
	z.CreatedAt = parseTime(created)
	z.UpdatedAt = parseTime(updated)
	return z, nil
}

func scanLocation(row rowScanner) (domain.StorageLocation, error) {
	var l domain.StorageLocation
	var occupied int64
	var sampleID sql.NullString
	var created, updated string
	err := row.Scan(&l.ID, &l.ZoneID, &l.Code, &occupied, &sampleID, &l.Version, &created, &updated)
	if err != nil {
		return domain.StorageLocation{}, err
	}
	l.Occupied = occupied != 0
	if sampleID.Valid {
		v := sampleID.String
		l.SampleID = &v
	}
	l.CreatedAt = parseTime(created)
	l.UpdatedAt = parseTime(updated)
	return l, nil
}

func scanMovement(row rowScanner) (domain.MovementRecord, error) {
	var m domain.MovementRecord
	var from, to sql.NullString
	var recorded string
	err := row.Scan(&m.ID, &m.SampleID, &from, &to, &m.Actor, &m.Reason, &m.Seq, &recorded)
	if err != nil {
		return domain.MovementRecord{}, err
	}
	if from.Valid {
		v := from.String
		m.FromLocationID = &v
	}
	if to.Valid {
		v := to.String
		m.ToLocationID = &v
	}
	m.RecordedAt = parseTime(recorded)
	return m, nil
}

func scanQCResult(row rowScanner) (domain.QCResult, error) {
	var q domain.QCResult
	var outcome, metrics, recorded string
	err := row.Scan(&q.ID, &q.SampleID, &q.QCType, &outcome, &metrics, &q.Actor, &recorded)
	if err != nil {
		return domain.QCResult{}, err
	}
	q.Outcome = domain.QCOutcome(outcome)
	if err := json.Unmarshal([]byte(metrics), &q.Metrics); err != nil {
		return domain.QCResult{}, fmt.Errorf("decode metrics: %w", err)
	}
	q.RecordedAt = parseTime(recorded)
	return q, nil
}

func findSample(ctx context.Context, s *Store, q querier, id string) (domain.Sample, bool) {
	row := q.QueryRowContext(ctx, s.dialect.rebind(sampleSelect+` WHERE id = ?`), id)
	sm, err := scanSample(row)
	if err != nil {
		return domain.Sample{}, false
	}
	return sm, true
}

func findZone(ctx context.Context, s *Store, q querier, id string) (domain.StorageZone, bool) {
	row := q.QueryRowContext(ctx, s.dialect.rebind(zoneSelect+` WHERE id = ?`), id)
	z, err := scanZone(row)
	if err != nil {
		return domain.StorageZone{}, false
	}
	return z, true
}

func findLocation(ctx context.Context, s *Store, q querier, id string) (domain.StorageLocation, bool) {
	row := q.QueryRowContext(ctx, s.dialect.rebind(locationSelect+` WHERE id = ?`), id)
	l, err := scanLocation(row)
	if err != nil {
		return domain.StorageLocation{}, false
	}
	return l, true
}

func movementHistory(ctx context.Context, s *Store, q querier, sampleID string) ([]domain.MovementRecord, error) {
	rows, err := q.QueryContext(ctx, s.dialect.rebind(movementSelect+` WHERE sample_id = ? ORDER BY seq ASC`), sampleID)
	if err != nil {
		return nil, fmt.Errorf("select movements: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []domain.MovementRecord
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, fmt.Errorf("scan movement: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// sqlView implements domain.TransactionView with queries against either an
// open transaction or the bare handle.
type sqlView struct {
	store *Store
	q     querier
	ctx   context.Context
}

var _ domain.TransactionView = sqlView{}

func (v sqlView) ListSamples() []domain.Sample {
	rows, err := v.q.QueryContext(v.ctx, v.store.dialect.rebind(sampleSelect+` ORDER BY id`))
	if err != nil {
		return nil
	}
	defer func() { _ = rows.Close() }()
	var out []domain.Sample
	for rows.Next() {
		s, err := scanSample(rows)
		if err != nil {
			return nil
		}
		out = append(out, s)
	}
	return out
}

func (v sqlView) ListZones() []domain.StorageZone {
	rows, err := v.q.QueryContext(v.ctx, v.store.dialect.rebind(zoneSelect+` ORDER BY id`))
	if err != nil {
		return nil
	}
	defer func() { _ = rows.Close() }()
	var out []domain.StorageZone
	for rows.Next() {
		z, err := scanZone(rows)
		if err != nil {
			return nil
		}
		out = append(out, z)
	}
	return out
}

func (v sqlView) ListLocations() []domain.StorageLocation {
	rows, err := v.q.QueryContext(v.ctx, v.store.dialect.rebind(locationSelect+` ORDER BY id`))
	if err != nil {
		return nil
	}
	defer func() { _ = rows.Close() }()
	var out []domain.StorageLocation
	for rows.Next() {
		l, err := scanLocation(rows)
		if err != nil {
			return nil
		}
		out = append(out, l)
	}
	return out
}

func (v sqlView) FindSample(id string) (domain.Sample, bool) {
	return findSample(v.ctx, v.store, v.q, id)
}

func (v sqlView) FindZone(id string) (domain.StorageZone, bool) {
	return findZone(v.ctx, v.store, v.q, id)
}

func (v sqlView) FindLocation(id string) (domain.StorageLocation, bool) {
	return findLocation(v.ctx, v.store, v.q, id)
}

func (v sqlView) MovementHistory(sampleID string) []domain.MovementRecord {
	recs, err := movementHistory(v.ctx, v.store, v.q, sampleID)
	if err != nil {
		return nil
	}
	return recs
}

func (v sqlView) FreeLocations(category domain.ZoneCategory, count int) []domain.StorageLocation {
	if count <= 0 {
		return nil
	}
	query := locationSelect + ` WHERE occupied = 0`
	args := []any{}
	if category != "" {
		query = `SELECT l.id, l.zone_id, l.code, l.occupied, l.sample_id, l.version, l.created_at, l.updated_at
			 FROM locations l JOIN zones z ON z.id = l.zone_id
			 WHERE l.occupied = 0 AND z.category = ?`
		args = append(args, string(category))
	}
	query += ` ORDER BY zone_id, code LIMIT ?`
	args = append(args, count)
	rows, err := v.q.QueryContext(v.ctx, v.store.dialect.rebind(query), args...)
	if err != nil {
		return nil
	}
	defer func() { _ = rows.Close() }()
	var out []domain.StorageLocation
	for rows.Next() {
		l, err := scanLocation(rows)
		if err != nil {
			return nil
		}
		out = append(out, l)
	}
	return out
}

// Read helpers ---------------------------------------------------------------

// GetSample retrieves a sample by id from committed state.
func (s *Store) GetSample(id string) (domain.Sample, bool) {
	return findSample(context.Background(), s, s.db, id)
}

// GetSampleByBarcode retrieves a sample by barcode.
func (s *Store) GetSampleByBarcode(barcode string) (domain.Sample, bool) {
	row := s.db.QueryRowContext(context.Background(), s.dialect.rebind(sampleSelect+` WHERE barcode = ?`), barcode)
	sm, err := scanSample(row)
	if err != nil {
		return domain.Sample{}, false
	}
	return sm, true
}

// ListSamples returns all committed samples.
func (s *Store) ListSamples() []domain.Sample {
	return sqlView{store: s, q: s.db, ctx: context.Background()}.ListSamples()
}

// GetZone retrieves a zone by id.
func (s *Store) GetZone(id string) (domain.StorageZone, bool) {
	return findZone(context.Background(), s, s.db, id)
}

// ListZones returns all zones.
func (s *Store) ListZones() []domain.StorageZone {
	return sqlView{store: s, q: s.db, ctx: context.Background()}.ListZones()
}

// GetLocation retrieves a location by id.
func (s *Store) GetLocation(id string) (domain.StorageLocation, bool) {
	return findLocation(context.Background(), s, s.db, id)
}

// ListLocations returns all locations.
func (s *Store) ListLocations() []domain.StorageLocation {
	return sqlView{store: s, q: s.db, ctx: context.Background()}.ListLocations()
}

// MovementHistory returns a lazy, restartable sequence over the sample's
// committed ledger records, ordered by Seq ascending. Each iteration
// re-reads the table, so a restarted loop observes appends committed in
// the meantime.
func (s *Store) MovementHistory(sampleID string) iter.Seq[domain.MovementRecord] {
	return func(yield func(domain.MovementRecord) bool) {
		recs, err := movementHistory(context.Background(), s, s.db, sampleID)
		if err != nil {
			return
		}
		for _, r := range recs {
			if !yield(r) {
				return
			}
		}
	}
}

// QCHistory returns the sample's QC records in recording order.
func (s *Store) QCHistory(sampleID string) []domain.QCResult {
	rows, err := s.db.QueryContext(context.Background(), s.dialect.rebind(qcSelect+` WHERE sample_id = ? ORDER BY recorded_at ASC, id ASC`), sampleID)
	if err != nil {
		return nil
	}
	defer func() { _ = rows.Close() }()
	var out []domain.QCResult
	for rows.Next() {
		q, err := scanQCResult(rows)
		if err != nil {
			return nil
		}
		out = append(out, q)
	}
	return out
}
