package sqlstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"samplecore/pkg/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seedZoneAndLocations(t *testing.T, store *Store, codes ...string) (domain.StorageZone, []domain.StorageLocation) {
	t.Helper()
	var (
		zone domain.StorageZone
		locs []domain.StorageLocation
	)
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		var err error
		zone, err = tx.CreateZone(domain.StorageZone{Name: "Freezer A", Category: domain.ZoneUltraLowFreezer, TempMinC: -86, TempMaxC: -70})
		if err != nil {
			return err
		}
		for _, code := range codes {
			loc, err := tx.CreateLocation(domain.StorageLocation{ZoneID: zone.ID, Code: code})
			if err != nil {
				return err
			}
			locs = append(locs, loc)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return zone, locs
}

func createSample(t *testing.T, store *Store, barcode string) domain.Sample {
	t.Helper()
	var sample domain.Sample
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		var err error
		sample, err = tx.CreateSample(domain.Sample{
			Name:    "S-" + barcode,
			Barcode: barcode,
			Status:  domain.StatusPending,
			Metadata: map[string]any{
				"source": "test",
			},
		})
		return err
	})
	if err != nil {
		t.Fatalf("create sample: %v", err)
	}
	return sample
}

func TestSampleRoundTrip(t *testing.T) {
	store := openTestStore(t)
	created := createSample(t, store, "BC100")

	got, ok := store.GetSample(created.ID)
	if !ok {
		t.Fatalf("sample not found after commit")
	}
	if got.Name != created.Name || got.Barcode != "BC100" || got.Status != domain.StatusPending {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if got.Metadata["source"] != "test" {
		t.Fatalf("metadata lost: %+v", got.Metadata)
	}

	byBarcode, ok := store.GetSampleByBarcode("BC100")
	if !ok || byBarcode.ID != created.ID {
		t.Fatalf("barcode lookup mismatch")
	}
}

func TestDuplicateBarcodeRejected(t *testing.T) {
	store := openTestStore(t)
	createSample(t, store, "BC100")
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateSample(domain.Sample{Name: "S2", Barcode: "BC100", Status: domain.StatusPending})
		return err
	})
	if !errors.Is(err, domain.ErrDuplicateBarcode) {
		t.Fatalf("expected ErrDuplicateBarcode, got %v", err)
	}
}

func TestDuplicateLocationCodeRejected(t *testing.T) {
	store := openTestStore(t)
	zone, _ := seedZoneAndLocations(t, store, "A1")
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateLocation(domain.StorageLocation{ZoneID: zone.ID, Code: "A1"})
		return err
	})
	if !errors.Is(err, domain.ErrDuplicateCode) {
		t.Fatalf("expected ErrDuplicateCode, got %v", err)
	}
}

func TestAssignLocationCompareAndSwap(t *testing.T) {
	store := openTestStore(t)
	_, locs := seedZoneAndLocations(t, store, "A1")
	first := createSample(t, store, "BC1")
	second := createSample(t, store, "BC2")

	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		loc, err := tx.AssignLocation(locs[0].ID, first.ID)
		if err != nil {
			return err
		}
		if !loc.Occupied || loc.SampleID == nil || *loc.SampleID != first.ID || loc.Version != 1 {
			t.Fatalf("assigned location state: %+v", loc)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}

	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.AssignLocation(locs[0].ID, second.ID)
		return err
	})
	if !errors.Is(err, domain.ErrLocationOccupied) {
		t.Fatalf("expected ErrLocationOccupied, got %v", err)
	}
}

func TestReleaseLocationIdempotent(t *testing.T) {
	store := openTestStore(t)
	_, locs := seedZoneAndLocations(t, store, "A1")
	sample := createSample(t, store, "BC1")

	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if _, err := tx.AssignLocation(locs[0].ID, sample.ID); err != nil {
			return err
		}
		if _, err := tx.ReleaseLocation(locs[0].ID); err != nil {
			return err
		}
		released, err := tx.ReleaseLocation(locs[0].ID)
		if err != nil {
			return err
		}
		if released.Occupied || released.SampleID != nil {
			t.Fatalf("release state: %+v", released)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("release: %v", err)
	}
}

func TestMovementSequencePerSample(t *testing.T) {
	store := openTestStore(t)
	_, locs := seedZoneAndLocations(t, store, "A1", "A2")
	sample := createSample(t, store, "BC1")
	other := createSample(t, store, "BC2")

	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		for _, loc := range locs {
			if _, err := tx.AppendMovement(domain.MovementRecord{SampleID: sample.ID, ToLocationID: &loc.ID, Actor: "t"}); err != nil {
				return err
			}
		}
		_, err := tx.AppendMovement(domain.MovementRecord{SampleID: other.ID, ToLocationID: &locs[0].ID, Actor: "t"})
		return err
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	var seqs []int64
	for rec := range store.MovementHistory(sample.ID) {
		seqs = append(seqs, rec.Seq)
	}
	if len(seqs) != 2 || seqs[0] != 1 || seqs[1] != 2 {
		t.Fatalf("sample sequence mismatch: %v", seqs)
	}
	for rec := range store.MovementHistory(other.ID) {
		if rec.Seq != 1 {
			t.Fatalf("per-sample sequence must restart, got %d", rec.Seq)
		}
	}
}

func TestMovementHistoryIsRestartable(t *testing.T) {
	store := openTestStore(t)
	_, locs := seedZoneAndLocations(t, store, "A1")
	sample := createSample(t, store, "BC1")
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.AppendMovement(domain.MovementRecord{SampleID: sample.ID, ToLocationID: &locs[0].ID, Actor: "t"})
		return err
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	seq := store.MovementHistory(sample.ID)
	for pass := 0; pass < 2; pass++ {
		count := 0
		for range seq {
			count++
		}
		if count != 1 {
			t.Fatalf("pass %d: expected 1 record, got %d", pass, count)
		}
	}
}

func TestReserveBarcodeBlockAdvances(t *testing.T) {
	store := openTestStore(t)
	var starts []int64
	for i := 0; i < 3; i++ {
		_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
			start, err := tx.ReserveBarcodeBlock("SMP-2026", 10)
			starts = append(starts, start)
			return err
		})
		if err != nil {
			t.Fatalf("reserve %d: %v", i, err)
		}
	}
	if starts[0] != 1 || starts[1] != 11 || starts[2] != 21 {
		t.Fatalf("unexpected block starts: %v", starts)
	}
}

func TestFreeLocationsFiltersByCategory(t *testing.T) {
	store := openTestStore(t)
	_, locs := seedZoneAndLocations(t, store, "A1", "A2", "A3")
	sample := createSample(t, store, "BC1")
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.AssignLocation(locs[0].ID, sample.ID)
		return err
	})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}

	err = store.View(context.Background(), func(view domain.TransactionView) error {
		free := view.FreeLocations(domain.ZoneUltraLowFreezer, 10)
		if len(free) != 2 {
			t.Fatalf("expected 2 free, got %d", len(free))
		}
		if none := view.FreeLocations(domain.ZoneRefrigerator, 10); len(none) != 0 {
			t.Fatalf("expected no refrigerator slots, got %d", len(none))
		}
		if limited := view.FreeLocations(domain.ZoneUltraLowFreezer, 1); len(limited) != 1 {
			t.Fatalf("expected count limit, got %d", len(limited))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestFailedTransactionRollsBack(t *testing.T) {
	store := openTestStore(t)
	boom := errors.New("boom")
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if _, err := tx.CreateSample(domain.Sample{Name: "S", Barcode: "BC1", Status: domain.StatusPending}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected fn error, got %v", err)
	}
	if _, ok := store.GetSampleByBarcode("BC1"); ok {
		t.Fatalf("rolled back sample must not be visible")
	}
}

func TestUpdateSamplePersistsMutation(t *testing.T) {
	store := openTestStore(t)
	sample := createSample(t, store, "BC1")

	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.UpdateSample(sample.ID, func(s *domain.Sample) error {
			s.Status = domain.StatusValidated
			s.Metadata["checked"] = true
			return nil
		})
		return err
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	got, ok := store.GetSample(sample.ID)
	if !ok || got.Status != domain.StatusValidated {
		t.Fatalf("update not persisted: %+v", got)
	}
	if got.Metadata["checked"] != true {
		t.Fatalf("metadata update lost: %+v", got.Metadata)
	}
	if got.UpdatedAt.Before(got.CreatedAt) || got.UpdatedAt.After(time.Now().Add(time.Minute)) {
		t.Fatalf("suspicious timestamps: %+v", got)
	}
}
