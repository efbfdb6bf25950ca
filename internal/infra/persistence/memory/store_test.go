package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"samplecore/pkg/domain"
)

func seedZoneAndLocation(t *testing.T, store *Store) (domain.StorageZone, domain.StorageLocation) {
	t.Helper()
	var (
		zone domain.StorageZone
		loc  domain.StorageLocation
	)
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		var err error
		zone, err = tx.CreateZone(domain.StorageZone{Name: "Freezer A", Category: domain.ZoneUltraLowFreezer, TempMinC: -86, TempMaxC: -70})
		if err != nil {
			return err
		}
		loc, err = tx.CreateLocation(domain.StorageLocation{ZoneID: zone.ID, Code: "A1"})
		return err
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return zone, loc
}

func createSample(t *testing.T, store *Store, barcode string) domain.Sample {
	t.Helper()
	var sample domain.Sample
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		var err error
		sample, err = tx.CreateSample(domain.Sample{Name: "S", Barcode: barcode, Status: domain.StatusPending})
		return err
	})
	if err != nil {
		t.Fatalf("create sample: %v", err)
	}
	return sample
}

func TestCreateSampleRejectsDuplicateBarcode(t *testing.T) {
	store := NewStore(nil)
	createSample(t, store, "BC1")
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateSample(domain.Sample{Name: "S2", Barcode: "BC1", Status: domain.StatusPending})
		return err
	})
	if !errors.Is(err, domain.ErrDuplicateBarcode) {
		t.Fatalf("expected ErrDuplicateBarcode, got %v", err)
	}
}

func TestCreateLocationRejectsDuplicateCode(t *testing.T) {
	store := NewStore(nil)
	zone, _ := seedZoneAndLocation(t, store)
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateLocation(domain.StorageLocation{ZoneID: zone.ID, Code: "A1"})
		return err
	})
	if !errors.Is(err, domain.ErrDuplicateCode) {
		t.Fatalf("expected ErrDuplicateCode, got %v", err)
	}
}

func TestAssignLocationExactlyOneWinner(t *testing.T) {
	store := NewStore(nil)
	_, loc := seedZoneAndLocation(t, store)
	first := createSample(t, store, "BC1")
	second := createSample(t, store, "BC2")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, id := range []string{first.ID, second.ID} {
		wg.Add(1)
		go func(i int, sampleID string) {
			defer wg.Done()
			_, errs[i] = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
				_, err := tx.AssignLocation(loc.ID, sampleID)
				return err
			})
		}(i, id)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else if !errors.Is(err, domain.ErrLocationOccupied) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly one winner, got %d", winners)
	}
}

func TestReleaseLocationIdempotent(t *testing.T) {
	store := NewStore(nil)
	_, loc := seedZoneAndLocation(t, store)
	for i := 0; i < 2; i++ {
		_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
			released, err := tx.ReleaseLocation(loc.ID)
			if err != nil {
				return err
			}
			if released.Occupied {
				return fmt.Errorf("still occupied")
			}
			return nil
		})
		if err != nil {
			t.Fatalf("release %d: %v", i, err)
		}
	}
}

func TestAppendMovementAssignsSequence(t *testing.T) {
	store := NewStore(nil)
	_, loc := seedZoneAndLocation(t, store)
	sample := createSample(t, store, "BC1")

	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		for i := 0; i < 3; i++ {
			if _, err := tx.AppendMovement(domain.MovementRecord{SampleID: sample.ID, ToLocationID: &loc.ID, Actor: "t"}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	var seqs []int64
	for rec := range store.MovementHistory(sample.ID) {
		seqs = append(seqs, rec.Seq)
	}
	if len(seqs) != 3 || seqs[0] != 1 || seqs[1] != 2 || seqs[2] != 3 {
		t.Fatalf("unexpected sequence numbers: %v", seqs)
	}
}

func TestMovementHistoryIsRestartable(t *testing.T) {
	store := NewStore(nil)
	_, loc := seedZoneAndLocation(t, store)
	sample := createSample(t, store, "BC1")
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.AppendMovement(domain.MovementRecord{SampleID: sample.ID, ToLocationID: &loc.ID, Actor: "t"})
		return err
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	seq := store.MovementHistory(sample.ID)
	for range 2 {
		count := 0
		for range seq {
			count++
		}
		if count != 1 {
			t.Fatalf("expected 1 record per pass, got %d", count)
		}
	}
}

func TestReserveBarcodeBlockNeverOverlaps(t *testing.T) {
	store := NewStore(nil)
	const (
		workers = 8
		block   = 5
	)
	starts := make([]int64, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
				var err error
				starts[i], err = tx.ReserveBarcodeBlock("SMP-2026", block)
				return err
			})
		}(i)
	}
	wg.Wait()

	seen := make(map[int64]bool)
	for _, start := range starts {
		for n := start; n < start+block; n++ {
			if seen[n] {
				t.Fatalf("sequence %d reserved twice", n)
			}
			seen[n] = true
		}
	}
	if len(seen) != workers*block {
		t.Fatalf("expected %d reserved numbers, got %d", workers*block, len(seen))
	}
}

func TestRulesBlockCommit(t *testing.T) {
	engine := domain.NewRulesEngine()
	engine.Register(blockingRule{})
	store := NewStore(engine)

	res, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateSample(domain.Sample{Name: "S", Barcode: "BC1", Status: domain.StatusPending})
		return err
	})
	var rve domain.RuleViolationError
	if !errors.As(err, &rve) {
		t.Fatalf("expected RuleViolationError, got %v", err)
	}
	if !res.HasBlocking() {
		t.Fatalf("expected blocking result")
	}
	if _, ok := store.GetSampleByBarcode("BC1"); ok {
		t.Fatalf("blocked transaction must not commit")
	}
}

type blockingRule struct{}

func (blockingRule) Name() string { return "always_block" }

func (blockingRule) Evaluate(_ context.Context, _ domain.TransactionView, changes []domain.Change) (domain.Result, error) {
	if len(changes) == 0 {
		return domain.Result{}, nil
	}
	return domain.Result{Violations: []domain.Violation{{Rule: "always_block", Severity: domain.SeverityBlock}}}, nil
}

func TestSetNowFuncControlsTimestamps(t *testing.T) {
	store := NewStore(nil)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.SetNowFunc(func() time.Time { return fixed })

	sample := createSample(t, store, "BC1")
	if !sample.CreatedAt.Equal(fixed) || !sample.UpdatedAt.Equal(fixed) {
		t.Fatalf("expected fixed timestamps, got %v / %v", sample.CreatedAt, sample.UpdatedAt)
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	store := NewStore(nil)
	_, loc := seedZoneAndLocation(t, store)
	sample := createSample(t, store, "BC1")
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if _, err := tx.AssignLocation(loc.ID, sample.ID); err != nil {
			return err
		}
		_, err := tx.AppendMovement(domain.MovementRecord{SampleID: sample.ID, ToLocationID: &loc.ID, Actor: "t"})
		return err
	})
	if err != nil {
		t.Fatalf("mutate: %v", err)
	}

	restored := NewStore(nil)
	restored.ImportState(store.ExportState())

	got, ok := restored.GetLocation(loc.ID)
	if !ok || !got.Occupied || got.SampleID == nil || *got.SampleID != sample.ID {
		t.Fatalf("restored location mismatch: %+v", got)
	}
	count := 0
	for range restored.MovementHistory(sample.ID) {
		count++
	}
	if count != 1 {
		t.Fatalf("expected 1 restored movement, got %d", count)
	}
}
