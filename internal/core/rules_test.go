package core

import (
	"context"
	"errors"
	"testing"

	"samplecore/internal/infra/persistence/memory"
)

// The rules are a commit-time backstop: a transaction that bypasses the
// service and leaves the store inconsistent must be blocked.
func TestRulesBlockDanglingLocationPointer(t *testing.T) {
	store := memory.NewStore(NewDefaultRulesEngine())
	ctx := context.Background()

	var (
		sample Sample
		loc    StorageLocation
	)
	_, err := store.RunInTransaction(ctx, func(tx Transaction) error {
		zone, err := tx.CreateZone(StorageZone{Name: "Z", Category: ZoneRefrigerator})
		if err != nil {
			return err
		}
		loc, err = tx.CreateLocation(StorageLocation{ZoneID: zone.ID, Code: "R1"})
		if err != nil {
			return err
		}
		sample, err = tx.CreateSample(Sample{Name: "S", Barcode: "BC1", Status: StatusPending})
		return err
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	// pointer set without assign: occupancy flag and ledger both disagree
	_, err = store.RunInTransaction(ctx, func(tx Transaction) error {
		_, err := tx.UpdateSample(sample.ID, func(s *Sample) error {
			s.CurrentLocationID = &loc.ID
			return nil
		})
		return err
	})
	var rve RuleViolationError
	if !errors.As(err, &rve) {
		t.Fatalf("expected RuleViolationError, got %v", err)
	}

	got, _ := store.GetSample(sample.ID)
	if got.CurrentLocationID != nil {
		t.Fatalf("blocked transaction must not commit")
	}
}

func TestRulesBlockTerminalStatusEdit(t *testing.T) {
	store := memory.NewStore(NewDefaultRulesEngine())
	ctx := context.Background()

	var sample Sample
	_, err := store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		sample, err = tx.CreateSample(Sample{Name: "S", Barcode: "BC1", Status: StatusRejected})
		return err
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	_, err = store.RunInTransaction(ctx, func(tx Transaction) error {
		_, err := tx.UpdateSample(sample.ID, func(s *Sample) error {
			s.Status = StatusPending
			return nil
		})
		return err
	})
	var rve RuleViolationError
	if !errors.As(err, &rve) {
		t.Fatalf("expected RuleViolationError, got %v", err)
	}
}

func TestRulesBlockUnknownStatus(t *testing.T) {
	store := memory.NewStore(NewDefaultRulesEngine())
	ctx := context.Background()

	var sample Sample
	_, err := store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		sample, err = tx.CreateSample(Sample{Name: "S", Barcode: "BC1", Status: StatusPending})
		return err
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	_, err = store.RunInTransaction(ctx, func(tx Transaction) error {
		_, err := tx.UpdateSample(sample.ID, func(s *Sample) error {
			s.Status = "limbo"
			return nil
		})
		return err
	})
	var rve RuleViolationError
	if !errors.As(err, &rve) {
		t.Fatalf("expected RuleViolationError, got %v", err)
	}
}

func TestRulesAcceptConsistentPlacement(t *testing.T) {
	store := memory.NewStore(NewDefaultRulesEngine())
	ctx := context.Background()

	_, err := store.RunInTransaction(ctx, func(tx Transaction) error {
		zone, err := tx.CreateZone(StorageZone{Name: "Z", Category: ZoneRefrigerator})
		if err != nil {
			return err
		}
		loc, err := tx.CreateLocation(StorageLocation{ZoneID: zone.ID, Code: "R1"})
		if err != nil {
			return err
		}
		sample, err := tx.CreateSample(Sample{Name: "S", Barcode: "BC1", Status: StatusValidated})
		if err != nil {
			return err
		}
		if _, err := tx.AssignLocation(loc.ID, sample.ID); err != nil {
			return err
		}
		if _, err := tx.UpdateSample(sample.ID, func(s *Sample) error {
			s.Status = StatusInStorage
			s.CurrentLocationID = &loc.ID
			return nil
		}); err != nil {
			return err
		}
		_, err = tx.AppendMovement(MovementRecord{SampleID: sample.ID, ToLocationID: &loc.ID, Actor: "t"})
		return err
	})
	if err != nil {
		t.Fatalf("consistent placement rejected: %v", err)
	}
}
