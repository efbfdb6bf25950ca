package core

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"samplecore/internal/blob"
	"samplecore/pkg/domain"
)

// defaultIntakeWorkers bounds concurrent row processing in a batch.
const defaultIntakeWorkers = 4

// intakeQCType names the automatic quality check applied to every
// batch-created sample before placement.
const intakeQCType = "intake"

// TabularDataset is the ordered rows / named columns shape delivered by
// the spreadsheet and extraction collaborators.
type TabularDataset struct {
	Headers []string            `json:"headers"`
	Rows    []map[string]string `json:"rows"`
}

// BatchIntakeRequest describes one batch import.
type BatchIntakeRequest struct {
	Dataset TabularDataset
	// NameColumn designates the sample-name field; rows missing it get a
	// positional fallback name.
	NameColumn string
	// DefaultLocationID, when set, is tried first for every row.
	DefaultLocationID string
	// DefaultZone is the target category for fallback placement and the
	// created samples' storage requirement.
	DefaultZone ZoneCategory
	// Provenance tags the batch's template or source document.
	Provenance string
	ProjectID  *string
	Actor      string
}

// RowResult reports one row's outcome. Err is nil for a fully placed
// row; a row that was created but could not be placed carries both the
// created sample and the placement error.
type RowResult struct {
	RowIndex int          `json:"row_index"`
	SampleID string       `json:"sample_id,omitempty"`
	Barcode  string       `json:"barcode,omitempty"`
	Status   SampleStatus `json:"status,omitempty"`
	Placed   bool         `json:"placed"`
	Err      error        `json:"-"`
}

// BatchIntakeResult aggregates per-row outcomes in row order.
type BatchIntakeResult struct {
	BatchID       string      `json:"batch_id"`
	ReservedStart int64       `json:"reserved_start"`
	Rows          []RowResult `json:"rows"`
	// ArchiveKey is the blob key of the archived raw dataset, empty when
	// no archive store is configured.
	ArchiveKey string `json:"archive_key,omitempty"`
}

// BatchIntake imports a tabular dataset: it reserves a contiguous barcode
// block for the whole batch in one counter advance, then processes rows
// concurrently with partial-success semantics. Row i receives barcode
// suffix start+i, so no two rows across concurrent imports ever share a
// barcode. Re-submitting a dataset creates new samples with new barcodes;
// deduplication is the caller's concern.
//
// Cancellation is cooperative between rows: dispatched rows finish and
// the result list is truncated to the rows that were dispatched.
func (s *Service) BatchIntake(ctx context.Context, req BatchIntakeRequest) (BatchIntakeResult, error) {
	n := len(req.Dataset.Rows)
	if n == 0 {
		return BatchIntakeResult{}, fmt.Errorf("%w: empty dataset", domain.ErrValidationFailed)
	}
	if req.DefaultZone != "" && !domain.ValidZoneCategory(req.DefaultZone) {
		return BatchIntakeResult{}, fmt.Errorf("%w: unknown zone category %q", domain.ErrValidationFailed, req.DefaultZone)
	}

	batchID := newBatchID()
	now := s.clock.Now().UTC()

	var start int64
	err := s.runWrite(ctx, "batch_intake", req.Actor, func(tx Transaction) error {
		var err error
		start, err = tx.ReserveBarcodeBlock(barcodeScope(s.barcodePrefix, now.Year()), n)
		return err
	})
	if err != nil {
		return BatchIntakeResult{}, fmt.Errorf("reserve barcode block: %w", err)
	}

	result := BatchIntakeResult{BatchID: batchID, ReservedStart: start}
	result.ArchiveKey = s.archiveDataset(ctx, batchID, req)

	rows := make([]RowResult, n)
	g, rowCtx := errgroup.WithContext(ctx)
	g.SetLimit(s.intakeWorkers)
	dispatched := 0
	for i := range req.Dataset.Rows {
		if ctx.Err() != nil {
			break
		}
		idx := i
		dispatched++
		g.Go(func() error {
			rows[idx] = s.intakeRow(rowCtx, req, batchID, idx, s.barcodeFor(now, start+int64(idx)))
			return nil
		})
	}
	_ = g.Wait()

	result.Rows = rows[:dispatched]
	return result, nil
}

// intakeRow creates one sample (with its automatic intake QC pass) and
// then attempts placement. The creation and the placement are separate
// transactions so a lost placement race leaves a Validated sample behind,
// reported with the placement error.
func (s *Service) intakeRow(ctx context.Context, req BatchIntakeRequest, batchID string, idx int, barcode string) RowResult {
	row := req.Dataset.Rows[idx]
	name := row[req.NameColumn]
	if name == "" {
		name = fmt.Sprintf("Sample %d", idx+1)
	}
	metadata := map[string]any{
		"provenance":         req.Provenance,
		"original_row_index": idx,
		"source_row":         rowAsAny(row),
	}

	out := RowResult{RowIndex: idx}
	var created Sample
	err := s.runWrite(ctx, "batch_intake_row", req.Actor, func(tx Transaction) error {
		var err error
		created, err = tx.CreateSample(Sample{
			Name:               name,
			Barcode:            barcode,
			Status:             StatusPending,
			StorageRequirement: req.DefaultZone,
			ProjectID:          req.ProjectID,
			BatchID:            &batchID,
			Metadata:           metadata,
		})
		if err != nil {
			return err
		}
		if _, err := tx.AppendQCResult(QCResult{
			SampleID: created.ID,
			QCType:   intakeQCType,
			Outcome:  QCPass,
			Actor:    req.Actor,
		}); err != nil {
			return err
		}
		created, err = transitionSample(tx, created.ID, StatusValidated)
		return err
	})
	if err != nil {
		out.Err = err
		return out
	}
	out.SampleID = created.ID
	out.Barcode = created.Barcode
	out.Status = created.Status

	placed, err := s.placeIntakeSample(ctx, req, created.ID)
	if err != nil {
		out.Err = err
		return out
	}
	out.Placed = true
	out.Status = placed.Status
	return out
}

// placeIntakeSample tries the explicit default location first and falls
// back to any free slot in the default zone when the default is taken.
func (s *Service) placeIntakeSample(ctx context.Context, req BatchIntakeRequest, sampleID string) (Sample, error) {
	if req.DefaultLocationID != "" {
		placed, err := s.AssignLocation(ctx, sampleID, req.DefaultLocationID, req.Actor)
		if err == nil || !isOccupied(err) {
			return placed, err
		}
	}
	return s.AssignLocationInZone(ctx, sampleID, req.DefaultZone, req.Actor)
}

// archiveDataset writes the raw dataset to the blob store, keyed by batch
// id. Archive failures are logged, never fatal to the intake.
func (s *Service) archiveDataset(ctx context.Context, batchID string, req BatchIntakeRequest) string {
	if s.archive == nil {
		return ""
	}
	payload, err := json.Marshal(struct {
		BatchID    string         `json:"batch_id"`
		Provenance string         `json:"provenance"`
		ArchivedAt time.Time      `json:"archived_at"`
		Dataset    TabularDataset `json:"dataset"`
	}{batchID, req.Provenance, s.clock.Now().UTC(), req.Dataset})
	if err != nil {
		s.logger.Warn("archive marshal failed", "batch_id", batchID, "error", err)
		return ""
	}
	key := fmt.Sprintf("intake/%s.json", batchID)
	if _, err := s.archive.Put(ctx, key, bytes.NewReader(payload), blob.PutOptions{
		ContentType: "application/json",
		Metadata:    map[string]string{"provenance": req.Provenance},
	}); err != nil {
		s.logger.Warn("archive write failed", "batch_id", batchID, "error", err)
		return ""
	}
	return key
}

func rowAsAny(row map[string]string) map[string]any {
	out := make(map[string]any, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}

func newBatchID() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return "batch-" + hex.EncodeToString(b[:])
}
