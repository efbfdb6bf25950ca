package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"samplecore/internal/blob"
	"samplecore/internal/core"
)

// IntakeCmd returns the intake command importing a tabular dataset as a
// batch of samples.
func IntakeCmd() *cobra.Command {
	var (
		nameColumn string
		zone       string
		locationID string
		provenance string
		actor      string
		archive    bool
	)

	cmd := &cobra.Command{
		Use:   "intake <dataset.json>",
		Short: "Import a tabular dataset as a batch of samples",
		Long: `Reads a dataset file ({"headers": [...], "rows": [{...}]}), reserves a
contiguous barcode block, creates one sample per row, and places each
into the target zone. Rows fail independently; the exit code is non-zero
when any row failed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var dataset core.TabularDataset
			if err := json.Unmarshal(raw, &dataset); err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}

			var opts []core.Option
			if archive {
				store, err := blob.Open(cmd.Context())
				if err != nil {
					return fmt.Errorf("open blob store: %w", err)
				}
				opts = append(opts, core.WithArchive(store))
			}
			svc, closeStore, err := openService(opts...)
			if err != nil {
				return err
			}
			defer closeStore()

			result, err := svc.BatchIntake(cmd.Context(), core.BatchIntakeRequest{
				Dataset:           dataset,
				NameColumn:        nameColumn,
				DefaultLocationID: locationID,
				DefaultZone:       core.ZoneCategory(zone),
				Provenance:        provenance,
				Actor:             actor,
			})
			if err != nil {
				return err
			}

			fmt.Printf("batch %s: %d rows\n", result.BatchID, len(result.Rows))
			if result.ArchiveKey != "" {
				fmt.Printf("dataset archived at %s\n", result.ArchiveKey)
			}
			failed := 0
			for _, row := range result.Rows {
				switch {
				case row.SampleID == "":
					failed++
					fmt.Printf("  %s row %d: %v\n", color.New(color.FgRed).Sprint("FAIL"), row.RowIndex, row.Err)
				case row.Placed:
					fmt.Printf("  %s row %d: %s (%s)\n", color.New(color.FgGreen).Sprint("ok"), row.RowIndex, row.Barcode, row.Status)
				default:
					failed++
					fmt.Printf("  %s row %d: %s (%s) unplaced: %v\n", color.New(color.FgYellow).Sprint("WARN"), row.RowIndex, row.Barcode, row.Status, row.Err)
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d rows failed", failed, len(result.Rows))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&nameColumn, "name-column", "Sample_Name", "column holding the sample name")
	cmd.Flags().StringVar(&zone, "zone", "", "target zone category")
	cmd.Flags().StringVar(&locationID, "location", "", "preferred location id")
	cmd.Flags().StringVar(&provenance, "provenance", "", "batch provenance tag")
	cmd.Flags().StringVar(&actor, "actor", "cli", "actor recorded on created samples")
	cmd.Flags().BoolVar(&archive, "archive", false, "archive the raw dataset to the configured blob store")
	return cmd
}
