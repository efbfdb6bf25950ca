package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"samplecore/internal/core"
)

// CheckCmd returns the check command auditing stored state against the
// storage invariants.
func CheckCmd() *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Audit stored state against the storage invariants",
		Long: `Replays every sample's movement ledger against its stored location
pointer, verifies occupancy flags agree with sample references, and
checks barcode uniqueness. Exit code 0 means a clean audit.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, closeStore, err := openService()
			if err != nil {
				return err
			}
			defer closeStore()

			findings := audit(svc)
			if !quiet {
				if len(findings) == 0 {
					fmt.Printf("%s all invariants hold\n", color.New(color.FgGreen).Sprint("PASS"))
				}
				for _, f := range findings {
					fmt.Printf("%s %s\n", color.New(color.FgRed).Sprint("FAIL"), f)
				}
			}
			if len(findings) > 0 {
				return fmt.Errorf("%d invariant violations", len(findings))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&quiet, "quiet", false, "exit code only")
	return cmd
}

func audit(svc *core.Service) []string {
	var findings []string

	occupants := make(map[string][]string)
	barcodes := make(map[string]string)
	for _, sample := range svc.Store().ListSamples() {
		if prev, dup := barcodes[sample.Barcode]; dup {
			findings = append(findings, fmt.Sprintf("barcode %s shared by %s and %s", sample.Barcode, prev, sample.ID))
		}
		barcodes[sample.Barcode] = sample.ID

		if sample.CurrentLocationID != nil {
			occupants[*sample.CurrentLocationID] = append(occupants[*sample.CurrentLocationID], sample.ID)
		}

		derived := replayLocation(svc, sample.ID)
		if !pointerEqual(derived, sample.CurrentLocationID) {
			findings = append(findings, fmt.Sprintf("sample %s: ledger replay disagrees with stored location", sample.ID))
		}
	}

	for _, loc := range svc.Store().ListLocations() {
		refs := len(occupants[loc.ID])
		if loc.Occupied && refs != 1 {
			findings = append(findings, fmt.Sprintf("location %s (%s): occupied flag set, %d sample references", loc.ID, loc.Code, refs))
		}
		if !loc.Occupied && refs != 0 {
			findings = append(findings, fmt.Sprintf("location %s (%s): free flag set, %d sample references", loc.ID, loc.Code, refs))
		}
	}

	return findings
}

func replayLocation(svc *core.Service, sampleID string) *string {
	var current *string
	for rec := range svc.SampleHistory(sampleID) {
		current = rec.ToLocationID
	}
	return current
}

func pointerEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
