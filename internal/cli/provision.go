package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"samplecore/internal/core"
)

// provisionFile is the JSON shape accepted by the provision command.
type provisionFile struct {
	Zones []struct {
		Name     string   `json:"name"`
		Category string   `json:"category"`
		TempMinC float64  `json:"temp_min_c"`
		TempMaxC float64  `json:"temp_max_c"`
		Codes    []string `json:"codes"`
	} `json:"zones"`
}

// ProvisionCmd returns the provision command creating zones and locations
// from a JSON file.
func ProvisionCmd() *cobra.Command {
	var actor string

	cmd := &cobra.Command{
		Use:   "provision <file.json>",
		Short: "Create storage zones and locations from a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var file provisionFile
			if err := json.Unmarshal(raw, &file); err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}

			svc, closeStore, err := openService()
			if err != nil {
				return err
			}
			defer closeStore()

			ctx := cmd.Context()
			for _, z := range file.Zones {
				zone, err := svc.ProvisionZone(ctx, core.StorageZone{
					Name:     z.Name,
					Category: core.ZoneCategory(z.Category),
					TempMinC: z.TempMinC,
					TempMaxC: z.TempMaxC,
				}, actor)
				if err != nil {
					return fmt.Errorf("zone %s: %w", z.Name, err)
				}
				fmt.Printf("%s zone %s (%s)\n", color.New(color.FgGreen).Sprint("created"), zone.Name, zone.ID)
				for _, code := range z.Codes {
					loc, err := svc.ProvisionLocation(ctx, zone.ID, code, actor)
					if err != nil {
						return fmt.Errorf("location %s/%s: %w", z.Name, code, err)
					}
					fmt.Printf("  location %s (%s)\n", loc.Code, loc.ID)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "cli", "actor recorded on provisioning events")
	return cmd
}
