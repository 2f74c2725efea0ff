package commands

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"stigwatch/internal/catalog"
	"stigwatch/internal/domain/models"
	"stigwatch/internal/domain/services"
)

type complianceOptions struct {
	catalog  string
	controls string
	filter   string
	major    string
	workers  int
}

func newComplianceCommand(opts *globalOptions) *cobra.Command {
	var o complianceOptions

	cmd := &cobra.Command{
		Use:   "compliance FILE...",
		Short: "Roll checklist findings up to control level",
		Long: `Aggregate the findings of one or more checklists into a per-control report
using a CCI catalog and control definitions, and print it as JSON.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			impact := models.ImpactLevel("")
			if f := strings.ToLower(strings.TrimSpace(o.filter)); f != "all" {
				impact = models.ParseImpactLevel(f)
				if impact == "" {
					return fmt.Errorf("invalid filter %q: must be one of low, moderate, high, all", o.filter)
				}
			}

			snapshot, err := catalog.Load(o.catalog, o.controls)
			if err != nil {
				return err
			}

			records := make([]*models.ChecklistRecord, 0, len(args))
			for _, path := range args {
				raw, err := readInput(cmd, path)
				if err != nil {
					return err
				}
				rec, err := services.BuildRecord(raw)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				rec.ID = uuid.NewSHA1(uuid.NameSpaceURL, []byte(filepath.Clean(path)))
				records = append(records, rec)
			}

			svc := services.NewComplianceService(o.workers, opts.log)
			controls, err := svc.Aggregate(cmd.Context(), records, snapshot.Catalog, snapshot.Controls, impact, strings.ToUpper(strings.TrimSpace(o.major)))
			if err != nil {
				return err
			}

			return writeJSON(cmd, models.ComplianceReport{
				Impact:       impact,
				MajorControl: strings.ToUpper(strings.TrimSpace(o.major)),
				GeneratedAt:  time.Now().UTC(),
				Checklists:   len(records),
				Controls:     controls,
			})
		},
	}

	cmd.Flags().StringVar(&o.catalog, "catalog", "data/cci.yaml", "CCI catalog file")
	cmd.Flags().StringVar(&o.controls, "controls", "data/controls.yaml", "control definitions file")
	cmd.Flags().StringVar(&o.filter, "filter", "all", "baseline: low, moderate, high or all")
	cmd.Flags().StringVar(&o.major, "major", "", "limit the report to one control family, e.g. AC or AC-2")
	cmd.Flags().IntVar(&o.workers, "workers", 0, "checklists scanned concurrently (default 8)")
	return cmd
}
