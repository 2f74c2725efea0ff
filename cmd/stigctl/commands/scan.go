package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"stigwatch/internal/domain/services"
	"stigwatch/internal/scan"
	"stigwatch/internal/templates"
)

type mergeScanOptions struct {
	template  string
	checklist string
	templates string
	output    string
}

func newMergeScanCommand(opts *globalOptions) *cobra.Command {
	var o mergeScanOptions

	cmd := &cobra.Command{
		Use:   "merge-scan SCAN",
		Short: "Merge XCCDF scan results into a checklist",
		Long: `Apply the rule results of an XCCDF scan to a checklist and print the merged
document. The base is an existing checklist (--checklist), a blank template
(--template), or the template of a directory (--templates) whose title
matches the scan benchmark. Asset fields are filled from the scan.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			set := 0
			for _, v := range []string{o.template, o.checklist, o.templates} {
				if v != "" {
					set++
				}
			}
			if set != 1 {
				return errors.New("exactly one of --template, --checklist or --templates is required")
			}

			raw, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			results, err := scan.Parse(raw)
			if err != nil {
				return err
			}
			if results.IsEmpty() {
				return services.ErrNoScanTitle
			}

			var base string
			isNew := o.checklist == ""
			switch {
			case o.checklist != "":
				base, err = readInput(cmd, o.checklist)
			case o.template != "":
				base, err = readInput(cmd, o.template)
			default:
				store := templates.NewStore(o.templates, opts.log)
				if err = store.Load(cmd.Context()); err != nil {
					return err
				}
				tmpl, lookupErr := store.Lookup(cmd.Context(), results.Title)
				if lookupErr != nil {
					return lookupErr
				}
				if tmpl == nil {
					return fmt.Errorf("%w: %q", services.ErrTemplateNotFound, results.Title)
				}
				base = tmpl.RawXML
			}
			if err != nil {
				return err
			}

			merged, updated, err := scan.Merge(results, base, isNew)
			if err != nil {
				return err
			}

			opts.log.Info().
				Str("dialect", string(results.Dialect)).
				Str("benchmark", results.Title).
				Int("results", len(results.Results)).
				Int("updated", updated).
				Msg("merged scan results")

			return writeOutput(cmd, o.output, merged)
		},
	}

	cmd.Flags().StringVar(&o.template, "template", "", "blank checklist to seed from")
	cmd.Flags().StringVar(&o.checklist, "checklist", "", "existing checklist to update")
	cmd.Flags().StringVar(&o.templates, "templates", "", "directory of blank checklists matched by benchmark title")
	cmd.Flags().StringVarP(&o.output, "output", "o", "", "write the merged checklist to a file")
	return cmd
}
