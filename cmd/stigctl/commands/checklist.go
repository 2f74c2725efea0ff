package commands

import (
	"github.com/spf13/cobra"

	"stigwatch/internal/ckl"
)

func newParseCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "parse FILE",
		Short: "Print a checklist as JSON",
		Long:  "Parse a .ckl document (\"-\" reads stdin) and print its asset, benchmark info and findings as JSON.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			c, err := ckl.Parse(raw)
			if err != nil {
				return err
			}
			if c.IsEmpty() {
				opts.log.Warn().Str("file", args[0]).Msg("document contains no checklist")
			}
			return writeJSON(cmd, c)
		},
	}
}

func newCanonicalizeCommand(opts *globalOptions) *cobra.Command {
	var inPlace bool

	cmd := &cobra.Command{
		Use:   "canonicalize FILE",
		Short: "Rewrite a checklist into canonical attribute order",
		Long: `Reorder the STIG_DATA pairs of every finding into canonical order and split
CCI references glued into one value. Canonical documents are left untouched.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			out, err := ckl.Canonicalize(raw)
			if err != nil {
				return err
			}

			if !inPlace || args[0] == "-" {
				return writeOutput(cmd, "", out)
			}
			if out == raw {
				opts.log.Info().Str("file", args[0]).Msg("already canonical")
				return nil
			}
			opts.log.Info().Str("file", args[0]).Msg("rewrote checklist")
			return writeOutput(cmd, args[0], out)
		},
	}

	cmd.Flags().BoolVarP(&inPlace, "write", "w", false, "rewrite the file in place instead of printing it")
	return cmd
}
