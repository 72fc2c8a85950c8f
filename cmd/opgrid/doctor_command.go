package main

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"opgrid/internal/preflight"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	var operators []string

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the registry, state directories, coordinator and notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			names := operators
			if len(names) == 0 {
				names = ctx.operators.Names()
			}
			results := preflight.RunAll(cmd.Context(), cfg, names)

			color := cmd.OutOrStdout() == os.Stdout && isatty.IsTerminal(os.Stdout.Fd())
			rows := make([][]string, 0, len(results))
			for _, r := range results {
				rows = append(rows, []string{r.Name, checkLabel(r, color), valueOrDash(r.Detail)})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Check", "Result", "Detail"}, rows, nil))

			if failed := preflight.Failed(results); len(failed) > 0 {
				return fmt.Errorf("%d blocking check(s) failed", len(failed))
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Ready to run")
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&operators, "operator", nil, "Operators whose schemas must resolve (defaults to every registered operator)")
	return cmd
}

func checkLabel(r preflight.Result, color bool) string {
	label, colors := "ok", text.Colors{text.FgGreen}
	switch {
	case r.Passed:
	case r.Optional:
		label, colors = "warn", text.Colors{text.FgYellow}
	default:
		label, colors = "FAIL", text.Colors{text.FgRed, text.Bold}
	}
	if !color {
		return label
	}
	return colors.Sprint(label)
}
