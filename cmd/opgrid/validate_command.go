package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"opgrid/internal/lifecycle"
	"opgrid/internal/logging"
)

type validatedParameter struct {
	Name   string   `json:"name"`
	Type   string   `json:"type"`
	Values []string `json:"values"`
	Source string   `json:"source"`
}

type validationReport struct {
	Operator      string               `json:"operator"`
	Schema        string               `json:"schema"`
	SchemaVersion string               `json:"schema_version,omitempty"`
	Parameters    []validatedParameter `json:"parameters"`
	Warnings      []string             `json:"warnings,omitempty"`
}

func newValidateCommand(ctx *commandContext) *cobra.Command {
	var (
		schemaVersion string
		jsonOutput    bool
	)

	cmd := &cobra.Command{
		Use:   "validate <descriptor>",
		Short: "Resolve and validate a descriptor without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger := logging.NewNop()
			registry, err := ctx.schemaRegistry(logger)
			if err != nil {
				return err
			}
			var version *string
			if v := strings.TrimSpace(schemaVersion); v != "" {
				version = &v
			}
			sub, err := lifecycle.Prepare(cmd.Context(), args[0], registry, lifecycle.PrepareOptions{
				Version:       version,
				LegacyNumeric: cfg.Validation.LegacyNumeric,
				Logger:        logger,
			})
			if err != nil {
				return err
			}

			report := buildValidationReport(sub)
			if jsonOutput {
				return writeJSON(cmd, report)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Operator %s (schema %s)\n", report.Operator, report.Schema)
			rows := make([][]string, 0, len(report.Parameters))
			for _, p := range report.Parameters {
				rows = append(rows, []string{p.Name, p.Type, strings.Join(p.Values, ","), p.Source})
			}
			fmt.Fprintln(out, renderTable([]string{"Parameter", "Type", "Value", "Source"}, rows, nil))
			for _, w := range report.Warnings {
				fmt.Fprintf(out, "warning: %s\n", w)
			}
			fmt.Fprintln(out, "Descriptor valid")
			return nil
		},
	}

	cmd.Flags().StringVar(&schemaVersion, "schema-version", "", "Pin the operator schema version")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the resolved parameters as JSON")
	return cmd
}

func buildValidationReport(sub lifecycle.Submission) validationReport {
	report := validationReport{
		Operator: sub.Operator(),
		Schema:   sub.Schema.Source,
	}
	if len(sub.Schema.Version) > 0 {
		report.SchemaVersion = sub.Schema.Version.String()
	}
	adjusted := make(map[string]bool)
	for _, w := range sub.Params.Warnings() {
		adjusted[w.Parameter] = true
		report.Warnings = append(report.Warnings, w.String())
	}
	for _, name := range sub.Params.Names() {
		p := validatedParameter{
			Name:   name,
			Values: sub.Params.Strings(name),
			Source: "descriptor",
		}
		if spec, ok := sub.Schema.Parameter(name); ok {
			p.Type = string(spec.Type)
		}
		switch {
		case adjusted[name]:
			p.Source = "adjusted"
		case !sub.Descriptor.Has(name):
			p.Source = "default"
		}
		report.Parameters = append(report.Parameters, p)
	}
	return report
}
