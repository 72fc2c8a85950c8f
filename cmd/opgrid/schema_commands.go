package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"opgrid/internal/logging"
	"opgrid/internal/schema"
)

func newSchemaCommand(ctx *commandContext) *cobra.Command {
	schemaCmd := &cobra.Command{
		Use:   "schema",
		Short: "Inspect the schema registry",
	}
	schemaCmd.AddCommand(newSchemaListCommand(ctx))
	schemaCmd.AddCommand(newSchemaShowCommand(ctx))
	return schemaCmd
}

type schemaEntryView struct {
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	Version  string `json:"version"`
	Document string `json:"document"`
}

func newSchemaListCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registry documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := ctx.schemaRegistry(logging.NewNop())
			if err != nil {
				return err
			}
			entries, err := registry.List(cmd.Context())
			if err != nil {
				return err
			}
			views := make([]schemaEntryView, 0, len(entries))
			for _, e := range entries {
				views = append(views, schemaEntryView{
					Name:     e.Name,
					Kind:     string(e.Kind),
					Version:  e.Version.String(),
					Document: e.Document,
				})
			}
			if jsonOutput {
				return writeJSON(cmd, views)
			}
			if len(views) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Registry is empty")
				return nil
			}
			rows := make([][]string, 0, len(views))
			for _, v := range views {
				rows = append(rows, []string{v.Name, v.Kind, v.Version, v.Document})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Name", "Kind", "Version", "Document"}, rows, nil))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

type parameterView struct {
	Name      string   `json:"name"`
	Type      string   `json:"type"`
	Mandatory bool     `json:"mandatory"`
	Default   []string `json:"default,omitempty"`
	Bounds    string   `json:"bounds,omitempty"`
	Values    []string `json:"values,omitempty"`
}

type schemaView struct {
	Name        string          `json:"name"`
	Kind        string          `json:"kind"`
	Version     string          `json:"version"`
	Document    string          `json:"document"`
	Description string          `json:"description,omitempty"`
	Parameters  []parameterView `json:"parameters"`
}

func newSchemaShowCommand(ctx *commandContext) *cobra.Command {
	var (
		kindFlag   string
		version    string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "show <name>",
		Short: "Show the expanded parameters of a schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := schema.ParseKind(kindFlag)
			if err != nil {
				return err
			}
			registry, err := ctx.schemaRegistry(logging.NewNop())
			if err != nil {
				return err
			}
			var pinned *string
			if v := strings.TrimSpace(version); v != "" {
				pinned = &v
			}
			s, err := registry.Resolve(cmd.Context(), args[0], kind, pinned)
			if err != nil {
				return err
			}

			view := schemaView{
				Name:        s.Name,
				Kind:        string(s.Kind),
				Version:     s.Version.String(),
				Document:    s.Source,
				Description: s.Description,
			}
			for _, p := range s.Parameters {
				view.Parameters = append(view.Parameters, parameterView{
					Name:      p.Name,
					Type:      string(p.Type),
					Mandatory: p.Mandatory,
					Default:   p.Default,
					Bounds:    p.Bounds(),
					Values:    p.Values,
				})
			}
			if jsonOutput {
				return writeJSON(cmd, view)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s %s (%s)\n", view.Name, view.Kind, view.Version, view.Document)
			if view.Description != "" {
				fmt.Fprintln(out, view.Description)
			}
			rows := make([][]string, 0, len(view.Parameters))
			for _, p := range view.Parameters {
				rows = append(rows, []string{
					p.Name,
					p.Type,
					yesNo(p.Mandatory),
					valueOrDash(strings.Join(p.Default, ",")),
					valueOrDash(p.Bounds),
					valueOrDash(strings.Join(p.Values, ", ")),
				})
			}
			fmt.Fprintln(out, renderTable([]string{"Parameter", "Type", "Mandatory", "Default", "Bounds", "Allowed"}, rows, nil))
			return nil
		},
	}
	cmd.Flags().StringVar(&kindFlag, "kind", string(schema.KindOperator), "Document kind: operator, primitive or hierarchy")
	cmd.Flags().StringVar(&version, "version", "", "Schema version (defaults to the latest)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
