package main

import (
	"encoding/json"
	"errors"
	"testing"

	"opgrid/internal/params"
	"opgrid/internal/schema"
)

func TestValidateReportsSources(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"validate", "op=demo;count=3"}, env.configPath)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	requireContains(t, out, "Operator demo")
	requireContains(t, out, "Descriptor valid")

	out, _, err = runCLI(t, []string{"validate", "op=demo;count=3;mode=thorough", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("validate --json: %v", err)
	}
	var report validationReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode validation json: %v", err)
	}
	sources := make(map[string]string)
	for _, p := range report.Parameters {
		sources[p.Name] = p.Source
	}
	if sources["count"] != "descriptor" || sources["mode"] != "descriptor" {
		t.Fatalf("expected descriptor sources, got %#v", sources)
	}
	if report.Schema != "demo_operator_1.0.yaml" {
		t.Fatalf("unexpected schema document %q", report.Schema)
	}
}

func TestValidateRejectsBadDescriptors(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := runCLI(t, []string{"validate", "op=nope;count=1"}, env.configPath)
	if !errors.Is(err, schema.ErrSchemaNotFound) {
		t.Fatalf("expected schema not found, got %v", err)
	}
	_, _, err = runCLI(t, []string{"validate", "op=demo"}, env.configPath)
	if !errors.Is(err, params.ErrMissingParameter) {
		t.Fatalf("expected missing parameter, got %v", err)
	}
	_, _, err = runCLI(t, []string{"validate", "op=demo;count=11"}, env.configPath)
	if !errors.Is(err, params.ErrInvalidValue) {
		t.Fatalf("expected invalid value, got %v", err)
	}
}
