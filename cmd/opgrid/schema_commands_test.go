package main

import (
	"encoding/json"
	"testing"
)

func TestSchemaListAndShow(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"schema", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("schema list: %v", err)
	}
	requireContains(t, out, "demo_operator_1.0.yaml")
	requireContains(t, out, "primitive")

	out, _, err = runCLI(t, []string{"schema", "show", "demo"}, env.configPath)
	if err != nil {
		t.Fatalf("schema show: %v", err)
	}
	requireContains(t, out, "count")
	requireContains(t, out, "[1, 10]")
	requireContains(t, out, "fast, thorough")

	out, _, err = runCLI(t, []string{"schema", "show", "level", "--kind", "primitive", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("schema show --json: %v", err)
	}
	var view schemaView
	if err := json.Unmarshal([]byte(out), &view); err != nil {
		t.Fatalf("decode schema json: %v", err)
	}
	if view.Kind != "primitive" || len(view.Parameters) != 1 || view.Parameters[0].Name != "level" {
		t.Fatalf("unexpected primitive view: %#v", view)
	}
}

func TestSchemaShowErrors(t *testing.T) {
	env := setupCLITestEnv(t)

	if _, _, err := runCLI(t, []string{"schema", "show", "missing"}, env.configPath); err == nil {
		t.Fatal("expected unknown schema to fail")
	}
	if _, _, err := runCLI(t, []string{"schema", "show", "demo", "--kind", "widget"}, env.configPath); err == nil {
		t.Fatal("expected unknown kind to fail")
	}
}
