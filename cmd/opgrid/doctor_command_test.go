package main

import (
	"testing"

	"opgrid/internal/preflight"
)

func TestDoctorReportsReady(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"doctor"}, env.configPath)
	if err != nil {
		t.Fatalf("doctor: %v", err)
	}
	requireContains(t, out, "Schema registry")
	requireContains(t, out, "Ready to run")
}

func TestDoctorFailsForUnknownOperator(t *testing.T) {
	env := setupCLITestEnv(t)

	if _, _, err := runCLI(t, []string{"doctor", "--operator", "ghost"}, env.configPath); err == nil {
		t.Fatal("expected missing operator schema to fail doctor")
	}
}

func TestCheckLabel(t *testing.T) {
	cases := []struct {
		result preflight.Result
		want   string
	}{
		{preflight.Result{Passed: true}, "ok"},
		{preflight.Result{Optional: true}, "warn"},
		{preflight.Result{}, "FAIL"},
	}
	for _, tc := range cases {
		if got := checkLabel(tc.result, false); got != tc.want {
			t.Fatalf("checkLabel(%#v) = %q, want %q", tc.result, got, tc.want)
		}
	}
}
