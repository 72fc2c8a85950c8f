package main

import (
	"encoding/json"
	"testing"

	"opgrid/internal/lifecycle"
)

func TestJobsCommandsAfterRun(t *testing.T) {
	env := setupCLITestEnv(t)

	if _, _, err := runCLI(t, []string{"run", "op=demo;count=2;jobid=job-a;session=s1", "--local", "2"}, env.configPath); err != nil {
		t.Fatalf("run: %v", err)
	}
	if _, _, err := runCLI(t, []string{"run", "op=demo;count=2;jobid=job-b;fail=env_set", "--local", "1"}, env.configPath); err == nil {
		t.Fatal("expected injected env_set failure")
	}

	out, _, err := runCLI(t, []string{"jobs", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("jobs list: %v", err)
	}
	requireContains(t, out, "job-a")
	requireContains(t, out, "Completed")
	requireContains(t, out, "Set Env Error")

	out, _, err = runCLI(t, []string{"jobs", "list", "--status", "completed", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("jobs list --json: %v", err)
	}
	var views []jobView
	if err := json.Unmarshal([]byte(out), &views); err != nil {
		t.Fatalf("decode jobs json: %v", err)
	}
	if len(views) != 1 || views[0].ID != "job-a" || views[0].Session != "s1" || views[0].GroupSize != 2 {
		t.Fatalf("unexpected filtered jobs: %#v", views)
	}

	out, _, err = runCLI(t, []string{"jobs", "show", "job-b"}, env.configPath)
	if err != nil {
		t.Fatalf("jobs show: %v", err)
	}
	requireContains(t, out, "fail=env_set")
	requireContains(t, out, "Set Env Error (9)")

	out, _, err = runCLI(t, []string{"jobs", "history", "job-a", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("jobs history: %v", err)
	}
	var history []historyView
	if err := json.Unmarshal([]byte(out), &history); err != nil {
		t.Fatalf("decode history json: %v", err)
	}
	if len(history) == 0 || history[0].Status != lifecycle.StatusCreated.String() || history[len(history)-1].Status != lifecycle.StatusCompleted.String() {
		t.Fatalf("unexpected history: %#v", history)
	}

	out, _, err = runCLI(t, []string{"jobs", "stats"}, env.configPath)
	if err != nil {
		t.Fatalf("jobs stats: %v", err)
	}
	requireContains(t, out, "Completed")

	out, _, err = runCLI(t, []string{"jobs", "prune", "--older-than", "0s"}, env.configPath)
	if err != nil {
		t.Fatalf("jobs prune: %v", err)
	}
	requireContains(t, out, "Removed 2 finished job(s)")
}

func TestJobsErrors(t *testing.T) {
	env := setupCLITestEnv(t)

	if _, _, err := runCLI(t, []string{"jobs", "show", "missing"}, env.configPath); err == nil {
		t.Fatal("expected unknown job to fail")
	}
	if _, _, err := runCLI(t, []string{"jobs", "list", "--status", "bogus"}, env.configPath); err == nil {
		t.Fatal("expected unknown status to fail")
	}
	out, _, err := runCLI(t, []string{"jobs", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("jobs list: %v", err)
	}
	requireContains(t, out, "No jobs recorded")
}
