package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"opgrid/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantRegistry := filepath.Join(tempHome, ".config", "opgrid", "schemas")
	if cfg.Paths.RegistryDir != wantRegistry {
		t.Fatalf("unexpected registry dir: got %q want %q", cfg.Paths.RegistryDir, wantRegistry)
	}
	if cfg.JobStorePath() != filepath.Join(tempHome, ".local", "share", "opgrid", "jobs.db") {
		t.Fatalf("unexpected job store path: %q", cfg.JobStorePath())
	}
	if cfg.Group.Size != 1 || cfg.Group.Rank != 0 {
		t.Fatalf("unexpected group placement: %+v", cfg.Group)
	}
	if cfg.DrainTimeout() != 5*time.Minute {
		t.Fatalf("unexpected drain timeout: %s", cfg.DrainTimeout())
	}
	if cfg.Validation.LegacyNumeric {
		t.Fatal("expected strict numeric validation by default")
	}
	if cfg.Logging.Format != "auto" {
		t.Fatalf("unexpected log format: %q", cfg.Logging.Format)
	}
	if cfg.Registry.Extension != "yaml" {
		t.Fatalf("unexpected registry extension: %q", cfg.Registry.Extension)
	}
}

func TestLoadCustomPathOverridesDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	custom := config.Default()
	custom.Paths.RegistryDir = filepath.Join(dir, "schemas")
	custom.Registry.Extension = ".YML"
	custom.Group.Size = 4
	custom.Group.Rank = 2
	custom.Group.Coordinator = "10.0.0.5:7000"
	custom.Validation.LegacyNumeric = true
	custom.Logging.Level = "DEBUG"

	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("expected config at %q to be loaded, got %q (exists=%v)", path, resolved, exists)
	}
	if cfg.Registry.Extension != "yml" {
		t.Fatalf("expected normalized extension, got %q", cfg.Registry.Extension)
	}
	if cfg.Group.Rank != 2 || cfg.Group.Size != 4 {
		t.Fatalf("unexpected group placement: %+v", cfg.Group)
	}
	if !cfg.Validation.LegacyNumeric {
		t.Fatal("expected legacy numeric enabled")
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("expected lowercased level, got %q", cfg.Logging.Level)
	}
}

func TestLoadAppliesEnvironmentOverlay(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())
	t.Setenv("OPGRID_RANK", "3")
	t.Setenv("OPGRID_SIZE", "4")
	t.Setenv("OPGRID_COORDINATOR", "node0:9000")
	t.Setenv("OPGRID_NOTIFY_ENDPOINT", "https://ntfy.example/jobs")
	t.Setenv("OPGRID_DRAIN_TIMEOUT", "45")

	cfg, _, _, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Group.Rank != 3 || cfg.Group.Size != 4 {
		t.Fatalf("expected env placement, got %+v", cfg.Group)
	}
	if cfg.Group.Coordinator != "node0:9000" {
		t.Fatalf("unexpected coordinator: %q", cfg.Group.Coordinator)
	}
	if cfg.Notifications.Endpoint != "https://ntfy.example/jobs" {
		t.Fatalf("unexpected endpoint: %q", cfg.Notifications.Endpoint)
	}
	if cfg.DrainTimeout() != 45*time.Second {
		t.Fatalf("expected env drain timeout, got %s", cfg.DrainTimeout())
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[paths]\nstaging_dir = \"/tmp\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(path); err == nil {
		t.Fatal("expected unknown key to be rejected")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"rank out of range", func(c *config.Config) { c.Group.Size = 2; c.Group.Rank = 2 }, "group.rank"},
		{"zero size", func(c *config.Config) { c.Group.Size = 0 }, "group.size"},
		{"bad coordinator", func(c *config.Config) { c.Group.Size = 2; c.Group.Coordinator = "nohost" }, "group.coordinator"},
		{"bad endpoint", func(c *config.Config) { c.Notifications.Endpoint = "ftp://x" }, "notifications.endpoint"},
		{"bad format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"bad level", func(c *config.Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"bad metrics", func(c *config.Config) { c.Metrics.Listen = "9464" }, "metrics.listen"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}

func TestCheckRegistryAccess(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.RegistryDir = t.TempDir()
	if err := cfg.CheckRegistryAccess(); err != nil {
		t.Fatalf("expected accessible registry, got %v", err)
	}

	cfg.Paths.RegistryDir = filepath.Join(t.TempDir(), "missing")
	if err := cfg.CheckRegistryAccess(); err == nil {
		t.Fatal("expected missing registry to fail")
	}
}

func TestCreateSampleIsLoadable(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	if _, _, exists, err := config.Load(path); err != nil || !exists {
		t.Fatalf("sample config should load cleanly: exists=%v err=%v", exists, err)
	}
}
