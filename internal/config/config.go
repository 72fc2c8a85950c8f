package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	RegistryDir string `toml:"registry_dir"`
	StateDir    string `toml:"state_dir"`
	LogDir      string `toml:"log_dir"`
}

// Registry contains schema registry settings.
type Registry struct {
	Extension string `toml:"extension"`
}

// Group describes this process's place in the rank group.
type Group struct {
	Rank        int    `toml:"rank" env:"OPGRID_RANK"`
	Size        int    `toml:"size" env:"OPGRID_SIZE"`
	Coordinator string `toml:"coordinator" env:"OPGRID_COORDINATOR"`
	JoinTimeout int    `toml:"join_timeout" env:"OPGRID_JOIN_TIMEOUT"`

	// DrainTimeout bounds how long the leader waits for every rank to end
	// its lifecycle before reporting the job.
	DrainTimeout int `toml:"drain_timeout" env:"OPGRID_DRAIN_TIMEOUT"`
}

// Validation contains parameter validation switches.
type Validation struct {
	// LegacyNumeric resolves non-numeric input for numeric parameters to zero
	// instead of rejecting it.
	LegacyNumeric bool `toml:"legacy_numeric"`
}

// Notifications contains configuration for job status notifications.
type Notifications struct {
	Endpoint       string `toml:"endpoint" env:"OPGRID_NOTIFY_ENDPOINT"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format" env:"OPGRID_LOG_FORMAT"`
	Level  string `toml:"level" env:"OPGRID_LOG_LEVEL"`
}

// Metrics contains Prometheus exposition settings.
type Metrics struct {
	Listen string `toml:"listen" env:"OPGRID_METRICS_LISTEN"`
}

// Results controls the leader's result documents.
type Results struct {
	WriteDocuments bool `toml:"write_documents"`
}

// Config encapsulates all configuration values for opgrid.
//
// Configuration sections by subsystem:
//   - Paths: schema registry, job state and log directories
//   - Registry: schema document extension
//   - Group: rank placement and coordinator address
//   - Validation: parameter validation switches
//   - Notifications: leader status notifications
//   - Logging: log format and level
//   - Metrics: Prometheus listener
//   - Results: result document output
type Config struct {
	Paths         Paths         `toml:"paths"`
	Registry      Registry      `toml:"registry"`
	Group         Group         `toml:"group"`
	Validation    Validation    `toml:"validation"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
	Metrics       Metrics       `toml:"metrics"`
	Results       Results       `toml:"results"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("opgrid.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the state and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir, c.LockDir(), c.ResultsDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// JobStorePath returns the SQLite job store location.
func (c *Config) JobStorePath() string {
	return filepath.Join(c.Paths.StateDir, "jobs.db")
}

// LockDir returns the directory holding per-job leader locks.
func (c *Config) LockDir() string {
	return filepath.Join(c.Paths.StateDir, "locks")
}

// ResultsDir returns the directory holding result documents.
func (c *Config) ResultsDir() string {
	return filepath.Join(c.Paths.StateDir, "results")
}

// JoinTimeout returns the group join timeout.
func (c *Config) JoinTimeout() time.Duration {
	return time.Duration(c.Group.JoinTimeout) * time.Second
}

// DrainTimeout returns how long the leader waits for the group to finish.
func (c *Config) DrainTimeout() time.Duration {
	return time.Duration(c.Group.DrainTimeout) * time.Second
}

// NotificationTimeout returns the per-request notification timeout.
func (c *Config) NotificationTimeout() time.Duration {
	return time.Duration(c.Notifications.RequestTimeout) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
