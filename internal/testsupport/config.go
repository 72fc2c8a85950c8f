package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"opgrid/internal/config"
	"opgrid/internal/operator/demo"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.RegistryDir = filepath.Join(base, "schemas")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Group.Coordinator = "127.0.0.1:0"
	cfgVal.Logging.Format = "json"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithNotificationEndpoint points job notifications at url.
func WithNotificationEndpoint(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Notifications.Endpoint = url
	}
}

// WithGroup places the config at rank within a group of size.
func WithGroup(rank, size int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Group.Rank = rank
		b.cfg.Group.Size = size
	}
}

// WithRegistryDocuments writes schema documents into the registry directory.
// Keys are file names.
func WithRegistryDocuments(docs map[string]string) ConfigOption {
	return func(b *configBuilder) {
		dir := b.cfg.Paths.RegistryDir
		if err := os.MkdirAll(dir, 0o755); err != nil {
			b.t.Fatalf("mkdir registry dir: %v", err)
		}
		for name, body := range docs {
			if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
				b.t.Fatalf("write schema %s: %v", name, err)
			}
		}
	}
}

// WithDemoRegistry seeds the registry directory with the demo operator's
// schema documents.
func WithDemoRegistry() ConfigOption {
	return func(b *configBuilder) {
		CopyFS(b.t, demo.Schemas(), b.cfg.Paths.RegistryDir)
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
