package testsupport

import (
	"path/filepath"
	"testing"

	"docsync/internal/config"
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
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.CacheDir = filepath.Join(base, "cache")
	cfgVal.Paths.HTTPBind = "127.0.0.1:0"
	cfgVal.App.UpstreamURL = "https://docs.example.com"
	cfgVal.Sync.ProbeURL = "https://docs.example.com/"

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

// WithTenant sets the active tenant on the test config.
func WithTenant(tenant string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.App.Tenant = tenant
	}
}

// WithUpstream points the test config at a different upstream, typically an
// httptest server URL.
func WithUpstream(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.App.UpstreamURL = url
		b.cfg.Sync.ProbeURL = url + "/"
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
