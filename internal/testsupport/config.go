package testsupport

import (
	"path/filepath"
	"testing"

	"shortcast/internal/config"
)

// TestAPIKey is the key seeded into every generated test config.
const TestAPIKey = "test-key"

// TestOwner is the owner name mapped to TestAPIKey.
const TestOwner = "tester"

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Collaborator URLs point nowhere; tests that exercise adapters override them.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.MediaDir = filepath.Join(base, "media")
	cfgVal.API.Bind = "127.0.0.1:0"
	cfgVal.API.Keys = []config.APIKey{{Name: TestOwner, Key: TestAPIKey}}
	cfgVal.Generator.BaseURL = "http://127.0.0.1:1"
	cfgVal.Publisher.BaseURL = "http://127.0.0.1:1"
	cfgVal.Publisher.AccessToken = "test-token"
	cfgVal.Retry.BaseDelayMillis = 1
	cfgVal.Retry.MaxDelaySeconds = 1

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

// WithAPIKey adds another owner and key to the test config.
func WithAPIKey(owner, key string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.API.Keys = append(b.cfg.API.Keys, config.APIKey{Name: owner, Key: key})
	}
}

// WithLimits overrides the per-owner request and concurrency limits.
func WithLimits(requests, windowSeconds, maxConcurrent int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Limits.RequestsPerWindow = requests
		b.cfg.Limits.WindowSeconds = windowSeconds
		b.cfg.Limits.MaxConcurrentJobs = maxConcurrent
	}
}

// WithCollaborators points the generator, publisher, and webhook at baseURL.
func WithCollaborators(baseURL string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Generator.BaseURL = baseURL
		b.cfg.Publisher.BaseURL = baseURL
		b.cfg.Webhook.URL = baseURL + "/hook"
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
