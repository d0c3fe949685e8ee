package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"shortcast/internal/config"
)

func TestLoadDefaultConfigExpandsPathsAndReadsEnvKeys(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("SHORTCAST_API_KEY", "env-key")
	t.Setenv("PUBLISHER_ACCESS_TOKEN", "token-123")
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

	wantData := filepath.Join(tempHome, ".local", "share", "shortcast")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.QueueDBPath() != filepath.Join(wantData, "queue.db") {
		t.Fatalf("unexpected queue db path: %q", cfg.QueueDBPath())
	}
	if owner, ok := cfg.OwnerForKey("env-key"); !ok || owner != "default" {
		t.Fatalf("expected env key to map to default owner, got %q %v", owner, ok)
	}
	if cfg.Publisher.AccessToken != "token-123" {
		t.Fatalf("expected publisher token from env, got %q", cfg.Publisher.AccessToken)
	}
	if cfg.PublishInterval() != 150*time.Minute {
		t.Fatalf("unexpected publish interval: %s", cfg.PublishInterval())
	}
	if cfg.Scheduling.Delimiter != "— pause —" {
		t.Fatalf("unexpected delimiter: %q", cfg.Scheduling.Delimiter)
	}
	if cfg.Webhook.KeyHeader != "x-make-apikey" {
		t.Fatalf("unexpected webhook header: %q", cfg.Webhook.KeyHeader)
	}
}

func TestLoadCustomConfig(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("SHORTCAST_API_KEY", "")

	configPath := filepath.Join(tempHome, "config.toml")
	content := `
[paths]
data_dir = "~/data"

[api]
bind = "0.0.0.0:9090"

[[api.keys]]
name = "alpha"
key = "k-alpha"

[[api.keys]]
key = "k-anon"

[limits]
max_concurrent_jobs = 1

[scheduling]
interval_minutes = 30

[logging]
format = "JSON"
level = "DEBUG"
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("expected custom config to be used, got %q exists=%v", resolved, exists)
	}
	if cfg.Paths.DataDir != filepath.Join(tempHome, "data") {
		t.Fatalf("unexpected data dir: %q", cfg.Paths.DataDir)
	}
	if cfg.API.Bind != "0.0.0.0:9090" {
		t.Fatalf("unexpected bind: %q", cfg.API.Bind)
	}
	if owner, ok := cfg.OwnerForKey("k-anon"); !ok || owner != "k-anon" {
		t.Fatalf("expected unnamed key to use itself as owner, got %q", owner)
	}
	if _, ok := cfg.OwnerForKey("missing"); ok {
		t.Fatal("expected unknown key to be rejected")
	}
	if cfg.Limits.MaxConcurrentJobs != 1 {
		t.Fatalf("unexpected max concurrent jobs: %d", cfg.Limits.MaxConcurrentJobs)
	}
	if cfg.PublishInterval() != 30*time.Minute {
		t.Fatalf("unexpected interval: %s", cfg.PublishInterval())
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("expected normalized logging, got %q/%q", cfg.Logging.Format, cfg.Logging.Level)
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
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"zero workers", func(c *config.Config) { c.Workflow.Workers = 0 }, "workflow.workers"},
		{"heartbeat order", func(c *config.Config) { c.Workflow.HeartbeatTimeout = c.Workflow.HeartbeatInterval }, "heartbeat_timeout"},
		{"retry attempts", func(c *config.Config) { c.Retry.MaxAttempts = 0 }, "retry.max_attempts"},
		{"retry multiplier", func(c *config.Config) { c.Retry.Multiplier = 0.5 }, "retry.multiplier"},
		{"interval", func(c *config.Config) { c.Scheduling.IntervalMinutes = 0 }, "interval_minutes"},
		{"rate window", func(c *config.Config) { c.Limits.WindowSeconds = 0 }, "window_seconds"},
		{"generator url", func(c *config.Config) { c.Generator.BaseURL = "ftp://x" }, "generator.base_url"},
		{"timezone", func(c *config.Config) { c.Webhook.Timezone = "Mars/Olympus" }, "webhook.timezone"},
		{"media url", func(c *config.Config) { c.Publisher.MediaURLTemplate = "https://example.com" }, "media_url_template"},
		{"log format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"duplicate keys", func(c *config.Config) {
			c.API.Keys = []config.APIKey{{Name: "a", Key: "same"}, {Name: "b", Key: "same"}}
		}, "duplicate"},
	}
	for _, tc := range cases {
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

func TestValidateDaemonRequiresCollaborators(t *testing.T) {
	cfg := config.Default()
	if err := cfg.ValidateDaemon(); err == nil || !strings.Contains(err.Error(), "api.keys") {
		t.Fatalf("expected api.keys error, got %v", err)
	}
	cfg.API.Keys = []config.APIKey{{Name: "a", Key: "k"}}
	if err := cfg.ValidateDaemon(); err == nil || !strings.Contains(err.Error(), "generator.base_url") {
		t.Fatalf("expected generator error, got %v", err)
	}
	cfg.Generator.BaseURL = "http://127.0.0.1:9000"
	cfg.Publisher.AccessToken = "token"
	if err := cfg.ValidateDaemon(); err != nil {
		t.Fatalf("expected valid daemon config, got %v", err)
	}
}

func TestCreateSampleProducesLoadableConfig(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("SHORTCAST_API_KEY", "")
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	var decoded map[string]any
	if err := toml.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("sample is not valid TOML: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load sample: %v", err)
	}
	if !exists {
		t.Fatal("expected sample to exist")
	}
	if len(cfg.API.Keys) != 1 || cfg.API.Keys[0].Name != "marketing" {
		t.Fatalf("unexpected sample keys: %+v", cfg.API.Keys)
	}
}

func TestEnsureDirectoriesCreatesPaths(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.MediaDir = filepath.Join(base, "media")
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	for _, dir := range []string{cfg.Paths.DataDir, cfg.Paths.LogDir, cfg.Paths.MediaDir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s", dir)
		}
	}
}
