package config

import (
	"bytes"
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
	DataDir  string `toml:"data_dir"`
	LogDir   string `toml:"log_dir"`
	MediaDir string `toml:"media_dir"`
}

// APIKey maps a credential to the owner name used for accounting and listing.
type APIKey struct {
	Name string `toml:"name"`
	Key  string `toml:"key"`
}

// API contains HTTP surface configuration.
type API struct {
	Bind        string   `toml:"bind"`
	Keys        []APIKey `toml:"keys"`
	CORSOrigins []string `toml:"cors_origins"`
}

// Limits bounds what a single API credential may submit.
type Limits struct {
	RequestsPerWindow int `toml:"requests_per_window"`
	WindowSeconds     int `toml:"window_seconds"`
	MaxConcurrentJobs int `toml:"max_concurrent_jobs"`
	MaxScriptLength   int `toml:"max_script_length"`
}

// Scheduling controls segmenting and publish-time spacing.
type Scheduling struct {
	Delimiter            string  `toml:"delimiter"`
	IntervalMinutes      int     `toml:"interval_minutes"`
	PastToleranceSeconds int     `toml:"past_tolerance_seconds"`
	DefaultVoice         string  `toml:"default_voice"`
	DefaultSpeed         float64 `toml:"default_speed"`
}

// Retry configures the backoff policy shared by every pipeline stage.
type Retry struct {
	MaxAttempts     int     `toml:"max_attempts"`
	BaseDelayMillis int     `toml:"base_delay_ms"`
	Multiplier      float64 `toml:"multiplier"`
	MaxDelaySeconds int     `toml:"max_delay_seconds"`
}

// Workflow contains configuration for daemon timing and intervals.
type Workflow struct {
	Workers            int `toml:"workers"`
	QueuePollInterval  int `toml:"queue_poll_interval"`
	ErrorRetryInterval int `toml:"error_retry_interval"`
	HeartbeatInterval  int `toml:"heartbeat_interval"`
	HeartbeatTimeout   int `toml:"heartbeat_timeout"`
	StageTimeout       int `toml:"stage_timeout"`
}

// Generator configures the remote media generation service.
type Generator struct {
	BaseURL        string `toml:"base_url"`
	APIKey         string `toml:"api_key"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Publisher configures the video host the artifacts are uploaded to.
type Publisher struct {
	BaseURL          string   `toml:"base_url"`
	AccessToken      string   `toml:"access_token"`
	CategoryID       string   `toml:"category_id"`
	MediaURLTemplate string   `toml:"media_url_template"`
	TimeoutSeconds   int      `toml:"timeout_seconds"`
	Tags             []string `toml:"tags"`
}

// Webhook configures the per-artifact downstream notification.
type Webhook struct {
	URL              string `toml:"url"`
	APIKey           string `toml:"api_key"`
	KeyHeader        string `toml:"key_header"`
	PostDelayMinutes int    `toml:"post_delay_minutes"`
	Timezone         string `toml:"timezone"`
	TimeLayout       string `toml:"time_layout"`
	LabelLength      int    `toml:"label_length"`
	TimeoutSeconds   int    `toml:"timeout_seconds"`
}

// Notifications contains configuration for ntfy operator notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	JobCompleted   bool   `toml:"job_completed"`
	JobFailed      bool   `toml:"job_failed"`
	Recovery       bool   `toml:"recovery"`
}

// Retention controls how long terminal jobs are kept.
type Retention struct {
	Days                 int `toml:"days"`
	SweepIntervalMinutes int `toml:"sweep_interval_minutes"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for shortcast.
//
// Configuration sections by subsystem:
//   - Paths: data, log, and rendered media directories
//   - API: bind address, credentials, CORS origins
//   - Limits: per-credential rate and concurrency limits
//   - Scheduling: script delimiter and publish spacing
//   - Retry: stage backoff policy
//   - Workflow: worker pool size, polling and heartbeat intervals
//   - Generator, Publisher, Webhook: external collaborators
//   - Notifications: ntfy operator alerts
//   - Retention: terminal job purge
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	API           API           `toml:"api"`
	Limits        Limits        `toml:"limits"`
	Scheduling    Scheduling    `toml:"scheduling"`
	Retry         Retry         `toml:"retry"`
	Workflow      Workflow      `toml:"workflow"`
	Generator     Generator     `toml:"generator"`
	Publisher     Publisher     `toml:"publisher"`
	Webhook       Webhook       `toml:"webhook"`
	Notifications Notifications `toml:"notifications"`
	Retention     Retention     `toml:"retention"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path of the per-user config file.
func DefaultConfigPath() (string, error) {
	return ExpandPath(defaultConfigPath)
}

// Load reads the config at path, or the first existing default location when
// path is empty, then normalizes and validates it. A missing file is not an
// error: defaults plus environment overrides are returned with exists=false.
func Load(path string) (cfg *Config, resolved string, exists bool, err error) {
	resolved, exists, err = findConfig(path)
	if err != nil {
		return nil, "", false, err
	}
	loaded := Default()
	if exists {
		raw, err := os.ReadFile(resolved)
		if err != nil {
			return nil, "", false, fmt.Errorf("read config: %w", err)
		}
		decoder := toml.NewDecoder(bytes.NewReader(raw))
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&loaded); err != nil {
			return nil, "", false, fmt.Errorf("parse config %s: %w", resolved, err)
		}
	}
	if err := loaded.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := loaded.Validate(); err != nil {
		return nil, "", false, err
	}
	return &loaded, resolved, exists, nil
}

// findConfig resolves an explicit path as-is. Without one it tries the user
// config and then ./shortcast.toml, falling back to the user path.
func findConfig(path string) (string, bool, error) {
	candidates := []string{path}
	if path == "" {
		candidates = []string{defaultConfigPath, "shortcast.toml"}
	}
	var first string
	for _, candidate := range candidates {
		expanded, err := ExpandPath(candidate)
		if err != nil {
			return "", false, err
		}
		if first == "" {
			first = expanded
		}
		info, err := os.Stat(expanded)
		switch {
		case err == nil && !info.IsDir():
			return expanded, true, nil
		case err != nil && !errors.Is(err, fs.ErrNotExist) && path != "":
			return "", false, fmt.Errorf("stat config: %w", err)
		}
	}
	return first, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir, c.Paths.MediaDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// QueueDBPath returns the location of the SQLite job store.
func (c *Config) QueueDBPath() string {
	return filepath.Join(c.Paths.DataDir, "queue.db")
}

// LockPath returns the single-instance daemon lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "shortcastd.lock")
}

// OwnerForKey resolves an API credential to its owner name.
func (c *Config) OwnerForKey(key string) (string, bool) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", false
	}
	for _, k := range c.API.Keys {
		if k.Key == key {
			return k.Name, true
		}
	}
	return "", false
}

// PublishInterval is the spacing between consecutive artifacts of a job.
func (c *Config) PublishInterval() time.Duration {
	return time.Duration(c.Scheduling.IntervalMinutes) * time.Minute
}

// PastTolerance is how far in the past a submitted publish time may be.
func (c *Config) PastTolerance() time.Duration {
	return time.Duration(c.Scheduling.PastToleranceSeconds) * time.Second
}

// RateWindow is the rolling window the request limit applies to.
func (c *Config) RateWindow() time.Duration {
	return time.Duration(c.Limits.WindowSeconds) * time.Second
}

// RetryBaseDelay is the first backoff delay.
func (c *Config) RetryBaseDelay() time.Duration {
	return time.Duration(c.Retry.BaseDelayMillis) * time.Millisecond
}

// RetryMaxDelay caps every backoff delay.
func (c *Config) RetryMaxDelay() time.Duration {
	return time.Duration(c.Retry.MaxDelaySeconds) * time.Second
}

// ValidateDaemon checks the settings only the daemon needs. CLI commands that
// talk to a running daemon do not require them.
func (c *Config) ValidateDaemon() error {
	if len(c.API.Keys) == 0 {
		return errors.New("api.keys must contain at least one credential (or set SHORTCAST_API_KEY)")
	}
	if strings.TrimSpace(c.Generator.BaseURL) == "" {
		return errors.New("generator.base_url must be set")
	}
	if strings.TrimSpace(c.Publisher.AccessToken) == "" {
		return errors.New("publisher.access_token must be set (or set PUBLISHER_ACCESS_TOKEN)")
	}
	return nil
}

// ExpandPath resolves a leading ~ and returns a clean absolute path.
// The empty string stays empty.
func ExpandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		path = filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", path, err)
	}
	return abs, nil
}

// CreateSample writes the annotated sample config to path with owner-only
// permissions, since it holds credentials once filled in.
func CreateSample(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o600); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
