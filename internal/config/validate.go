package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
	_ "time/tzdata"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateAPI(); err != nil {
		return err
	}
	if err := c.validateLimits(); err != nil {
		return err
	}
	if err := c.validateScheduling(); err != nil {
		return err
	}
	if err := c.validateRetry(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateServices(); err != nil {
		return err
	}
	if err := c.validateRetention(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateAPI() error {
	seen := make(map[string]struct{}, len(c.API.Keys))
	for _, k := range c.API.Keys {
		if _, dup := seen[k.Key]; dup {
			return fmt.Errorf("api.keys: duplicate key for %q", k.Name)
		}
		seen[k.Key] = struct{}{}
	}
	return nil
}

func (c *Config) validateLimits() error {
	if c.Limits.RequestsPerWindow <= 0 {
		return errors.New("limits.requests_per_window must be positive")
	}
	if c.Limits.WindowSeconds <= 0 {
		return errors.New("limits.window_seconds must be positive")
	}
	if c.Limits.MaxConcurrentJobs <= 0 {
		return errors.New("limits.max_concurrent_jobs must be positive")
	}
	if c.Limits.MaxScriptLength <= 0 {
		return errors.New("limits.max_script_length must be positive")
	}
	return nil
}

func (c *Config) validateScheduling() error {
	if c.Scheduling.IntervalMinutes <= 0 {
		return errors.New("scheduling.interval_minutes must be positive")
	}
	if c.Scheduling.PastToleranceSeconds < 0 {
		return errors.New("scheduling.past_tolerance_seconds must be >= 0")
	}
	return nil
}

func (c *Config) validateRetry() error {
	if c.Retry.MaxAttempts <= 0 {
		return errors.New("retry.max_attempts must be positive")
	}
	if c.Retry.BaseDelayMillis < 0 {
		return errors.New("retry.base_delay_ms must be >= 0")
	}
	if c.Retry.Multiplier < 1 {
		return errors.New("retry.multiplier must be >= 1")
	}
	if c.Retry.MaxDelaySeconds <= 0 {
		return errors.New("retry.max_delay_seconds must be positive")
	}
	if c.RetryBaseDelay() > c.RetryMaxDelay() {
		return errors.New("retry.base_delay_ms must not exceed retry.max_delay_seconds")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.Workers <= 0 {
		return errors.New("workflow.workers must be positive")
	}
	if c.Workflow.QueuePollInterval <= 0 {
		return errors.New("workflow.queue_poll_interval must be positive")
	}
	if c.Workflow.ErrorRetryInterval <= 0 {
		return errors.New("workflow.error_retry_interval must be positive")
	}
	if c.Workflow.HeartbeatInterval <= 0 {
		return errors.New("workflow.heartbeat_interval must be positive")
	}
	if c.Workflow.HeartbeatTimeout <= 0 {
		return errors.New("workflow.heartbeat_timeout must be positive")
	}
	if c.Workflow.HeartbeatTimeout <= c.Workflow.HeartbeatInterval {
		return errors.New("workflow.heartbeat_timeout must be greater than workflow.heartbeat_interval")
	}
	if c.Workflow.StageTimeout <= 0 {
		return errors.New("workflow.stage_timeout must be positive")
	}
	return nil
}

func (c *Config) validateServices() error {
	if err := validateURL("generator.base_url", c.Generator.BaseURL); err != nil {
		return err
	}
	if err := validateURL("publisher.base_url", c.Publisher.BaseURL); err != nil {
		return err
	}
	if err := validateURL("webhook.url", c.Webhook.URL); err != nil {
		return err
	}
	if !strings.Contains(c.Publisher.MediaURLTemplate, "{id}") {
		return errors.New("publisher.media_url_template must contain {id}")
	}
	if c.Generator.TimeoutSeconds <= 0 || c.Publisher.TimeoutSeconds <= 0 || c.Webhook.TimeoutSeconds <= 0 {
		return errors.New("generator, publisher, and webhook timeout_seconds must be positive")
	}
	if _, err := time.LoadLocation(c.Webhook.Timezone); err != nil {
		return fmt.Errorf("webhook.timezone: %w", err)
	}
	if c.Webhook.PostDelayMinutes < 0 {
		return errors.New("webhook.post_delay_minutes must be >= 0")
	}
	if c.Webhook.LabelLength <= 0 {
		return errors.New("webhook.label_length must be positive")
	}
	if c.Notifications.NtfyTopic != "" && c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	return nil
}

func (c *Config) validateRetention() error {
	if c.Retention.Days < 0 {
		return errors.New("retention.days must be >= 0")
	}
	if c.Retention.Days > 0 && c.Retention.SweepIntervalMinutes <= 0 {
		return errors.New("retention.sweep_interval_minutes must be positive when retention.days is set")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must be >= 0")
	}
	return nil
}

func validateURL(field, value string) error {
	if value == "" {
		return nil
	}
	parsed, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%s must be an http(s) URL", field)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%s is missing a host", field)
	}
	return nil
}
