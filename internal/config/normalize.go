package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeAPI()
	c.normalizeScheduling()
	c.normalizeServices()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.DataDir, err = ExpandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.LogDir, err = ExpandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.MediaDir, err = ExpandPath(c.Paths.MediaDir); err != nil {
		return fmt.Errorf("paths.media_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeAPI() {
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	if c.API.Bind == "" {
		c.API.Bind = defaultAPIBind
	}
	keys := make([]APIKey, 0, len(c.API.Keys)+1)
	for _, k := range c.API.Keys {
		k.Name = strings.TrimSpace(k.Name)
		k.Key = strings.TrimSpace(k.Key)
		if k.Key == "" {
			continue
		}
		if k.Name == "" {
			k.Name = k.Key
		}
		keys = append(keys, k)
	}
	if value, ok := os.LookupEnv("SHORTCAST_API_KEY"); ok && strings.TrimSpace(value) != "" {
		keys = append(keys, APIKey{Name: defaultEnvKeyName, Key: strings.TrimSpace(value)})
	}
	c.API.Keys = keys

	origins := c.API.CORSOrigins[:0]
	for _, origin := range c.API.CORSOrigins {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	c.API.CORSOrigins = origins
}

func (c *Config) normalizeScheduling() {
	if strings.TrimSpace(c.Scheduling.Delimiter) == "" {
		c.Scheduling.Delimiter = defaultDelimiter
	}
	c.Scheduling.DefaultVoice = strings.ToLower(strings.TrimSpace(c.Scheduling.DefaultVoice))
	if c.Scheduling.DefaultVoice == "" {
		c.Scheduling.DefaultVoice = defaultVoice
	}
}

func (c *Config) normalizeServices() {
	c.Generator.BaseURL = strings.TrimRight(strings.TrimSpace(c.Generator.BaseURL), "/")
	if c.Generator.APIKey == "" {
		if value, ok := os.LookupEnv("GENERATOR_API_KEY"); ok {
			c.Generator.APIKey = strings.TrimSpace(value)
		}
	}

	c.Publisher.BaseURL = strings.TrimRight(strings.TrimSpace(c.Publisher.BaseURL), "/")
	if c.Publisher.BaseURL == "" {
		c.Publisher.BaseURL = defaultPublisherBaseURL
	}
	if c.Publisher.AccessToken == "" {
		if value, ok := os.LookupEnv("PUBLISHER_ACCESS_TOKEN"); ok {
			c.Publisher.AccessToken = strings.TrimSpace(value)
		}
	}
	if strings.TrimSpace(c.Publisher.MediaURLTemplate) == "" {
		c.Publisher.MediaURLTemplate = defaultPublisherMediaURL
	}
	if strings.TrimSpace(c.Publisher.CategoryID) == "" {
		c.Publisher.CategoryID = defaultPublisherCategoryID
	}

	c.Webhook.URL = strings.TrimSpace(c.Webhook.URL)
	if c.Webhook.APIKey == "" {
		if value, ok := os.LookupEnv("WEBHOOK_API_KEY"); ok {
			c.Webhook.APIKey = strings.TrimSpace(value)
		}
	}
	if strings.TrimSpace(c.Webhook.KeyHeader) == "" {
		c.Webhook.KeyHeader = defaultWebhookKeyHeader
	}
	if strings.TrimSpace(c.Webhook.Timezone) == "" {
		c.Webhook.Timezone = defaultWebhookTimezone
	}
	if strings.TrimSpace(c.Webhook.TimeLayout) == "" {
		c.Webhook.TimeLayout = defaultWebhookTimeLayout
	}

	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
}

func (c *Config) normalizeLogging() {
	format := strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch format {
	case "", "console", "text":
		c.Logging.Format = "console"
	default:
		c.Logging.Format = format
	}
	level := strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if level == "" {
		level = defaultLogLevel
	}
	c.Logging.Level = level
}
