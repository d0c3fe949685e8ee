package config

const (
	defaultConfigPath                = "~/.config/shortcast/config.toml"
	defaultDataDir                   = "~/.local/share/shortcast"
	defaultLogDir                    = "~/.local/share/shortcast/logs"
	defaultMediaDir                  = "~/.local/share/shortcast/media"
	defaultAPIBind                   = "127.0.0.1:8080"
	defaultEnvKeyName                = "default"
	defaultRequestsPerWindow         = 10
	defaultWindowSeconds             = 60
	defaultMaxConcurrentJobs         = 3
	defaultMaxScriptLength           = 50000
	defaultDelimiter                 = "— pause —"
	defaultIntervalMinutes           = 150
	defaultPastToleranceSeconds      = 60
	defaultVoice                     = "onyx"
	defaultSpeed                     = 1.2
	defaultRetryMaxAttempts          = 3
	defaultRetryBaseDelayMillis      = 1000
	defaultRetryMultiplier           = 2.0
	defaultRetryMaxDelaySeconds      = 30
	defaultWorkflowWorkers           = 2
	defaultWorkflowQueuePoll         = 5
	defaultWorkflowErrorRetry        = 10
	defaultWorkflowHeartbeatInterval = 15
	defaultWorkflowHeartbeatTimeout  = 120
	defaultWorkflowStageTimeout      = 600
	defaultGeneratorTimeout          = 300
	defaultPublisherBaseURL          = "https://www.googleapis.com"
	defaultPublisherCategoryID       = "22"
	defaultPublisherMediaURL         = "https://www.youtube.com/watch?v={id}"
	defaultPublisherTimeout          = 600
	defaultWebhookKeyHeader          = "x-make-apikey"
	defaultWebhookPostDelayMinutes   = 15
	defaultWebhookTimezone           = "Asia/Kolkata"
	defaultWebhookTimeLayout         = "02-01-2006 03:04 PM"
	defaultWebhookLabelLength        = 200
	defaultWebhookTimeout            = 30
	defaultNotifyRequestTimeout      = 10
	defaultRetentionDays             = 7
	defaultRetentionSweepMinutes     = 60
	defaultLogFormat                 = "console"
	defaultLogLevel                  = "info"
	defaultLogRetentionDays          = 30
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:  defaultDataDir,
			LogDir:   defaultLogDir,
			MediaDir: defaultMediaDir,
		},
		API: API{
			Bind: defaultAPIBind,
		},
		Limits: Limits{
			RequestsPerWindow: defaultRequestsPerWindow,
			WindowSeconds:     defaultWindowSeconds,
			MaxConcurrentJobs: defaultMaxConcurrentJobs,
			MaxScriptLength:   defaultMaxScriptLength,
		},
		Scheduling: Scheduling{
			Delimiter:            defaultDelimiter,
			IntervalMinutes:      defaultIntervalMinutes,
			PastToleranceSeconds: defaultPastToleranceSeconds,
			DefaultVoice:         defaultVoice,
			DefaultSpeed:         defaultSpeed,
		},
		Retry: Retry{
			MaxAttempts:     defaultRetryMaxAttempts,
			BaseDelayMillis: defaultRetryBaseDelayMillis,
			Multiplier:      defaultRetryMultiplier,
			MaxDelaySeconds: defaultRetryMaxDelaySeconds,
		},
		Workflow: Workflow{
			Workers:            defaultWorkflowWorkers,
			QueuePollInterval:  defaultWorkflowQueuePoll,
			ErrorRetryInterval: defaultWorkflowErrorRetry,
			HeartbeatInterval:  defaultWorkflowHeartbeatInterval,
			HeartbeatTimeout:   defaultWorkflowHeartbeatTimeout,
			StageTimeout:       defaultWorkflowStageTimeout,
		},
		Generator: Generator{
			TimeoutSeconds: defaultGeneratorTimeout,
		},
		Publisher: Publisher{
			BaseURL:          defaultPublisherBaseURL,
			CategoryID:       defaultPublisherCategoryID,
			MediaURLTemplate: defaultPublisherMediaURL,
			TimeoutSeconds:   defaultPublisherTimeout,
			Tags:             []string{"news", "shorts", "ai", "automation", "daily"},
		},
		Webhook: Webhook{
			KeyHeader:        defaultWebhookKeyHeader,
			PostDelayMinutes: defaultWebhookPostDelayMinutes,
			Timezone:         defaultWebhookTimezone,
			TimeLayout:       defaultWebhookTimeLayout,
			LabelLength:      defaultWebhookLabelLength,
			TimeoutSeconds:   defaultWebhookTimeout,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			JobCompleted:   true,
			JobFailed:      true,
			Recovery:       true,
		},
		Retention: Retention{
			Days:                 defaultRetentionDays,
			SweepIntervalMinutes: defaultRetentionSweepMinutes,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
