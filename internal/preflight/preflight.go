package preflight

import (
	"context"
	"strings"

	"shortcast/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// RunAll executes every preflight check for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckDirectoryAccess("Media directory", cfg.Paths.MediaDir),
		CheckAPIKeys(cfg),
		CheckEndpoint(ctx, "Generator", cfg.Generator.BaseURL, cfg.Generator.APIKey),
		CheckEndpoint(ctx, "Publisher", cfg.Publisher.BaseURL, cfg.Publisher.AccessToken),
		CheckWebhook(cfg),
	}
	if strings.TrimSpace(cfg.Notifications.NtfyTopic) != "" {
		results = append(results, CheckEndpoint(ctx, "ntfy", cfg.Notifications.NtfyTopic, ""))
	}
	return results
}

// Failed reports whether any result did not pass.
func Failed(results []Result) bool {
	for _, r := range results {
		if !r.Passed {
			return true
		}
	}
	return false
}
