package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"shortcast/internal/config"
)

const endpointTimeout = 5 * time.Second

// CheckEndpoint verifies that baseURL answers HTTP at all. Any status other
// than 401/403 counts as reachable since collaborators rarely expose a root.
func CheckEndpoint(ctx context.Context, name, baseURL, token string) Result {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return Result{Name: name, Detail: "missing url"}
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("invalid url (%v)", err)}
	}

	checkCtx, cancel := context.WithTimeout(ctx, endpointTimeout)
	defer cancel()

	client := &http.Client{Timeout: endpointTimeout}
	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, base, nil)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("request failed (%v)", err)}
	}
	if token = strings.TrimSpace(token); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return Result{Name: name, Detail: summarizeError(err)}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return Result{Name: name, Detail: fmt.Sprintf("auth failed (%d)", resp.StatusCode)}
	default:
		if resp.StatusCode >= 500 {
			return Result{Name: name, Detail: fmt.Sprintf("server error (%d)", resp.StatusCode)}
		}
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s reachable (%d)", base, resp.StatusCode)}
	}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckAPIKeys verifies that at least one credential is configured and that
// names and keys are unique.
func CheckAPIKeys(cfg *config.Config) Result {
	const name = "API keys"
	if len(cfg.API.Keys) == 0 {
		return Result{Name: name, Detail: "no credentials configured (set [[api.keys]] or SHORTCAST_API_KEY)"}
	}
	names := make(map[string]struct{}, len(cfg.API.Keys))
	keys := make(map[string]struct{}, len(cfg.API.Keys))
	for _, k := range cfg.API.Keys {
		if _, dup := names[k.Name]; dup {
			return Result{Name: name, Detail: fmt.Sprintf("duplicate key name %q", k.Name)}
		}
		if _, dup := keys[k.Key]; dup {
			return Result{Name: name, Detail: fmt.Sprintf("key for %q is reused", k.Name)}
		}
		names[k.Name] = struct{}{}
		keys[k.Key] = struct{}{}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%d configured", len(cfg.API.Keys))}
}

// CheckWebhook reports webhook configuration. An unset URL passes because
// notifications are optional.
func CheckWebhook(cfg *config.Config) Result {
	const name = "Webhook"
	target := strings.TrimSpace(cfg.Webhook.URL)
	if target == "" {
		return Result{Name: name, Passed: true, Detail: "disabled (no url)"}
	}
	if _, err := url.ParseRequestURI(target); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("invalid url (%v)", err)}
	}
	if _, err := time.LoadLocation(cfg.Webhook.Timezone); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("unknown timezone %q", cfg.Webhook.Timezone)}
	}
	if strings.TrimSpace(cfg.Webhook.APIKey) == "" {
		return Result{Name: name, Passed: true, Detail: "configured without api key"}
	}
	return Result{Name: name, Passed: true, Detail: "configured"}
}

func summarizeError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timed out (service unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timed out (service unreachable)"
	}
	return err.Error()
}
