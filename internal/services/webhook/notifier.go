// Package webhook delivers the per-artifact downstream notification.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	// Embed the zone database so the configured timezone resolves on hosts
	// without /usr/share/zoneinfo.
	_ "time/tzdata"

	"shortcast/internal/config"
	"shortcast/internal/services"
	"shortcast/internal/workflow"
)

const (
	serviceName        = "webhook"
	defaultHTTPTimeout = 30 * time.Second
	defaultKeyHeader   = "x-make-apikey"
	defaultTimeLayout  = "02-01-2006 03:04 PM"
)

// Config holds webhook delivery settings.
type Config struct {
	URL        string
	APIKey     string
	KeyHeader  string
	PostDelay  time.Duration
	Location   *time.Location
	TimeLayout string
	Timeout    time.Duration
}

// Notifier posts artifact payloads to the configured URL. A notifier without a
// URL accepts every payload and sends nothing.
type Notifier struct {
	cfg        Config
	httpClient *http.Client
}

// Option customizes the notifier.
type Option func(*Notifier)

// WithHTTPClient overrides the HTTP client (useful for tests).
func WithHTTPClient(client *http.Client) Option {
	return func(n *Notifier) {
		if client != nil {
			n.httpClient = client
		}
	}
}

// New constructs a notifier.
func New(cfg Config, opts ...Option) *Notifier {
	cfg.URL = strings.TrimSpace(cfg.URL)
	if strings.TrimSpace(cfg.KeyHeader) == "" {
		cfg.KeyHeader = defaultKeyHeader
	}
	if cfg.TimeLayout == "" {
		cfg.TimeLayout = defaultTimeLayout
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	n := &Notifier{cfg: cfg, httpClient: &http.Client{Timeout: timeout}}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// FromConfig builds a notifier from the [webhook] section.
func FromConfig(cfg *config.Config, opts ...Option) (*Notifier, error) {
	loc := time.UTC
	if tz := strings.TrimSpace(cfg.Webhook.Timezone); tz != "" {
		loaded, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("webhook timezone %q: %w", tz, err)
		}
		loc = loaded
	}
	return New(Config{
		URL:        cfg.Webhook.URL,
		APIKey:     cfg.Webhook.APIKey,
		KeyHeader:  cfg.Webhook.KeyHeader,
		PostDelay:  time.Duration(cfg.Webhook.PostDelayMinutes) * time.Minute,
		Location:   loc,
		TimeLayout: cfg.Webhook.TimeLayout,
		Timeout:    time.Duration(cfg.Webhook.TimeoutSeconds) * time.Second,
	}, opts...), nil
}

// Enabled reports whether a URL is configured.
func (n *Notifier) Enabled() bool {
	return n != nil && n.cfg.URL != ""
}

// Message is the JSON body sent for each scheduled artifact.
type Message struct {
	SequenceID  string `json:"sequence_id"`
	JobID       string `json:"job_id"`
	Content     string `json:"content"`
	Label       string `json:"label"`
	MediaURL    string `json:"media_url"`
	MediaHandle string `json:"media_handle"`
	PublishAt   string `json:"publish_at"`
	PostAt      string `json:"post_at"`
}

// Build renders payload into the wire message.
func (n *Notifier) Build(payload workflow.Payload) Message {
	postAt := payload.PublishAt.Add(n.cfg.PostDelay).In(n.cfg.Location)
	return Message{
		SequenceID:  fmt.Sprintf("%02d", payload.Index),
		JobID:       payload.JobID,
		Content:     payload.Content,
		Label:       payload.Label,
		MediaURL:    payload.MediaURL,
		MediaHandle: string(payload.MediaHandle),
		PublishAt:   payload.PublishAt.UTC().Format(time.RFC3339),
		PostAt:      postAt.Format(n.cfg.TimeLayout),
	}
}

// Notify implements workflow.Notifier.
func (n *Notifier) Notify(ctx context.Context, payload workflow.Payload) error {
	const stage, op = "notify", "deliver"
	if !n.Enabled() {
		return nil
	}
	body, err := json.Marshal(n.Build(payload))
	if err != nil {
		return services.Wrap(services.ErrNotification, stage, op, "encode payload", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return services.Wrap(services.ErrNotification, stage, op, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if n.cfg.APIKey != "" {
		req.Header.Set(n.cfg.KeyHeader, n.cfg.APIKey)
	}
	resp, err := n.httpClient.Do(req)
	if err != nil {
		return services.ClassifyTransportError(stage, op, err)
	}
	defer resp.Body.Close()
	if err := services.CheckResponse(serviceName, stage, op, resp); err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
