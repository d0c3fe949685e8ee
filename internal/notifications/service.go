package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"shortcast/internal/config"
)

const userAgent = "shortcast/0.1"

// Event identifies an operator notification.
type Event string

const (
	EventJobCompleted   Event = "job_completed"
	EventJobFailed      Event = "job_failed"
	EventRecoveryNeeded Event = "recovery_needed"
	EventDaemonStarted  Event = "daemon_started"
	EventTest           Event = "test"
)

// Payload carries event specific values.
type Payload map[string]any

// Service defines the notification surface exposed to workflow components.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		enabled: map[Event]bool{
			EventJobCompleted:   cfg.Notifications.JobCompleted,
			EventJobFailed:      cfg.Notifications.JobFailed,
			EventRecoveryNeeded: cfg.Notifications.Recovery,
			EventDaemonStarted:  true,
			EventTest:           true,
		},
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	enabled  map[Event]bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	if n == nil || !n.enabled[event] {
		return nil
	}
	msg, ok := format(event, payload)
	if !ok {
		return fmt.Errorf("unknown notification event %q", event)
	}
	return n.send(ctx, msg)
}

func format(event Event, payload Payload) (message, bool) {
	switch event {
	case EventJobCompleted:
		body := fmt.Sprintf("Job %s published %d videos", payload.str("job_id"), payload.integer("videos"))
		if warnings := payload.integer("warnings"); warnings > 0 {
			body = fmt.Sprintf("%s (%d notification warnings)", body, warnings)
		}
		return message{
			title: "shortcast - Job Complete",
			body:  body,
			tags:  []string{"shortcast", "job", "completed"},
		}, true
	case EventJobFailed:
		return message{
			title:    "shortcast - Job Failed",
			body:     fmt.Sprintf("Job %s failed: %s", payload.str("job_id"), payload.str("error")),
			tags:     []string{"shortcast", "job", "failed"},
			priority: "high",
		}, true
	case EventRecoveryNeeded:
		return message{
			title:    "shortcast - Recovery Needed",
			body:     fmt.Sprintf("Job %s needs manual review: %s", payload.str("job_id"), payload.str("error")),
			tags:     []string{"shortcast", "recovery", "alert"},
			priority: "high",
		}, true
	case EventDaemonStarted:
		return message{
			title: "shortcast - Daemon Started",
			body:  fmt.Sprintf("Daemon listening on %s with %d workers", payload.str("bind"), payload.integer("workers")),
			tags:  []string{"shortcast", "daemon"},
		}, true
	case EventTest:
		return message{
			title:    "shortcast - Test",
			body:     "Notification system test",
			tags:     []string{"shortcast", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func (p Payload) str(key string) string {
	if p == nil {
		return ""
	}
	switch v := p[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case error:
		return strings.TrimSpace(v.Error())
	case fmt.Stringer:
		return v.String()
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func (p Payload) integer(key string) int {
	if p == nil {
		return 0
	}
	switch v := p[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	default:
		return 0
	}
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" && msg.priority != "default" {
		req.Header.Set("Priority", msg.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
