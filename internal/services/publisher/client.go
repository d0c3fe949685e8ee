// Package publisher uploads rendered videos to a YouTube Data API compatible
// host and later flips them public on schedule.
package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"strings"
	"time"

	"shortcast/internal/config"
	"shortcast/internal/script"
	"shortcast/internal/services"
	"shortcast/internal/workflow"
)

const (
	serviceName        = "publisher"
	defaultHTTPTimeout = 10 * time.Minute
	maxTitleRunes      = 100
	maxDescription     = 5000
)

// Config holds publisher connection settings.
type Config struct {
	BaseURL          string
	AccessToken      string
	CategoryID       string
	MediaURLTemplate string
	TimeoutSeconds   int
	Tags             []string
}

// Client talks to the video host.
type Client struct {
	cfg        Config
	httpClient *http.Client
	now        func() time.Time
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client (useful for tests).
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithClock overrides the clock used to decide between scheduled and
// immediate publication.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// NewClient constructs a publisher client.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	cfg.AccessToken = strings.TrimSpace(cfg.AccessToken)
	client := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// FromConfig builds a client from the [publisher] section.
func FromConfig(cfg *config.Config, opts ...Option) *Client {
	return NewClient(Config{
		BaseURL:          cfg.Publisher.BaseURL,
		AccessToken:      cfg.Publisher.AccessToken,
		CategoryID:       cfg.Publisher.CategoryID,
		MediaURLTemplate: cfg.Publisher.MediaURLTemplate,
		TimeoutSeconds:   cfg.Publisher.TimeoutSeconds,
		Tags:             cfg.Publisher.Tags,
	}, opts...)
}

type snippet struct {
	Title       string   `json:"title,omitempty"`
	Description string   `json:"description,omitempty"`
	CategoryID  string   `json:"categoryId,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

type videoStatus struct {
	PrivacyStatus           string `json:"privacyStatus"`
	PublishAt               string `json:"publishAt,omitempty"`
	SelfDeclaredMadeForKids *bool  `json:"selfDeclaredMadeForKids,omitempty"`
}

type videoResource struct {
	ID      string       `json:"id,omitempty"`
	Snippet *snippet     `json:"snippet,omitempty"`
	Status  *videoStatus `json:"status,omitempty"`
}

// tagsFor returns the configured tags, adding "Shorts" to short uploads
// that do not already carry it.
func (c *Client) tagsFor(kind script.Kind) []string {
	tags := make([]string, 0, len(c.cfg.Tags)+1)
	hasShorts := false
	for _, tag := range c.cfg.Tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if strings.EqualFold(tag, "shorts") {
			hasShorts = true
		}
		tags = append(tags, tag)
	}
	if kind == script.KindShort && !hasShorts {
		tags = append(tags, "Shorts")
	}
	if len(tags) == 0 {
		return nil
	}
	return tags
}

// Upload sends req.Media as a private video and returns its id.
func (c *Client) Upload(ctx context.Context, req workflow.UploadRequest) (workflow.Handle, error) {
	const stage, op = "upload", "insert"
	if c.cfg.BaseURL == "" {
		return "", services.Wrap(services.ErrConfiguration, stage, op, "publisher base_url not configured", nil)
	}
	media, err := os.Open(req.Media.Path)
	if err != nil {
		return "", services.Wrap(services.ErrPermanent, stage, op, "open media", err)
	}
	defer media.Close()

	notForKids := false
	meta, err := json.Marshal(videoResource{
		Snippet: &snippet{
			Title:       script.Truncate(strings.TrimSpace(req.Title), maxTitleRunes),
			Description: script.Truncate(req.Description, maxDescription),
			CategoryID:  c.cfg.CategoryID,
		},
		Status: &videoStatus{PrivacyStatus: "private", SelfDeclaredMadeForKids: &notForKids},
	})
	if err != nil {
		return "", services.Wrap(services.ErrPermanent, stage, op, "encode metadata", err)
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	metaHeader := textproto.MIMEHeader{}
	metaHeader.Set("Content-Type", "application/json; charset=UTF-8")
	part, err := writer.CreatePart(metaHeader)
	if err == nil {
		_, err = part.Write(meta)
	}
	if err == nil {
		mediaHeader := textproto.MIMEHeader{}
		mediaHeader.Set("Content-Type", "video/mp4")
		part, err = writer.CreatePart(mediaHeader)
	}
	if err == nil {
		_, err = io.Copy(part, media)
	}
	if err == nil {
		err = writer.Close()
	}
	if err != nil {
		return "", services.Wrap(services.ErrTransient, stage, op, "assemble upload body", err)
	}

	endpoint := c.cfg.BaseURL + "/upload/youtube/v3/videos?uploadType=multipart&part=snippet,status"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return "", services.Wrap(services.ErrPermanent, stage, op, "build request", err)
	}
	httpReq.Header.Set("Content-Type", "multipart/related; boundary="+writer.Boundary())
	c.authorize(httpReq)

	var created videoResource
	if err := c.do(httpReq, stage, op, &created); err != nil {
		return "", err
	}
	if strings.TrimSpace(created.ID) == "" {
		return "", services.Wrap(services.ErrPermanent, stage, op, "response missing video id", nil)
	}
	return workflow.Handle(created.ID), nil
}

// ScheduleVisibility sets handle to go public at publishAt. Times that are
// already past publish immediately. Repeating the call is harmless.
func (c *Client) ScheduleVisibility(ctx context.Context, handle workflow.Handle, publishAt time.Time) error {
	const stage, op = "schedule", "update"
	if strings.TrimSpace(string(handle)) == "" {
		return services.Wrap(services.ErrPermanent, stage, op, "empty media handle", nil)
	}
	status := &videoStatus{PrivacyStatus: "public"}
	if publishAt.After(c.now()) {
		status = &videoStatus{PrivacyStatus: "private", PublishAt: publishAt.UTC().Format(time.RFC3339)}
	}
	payload, err := json.Marshal(videoResource{ID: string(handle), Status: status})
	if err != nil {
		return services.Wrap(services.ErrPermanent, stage, op, "encode status", err)
	}
	endpoint := c.cfg.BaseURL + "/youtube/v3/videos?part=status"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(payload))
	if err != nil {
		return services.Wrap(services.ErrPermanent, stage, op, "build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.authorize(httpReq)
	return c.do(httpReq, stage, op, nil)
}

// MediaURL renders the public watch URL for handle.
func (c *Client) MediaURL(handle workflow.Handle) string {
	if c.cfg.MediaURLTemplate == "" || handle == "" {
		return ""
	}
	return strings.ReplaceAll(c.cfg.MediaURLTemplate, "{id}", url.QueryEscape(string(handle)))
}

func (c *Client) authorize(req *http.Request) {
	if c.cfg.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
	}
}

func (c *Client) do(req *http.Request, stage, op string, out any) error {
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return services.ClassifyTransportError(stage, op, err)
	}
	defer resp.Body.Close()
	if err := services.CheckResponse(serviceName, stage, op, resp); err != nil {
		return err
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return services.Wrap(services.ErrTransient, stage, op, fmt.Sprintf("decode %s response", serviceName), err)
	}
	return nil
}
