// Package generator renders script segments into video files through a
// remote text-to-video HTTP service.
package generator

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"shortcast/internal/config"
	"shortcast/internal/script"
	"shortcast/internal/services"
	"shortcast/internal/workflow"
)

const (
	defaultHTTPTimeout = 5 * time.Minute
	stage              = "generate"
	serviceName        = "generator"
	maxInlineResponse  = 512 << 20
)

// Config holds generator connection settings.
type Config struct {
	BaseURL        string
	APIKey         string
	TimeoutSeconds int
	MediaDir       string
}

// Client calls the generator service and stores results under MediaDir.
type Client struct {
	cfg        Config
	httpClient *http.Client
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

// NewClient constructs a generator client.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		cfg: Config{
			BaseURL:        strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
			APIKey:         strings.TrimSpace(cfg.APIKey),
			TimeoutSeconds: cfg.TimeoutSeconds,
			MediaDir:       cfg.MediaDir,
		},
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// FromConfig builds a client from the [generator] and [paths] sections.
func FromConfig(cfg *config.Config, opts ...Option) *Client {
	return NewClient(Config{
		BaseURL:        cfg.Generator.BaseURL,
		APIKey:         cfg.Generator.APIKey,
		TimeoutSeconds: cfg.Generator.TimeoutSeconds,
		MediaDir:       cfg.Paths.MediaDir,
	}, opts...)
}

type generateRequest struct {
	Text   string  `json:"text"`
	Voice  string  `json:"voice"`
	Speed  float64 `json:"speed"`
	Format string  `json:"format"`
	Aspect string  `json:"aspect"`
}

type generateResponse struct {
	FileURL string `json:"file_url"`
	File    string `json:"file"`
}

func aspectFor(kind script.Kind) string {
	if kind == script.KindRegular {
		return "16:9"
	}
	return "9:16"
}

// Generate renders req and writes the result to <media_dir>/<job>/<index>.mp4.
func (c *Client) Generate(ctx context.Context, req workflow.GenerateRequest) (workflow.MediaFile, error) {
	if c.cfg.BaseURL == "" {
		return workflow.MediaFile{}, services.Wrap(services.ErrConfiguration, stage, "render", "generator base_url not configured", nil)
	}
	body, err := json.Marshal(generateRequest{
		Text:   req.Text,
		Voice:  req.Voice,
		Speed:  req.Speed,
		Format: string(req.Kind),
		Aspect: aspectFor(req.Kind),
	})
	if err != nil {
		return workflow.MediaFile{}, services.Wrap(services.ErrPermanent, stage, "render", "encode request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/generate", bytes.NewReader(body))
	if err != nil {
		return workflow.MediaFile{}, services.Wrap(services.ErrPermanent, stage, "render", "build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	c.authorize(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return workflow.MediaFile{}, services.ClassifyTransportError(stage, "render", err)
	}
	defer resp.Body.Close()
	if err := services.CheckResponse(serviceName, stage, "render", resp); err != nil {
		return workflow.MediaFile{}, err
	}

	var decoded generateResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxInlineResponse)).Decode(&decoded); err != nil {
		return workflow.MediaFile{}, services.Wrap(services.ErrTransient, stage, "render", "decode response", err)
	}

	target := c.targetPath(req)
	switch {
	case strings.TrimSpace(decoded.File) != "":
		data, err := base64.StdEncoding.DecodeString(decoded.File)
		if err != nil {
			return workflow.MediaFile{}, services.Wrap(services.ErrPermanent, stage, "render", "decode inline file", err)
		}
		return writeMedia(target, bytes.NewReader(data))
	case strings.TrimSpace(decoded.FileURL) != "":
		return c.download(ctx, decoded.FileURL, target)
	default:
		return workflow.MediaFile{}, services.Wrap(services.ErrPermanent, stage, "render", "response had neither file nor file_url", nil)
	}
}

func (c *Client) authorize(req *http.Request) {
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
}

func (c *Client) targetPath(req workflow.GenerateRequest) string {
	jobDir := req.JobID
	if jobDir == "" {
		jobDir = "adhoc"
	}
	return filepath.Join(c.cfg.MediaDir, jobDir, strconv.Itoa(req.Index)+".mp4")
}

func (c *Client) download(ctx context.Context, rawURL, target string) (workflow.MediaFile, error) {
	resolved, err := c.resolve(rawURL)
	if err != nil {
		return workflow.MediaFile{}, services.Wrap(services.ErrPermanent, stage, "download", "invalid file_url", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resolved, nil)
	if err != nil {
		return workflow.MediaFile{}, services.Wrap(services.ErrPermanent, stage, "download", "build request", err)
	}
	c.authorize(req)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return workflow.MediaFile{}, services.ClassifyTransportError(stage, "download", err)
	}
	defer resp.Body.Close()
	if err := services.CheckResponse(serviceName, stage, "download", resp); err != nil {
		return workflow.MediaFile{}, err
	}
	return writeMedia(target, resp.Body)
}

func (c *Client) resolve(raw string) (string, error) {
	ref, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	if ref.IsAbs() {
		return ref.String(), nil
	}
	base, err := url.Parse(c.cfg.BaseURL + "/")
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}

// writeMedia streams r to a temp file beside target and renames it into
// place so a partial download never looks complete.
func writeMedia(target string, r io.Reader) (workflow.MediaFile, error) {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return workflow.MediaFile{}, services.Wrap(services.ErrTransient, stage, "store", "create media dir", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(target), ".partial-*")
	if err != nil {
		return workflow.MediaFile{}, services.Wrap(services.ErrTransient, stage, "store", "create temp file", err)
	}
	tmpName := tmp.Name()
	size, copyErr := io.Copy(tmp, r)
	closeErr := tmp.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(tmpName)
		if copyErr == nil {
			copyErr = closeErr
		}
		return workflow.MediaFile{}, services.Wrap(services.ErrTransient, stage, "store", "write media", copyErr)
	}
	if size == 0 {
		_ = os.Remove(tmpName)
		return workflow.MediaFile{}, services.Wrap(services.ErrTransient, stage, "store", "generator returned an empty file", nil)
	}
	if err := os.Rename(tmpName, target); err != nil {
		_ = os.Remove(tmpName)
		return workflow.MediaFile{}, services.Wrap(services.ErrTransient, stage, "store", "finalize media", err)
	}
	return workflow.MediaFile{Path: target, Size: size}, nil
}

func (c *Client) String() string {
	return fmt.Sprintf("generator(%s)", c.cfg.BaseURL)
}
