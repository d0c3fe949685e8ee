package workflow

import (
	"context"
	"time"

	"shortcast/internal/queue"
	"shortcast/internal/script"
)

// MediaFile is a rendered video on local disk.
type MediaFile struct {
	Path string
	Size int64
}

// Handle is the publish target's reference to an uploaded video.
type Handle string

// GenerateRequest describes one segment to render.
type GenerateRequest struct {
	JobID string
	Index int
	Text  string
	Voice string
	Speed float64
	Kind  script.Kind
}

// UploadRequest describes one private upload.
type UploadRequest struct {
	JobID       string
	Index       int
	Title       string
	Description string
	Kind        script.Kind
	Media       MediaFile
}

// Payload is the per-artifact notification body.
type Payload struct {
	JobID       string
	Index       int
	Total       int
	Content     string
	Label       string
	MediaHandle Handle
	MediaURL    string
	PublishAt   time.Time
}

// Generator renders a segment into a media file.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (MediaFile, error)
}

// Publisher uploads media privately and later schedules when it goes public.
// ScheduleVisibility must be idempotent.
type Publisher interface {
	Upload(ctx context.Context, req UploadRequest) (Handle, error)
	ScheduleVisibility(ctx context.Context, handle Handle, publishAt time.Time) error
}

// MediaURLResolver is implemented by publishers that can turn a handle into a
// public URL.
type MediaURLResolver interface {
	MediaURL(handle Handle) string
}

// Notifier delivers a best-effort notification for a scheduled artifact.
type Notifier interface {
	Notify(ctx context.Context, payload Payload) error
}

// Observer receives a snapshot each time a job is persisted.
// Implementations must not retain or mutate the job.
type Observer interface {
	JobUpdated(job *queue.Job)
}

// NopNotifier reports success without sending anything.
type NopNotifier struct{}

// Notify implements Notifier.
func (NopNotifier) Notify(context.Context, Payload) error { return nil }
