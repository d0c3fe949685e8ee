package api

import (
	"time"

	"shortcast/internal/queue"
	"shortcast/internal/workflow"
)

// FromJob projects a stored job into its status view.
func FromJob(job *queue.Job) JobStatusView {
	if job == nil {
		return JobStatusView{}
	}
	view := JobStatusView{
		JobID:           job.ID,
		Status:          string(job.Status),
		Progress:        job.Progress,
		Message:         job.Message,
		VideoType:       string(job.Kind),
		EstimatedVideos: len(job.Segments),
		VideosGenerated: job.GeneratedCount(),
		VideosUploaded:  job.UploadedCount(),
		CreatedAt:       FormatTime(job.CreatedAt),
		Error:           job.Error,
		Artifacts:       make([]ArtifactView, 0, len(job.Artifacts)),
	}
	if job.CompletedAt != nil {
		view.CompletedAt = FormatTime(*job.CompletedAt)
	}
	if len(job.Warnings) > 0 {
		view.Warnings = append([]string(nil), job.Warnings...)
	}
	for _, a := range job.Artifacts {
		view.Artifacts = append(view.Artifacts, ArtifactView{
			Index:              a.Index,
			Status:             string(a.Status),
			ScheduledPublishAt: FormatTime(a.ScheduledPublishAt),
			MediaHandle:        a.MediaHandle,
			MediaURL:           a.MediaURL,
			Warning:            a.Warning,
			Error:              a.Error,
		})
	}
	return view
}

// FromJobs converts a slice of jobs.
func FromJobs(jobs []*queue.Job) []JobStatusView {
	out := make([]JobStatusView, 0, len(jobs))
	for _, job := range jobs {
		if job == nil {
			continue
		}
		out = append(out, FromJob(job))
	}
	return out
}

// FromStats converts store statistics into a DTO.
func FromStats(stats queue.Stats) QueueStats {
	counts := make(map[string]int, len(queue.AllStatuses()))
	for _, status := range queue.AllStatuses() {
		counts[string(status)] = stats.Counts[status]
	}
	dto := QueueStats{Counts: counts, Total: stats.Total}
	if stats.OldestQueued != nil {
		dto.OldestQueued = FormatTime(*stats.OldestQueued)
	}
	return dto
}

// WorkflowStatus summarizes worker pool state.
type WorkflowStatus struct {
	Running   bool              `json:"running"`
	Workers   int               `json:"workers"`
	Active    map[string]string `json:"active,omitempty"`
	LastError string            `json:"last_error,omitempty"`
}

// FromStatusSummary converts the manager summary into a DTO.
func FromStatusSummary(summary workflow.StatusSummary) WorkflowStatus {
	return WorkflowStatus{
		Running:   summary.Running,
		Workers:   summary.Workers,
		Active:    summary.Active,
		LastError: summary.LastError,
	}
}

// FormatTime converts a time to RFC3339 or returns empty string.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
