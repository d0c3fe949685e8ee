package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// SubmitRequest is the body of a generation request.
type SubmitRequest struct {
	MarketScript      string   `json:"market_script"`
	Voice             string   `json:"voice,omitempty"`
	Speed             *float64 `json:"speed,omitempty"`
	VideoType         string   `json:"video_type,omitempty"`
	ScheduledDatetime string   `json:"scheduled_datetime"`
}

// SubmitResponse acknowledges an accepted job before any work starts.
type SubmitResponse struct {
	Success         bool   `json:"success"`
	JobID           string `json:"job_id"`
	Status          string `json:"status"`
	Message         string `json:"message"`
	EstimatedVideos int    `json:"estimated_videos"`
	CheckStatusURL  string `json:"check_status_url"`
}

// JobStatusView is the externally visible state of a job.
type JobStatusView struct {
	JobID           string         `json:"job_id"`
	Status          string         `json:"status"`
	Progress        int            `json:"progress"`
	Message         string         `json:"message"`
	VideoType       string         `json:"video_type"`
	EstimatedVideos int            `json:"estimated_videos"`
	VideosGenerated int            `json:"videos_generated"`
	VideosUploaded  int            `json:"videos_uploaded"`
	CreatedAt       string         `json:"created_at"`
	CompletedAt     string         `json:"completed_at,omitempty"`
	Error           string         `json:"error,omitempty"`
	Warnings        []string       `json:"warnings,omitempty"`
	Artifacts       []ArtifactView `json:"artifacts"`
}

// ArtifactView is one artifact inside a JobStatusView.
type ArtifactView struct {
	Index              int    `json:"index"`
	Status             string `json:"status"`
	ScheduledPublishAt string `json:"scheduled_publish_at"`
	MediaHandle        string `json:"media_handle,omitempty"`
	MediaURL           string `json:"media_url,omitempty"`
	Warning            string `json:"warning,omitempty"`
	Error              string `json:"error,omitempty"`
}

// JobListResponse wraps a listing.
type JobListResponse struct {
	Jobs []JobStatusView `json:"jobs"`
}

// ErrorResponse is the body of every non-2xx API reply.
type ErrorResponse struct {
	Error      string       `json:"error"`
	Fields     []FieldError `json:"fields,omitempty"`
	RetryAfter int          `json:"retry_after,omitempty"`
}

// HealthResponse is served without authentication.
type HealthResponse struct {
	Status         string `json:"status"`
	Database       string `json:"database"`
	TotalJobs      int    `json:"total_jobs"`
	ProcessingJobs int    `json:"processing_jobs"`
	Workers        int    `json:"workers"`
	Version        string `json:"version"`
}

// QueueStats summarizes the job table for operators.
type QueueStats struct {
	Counts       map[string]int `json:"counts"`
	Total        int            `json:"total"`
	OldestQueued string         `json:"oldest_queued,omitempty"`
}
