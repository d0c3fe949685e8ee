package queue

import (
	"fmt"
	"strings"
	"time"

	"shortcast/internal/script"
)

// Status represents the lifecycle of a job.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

var allStatuses = []Status{
	StatusQueued,
	StatusProcessing,
	StatusCompleted,
	StatusFailed,
	StatusCancelled,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

var terminalStatuses = []Status{StatusCompleted, StatusFailed, StatusCancelled}

// AllStatuses returns every job status in lifecycle order.
func AllStatuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// ParseStatus converts a user supplied value into a known status.
func ParseStatus(value string) (Status, bool) {
	status := Status(strings.ToLower(strings.TrimSpace(value)))
	_, ok := statusSet[status]
	return status, ok
}

// IsTerminal reports whether no further work will happen for the job.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// IsActive reports whether the job counts against its owner's concurrency limit.
func (s Status) IsActive() bool {
	return s == StatusQueued || s == StatusProcessing
}

// ArtifactStatus is the per-artifact pipeline state.
type ArtifactStatus string

const (
	ArtifactPending       ArtifactStatus = "pending"
	ArtifactGenerating    ArtifactStatus = "generating"
	ArtifactGenerated     ArtifactStatus = "generated"
	ArtifactUploadPending ArtifactStatus = "upload_pending"
	ArtifactUploaded      ArtifactStatus = "uploaded"
	ArtifactScheduled     ArtifactStatus = "scheduled"
	ArtifactNotified      ArtifactStatus = "notified"
	ArtifactFailed        ArtifactStatus = "failed"
)

// artifactTransitions is the complete set of legal moves. Self-transitions on
// the in-flight states are retries of the same external call.
var artifactTransitions = map[ArtifactStatus][]ArtifactStatus{
	ArtifactPending:       {ArtifactGenerating},
	ArtifactGenerating:    {ArtifactGenerating, ArtifactGenerated, ArtifactFailed},
	ArtifactGenerated:     {ArtifactUploadPending},
	ArtifactUploadPending: {ArtifactUploadPending, ArtifactUploaded, ArtifactFailed},
	ArtifactUploaded:      {ArtifactUploaded, ArtifactScheduled, ArtifactFailed},
	ArtifactScheduled:     {ArtifactScheduled, ArtifactNotified},
}

// CanTransition reports whether moving from s to next is allowed.
func (s ArtifactStatus) CanTransition(next ArtifactStatus) bool {
	for _, allowed := range artifactTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the artifact has been fully resolved.
func (s ArtifactStatus) IsTerminal() bool {
	return s == ArtifactNotified || s == ArtifactFailed
}

// Attempts counts external calls per stage, kept for audit.
type Attempts struct {
	Generate int `json:"generate"`
	Upload   int `json:"upload"`
	Schedule int `json:"schedule"`
	Notify   int `json:"notify"`
}

// Artifact is one rendered and published segment of a job.
type Artifact struct {
	Index              int
	SegmentText        string
	Status             ArtifactStatus
	ScheduledPublishAt time.Time
	MediaFile          string
	MediaHandle        string
	MediaURL           string
	Attempts           Attempts
	Error              string
	Warning            string
	UpdatedAt          time.Time
}

// Transition moves the artifact to next, rejecting moves outside the table.
func (a *Artifact) Transition(next ArtifactStatus) error {
	if !a.Status.CanTransition(next) {
		return fmt.Errorf("artifact %d: illegal transition %s -> %s", a.Index, a.Status, next)
	}
	a.Status = next
	return nil
}

// Job is a submitted script and the state of every artifact derived from it.
type Job struct {
	ID              string
	Owner           string
	Script          string
	Kind            script.Kind
	Voice           string
	Speed           float64
	BasePublishAt   time.Time
	Interval        time.Duration
	Segments        []string
	Artifacts       []*Artifact
	Status          Status
	Progress        int
	Message         string
	Error           string
	Warnings        []string
	CancelRequested bool
	WorkerID        string
	HeartbeatAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
	CompletedAt     *time.Time
}

// PublishTimeFor returns the go-public time of the artifact at index (1-based).
func (j *Job) PublishTimeFor(index int) time.Time {
	return j.BasePublishAt.Add(time.Duration(index-1) * j.Interval)
}

// Artifact returns the artifact at index (1-based) or nil when it has not
// been created yet.
func (j *Job) Artifact(index int) *Artifact {
	if index < 1 || index > len(j.Artifacts) {
		return nil
	}
	return j.Artifacts[index-1]
}

// EnsureArtifact returns the artifact at index, creating it in the pending
// state when it is the next one in sequence.
func (j *Job) EnsureArtifact(index int, now time.Time) (*Artifact, error) {
	if existing := j.Artifact(index); existing != nil {
		return existing, nil
	}
	if index != len(j.Artifacts)+1 || index > len(j.Segments) {
		return nil, fmt.Errorf("artifact %d cannot be created after %d of %d", index, len(j.Artifacts), len(j.Segments))
	}
	artifact := &Artifact{
		Index:              index,
		SegmentText:        j.Segments[index-1],
		Status:             ArtifactPending,
		ScheduledPublishAt: j.PublishTimeFor(index),
		UpdatedAt:          now,
	}
	j.Artifacts = append(j.Artifacts, artifact)
	return artifact, nil
}

// GeneratedCount is the number of artifacts that produced a media file.
func (j *Job) GeneratedCount() int {
	count := 0
	for _, a := range j.Artifacts {
		if a.MediaFile != "" {
			count++
		}
	}
	return count
}

// UploadedCount is the number of artifacts with a handle on the publish target.
func (j *Job) UploadedCount() int {
	count := 0
	for _, a := range j.Artifacts {
		if a.MediaHandle != "" {
			count++
		}
	}
	return count
}

// InterruptedUpload returns the artifact whose upload was in flight, if any.
func (j *Job) InterruptedUpload() *Artifact {
	for _, a := range j.Artifacts {
		if a.Status == ArtifactUploadPending {
			return a
		}
	}
	return nil
}

// SetProgress records progress without ever moving it backwards.
func (j *Job) SetProgress(progress int, message string) {
	if progress > 100 {
		progress = 100
	}
	if progress > j.Progress {
		j.Progress = progress
	}
	if message != "" {
		j.Message = message
	}
}

// AddWarning appends a non-fatal warning.
func (j *Job) AddWarning(warning string) {
	if warning = strings.TrimSpace(warning); warning != "" {
		j.Warnings = append(j.Warnings, warning)
	}
}

// MarkCompleted finishes the job successfully.
func (j *Job) MarkCompleted(now time.Time) {
	j.Status = StatusCompleted
	j.Progress = 100
	j.Error = ""
	j.Message = fmt.Sprintf("Published %d of %d videos", len(j.Artifacts), len(j.Segments))
	j.setCompleted(now)
}

// MarkFailed finishes the job with a terminal error.
func (j *Job) MarkFailed(now time.Time, message string) {
	message = strings.TrimSpace(message)
	if message == "" {
		message = "job failed"
	}
	j.Status = StatusFailed
	j.Error = message
	j.Message = "Failed"
	j.setCompleted(now)
}

// MarkCancelled finishes the job at the operator's request.
func (j *Job) MarkCancelled(now time.Time, message string) {
	j.Status = StatusCancelled
	j.Message = message
	j.setCompleted(now)
}

func (j *Job) setCompleted(now time.Time) {
	if j.CompletedAt == nil {
		ts := now.UTC()
		j.CompletedAt = &ts
	}
	j.UpdatedAt = now.UTC()
}
