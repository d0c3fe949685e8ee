package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"shortcast/internal/logging"
	"shortcast/internal/notifications"
	"shortcast/internal/queue"
	"shortcast/internal/script"
	"shortcast/internal/services"
)

const (
	stageGenerate = "generate"
	stageUpload   = "upload"
	stageSchedule = "schedule"
	stageNotify   = "notify"
)

// errCancelled ends a job at the operator's request between artifacts.
var errCancelled = errors.New("job cancelled")

// artifactError is a terminal artifact failure.
type artifactError struct {
	index    int
	stage    string
	attempts int
	cause    error
}

func (e *artifactError) Error() string {
	return fmt.Sprintf("artifact %d: %s: %v (after %d attempts)", e.index, e.stage, e.cause, e.attempts)
}

func (e *artifactError) Unwrap() error { return e.cause }

func (m *Manager) processJob(ctx context.Context, workerID string, job *queue.Job) error {
	ctx = services.WithJobID(ctx, job.ID)
	ctx = services.WithOwner(ctx, job.Owner)
	logger := logging.WithContext(ctx, m.logger).With(logging.String(logging.FieldWorker, workerID))

	jobCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	hbCtx, stopHeartbeat := context.WithCancel(jobCtx)
	defer stopHeartbeat()
	go m.runHeartbeat(hbCtx, logger, job.ID, workerID, cancel)

	logger.Info("job started",
		logging.Int("videos", len(job.Segments)),
		logging.String("video_type", string(job.Kind)),
		logging.Time("base_publish_at", job.BasePublishAt),
	)

	err := m.driveJob(jobCtx, logger, job)
	if cause := context.Cause(jobCtx); errors.Is(cause, queue.ErrLeaseLost) {
		return nil
	}
	switch {
	case err == nil:
		job.MarkCompleted(m.clock())
		if err := m.save(ctx, job); err != nil {
			return m.saveFailure(logger, err)
		}
		logger.Info("job completed",
			logging.Int("videos", len(job.Artifacts)),
			logging.Int("warnings", len(job.Warnings)),
			logging.String(logging.FieldEventType, "job_completed"),
		)
		m.alert(ctx, notifications.EventJobCompleted, notifications.Payload{
			"job_id":   job.ID,
			"videos":   len(job.Artifacts),
			"warnings": len(job.Warnings),
		})
		return nil
	case errors.Is(err, errCancelled):
		job.MarkCancelled(m.clock(), fmt.Sprintf("Cancelled after %d of %d videos", completedArtifacts(job), len(job.Segments)))
		if err := m.save(ctx, job); err != nil {
			return m.saveFailure(logger, err)
		}
		logger.Info("job cancelled", logging.Int("completed_videos", completedArtifacts(job)))
		return nil
	case errors.Is(err, queue.ErrLeaseLost):
		logging.WarnWithContext(logger, "job lease lost; abandoning job", "lease_lost",
			logging.String(logging.FieldImpact, "another worker or recovery now owns this job"),
		)
		return nil
	case ctx.Err() != nil:
		logger.Info("daemon shutting down, job left for recovery")
		return ctx.Err()
	}

	var artErr *artifactError
	if !errors.As(err, &artErr) {
		return err
	}
	job.MarkFailed(m.clock(), artErr.Error())
	if saveErr := m.save(ctx, job); saveErr != nil {
		return m.saveFailure(logger, saveErr)
	}
	logging.ErrorWithContext(logger, "job failed", "job_failed",
		logging.Int(logging.FieldArtifact, artErr.index),
		logging.String(logging.FieldStage, artErr.stage),
		logging.Int("attempts", artErr.attempts),
		logging.Error(artErr.cause),
		logging.Alert("job_failure"),
		logging.String(logging.FieldErrorHint, failureHint(artErr)),
	)
	m.alert(ctx, notifications.EventJobFailed, notifications.Payload{"job_id": job.ID, "error": job.Error})
	return nil
}

func failureHint(err *artifactError) string {
	switch err.stage {
	case stageGenerate:
		return "check the generator service and the segment text"
	case stageUpload, stageSchedule:
		return "check the publisher access token and quota"
	default:
		return "check logs for details"
	}
}

func (m *Manager) saveFailure(logger *slog.Logger, err error) error {
	if errors.Is(err, queue.ErrLeaseLost) {
		logging.WarnWithContext(logger, "job lease lost; abandoning job", "lease_lost",
			logging.String(logging.FieldImpact, "another worker or recovery now owns this job"),
		)
		return nil
	}
	return fmt.Errorf("persist job: %w", err)
}

func completedArtifacts(job *queue.Job) int {
	count := 0
	for _, a := range job.Artifacts {
		if a.Status == queue.ArtifactNotified {
			count++
		}
	}
	return count
}

// driveJob resolves each artifact in index order. Cancellation is only
// honored between artifacts.
func (m *Manager) driveJob(ctx context.Context, logger *slog.Logger, job *queue.Job) error {
	total := len(job.Segments)
	for index := 1; index <= total; index++ {
		if existing := job.Artifact(index); existing != nil && existing.Status == queue.ArtifactNotified {
			continue
		}
		requested, err := m.store.CancelRequested(ctx, job.ID)
		if err != nil {
			return err
		}
		if requested {
			return errCancelled
		}

		artifact, err := job.EnsureArtifact(index, m.clock())
		if err != nil {
			return err
		}
		if artifact.Status == queue.ArtifactFailed {
			return &artifactError{index: index, stage: "recover", attempts: 0, cause: errors.New(artifact.Error)}
		}
		artifactCtx := services.WithArtifact(ctx, index)
		if err := m.driveArtifact(artifactCtx, logging.WithContext(artifactCtx, logger), job, artifact); err != nil {
			return err
		}
	}
	return nil
}

// driveArtifact walks one artifact through the transition table until it is
// notified or fails. Every state change is persisted before the next external
// call, so a restart resumes from the last durable state.
func (m *Manager) driveArtifact(ctx context.Context, logger *slog.Logger, job *queue.Job, a *queue.Artifact) error {
	total := len(job.Segments)
	for {
		switch a.Status {
		case queue.ArtifactPending:
			if err := m.advance(ctx, job, a, queue.ArtifactGenerating, fmt.Sprintf("Generating video %d of %d", a.Index, total)); err != nil {
				return err
			}

		case queue.ArtifactGenerating:
			media, err := m.generate(ctx, logger, job, a)
			if err != nil {
				return m.failArtifact(ctx, job, a, stageGenerate, a.Attempts.Generate, err)
			}
			a.MediaFile = media.Path
			a.Error = ""
			if err := m.advance(ctx, job, a, queue.ArtifactGenerated, fmt.Sprintf("Generated video %d of %d", a.Index, total)); err != nil {
				return err
			}

		case queue.ArtifactGenerated:
			// Persist the in-flight marker before the upload call; recovery
			// treats it as "an upload may have happened".
			if err := m.advance(ctx, job, a, queue.ArtifactUploadPending, fmt.Sprintf("Uploading video %d of %d", a.Index, total)); err != nil {
				return err
			}

		case queue.ArtifactUploadPending:
			handle, err := m.upload(ctx, logger, job, a)
			if err != nil {
				return m.failArtifact(ctx, job, a, stageUpload, a.Attempts.Upload, err)
			}
			a.MediaHandle = string(handle)
			a.MediaURL = m.mediaURL(handle)
			a.Error = ""
			if err := m.advance(ctx, job, a, queue.ArtifactUploaded, fmt.Sprintf("Uploaded video %d of %d", a.Index, total)); err != nil {
				return err
			}

		case queue.ArtifactUploaded:
			if err := m.schedule(ctx, logger, job, a); err != nil {
				return m.failArtifact(ctx, job, a, stageSchedule, a.Attempts.Schedule, err)
			}
			a.Error = ""
			message := fmt.Sprintf("Video %d of %d scheduled for %s", a.Index, total, a.ScheduledPublishAt.Format("2006-01-02 15:04 MST"))
			if err := m.advance(ctx, job, a, queue.ArtifactScheduled, message); err != nil {
				return err
			}
			logger.Info("video scheduled",
				logging.String("media_handle", a.MediaHandle),
				logging.Time("publish_at", a.ScheduledPublishAt),
			)

		case queue.ArtifactScheduled:
			err := m.notify(ctx, logger, job, a)
			a.Error = ""
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				warning := fmt.Sprintf("notification failed: %v", err)
				a.Warning = warning
				job.AddWarning(fmt.Sprintf("artifact %d: %s", a.Index, warning))
				logging.WarnWithContext(logger, "notification failed; video remains scheduled", "notification_failed",
					logging.Error(services.Wrap(services.ErrNotification, stageNotify, "deliver", "webhook exhausted", err)),
					logging.Int("attempts", a.Attempts.Notify),
					logging.String(logging.FieldErrorHint, "check the webhook URL and key"),
					logging.String(logging.FieldImpact, "downstream posting must be triggered manually"),
				)
			}
			if err := m.advance(ctx, job, a, queue.ArtifactNotified, fmt.Sprintf("Completed video %d of %d", a.Index, total)); err != nil {
				return err
			}

		case queue.ArtifactNotified:
			return nil

		default:
			return &artifactError{index: a.Index, stage: "state", cause: fmt.Errorf("unexpected artifact status %q", a.Status)}
		}
	}
}

func (m *Manager) advance(ctx context.Context, job *queue.Job, a *queue.Artifact, next queue.ArtifactStatus, message string) error {
	if err := a.Transition(next); err != nil {
		return err
	}
	a.UpdatedAt = m.clock()
	job.SetProgress(computeProgress(job), message)
	return m.save(ctx, job)
}

func (m *Manager) failArtifact(ctx context.Context, job *queue.Job, a *queue.Artifact, stage string, attempts int, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	cause := err
	a.Error = cause.Error()
	a.UpdatedAt = m.clock()
	if transErr := a.Transition(queue.ArtifactFailed); transErr != nil {
		return transErr
	}
	return &artifactError{index: a.Index, stage: stage, attempts: attempts, cause: cause}
}

func (m *Manager) save(ctx context.Context, job *queue.Job) error {
	if err := m.store.Save(ctx, job); err != nil {
		return err
	}
	m.publish(job)
	return nil
}

func (m *Manager) label(a *queue.Artifact) string {
	return script.Label(a.SegmentText, m.labelLength)
}

func (m *Manager) mediaURL(handle Handle) string {
	if resolver, ok := m.publisher.(MediaURLResolver); ok {
		return resolver.MediaURL(handle)
	}
	return ""
}
