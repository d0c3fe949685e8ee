package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"shortcast/internal/logging"
	"shortcast/internal/queue"
	"shortcast/internal/retry"
	"shortcast/internal/services"
)

// attempt runs fn under the retry policy, counting every call in counter.
// It returns the last call's error rather than the retry summary so the job
// error names the actual cause.
func (m *Manager) attempt(ctx context.Context, logger *slog.Logger, job *queue.Job, a *queue.Artifact, stage string, counter *int, fn func(context.Context) error) error {
	ctx = services.WithStage(ctx, stage)
	logger = logger.With(logging.String(logging.FieldStage, stage))

	// The budget spans restarts: attempts persisted by an earlier run count.
	budget := m.policy.Attempts()
	remaining := budget - *counter
	if remaining <= 0 {
		cause := "no attempts left"
		if a.Error != "" {
			cause = a.Error
		}
		return services.Wrap(services.ErrPermanent, stage, "retry", fmt.Sprintf("attempt budget of %d spent: %s", budget, cause), nil)
	}
	policy := m.policy
	policy.MaxAttempts = remaining
	policy.OnRetry = func(_ int, delay time.Duration, err error) {
		logging.WarnWithContext(logger, "stage attempt failed; retrying", "stage_retry",
			logging.Int("attempt", *counter),
			logging.Int("max_attempts", budget),
			logging.Duration("backoff", delay),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "transient failure; no action needed unless retries are exhausted"),
			logging.String(logging.FieldImpact, "processing delayed"),
		)
		a.Error = err.Error()
		if transErr := a.Transition(a.Status); transErr == nil {
			a.UpdatedAt = m.clock()
			if saveErr := m.save(ctx, job); saveErr != nil && !errors.Is(saveErr, context.Canceled) {
				logger.Debug("attempt count not persisted", logging.Error(saveErr))
			}
		}
	}

	var lastErr error
	err := retry.Do(ctx, policy, stage, func(ctx context.Context, _ int) error {
		*counter++
		callCtx, cancel := m.stageContext(ctx)
		defer cancel()
		lastErr = fn(callCtx)
		return lastErr
	})
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if lastErr != nil {
		return lastErr
	}
	return err
}

func (m *Manager) stageContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.stageTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, m.stageTimeout)
}

func (m *Manager) generate(ctx context.Context, logger *slog.Logger, job *queue.Job, a *queue.Artifact) (MediaFile, error) {
	var media MediaFile
	err := m.attempt(ctx, logger, job, a, stageGenerate, &a.Attempts.Generate, func(ctx context.Context) error {
		out, err := m.generator.Generate(ctx, GenerateRequest{
			JobID: job.ID,
			Index: a.Index,
			Text:  a.SegmentText,
			Voice: job.Voice,
			Speed: job.Speed,
			Kind:  job.Kind,
		})
		if err != nil {
			return err
		}
		if out.Path == "" {
			return services.Wrap(services.ErrPermanent, stageGenerate, "render", "generator returned no media file", nil)
		}
		media = out
		return nil
	})
	return media, err
}

func (m *Manager) upload(ctx context.Context, logger *slog.Logger, job *queue.Job, a *queue.Artifact) (Handle, error) {
	var handle Handle
	err := m.attempt(ctx, logger, job, a, stageUpload, &a.Attempts.Upload, func(ctx context.Context) error {
		out, err := m.publisher.Upload(ctx, UploadRequest{
			JobID:       job.ID,
			Index:       a.Index,
			Title:       m.label(a),
			Description: a.SegmentText,
			Kind:        job.Kind,
			Media:       MediaFile{Path: a.MediaFile},
		})
		if err != nil {
			return err
		}
		if out == "" {
			return services.Wrap(services.ErrPermanent, stageUpload, "insert", "publisher returned no handle", nil)
		}
		handle = out
		return nil
	})
	return handle, err
}

func (m *Manager) schedule(ctx context.Context, logger *slog.Logger, job *queue.Job, a *queue.Artifact) error {
	return m.attempt(ctx, logger, job, a, stageSchedule, &a.Attempts.Schedule, func(ctx context.Context) error {
		return m.publisher.ScheduleVisibility(ctx, Handle(a.MediaHandle), a.ScheduledPublishAt)
	})
}

func (m *Manager) notify(ctx context.Context, logger *slog.Logger, job *queue.Job, a *queue.Artifact) error {
	payload := Payload{
		JobID:       job.ID,
		Index:       a.Index,
		Total:       len(job.Segments),
		Content:     a.SegmentText,
		Label:       m.label(a),
		MediaHandle: Handle(a.MediaHandle),
		MediaURL:    a.MediaURL,
		PublishAt:   a.ScheduledPublishAt,
	}
	return m.attempt(ctx, logger, job, a, stageNotify, &a.Attempts.Notify, func(ctx context.Context) error {
		return m.notifier.Notify(ctx, payload)
	})
}
