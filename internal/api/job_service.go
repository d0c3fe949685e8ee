package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"shortcast/internal/config"
	"shortcast/internal/logging"
	"shortcast/internal/queue"
	"shortcast/internal/services"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// JobStore is the persistence surface JobService needs.
type JobStore interface {
	CreateWithinLimit(ctx context.Context, job *queue.Job, maxActive int) error
	Get(ctx context.Context, id string) (*queue.Job, error)
	List(ctx context.Context, filter queue.ListFilter) ([]*queue.Job, error)
	RequestCancel(ctx context.Context, owner, id string) (*queue.Job, error)
}

// RateLimiter admits or rejects a request for an owner.
type RateLimiter interface {
	Allow(owner string) (bool, time.Duration)
}

// Waker is notified after a job is queued so idle workers pick it up promptly.
type Waker interface {
	Wake()
}

// JobService implements submission, status, listing, and cancellation.
type JobService struct {
	cfg     *config.Config
	store   JobStore
	limiter RateLimiter
	waker   Waker
	logger  *slog.Logger
	now     func() time.Time
}

// ServiceOption customizes a JobService.
type ServiceOption func(*JobService)

// WithWaker registers the workflow wake hook.
func WithWaker(w Waker) ServiceOption {
	return func(s *JobService) { s.waker = w }
}

// WithServiceClock overrides the time source used for validation.
func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *JobService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *JobService) {
		if logger != nil {
			s.logger = logging.NewComponentLogger(logger, "jobs")
		}
	}
}

// NewJobService constructs a JobService. limiter may be nil to disable
// request rate limiting.
func NewJobService(cfg *config.Config, store JobStore, limiter RateLimiter, opts ...ServiceOption) (*JobService, error) {
	if cfg == nil || store == nil {
		return nil, errors.New("job service requires config and store")
	}
	svc := &JobService{
		cfg:     cfg,
		store:   store,
		limiter: limiter,
		logger:  logging.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Submit validates req, applies the owner's limits, and queues a job.
func (s *JobService) Submit(ctx context.Context, owner string, req SubmitRequest) (SubmitResponse, error) {
	owner = strings.TrimSpace(owner)
	if s.limiter != nil {
		if ok, retryAfter := s.limiter.Allow(owner); !ok {
			s.logger.Info("submission rejected",
				logging.String(logging.FieldOwner, owner),
				logging.String("reason", "request rate"),
				logging.Duration("retry_after", retryAfter),
			)
			return SubmitResponse{}, &RateLimitError{
				Reason:     fmt.Sprintf("at most %d requests per %s", s.cfg.Limits.RequestsPerWindow, s.cfg.RateWindow()),
				RetryAfter: retryAfter,
			}
		}
	}

	sub, err := validateSubmit(s.cfg, req, s.now())
	if err != nil {
		return SubmitResponse{}, err
	}

	job := &queue.Job{
		Owner:         owner,
		Script:        sub.script,
		Kind:          sub.kind,
		Voice:         sub.voice,
		Speed:         sub.speed,
		BasePublishAt: sub.publishAt,
		Interval:      s.cfg.PublishInterval(),
		Segments:      sub.segments,
	}
	if err := s.store.CreateWithinLimit(ctx, job, s.cfg.Limits.MaxConcurrentJobs); err != nil {
		if errors.Is(err, queue.ErrLimitReached) {
			s.logger.Info("submission rejected",
				logging.String(logging.FieldOwner, owner),
				logging.String("reason", "active jobs"),
				logging.Int("max_concurrent_jobs", s.cfg.Limits.MaxConcurrentJobs),
			)
			return SubmitResponse{}, &RateLimitError{
				Reason: fmt.Sprintf("at most %d active jobs per key", s.cfg.Limits.MaxConcurrentJobs),
			}
		}
		return SubmitResponse{}, fmt.Errorf("create job: %w", err)
	}

	s.logger.Info("job queued",
		logging.String(logging.FieldJobID, job.ID),
		logging.String(logging.FieldOwner, owner),
		logging.String("video_type", string(job.Kind)),
		logging.Int("segments", len(job.Segments)),
		logging.Time("base_publish_at", job.BasePublishAt),
	)
	if s.waker != nil {
		s.waker.Wake()
	}

	count := len(job.Segments)
	noun := "videos"
	if count == 1 {
		noun = "video"
	}
	return SubmitResponse{
		Success:         true,
		JobID:           job.ID,
		Status:          string(job.Status),
		Message:         fmt.Sprintf("Job queued; %d %s will be generated", count, noun),
		EstimatedVideos: count,
		CheckStatusURL:  "/api/jobs/" + job.ID,
	}, nil
}

// GetStatus returns the job when it belongs to owner. A job owned by another
// key is reported as not found.
func (s *JobService) GetStatus(ctx context.Context, owner, jobID string) (JobStatusView, error) {
	job, err := s.lookup(ctx, owner, jobID)
	if err != nil {
		return JobStatusView{}, err
	}
	return FromJob(job), nil
}

// ListJobs returns owner's jobs, newest first. limit defaults to 50 and is
// capped at 200.
func (s *JobService) ListJobs(ctx context.Context, owner string, statuses []queue.Status, limit int) ([]JobStatusView, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	jobs, err := s.store.List(ctx, queue.ListFilter{Owner: owner, Statuses: statuses, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return FromJobs(jobs), nil
}

// Cancel stops a queued job at once or flags a processing job so its worker
// stops after the current artifact.
func (s *JobService) Cancel(ctx context.Context, owner, jobID string) (JobStatusView, error) {
	job, err := s.store.RequestCancel(ctx, owner, jobID)
	switch {
	case errors.Is(err, queue.ErrNotFound):
		return JobStatusView{}, notFound(jobID)
	case errors.Is(err, queue.ErrTerminal):
		return JobStatusView{}, fmt.Errorf("job %s: %w: %w", jobID, services.ErrValidation, queue.ErrTerminal)
	case err != nil:
		return JobStatusView{}, fmt.Errorf("cancel job: %w", err)
	}
	s.logger.Info("job cancellation requested",
		logging.String(logging.FieldJobID, job.ID),
		logging.String(logging.FieldOwner, owner),
		logging.String("status", string(job.Status)),
	)
	return FromJob(job), nil
}

// Job returns the stored job for owner, used by the event stream.
func (s *JobService) Job(ctx context.Context, owner, jobID string) (*queue.Job, error) {
	return s.lookup(ctx, owner, jobID)
}

func (s *JobService) lookup(ctx context.Context, owner, jobID string) (*queue.Job, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return nil, notFound(jobID)
	}
	job, err := s.store.Get(ctx, jobID)
	if errors.Is(err, queue.ErrNotFound) {
		return nil, notFound(jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("load job: %w", err)
	}
	if owner != "" && job.Owner != owner {
		return nil, notFound(jobID)
	}
	return job, nil
}

func notFound(jobID string) error {
	return fmt.Errorf("job %q: %w", jobID, services.ErrNotFound)
}
