package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"shortcast/internal/logging"
	"shortcast/internal/notifications"
	"shortcast/internal/queue"
)

// Start launches the worker pool and the reclaim loop.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	group, groupCtx := errgroup.WithContext(runCtx)
	m.cancel = cancel
	m.group = group
	m.running = true
	m.mu.Unlock()

	for i := 1; i <= m.workers; i++ {
		workerID := fmt.Sprintf("%s-%d", m.instance, i)
		group.Go(func() error {
			m.runWorker(groupCtx, workerID)
			return nil
		})
	}
	group.Go(func() error {
		m.runReclaimer(groupCtx)
		return nil
	})

	m.logger.Info("workflow started",
		logging.Int("workers", m.workers),
		logging.Duration("poll_interval", m.pollInterval),
		logging.Duration("heartbeat_timeout", m.heartbeatTimeout),
	)
	return nil
}

// Stop cancels processing and waits for every worker to return. Jobs that
// were mid-artifact stay processing and are picked up by recovery.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	group := m.group
	m.running = false
	m.cancel = nil
	m.group = nil
	m.mu.Unlock()

	cancel()
	_ = group.Wait()
	m.logger.Info("workflow stopped")
}

func (m *Manager) runWorker(ctx context.Context, workerID string) {
	logger := m.logger.With(logging.String(logging.FieldWorker, workerID))
	for {
		if ctx.Err() != nil {
			return
		}
		processed, err := m.RunOnce(ctx, workerID)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			m.setLastError(err)
			logging.ErrorWithContext(logger, "job processing interrupted", "worker_error",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check queue database access"),
			)
			m.wait(ctx, m.errorRetry, false)
			continue
		}
		if !processed {
			m.wait(ctx, m.pollInterval, true)
		}
	}
}

func (m *Manager) wait(ctx context.Context, d time.Duration, wakeable bool) {
	if d <= 0 {
		d = 10 * time.Millisecond
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	var wake chan struct{}
	if wakeable {
		wake = m.wake
	}
	select {
	case <-ctx.Done():
	case <-timer.C:
	case <-wake:
	}
}

// RunOnce claims and fully processes at most one job. It reports whether a
// job was claimed.
func (m *Manager) RunOnce(ctx context.Context, workerID string) (bool, error) {
	job, err := m.store.ClaimNext(ctx, workerID)
	if err != nil {
		return false, fmt.Errorf("claim job: %w", err)
	}
	if job == nil {
		return false, nil
	}
	m.setActive(workerID, job.ID)
	defer m.setActive(workerID, "")
	m.publish(job)
	return true, m.processJob(ctx, workerID, job)
}

func (m *Manager) runReclaimer(ctx context.Context) {
	if m.heartbeatTimeout <= 0 {
		return
	}
	interval := m.heartbeatInterval
	if interval <= 0 || interval > m.heartbeatTimeout/2 {
		interval = m.heartbeatTimeout / 2
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.Recover(ctx, m.clock().Add(-m.heartbeatTimeout)); err != nil && !errors.Is(err, context.Canceled) {
				logging.WarnWithContext(m.logger, "reclaim stale jobs failed; stuck jobs may remain", "heartbeat_reclaim_failed",
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check queue database access"),
				)
			}
		}
	}
}

// Recover resolves processing jobs whose heartbeat is older than staleBefore.
// The daemon calls it once at startup with the current time, before any
// worker runs, so every job left processing by a previous run is resolved.
func (m *Manager) Recover(ctx context.Context, staleBefore time.Time) (queue.RecoveryResult, error) {
	result, err := m.store.RecoverInterrupted(ctx, staleBefore)
	if err != nil {
		return result, err
	}
	if result.Total() == 0 {
		return result, nil
	}
	m.logger.Info("recovered interrupted jobs",
		logging.Int("requeued", len(result.Requeued)),
		logging.Int("failed", len(result.Failed)),
		logging.Int("cancelled", len(result.Cancelled)),
		logging.String(logging.FieldEventType, "jobs_recovered"),
	)
	for _, id := range append(append([]string{}, result.Requeued...), result.Cancelled...) {
		m.publishByID(ctx, id)
	}
	for _, id := range result.Failed {
		job := m.publishByID(ctx, id)
		message := "upload interrupted"
		if job != nil {
			message = job.Error
		}
		logging.ErrorWithContext(m.logger, "job needs manual recovery", "recovery_needed",
			logging.String(logging.FieldJobID, id),
			logging.String("reason", message),
			logging.String(logging.FieldErrorHint, "check the publish target for a duplicate or partial upload"),
		)
		m.alert(ctx, notifications.EventRecoveryNeeded, notifications.Payload{"job_id": id, "error": message})
	}
	if len(result.Requeued) > 0 {
		m.Wake()
	}
	return result, nil
}

func (m *Manager) publishByID(ctx context.Context, id string) *queue.Job {
	if len(m.observers) == 0 {
		return nil
	}
	job, err := m.store.Get(ctx, id)
	if err != nil {
		return nil
	}
	m.publish(job)
	return job
}

func (m *Manager) publish(job *queue.Job) {
	for _, o := range m.observers {
		o.JobUpdated(job)
	}
}

func (m *Manager) alert(ctx context.Context, event notifications.Event, payload notifications.Payload) {
	if err := m.alerts.Publish(ctx, event, payload); err != nil {
		if errors.Is(err, context.Canceled) {
			m.logger.Debug("daemon shutting down, could not send notification")
			return
		}
		m.logger.Debug("operator notification failed", logging.String("event", string(event)), logging.Error(err))
	}
}

func (m *Manager) runHeartbeat(ctx context.Context, logger *slog.Logger, jobID, workerID string, lost context.CancelCauseFunc) {
	if m.heartbeatInterval <= 0 {
		return
	}
	ticker := time.NewTicker(m.heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := m.store.Heartbeat(ctx, jobID, workerID)
			switch {
			case err == nil:
			case errors.Is(err, queue.ErrLeaseLost):
				logging.WarnWithContext(logger, "job lease lost; abandoning job", "lease_lost",
					logging.String(logging.FieldImpact, "another worker or recovery now owns this job"),
				)
				lost(queue.ErrLeaseLost)
				return
			case errors.Is(err, context.Canceled):
				return
			default:
				logger.Warn("heartbeat update failed", logging.Error(err))
			}
		}
	}
}
