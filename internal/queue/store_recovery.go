package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// RecoveryResult lists the jobs touched by RecoverInterrupted.
type RecoveryResult struct {
	Requeued  []string
	Failed    []string
	Cancelled []string
}

// Total returns the number of recovered jobs.
func (r RecoveryResult) Total() int {
	return len(r.Requeued) + len(r.Failed) + len(r.Cancelled)
}

// Stats summarizes the job table.
type Stats struct {
	Counts       map[Status]int
	Total        int
	OldestQueued *time.Time
}

// RecoverInterrupted inspects processing jobs whose heartbeat is missing or
// older than staleBefore and resolves each one:
//   - a pending cancellation finishes the job as cancelled;
//   - an artifact caught between upload request and confirmation fails the
//     job, since a blind retry could publish the video twice;
//   - anything else returns to the queue and resumes from its artifacts' state.
func (s *Store) RecoverInterrupted(ctx context.Context, staleBefore time.Time) (RecoveryResult, error) {
	ctx = ensureContext(ctx)
	var result RecoveryResult

	var ids []string
	err := retryOnBusy(ctx, func() error {
		ids = nil
		rows, err := s.db.QueryContext(ctx,
			`SELECT job_id FROM jobs WHERE status = ? AND (heartbeat_at IS NULL OR heartbeat_at < ?)
             ORDER BY created_at, rowid`,
			string(StatusProcessing), formatTime(staleBefore),
		)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return rows.Err()
	})
	if err != nil {
		return result, fmt.Errorf("list stale jobs: %w", err)
	}

	for _, id := range ids {
		outcome, err := s.recoverJob(ctx, id, staleBefore)
		if err != nil {
			return result, err
		}
		switch outcome {
		case StatusQueued:
			result.Requeued = append(result.Requeued, id)
		case StatusFailed:
			result.Failed = append(result.Failed, id)
		case StatusCancelled:
			result.Cancelled = append(result.Cancelled, id)
		}
	}
	return result, nil
}

func (s *Store) recoverJob(ctx context.Context, id string, staleBefore time.Time) (Status, error) {
	unlock := s.lockJob(id)
	defer unlock()

	var outcome Status
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		outcome = ""
		job, err := loadJob(ctx, tx, id)
		if err != nil {
			return err
		}
		// Re-check under the lock; the worker may have reported in since the scan.
		if job.Status != StatusProcessing {
			return nil
		}
		if job.HeartbeatAt != nil && !job.HeartbeatAt.Before(staleBefore) {
			return nil
		}

		now := s.clock()
		switch {
		case job.CancelRequested:
			job.MarkCancelled(now, "Cancelled")
		case job.InterruptedUpload() != nil:
			artifact := job.InterruptedUpload()
			artifact.Error = "upload was interrupted before confirmation; check the publish target before retrying"
			if err := artifact.Transition(ArtifactFailed); err != nil {
				return err
			}
			artifact.UpdatedAt = now
			job.MarkFailed(now, fmt.Sprintf("recovery needed: upload of video %d was interrupted and may have completed", artifact.Index))
		default:
			job.Status = StatusQueued
			job.Message = "Requeued after interruption"
		}

		warnings, err := encodeWarnings(job.Warnings)
		if err != nil {
			return fmt.Errorf("encode warnings: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE jobs SET status = ?, message = ?, error_message = ?, warnings_json = ?, worker_id = NULL,
                heartbeat_at = NULL, updated_at = ?, completed_at = ?
             WHERE job_id = ?`,
			string(job.Status),
			nullableString(job.Message),
			nullableString(job.Error),
			warnings,
			formatTime(now),
			nullableTime(job.CompletedAt),
			id,
		); err != nil {
			return fmt.Errorf("recover job: %w", err)
		}
		for _, artifact := range job.Artifacts {
			if err := upsertArtifact(ctx, tx, id, artifact, now); err != nil {
				return err
			}
		}
		outcome = job.Status
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("recover job %s: %w", id, err)
	}
	return outcome, nil
}

// RequestCancel cancels a job on behalf of owner. Queued jobs are cancelled
// immediately; processing jobs are flagged and stop between artifacts.
// An empty owner bypasses the ownership check.
func (s *Store) RequestCancel(ctx context.Context, owner, id string) (*Job, error) {
	ctx = ensureContext(ctx)
	unlock := s.lockJob(id)
	defer unlock()

	var job *Job
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var (
			jobOwner string
			status   string
		)
		err := tx.QueryRowContext(ctx, "SELECT owner_key, status FROM jobs WHERE job_id = ?", id).Scan(&jobOwner, &status)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("read job: %w", err)
		}
		if owner != "" && owner != jobOwner {
			return ErrNotFound
		}
		now := formatTime(s.clock())
		switch Status(status) {
		case StatusQueued:
			_, err = tx.ExecContext(ctx,
				`UPDATE jobs SET status = ?, message = ?, cancel_requested = 1, updated_at = ?, completed_at = ?
                 WHERE job_id = ?`,
				string(StatusCancelled), "Cancelled before processing", now, now, id,
			)
		case StatusProcessing:
			_, err = tx.ExecContext(ctx,
				"UPDATE jobs SET cancel_requested = 1, updated_at = ? WHERE job_id = ?",
				now, id,
			)
		default:
			return ErrTerminal
		}
		if err != nil {
			return fmt.Errorf("cancel job: %w", err)
		}
		job, err = loadJob(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// Stats returns per-status job counts.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	ctx = ensureContext(ctx)
	stats := Stats{Counts: make(map[Status]int, len(allStatuses))}
	for _, status := range allStatuses {
		stats.Counts[status] = 0
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		stats.Total = 0
		rows, err := tx.QueryContext(ctx, "SELECT status, COUNT(*) FROM jobs GROUP BY status")
		if err != nil {
			return err
		}
		for rows.Next() {
			var (
				status string
				count  int
			)
			if err := rows.Scan(&status, &count); err != nil {
				rows.Close()
				return err
			}
			stats.Counts[Status(status)] = count
			stats.Total += count
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()

		var oldest sql.NullString
		if err := tx.QueryRowContext(ctx,
			"SELECT MIN(created_at) FROM jobs WHERE status = ?", string(StatusQueued),
		).Scan(&oldest); err != nil {
			return err
		}
		stats.OldestQueued, err = parseNullTime(oldest)
		return err
	})
	if err != nil {
		return Stats{}, fmt.Errorf("job stats: %w", err)
	}
	return stats, nil
}

// PurgeTerminal deletes finished jobs and their artifacts completed before
// the cutoff. It returns the number of jobs removed.
func (s *Store) PurgeTerminal(ctx context.Context, before time.Time) (int64, error) {
	ctx = ensureContext(ctx)
	cutoff := formatTime(before)
	where := "status IN (" + makePlaceholders(len(terminalStatuses)) + ") AND completed_at IS NOT NULL AND completed_at < ?"
	args := append(statusArgs(terminalStatuses), cutoff)

	var removed int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM artifacts WHERE job_id IN (SELECT job_id FROM jobs WHERE "+where+")", args...,
		); err != nil {
			return fmt.Errorf("delete artifacts: %w", err)
		}
		res, err := tx.ExecContext(ctx, "DELETE FROM jobs WHERE "+where, args...)
		if err != nil {
			return fmt.Errorf("delete jobs: %w", err)
		}
		removed, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}
