package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const insertJobColumns = "job_id, owner_key, script, format_kind, voice, speed, base_publish_at, interval_seconds, segments_json, status, progress, message, created_at, updated_at"

// ListFilter narrows List results.
type ListFilter struct {
	Owner    string
	Statuses []Status
	Limit    int
}

func (s *Store) prepareNew(job *Job) ([]any, error) {
	if job == nil {
		return nil, errors.New("job is nil")
	}
	if strings.TrimSpace(job.Owner) == "" {
		return nil, errors.New("job owner is required")
	}
	if len(job.Segments) == 0 {
		return nil, errors.New("job has no segments")
	}
	if job.ID == "" {
		job.ID = "job_" + uuid.NewString()
	}
	now := s.clock()
	job.Status = StatusQueued
	job.Progress = 0
	if job.Message == "" {
		job.Message = "Queued"
	}
	job.CreatedAt = now
	job.UpdatedAt = now

	segments, err := json.Marshal(job.Segments)
	if err != nil {
		return nil, fmt.Errorf("encode segments: %w", err)
	}
	return []any{
		job.ID,
		job.Owner,
		job.Script,
		string(job.Kind),
		job.Voice,
		job.Speed,
		formatTime(job.BasePublishAt),
		int64(job.Interval.Seconds()),
		string(segments),
		string(job.Status),
		job.Progress,
		job.Message,
		formatTime(now),
		formatTime(now),
	}, nil
}

// Create inserts a new queued job without any admission check.
func (s *Store) Create(ctx context.Context, job *Job) error {
	args, err := s.prepareNew(job)
	if err != nil {
		return err
	}
	_, err = s.execWithRetry(ctx,
		"INSERT INTO jobs ("+insertJobColumns+") VALUES ("+makePlaceholders(len(args))+")",
		args...,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// CreateWithinLimit inserts a new queued job only if the owner has fewer than
// maxActive queued or processing jobs. The count and the insert happen in one
// statement, so concurrent submissions cannot both pass the check.
func (s *Store) CreateWithinLimit(ctx context.Context, job *Job, maxActive int) error {
	if maxActive <= 0 {
		return s.Create(ctx, job)
	}
	args, err := s.prepareNew(job)
	if err != nil {
		return err
	}
	query := "INSERT INTO jobs (" + insertJobColumns + ") SELECT " + makePlaceholders(len(args)) +
		" WHERE (SELECT COUNT(*) FROM jobs WHERE owner_key = ? AND status IN (?, ?)) < ?"
	args = append(args, job.Owner, string(StatusQueued), string(StatusProcessing), maxActive)

	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	if affected == 0 {
		return ErrLimitReached
	}
	return nil
}

// Save writes the job's mutable state and all of its artifacts atomically.
// When the job carries a worker id, the write only succeeds while that worker
// still holds the job; otherwise ErrLeaseLost is returned.
func (s *Store) Save(ctx context.Context, job *Job) error {
	if job == nil {
		return errors.New("job is nil")
	}
	unlock := s.lockJob(job.ID)
	defer unlock()

	now := s.clock()
	job.UpdatedAt = now
	warnings, err := encodeWarnings(job.Warnings)
	if err != nil {
		return fmt.Errorf("encode warnings: %w", err)
	}

	query := `UPDATE jobs SET status = ?, progress = ?, message = ?, error_message = ?, warnings_json = ?,
        updated_at = ?, completed_at = ?`
	args := []any{
		string(job.Status),
		job.Progress,
		nullableString(job.Message),
		nullableString(job.Error),
		warnings,
		formatTime(now),
		nullableTime(job.CompletedAt),
	}
	if job.Status.IsTerminal() {
		query += ", worker_id = NULL, heartbeat_at = NULL"
	}
	query += " WHERE job_id = ?"
	args = append(args, job.ID)
	if job.WorkerID != "" {
		query += " AND worker_id = ?"
		args = append(args, job.WorkerID)
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("update job: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("update job: %w", err)
		}
		if affected == 0 {
			var exists int
			if err := tx.QueryRowContext(ctx, "SELECT COUNT(1) FROM jobs WHERE job_id = ?", job.ID).Scan(&exists); err != nil {
				return fmt.Errorf("check job: %w", err)
			}
			if exists == 0 {
				return ErrNotFound
			}
			return ErrLeaseLost
		}
		for _, artifact := range job.Artifacts {
			if err := upsertArtifact(ctx, tx, job.ID, artifact, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		job.WorkerID = ""
		job.HeartbeatAt = nil
	}
	return nil
}

func upsertArtifact(ctx context.Context, tx *sql.Tx, jobID string, a *Artifact, now time.Time) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO artifacts (`+artifactColumns+`)
        VALUES (`+makePlaceholders(15)+`)
        ON CONFLICT (job_id, idx) DO UPDATE SET
            segment_text = excluded.segment_text,
            status = excluded.status,
            scheduled_publish_at = excluded.scheduled_publish_at,
            media_file = excluded.media_file,
            media_handle = excluded.media_handle,
            media_url = excluded.media_url,
            attempts_generate = excluded.attempts_generate,
            attempts_upload = excluded.attempts_upload,
            attempts_schedule = excluded.attempts_schedule,
            attempts_notify = excluded.attempts_notify,
            error_message = excluded.error_message,
            warning = excluded.warning,
            updated_at = excluded.updated_at`,
		jobID,
		a.Index,
		a.SegmentText,
		string(a.Status),
		formatTime(a.ScheduledPublishAt),
		nullableString(a.MediaFile),
		nullableString(a.MediaHandle),
		nullableString(a.MediaURL),
		a.Attempts.Generate,
		a.Attempts.Upload,
		a.Attempts.Schedule,
		a.Attempts.Notify,
		nullableString(a.Error),
		nullableString(a.Warning),
		formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("upsert artifact %d: %w", a.Index, err)
	}
	return nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func loadJob(ctx context.Context, q queryer, id string) (*Job, error) {
	job, err := scanJob(q.QueryRowContext(ctx, "SELECT "+jobColumns+" FROM jobs WHERE job_id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	if err := attachArtifacts(ctx, q, []*Job{job}); err != nil {
		return nil, err
	}
	return job, nil
}

func attachArtifacts(ctx context.Context, q queryer, jobs []*Job) error {
	if len(jobs) == 0 {
		return nil
	}
	byID := make(map[string]*Job, len(jobs))
	args := make([]any, 0, len(jobs))
	for _, job := range jobs {
		byID[job.ID] = job
		args = append(args, job.ID)
	}
	rows, err := q.QueryContext(ctx,
		"SELECT "+artifactColumns+" FROM artifacts WHERE job_id IN ("+makePlaceholders(len(args))+") ORDER BY job_id, idx",
		args...,
	)
	if err != nil {
		return fmt.Errorf("list artifacts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		jobID, artifact, err := scanArtifact(rows)
		if err != nil {
			return fmt.Errorf("scan artifact: %w", err)
		}
		if job := byID[jobID]; job != nil {
			job.Artifacts = append(job.Artifacts, artifact)
		}
	}
	return rows.Err()
}

// Get returns the job with its artifacts, read in one transaction.
func (s *Store) Get(ctx context.Context, id string) (*Job, error) {
	var job *Job
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		job, err = loadJob(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// List returns jobs newest first.
func (s *Store) List(ctx context.Context, filter ListFilter) ([]*Job, error) {
	query := "SELECT " + jobColumns + " FROM jobs"
	var (
		clauses []string
		args    []any
	)
	if filter.Owner != "" {
		clauses = append(clauses, "owner_key = ?")
		args = append(args, filter.Owner)
	}
	if len(filter.Statuses) > 0 {
		clauses = append(clauses, "status IN ("+makePlaceholders(len(filter.Statuses))+")")
		args = append(args, statusArgs(filter.Statuses)...)
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC, rowid DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	var jobs []*Job
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		jobs = nil
		rows, err := tx.QueryContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("list jobs: %w", err)
		}
		for rows.Next() {
			job, err := scanJob(rows)
			if err != nil {
				rows.Close()
				return fmt.Errorf("scan job: %w", err)
			}
			jobs = append(jobs, job)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()
		return attachArtifacts(ctx, tx, jobs)
	})
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

// ClaimNext atomically moves the oldest queued job to processing under
// workerID. It returns nil when nothing is queued.
func (s *Store) ClaimNext(ctx context.Context, workerID string) (*Job, error) {
	if strings.TrimSpace(workerID) == "" {
		return nil, errors.New("worker id is required")
	}
	var claimed *Job
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		claimed = nil
		var id string
		err := tx.QueryRowContext(ctx,
			"SELECT job_id FROM jobs WHERE status = ? ORDER BY created_at, rowid LIMIT 1",
			string(StatusQueued),
		).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("select queued job: %w", err)
		}
		now := formatTime(s.clock())
		res, err := tx.ExecContext(ctx,
			`UPDATE jobs SET status = ?, worker_id = ?, heartbeat_at = ?, updated_at = ?, message = ?
             WHERE job_id = ? AND status = ?`,
			string(StatusProcessing), workerID, now, now, "Processing", id, string(StatusQueued),
		)
		if err != nil {
			return fmt.Errorf("claim job: %w", err)
		}
		if affected, err := res.RowsAffected(); err != nil || affected == 0 {
			return err
		}
		claimed, err = loadJob(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// Heartbeat refreshes the liveness timestamp for a job held by workerID.
func (s *Store) Heartbeat(ctx context.Context, id, workerID string) error {
	res, err := s.execWithRetry(ctx,
		"UPDATE jobs SET heartbeat_at = ? WHERE job_id = ? AND worker_id = ? AND status = ?",
		formatTime(s.clock()), id, workerID, string(StatusProcessing),
	)
	if err != nil {
		return fmt.Errorf("heartbeat: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("heartbeat: %w", err)
	}
	if affected == 0 {
		return ErrLeaseLost
	}
	return nil
}

// CountActive returns the number of queued or processing jobs for owner.
func (s *Store) CountActive(ctx context.Context, owner string) (int, error) {
	ctx = ensureContext(ctx)
	var count int
	err := retryOnBusy(ctx, func() error {
		return s.db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM jobs WHERE owner_key = ? AND status IN (?, ?)",
			owner, string(StatusQueued), string(StatusProcessing),
		).Scan(&count)
	})
	if err != nil {
		return 0, fmt.Errorf("count active jobs: %w", err)
	}
	return count, nil
}

// CancelRequested reports whether cancellation was requested for the job.
func (s *Store) CancelRequested(ctx context.Context, id string) (bool, error) {
	ctx = ensureContext(ctx)
	var flag int
	err := retryOnBusy(ctx, func() error {
		return s.db.QueryRowContext(ctx, "SELECT cancel_requested FROM jobs WHERE job_id = ?", id).Scan(&flag)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("read cancel flag: %w", err)
	}
	return flag != 0, nil
}
