package queue

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"shortcast/internal/script"
)

const jobColumns = "job_id, owner_key, script, format_kind, voice, speed, base_publish_at, interval_seconds, segments_json, status, progress, message, error_message, warnings_json, cancel_requested, worker_id, heartbeat_at, created_at, updated_at, completed_at"

const artifactColumns = "job_id, idx, segment_text, status, scheduled_publish_at, media_file, media_handle, media_url, attempts_generate, attempts_upload, attempts_schedule, attempts_notify, error_message, warning, updated_at"

// timeLayout is fixed width so that lexical order matches chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(scanner rowScanner) (*Job, error) {
	var (
		job             Job
		kind            string
		status          string
		baseRaw         string
		intervalSeconds int64
		segmentsRaw     string
		message         sql.NullString
		errorMessage    sql.NullString
		warningsRaw     sql.NullString
		cancelRequested int64
		workerID        sql.NullString
		heartbeatRaw    sql.NullString
		createdRaw      string
		updatedRaw      string
		completedRaw    sql.NullString
	)

	if err := scanner.Scan(
		&job.ID,
		&job.Owner,
		&job.Script,
		&kind,
		&job.Voice,
		&job.Speed,
		&baseRaw,
		&intervalSeconds,
		&segmentsRaw,
		&status,
		&job.Progress,
		&message,
		&errorMessage,
		&warningsRaw,
		&cancelRequested,
		&workerID,
		&heartbeatRaw,
		&createdRaw,
		&updatedRaw,
		&completedRaw,
	); err != nil {
		return nil, err
	}

	job.Kind = script.Kind(kind)
	job.Status = Status(status)
	job.Interval = time.Duration(intervalSeconds) * time.Second
	job.Message = message.String
	job.Error = errorMessage.String
	job.CancelRequested = cancelRequested != 0
	job.WorkerID = workerID.String

	var err error
	if job.BasePublishAt, err = parseTime(baseRaw); err != nil {
		return nil, fmt.Errorf("job %s: base_publish_at: %w", job.ID, err)
	}
	if job.CreatedAt, err = parseTime(createdRaw); err != nil {
		return nil, fmt.Errorf("job %s: created_at: %w", job.ID, err)
	}
	if job.UpdatedAt, err = parseTime(updatedRaw); err != nil {
		return nil, fmt.Errorf("job %s: updated_at: %w", job.ID, err)
	}
	if job.HeartbeatAt, err = parseNullTime(heartbeatRaw); err != nil {
		return nil, fmt.Errorf("job %s: heartbeat_at: %w", job.ID, err)
	}
	if job.CompletedAt, err = parseNullTime(completedRaw); err != nil {
		return nil, fmt.Errorf("job %s: completed_at: %w", job.ID, err)
	}
	if err := json.Unmarshal([]byte(segmentsRaw), &job.Segments); err != nil {
		return nil, fmt.Errorf("job %s: decode segments: %w", job.ID, err)
	}
	if warningsRaw.Valid && warningsRaw.String != "" {
		if err := json.Unmarshal([]byte(warningsRaw.String), &job.Warnings); err != nil {
			return nil, fmt.Errorf("job %s: decode warnings: %w", job.ID, err)
		}
	}
	return &job, nil
}

func scanArtifact(scanner rowScanner) (string, *Artifact, error) {
	var (
		jobID        string
		a            Artifact
		status       string
		scheduledRaw string
		mediaFile    sql.NullString
		mediaHandle  sql.NullString
		mediaURL     sql.NullString
		errorMessage sql.NullString
		warning      sql.NullString
		updatedRaw   string
	)
	if err := scanner.Scan(
		&jobID,
		&a.Index,
		&a.SegmentText,
		&status,
		&scheduledRaw,
		&mediaFile,
		&mediaHandle,
		&mediaURL,
		&a.Attempts.Generate,
		&a.Attempts.Upload,
		&a.Attempts.Schedule,
		&a.Attempts.Notify,
		&errorMessage,
		&warning,
		&updatedRaw,
	); err != nil {
		return "", nil, err
	}
	a.Status = ArtifactStatus(status)
	a.MediaFile = mediaFile.String
	a.MediaHandle = mediaHandle.String
	a.MediaURL = mediaURL.String
	a.Error = errorMessage.String
	a.Warning = warning.String

	var err error
	if a.ScheduledPublishAt, err = parseTime(scheduledRaw); err != nil {
		return "", nil, fmt.Errorf("artifact %s/%d: scheduled_publish_at: %w", jobID, a.Index, err)
	}
	if a.UpdatedAt, err = parseTime(updatedRaw); err != nil {
		return "", nil, fmt.Errorf("artifact %s/%d: updated_at: %w", jobID, a.Index, err)
	}
	return jobID, &a, nil
}

func formatTime(value time.Time) string {
	return value.UTC().Format(timeLayout)
}

func parseTime(value string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, value)
}

func parseNullTime(value sql.NullString) (*time.Time, error) {
	if !value.Valid || value.String == "" {
		return nil, nil
	}
	t, err := parseTime(value.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return formatTime(*value)
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func encodeWarnings(warnings []string) (any, error) {
	if len(warnings) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(warnings)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}

func statusArgs(statuses []Status) []any {
	args := make([]any, len(statuses))
	for i, status := range statuses {
		args[i] = string(status)
	}
	return args
}
