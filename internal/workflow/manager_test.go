package workflow_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"shortcast/internal/logging"
	"shortcast/internal/notifications"
	"shortcast/internal/queue"
	"shortcast/internal/services"
	"shortcast/internal/workflow"
)

func TestManagerPublishesEveryArtifactWithSpacing(t *testing.T) {
	h := newHarness(t)
	job := h.submit(t, "First. More.", "Second.", "Third.")
	h.generator.transient[2] = 2

	h.runOnce(t)

	done := h.get(t, job.ID)
	if done.Status != queue.StatusCompleted || done.Progress != 100 {
		t.Fatalf("expected completed at 100%%, got %s %d", done.Status, done.Progress)
	}
	if done.Error != "" || done.CompletedAt == nil {
		t.Fatalf("unexpected terminal fields: error=%q completed_at=%v", done.Error, done.CompletedAt)
	}
	if len(done.Artifacts) != 3 {
		t.Fatalf("expected 3 artifacts, got %d", len(done.Artifacts))
	}
	for i, a := range done.Artifacts {
		want := job.BasePublishAt.Add(time.Duration(i) * job.Interval)
		if !a.ScheduledPublishAt.Equal(want) {
			t.Fatalf("artifact %d publish time %s, want %s", a.Index, a.ScheduledPublishAt, want)
		}
		if a.Status != queue.ArtifactNotified || a.MediaHandle == "" || a.MediaURL == "" {
			t.Fatalf("artifact %d not fully published: %#v", a.Index, a)
		}
	}
	if got := done.Artifacts[1].Attempts.Generate; got != 3 {
		t.Fatalf("expected 3 generate attempts on artifact 2, got %d", got)
	}

	if len(h.publisher.schedules) != 3 {
		t.Fatalf("expected 3 schedule calls, got %d", len(h.publisher.schedules))
	}
	for i := 1; i < len(h.publisher.schedules); i++ {
		if !h.publisher.schedules[i].publishAt.After(h.publisher.schedules[i-1].publishAt) {
			t.Fatalf("publish times not strictly increasing: %v", h.publisher.schedules)
		}
	}
	if len(h.sleeper.delays) != 2 || h.sleeper.delays[0] != time.Second || h.sleeper.delays[1] != 2*time.Second {
		t.Fatalf("unexpected backoff delays %v", h.sleeper.delays)
	}
	if h.notifier.payloads[0].Label != "First." {
		t.Fatalf("expected first sentence label, got %q", h.notifier.payloads[0].Label)
	}
	if !h.alerts.has(notifications.EventJobCompleted) {
		t.Fatal("expected completion alert")
	}
}

func TestManagerFailsJobWhenGeneratorAlwaysTransient(t *testing.T) {
	h := newHarness(t)
	job := h.submit(t, "One.", "Two.")
	h.generator.always = true

	h.runOnce(t)

	failed := h.get(t, job.ID)
	if failed.Status != queue.StatusFailed {
		t.Fatalf("expected failed, got %s", failed.Status)
	}
	if !strings.Contains(failed.Error, "artifact 1: generate") || !strings.Contains(failed.Error, "after 3 attempts") {
		t.Fatalf("unexpected error %q", failed.Error)
	}
	if len(failed.Artifacts) != 1 {
		t.Fatalf("remaining artifacts must not start, got %d", len(failed.Artifacts))
	}
	a := failed.Artifacts[0]
	if a.Status != queue.ArtifactFailed || a.Attempts.Generate != 3 {
		t.Fatalf("unexpected artifact %#v", a)
	}
	if len(h.publisher.uploads) != 0 || len(h.publisher.schedules) != 0 || len(h.notifier.payloads) != 0 {
		t.Fatal("no artifact may reach upload, schedule, or notify")
	}
	if !h.alerts.has(notifications.EventJobFailed) {
		t.Fatal("expected failure alert")
	}
}

func TestManagerPermanentFailureSkipsRetries(t *testing.T) {
	h := newHarness(t)
	job := h.submit(t, "One.")
	h.publisher.uploadErr = services.Wrap(services.ErrPermanent, "upload", "insert", "quota exceeded", nil)

	h.runOnce(t)

	failed := h.get(t, job.ID)
	if failed.Status != queue.StatusFailed || !strings.Contains(failed.Error, "quota exceeded") {
		t.Fatalf("unexpected job %s %q", failed.Status, failed.Error)
	}
	if got := failed.Artifacts[0].Attempts.Upload; got != 1 {
		t.Fatalf("expected a single upload attempt, got %d", got)
	}
	if len(h.sleeper.delays) != 0 {
		t.Fatalf("permanent failures must not back off: %v", h.sleeper.delays)
	}
}

func TestManagerScheduleFailureIsFatalAndNeverReuploads(t *testing.T) {
	h := newHarness(t)
	job := h.submit(t, "One.", "Two.")
	h.publisher.scheduleErr = services.Wrap(services.ErrTransient, "schedule", "update", "503 backend", nil)

	h.runOnce(t)

	failed := h.get(t, job.ID)
	if failed.Status != queue.StatusFailed || !strings.HasPrefix(failed.Error, "artifact 1: schedule: ") {
		t.Fatalf("unexpected job %s %q", failed.Status, failed.Error)
	}
	if len(failed.Artifacts) != 1 {
		t.Fatalf("remaining artifacts must not start, got %d", len(failed.Artifacts))
	}
	a := failed.Artifacts[0]
	if a.Status != queue.ArtifactFailed || a.Attempts.Schedule != h.cfg.Retry.MaxAttempts {
		t.Fatalf("unexpected artifact %#v", a)
	}
	if a.MediaHandle == "" {
		t.Fatal("expected the uploaded handle to be kept on the failed artifact")
	}
	if len(h.publisher.uploads) != 1 {
		t.Fatalf("schedule retries must not re-upload, got %d uploads", len(h.publisher.uploads))
	}
	if len(h.publisher.schedules) != h.cfg.Retry.MaxAttempts {
		t.Fatalf("expected %d schedule calls, got %d", h.cfg.Retry.MaxAttempts, len(h.publisher.schedules))
	}
	for _, call := range h.publisher.schedules {
		if call.handle != h.publisher.schedules[0].handle {
			t.Fatalf("schedule retries must reuse the first handle: %#v", h.publisher.schedules)
		}
	}
	if len(h.notifier.payloads) != 0 {
		t.Fatalf("a failed schedule must not notify, got %d payloads", len(h.notifier.payloads))
	}
	if !h.alerts.has(notifications.EventJobFailed) {
		t.Fatal("expected failure alert")
	}
}

func TestManagerNotifierFailureCompletesWithWarnings(t *testing.T) {
	h := newHarness(t)
	job := h.submit(t, "One.", "Two.")
	h.notifier.err = errors.New("webhook down")

	h.runOnce(t)

	done := h.get(t, job.ID)
	if done.Status != queue.StatusCompleted || done.Error != "" {
		t.Fatalf("expected completed without error, got %s %q", done.Status, done.Error)
	}
	if len(done.Warnings) != 2 {
		t.Fatalf("expected one warning per artifact, got %v", done.Warnings)
	}
	for _, a := range done.Artifacts {
		if a.Status != queue.ArtifactNotified || a.Warning == "" || a.Attempts.Notify != 3 {
			t.Fatalf("unexpected artifact %#v", a)
		}
	}
}

func TestManagerCancelsBetweenArtifacts(t *testing.T) {
	h := newHarness(t)
	job := h.submit(t, "One.", "Two.", "Three.")
	h.generator.hook = func(req workflow.GenerateRequest) {
		if req.Index == 1 {
			if _, err := h.store.RequestCancel(context.Background(), "", req.JobID); err != nil {
				t.Errorf("RequestCancel failed: %v", err)
			}
		}
	}

	h.runOnce(t)

	cancelled := h.get(t, job.ID)
	if cancelled.Status != queue.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", cancelled.Status)
	}
	if len(cancelled.Artifacts) != 1 || cancelled.Artifacts[0].Status != queue.ArtifactNotified {
		t.Fatalf("in-flight artifact must finish before cancelling: %#v", cancelled.Artifacts)
	}
	if h.generator.callCount() != 1 {
		t.Fatalf("expected no further generation, got %d calls", h.generator.callCount())
	}
}

func TestRecoverResumesFromUploadedWithoutReuploading(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.submit(t, "One.", "Two.")

	claimed, err := h.store.ClaimNext(ctx, "old-worker")
	if err != nil || claimed == nil {
		t.Fatalf("ClaimNext failed: %v", err)
	}
	a, _ := claimed.EnsureArtifact(1, time.Now())
	a.Status = queue.ArtifactUploaded
	a.MediaFile = "/media/1.mp4"
	a.MediaHandle = "vid-existing"
	if err := h.store.Save(ctx, claimed); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	result, err := h.manager.Recover(ctx, time.Now().Add(time.Second))
	if err != nil {
		t.Fatalf("Recover failed: %v", err)
	}
	if len(result.Requeued) != 1 {
		t.Fatalf("expected requeue, got %#v", result)
	}

	h.runOnce(t)

	done := h.get(t, claimed.ID)
	if done.Status != queue.StatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", done.Status, done.Error)
	}
	if len(h.publisher.uploads) != 1 || h.publisher.uploads[0].Index != 2 {
		t.Fatalf("artifact 1 must not be re-uploaded: %#v", h.publisher.uploads)
	}
	if h.publisher.schedules[0].handle != "vid-existing" {
		t.Fatalf("expected schedule re-issued for existing handle, got %#v", h.publisher.schedules)
	}
}

func TestRecoverFailsInterruptedUpload(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.submit(t, "One.")

	claimed, err := h.store.ClaimNext(ctx, "old-worker")
	if err != nil || claimed == nil {
		t.Fatalf("ClaimNext failed: %v", err)
	}
	a, _ := claimed.EnsureArtifact(1, time.Now())
	a.Status = queue.ArtifactUploadPending
	if err := h.store.Save(ctx, claimed); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	result, err := h.manager.Recover(ctx, time.Now().Add(time.Second))
	if err != nil {
		t.Fatalf("Recover failed: %v", err)
	}
	if len(result.Failed) != 1 {
		t.Fatalf("expected failed recovery, got %#v", result)
	}
	failed := h.get(t, claimed.ID)
	if failed.Status != queue.StatusFailed || !strings.Contains(failed.Error, "recovery needed") {
		t.Fatalf("unexpected job %s %q", failed.Status, failed.Error)
	}
	if !h.alerts.has(notifications.EventRecoveryNeeded) {
		t.Fatal("expected recovery alert")
	}
	if processed, _ := h.manager.RunOnce(ctx, "worker-test"); processed {
		t.Fatal("failed job must not be picked up again")
	}
}

func TestObserverSeesTerminalSnapshot(t *testing.T) {
	h := newHarness(t)
	h.submit(t, "One.")

	h.runOnce(t)

	h.observer.mu.Lock()
	defer h.observer.mu.Unlock()
	if len(h.observer.statuses) < 2 {
		t.Fatalf("expected several snapshots, got %v", h.observer.statuses)
	}
	if h.observer.statuses[0] != queue.StatusProcessing {
		t.Fatalf("first snapshot should be processing, got %s", h.observer.statuses[0])
	}
	if last := h.observer.statuses[len(h.observer.statuses)-1]; last != queue.StatusCompleted {
		t.Fatalf("last snapshot should be completed, got %s", last)
	}
}

func TestProgressNeverDecreases(t *testing.T) {
	h := newHarness(t)
	h.submit(t, "One.", "Two.", "Three.", "Four.")

	var seen []int
	h.generator.hook = func(req workflow.GenerateRequest) {
		job, err := h.store.Get(context.Background(), req.JobID)
		if err == nil {
			seen = append(seen, job.Progress)
		}
	}
	h.runOnce(t)

	for i := 1; i < len(seen); i++ {
		if seen[i] < seen[i-1] {
			t.Fatalf("progress went backwards: %v", seen)
		}
	}
	if len(seen) != 4 || seen[0] != 2 || seen[1] != 27 {
		t.Fatalf("unexpected progress samples %v", seen)
	}
}

func TestStartDrainsQueueWithWorkerPool(t *testing.T) {
	h := newHarness(t)
	h.cfg.Workflow.Workers = 2
	mgr, err := workflow.NewManager(h.cfg, h.store, logging.NewNop(), workflow.Dependencies{
		Generator: h.generator,
		Publisher: h.publisher,
		Notifier:  h.notifier,
	}, workflow.WithSleeper(h.sleeper.Sleep))
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	var ids []string
	for i := 0; i < 4; i++ {
		ids = append(ids, h.submit(t, "One.", "Two.").ID)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := mgr.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer mgr.Stop()
	if err := mgr.Start(ctx); err == nil {
		t.Fatal("expected second Start to fail")
	}

	deadline := time.Now().Add(10 * time.Second)
	for {
		stats, err := h.store.Stats(ctx)
		if err != nil {
			t.Fatalf("Stats failed: %v", err)
		}
		if stats.Counts[queue.StatusCompleted] == len(ids) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("jobs did not complete in time: %#v", stats.Counts)
		}
		time.Sleep(20 * time.Millisecond)
	}
	if status := mgr.Status(); !status.Running || status.Workers != 2 {
		t.Fatalf("unexpected status %#v", status)
	}
}

// seedGenerating leaves a claimed single-artifact job mid-generation with
// prior attempts recorded, as a crashed worker would, and recovers it.
func seedGenerating(t *testing.T, h *harness, priorAttempts int) *queue.Job {
	t.Helper()
	ctx := context.Background()
	h.submit(t, "One.")
	claimed, err := h.store.ClaimNext(ctx, "old-worker")
	if err != nil || claimed == nil {
		t.Fatalf("ClaimNext failed: %v", err)
	}
	a, _ := claimed.EnsureArtifact(1, time.Now())
	a.Status = queue.ArtifactGenerating
	a.Attempts.Generate = priorAttempts
	a.Error = "renderer busy"
	if err := h.store.Save(ctx, claimed); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	result, err := h.manager.Recover(ctx, time.Now().Add(time.Second))
	if err != nil {
		t.Fatalf("Recover failed: %v", err)
	}
	if len(result.Requeued) != 1 {
		t.Fatalf("expected requeue, got %#v", result)
	}
	return claimed
}

func TestRetryBudgetCarriesAcrossRestarts(t *testing.T) {
	h := newHarness(t)
	job := seedGenerating(t, h, 2)
	h.generator.always = true

	h.runOnce(t)

	failed := h.get(t, job.ID)
	if failed.Status != queue.StatusFailed || !strings.Contains(failed.Error, "after 3 attempts") {
		t.Fatalf("unexpected job %s %q", failed.Status, failed.Error)
	}
	if got := failed.Artifacts[0].Attempts.Generate; got != 3 {
		t.Fatalf("expected attempts capped at 3, got %d", got)
	}
	if got := h.generator.callCount(); got != 1 {
		t.Fatalf("expected one remaining generate call, got %d", got)
	}
	if len(h.sleeper.delays) != 0 {
		t.Fatalf("the last attempt must not back off: %v", h.sleeper.delays)
	}
}

func TestSpentRetryBudgetFailsWithoutCalling(t *testing.T) {
	h := newHarness(t)
	job := seedGenerating(t, h, 3)

	h.runOnce(t)

	failed := h.get(t, job.ID)
	if failed.Status != queue.StatusFailed || !strings.Contains(failed.Error, "renderer busy") {
		t.Fatalf("unexpected job %s %q", failed.Status, failed.Error)
	}
	if got := failed.Artifacts[0].Attempts.Generate; got != 3 {
		t.Fatalf("attempt count must not grow past the budget, got %d", got)
	}
	if got := h.generator.callCount(); got != 0 {
		t.Fatalf("expected no generate call, got %d", got)
	}
}

func TestRecoveredArtifactUsesRemainingBudget(t *testing.T) {
	h := newHarness(t)
	job := seedGenerating(t, h, 1)
	h.generator.transient[1] = 1

	h.runOnce(t)

	done := h.get(t, job.ID)
	if done.Status != queue.StatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", done.Status, done.Error)
	}
	if got := done.Artifacts[0].Attempts.Generate; got != 3 {
		t.Fatalf("expected 3 generate attempts in total, got %d", got)
	}
}
