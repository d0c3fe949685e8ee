package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"shortcast/internal/api"
	"shortcast/internal/config"
	"shortcast/internal/queue"
	"shortcast/internal/ratelimit"
	"shortcast/internal/services"
	"shortcast/internal/testsupport"
)

type wakeCounter struct{ n int }

func (w *wakeCounter) Wake() { w.n++ }

func newService(t *testing.T, cfg *config.Config, limiter api.RateLimiter, opts ...api.ServiceOption) (*api.JobService, *queue.Store) {
	t.Helper()
	store := testsupport.MustOpenStore(t, cfg)
	svc, err := api.NewJobService(cfg, store, limiter, opts...)
	if err != nil {
		t.Fatalf("NewJobService: %v", err)
	}
	return svc, store
}

func speed(v float64) *float64 { return &v }

func validRequest() api.SubmitRequest {
	return api.SubmitRequest{
		MarketScript:      "A. — pause — B. — pause — C.",
		Voice:             "nova",
		Speed:             speed(1.0),
		VideoType:         "short",
		ScheduledDatetime: time.Now().UTC().Add(2 * time.Hour).Format(time.RFC3339),
	}
}

func TestSubmitQueuesJobAndWakesWorkers(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	waker := &wakeCounter{}
	svc, store := newService(t, cfg, nil, api.WithWaker(waker))

	resp, err := svc.Submit(context.Background(), testsupport.TestOwner, validRequest())
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if !resp.Success || resp.Status != "queued" || resp.EstimatedVideos != 3 {
		t.Fatalf("unexpected response %#v", resp)
	}
	if resp.CheckStatusURL != "/api/jobs/"+resp.JobID {
		t.Fatalf("unexpected status url %q", resp.CheckStatusURL)
	}
	if waker.n != 1 {
		t.Fatalf("expected one wake, got %d", waker.n)
	}
	job, err := store.Get(context.Background(), resp.JobID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	want := []string{"A.", "B.", "C."}
	if len(job.Segments) != len(want) {
		t.Fatalf("unexpected segments %q", job.Segments)
	}
	for i := range want {
		if job.Segments[i] != want[i] {
			t.Fatalf("segment %d = %q, want %q", i, job.Segments[i], want[i])
		}
	}
	if job.Voice != "nova" || job.Speed != 1.0 || job.Interval != cfg.PublishInterval() {
		t.Fatalf("unexpected job settings %#v", job)
	}
}

func TestSubmitRegularIgnoresDelimiters(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	svc, _ := newService(t, cfg, nil)

	req := validRequest()
	req.VideoType = "regular"
	resp, err := svc.Submit(context.Background(), testsupport.TestOwner, req)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if resp.EstimatedVideos != 1 {
		t.Fatalf("expected a single video, got %d", resp.EstimatedVideos)
	}
}

func TestSubmitAppliesDefaults(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	svc, store := newService(t, cfg, nil)

	req := validRequest()
	req.Voice = ""
	req.Speed = nil
	req.VideoType = ""
	req.ScheduledDatetime = time.Now().UTC().Add(time.Hour).Format("2006-01-02T15:04:05")
	resp, err := svc.Submit(context.Background(), testsupport.TestOwner, req)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	job, err := store.Get(context.Background(), resp.JobID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if job.Voice != cfg.Scheduling.DefaultVoice || job.Speed != cfg.Scheduling.DefaultSpeed || job.Kind != "short" {
		t.Fatalf("defaults not applied: %#v", job)
	}
}

func TestSubmitRejectsInvalidFields(t *testing.T) {
	cases := []struct {
		name  string
		field string
		edit  func(*api.SubmitRequest)
	}{
		{"speed too high", "speed", func(r *api.SubmitRequest) { r.Speed = speed(5.0) }},
		{"speed too low", "speed", func(r *api.SubmitRequest) { r.Speed = speed(0.1) }},
		{"speed not a number", "speed", func(r *api.SubmitRequest) { r.Speed = speed(math.NaN()) }},
		{"speed infinite", "speed", func(r *api.SubmitRequest) { r.Speed = speed(math.Inf(1)) }},
		{"unknown voice", "voice", func(r *api.SubmitRequest) { r.Voice = "robot" }},
		{"unknown type", "video_type", func(r *api.SubmitRequest) { r.VideoType = "long" }},
		{"empty script", "market_script", func(r *api.SubmitRequest) { r.MarketScript = "   " }},
		{"only delimiters", "market_script", func(r *api.SubmitRequest) { r.MarketScript = "— pause — — pause —" }},
		{"bad time", "scheduled_datetime", func(r *api.SubmitRequest) { r.ScheduledDatetime = "tomorrow" }},
		{"past time", "scheduled_datetime", func(r *api.SubmitRequest) {
			r.ScheduledDatetime = time.Now().UTC().Add(-time.Hour).Format(time.RFC3339)
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testsupport.NewConfig(t)
			svc, store := newService(t, cfg, nil)

			req := validRequest()
			tc.edit(&req)
			_, err := svc.Submit(context.Background(), testsupport.TestOwner, req)
			var verr *api.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if !errors.Is(err, services.ErrValidation) {
				t.Fatalf("expected ErrValidation marker")
			}
			found := false
			for _, f := range verr.Fields {
				if f.Field == tc.field {
					found = true
				}
			}
			if !found {
				t.Fatalf("expected field %q in %#v", tc.field, verr.Fields)
			}
			jobs, err := store.List(context.Background(), queue.ListFilter{})
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(jobs) != 0 {
				t.Fatalf("expected no job to be created, got %d", len(jobs))
			}
		})
	}
}

func TestSubmitRejectsScriptOverLimit(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Limits.MaxScriptLength = 10
	svc, _ := newService(t, cfg, nil)

	req := validRequest()
	req.MarketScript = "This script is too long."
	_, err := svc.Submit(context.Background(), testsupport.TestOwner, req)
	var verr *api.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestSubmitEnforcesConcurrencyLimit(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithLimits(100, 60, 1))
	svc, store := newService(t, cfg, nil)
	ctx := context.Background()

	if _, err := svc.Submit(ctx, testsupport.TestOwner, validRequest()); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	_, err := svc.Submit(ctx, testsupport.TestOwner, validRequest())
	var rlerr *api.RateLimitError
	if !errors.As(err, &rlerr) || !errors.Is(err, services.ErrRateLimited) {
		t.Fatalf("expected RateLimitError, got %v", err)
	}
	if count, _ := store.CountActive(ctx, testsupport.TestOwner); count != 1 {
		t.Fatalf("expected one active job, got %d", count)
	}
	if _, err := svc.Submit(ctx, "someone-else", validRequest()); err != nil {
		t.Fatalf("other owner should not be limited: %v", err)
	}
}

func TestSubmitEnforcesRequestRate(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithLimits(2, 60, 0))
	now := time.Now()
	limiter := ratelimit.New(2, time.Minute, ratelimit.WithClock(func() time.Time { return now }))
	svc, _ := newService(t, cfg, limiter)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := svc.Submit(ctx, testsupport.TestOwner, validRequest()); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}
	_, err := svc.Submit(ctx, testsupport.TestOwner, validRequest())
	var rlerr *api.RateLimitError
	if !errors.As(err, &rlerr) {
		t.Fatalf("expected RateLimitError, got %v", err)
	}
	if rlerr.RetryAfterSeconds() != 60 {
		t.Fatalf("expected retry after 60s, got %d", rlerr.RetryAfterSeconds())
	}
}

func TestGetStatusHidesOtherOwnersJobs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	svc, store := newService(t, cfg, nil)
	job := testsupport.MustCreateJob(t, store, "alice")

	if _, err := svc.GetStatus(context.Background(), "bob", job.ID); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found for other owner, got %v", err)
	}
	if _, err := svc.GetStatus(context.Background(), "alice", "job_missing"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found for missing job, got %v", err)
	}
	view, err := svc.GetStatus(context.Background(), "alice", job.ID)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if view.Status != "queued" || view.EstimatedVideos != 1 || len(view.Artifacts) != 0 {
		t.Fatalf("unexpected view %#v", view)
	}
}

func TestGetStatusIsIdempotentForTerminalJob(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	svc, store := newService(t, cfg, nil)
	ctx := context.Background()
	testsupport.MustCreateJob(t, store, testsupport.TestOwner, "Only segment.")

	job, err := store.ClaimNext(ctx, "worker-1")
	if err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	artifact, err := job.EnsureArtifact(1, time.Now())
	if err != nil {
		t.Fatalf("EnsureArtifact: %v", err)
	}
	artifact.Status = queue.ArtifactNotified
	artifact.MediaHandle = "abc"
	job.MarkCompleted(time.Now())
	if err := store.Save(ctx, job); err != nil {
		t.Fatalf("Save: %v", err)
	}

	first, err := svc.GetStatus(ctx, testsupport.TestOwner, job.ID)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	second, err := svc.GetStatus(ctx, testsupport.TestOwner, job.ID)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	if !bytes.Equal(a, b) {
		t.Fatalf("status changed between reads:\n%s\n%s", a, b)
	}
	if first.Progress != 100 || first.VideosUploaded != 1 || first.CompletedAt == "" {
		t.Fatalf("unexpected completed view %s", a)
	}
}

func TestListJobsScopesToOwner(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	svc, store := newService(t, cfg, nil)
	testsupport.MustCreateJob(t, store, "alice")
	testsupport.MustCreateJob(t, store, "alice")
	testsupport.MustCreateJob(t, store, "bob")

	views, err := svc.ListJobs(context.Background(), "alice", nil, 0)
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(views))
	}
	views, err = svc.ListJobs(context.Background(), "alice", []queue.Status{queue.StatusCompleted}, 10)
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(views) != 0 {
		t.Fatalf("expected no completed jobs, got %d", len(views))
	}
}

func TestCancel(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	svc, store := newService(t, cfg, nil)
	ctx := context.Background()
	job := testsupport.MustCreateJob(t, store, testsupport.TestOwner)

	if _, err := svc.Cancel(ctx, "intruder", job.ID); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found for other owner, got %v", err)
	}
	view, err := svc.Cancel(ctx, testsupport.TestOwner, job.ID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if view.Status != "cancelled" {
		t.Fatalf("expected cancelled, got %q", view.Status)
	}
	if _, err := svc.Cancel(ctx, testsupport.TestOwner, job.ID); !errors.Is(err, services.ErrValidation) || !errors.Is(err, queue.ErrTerminal) {
		t.Fatalf("expected terminal validation error, got %v", err)
	}
}
