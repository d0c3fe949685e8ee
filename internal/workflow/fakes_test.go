package workflow_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"shortcast/internal/config"
	"shortcast/internal/logging"
	"shortcast/internal/notifications"
	"shortcast/internal/queue"
	"shortcast/internal/services"
	"shortcast/internal/testsupport"
	"shortcast/internal/workflow"
)

type fakeGenerator struct {
	mu        sync.Mutex
	transient map[int]int
	permanent bool
	always    bool
	calls     []workflow.GenerateRequest
	hook      func(workflow.GenerateRequest)
}

func (g *fakeGenerator) Generate(_ context.Context, req workflow.GenerateRequest) (workflow.MediaFile, error) {
	g.mu.Lock()
	g.calls = append(g.calls, req)
	hook := g.hook
	fail := g.always
	if remaining := g.transient[req.Index]; remaining > 0 {
		g.transient[req.Index] = remaining - 1
		fail = true
	}
	permanent := g.permanent
	g.mu.Unlock()

	if hook != nil {
		hook(req)
	}
	if permanent {
		return workflow.MediaFile{}, services.Wrap(services.ErrPermanent, "generate", "render", "unsupported voice", nil)
	}
	if fail {
		return workflow.MediaFile{}, services.Wrap(services.ErrTransient, "generate", "render", "renderer busy", nil)
	}
	return workflow.MediaFile{Path: fmt.Sprintf("/media/%s/%d.mp4", req.JobID, req.Index)}, nil
}

func (g *fakeGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

type scheduleCall struct {
	handle    workflow.Handle
	publishAt time.Time
}

type fakePublisher struct {
	mu        sync.Mutex
	uploads   []workflow.UploadRequest
	schedules   []scheduleCall
	uploadErr   error
	scheduleErr error
	next        int
}

func (p *fakePublisher) Upload(_ context.Context, req workflow.UploadRequest) (workflow.Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.uploads = append(p.uploads, req)
	if p.uploadErr != nil {
		return "", p.uploadErr
	}
	p.next++
	return workflow.Handle(fmt.Sprintf("vid-%d", p.next)), nil
}

func (p *fakePublisher) ScheduleVisibility(_ context.Context, handle workflow.Handle, publishAt time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.schedules = append(p.schedules, scheduleCall{handle: handle, publishAt: publishAt})
	return p.scheduleErr
}

func (p *fakePublisher) MediaURL(handle workflow.Handle) string {
	return "https://video.example/" + string(handle)
}

type fakeNotifier struct {
	mu       sync.Mutex
	err      error
	payloads []workflow.Payload
}

func (n *fakeNotifier) Notify(_ context.Context, payload workflow.Payload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.payloads = append(n.payloads, payload)
	return n.err
}

type fakeAlerts struct {
	mu     sync.Mutex
	events []notifications.Event
}

func (a *fakeAlerts) Publish(_ context.Context, event notifications.Event, _ notifications.Payload) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
	return nil
}

func (a *fakeAlerts) has(event notifications.Event) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, e := range a.events {
		if e == event {
			return true
		}
	}
	return false
}

type recordingObserver struct {
	mu       sync.Mutex
	statuses []queue.Status
}

func (o *recordingObserver) JobUpdated(job *queue.Job) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.statuses = append(o.statuses, job.Status)
}

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) Sleep(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
}

type harness struct {
	cfg       *config.Config
	store     *queue.Store
	generator *fakeGenerator
	publisher *fakePublisher
	notifier  *fakeNotifier
	alerts    *fakeAlerts
	sleeper   *sleepRecorder
	observer  *recordingObserver
	manager   *workflow.Manager
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Workflow.QueuePollInterval = 0
	cfg.Retry.MaxAttempts = 3
	cfg.Retry.BaseDelayMillis = 1000
	cfg.Retry.MaxDelaySeconds = 30
	h := &harness{
		cfg:       cfg,
		store:     testsupport.MustOpenStore(t, cfg),
		generator: &fakeGenerator{transient: map[int]int{}},
		publisher: &fakePublisher{},
		notifier:  &fakeNotifier{},
		alerts:    &fakeAlerts{},
		sleeper:   &sleepRecorder{},
		observer:  &recordingObserver{},
	}
	mgr, err := workflow.NewManager(cfg, h.store, logging.NewNop(), workflow.Dependencies{
		Generator: h.generator,
		Publisher: h.publisher,
		Notifier:  h.notifier,
		Alerts:    h.alerts,
	}, workflow.WithSleeper(h.sleeper.Sleep), workflow.WithObserver(h.observer))
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	h.manager = mgr
	return h
}

func (h *harness) submit(t *testing.T, segments ...string) *queue.Job {
	t.Helper()
	return testsupport.MustCreateJob(t, h.store, testsupport.TestOwner, segments...)
}

func (h *harness) runOnce(t *testing.T) {
	t.Helper()
	processed, err := h.manager.RunOnce(context.Background(), "worker-test")
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if !processed {
		t.Fatal("expected a job to be processed")
	}
}

func (h *harness) get(t *testing.T, id string) *queue.Job {
	t.Helper()
	job, err := h.store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	return job
}
