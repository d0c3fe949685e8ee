package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"shortcast/internal/api"
	"shortcast/internal/config"
	"shortcast/internal/logging"
	"shortcast/internal/notifications"
	"shortcast/internal/queue"
	"shortcast/internal/ratelimit"
	"shortcast/internal/workflow"
)

// Daemon coordinates the background processing services and enforces single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *queue.Store
	workflow *workflow.Manager
	jobs     *api.JobService
	limiter  *ratelimit.Limiter
	events   *EventHub
	alerts   notifications.Service
	api      *apiServer
	version  string

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Option customizes a Daemon.
type Option func(*Daemon)

// WithEvents attaches the hub that feeds job event streams. The same hub
// should be registered as a workflow observer.
func WithEvents(hub *EventHub) Option {
	return func(d *Daemon) { d.events = hub }
}

// WithAlerts sets the operator notification service.
func WithAlerts(svc notifications.Service) Option {
	return func(d *Daemon) {
		if svc != nil {
			d.alerts = svc
		}
	}
}

// WithVersion sets the version string reported by /health.
func WithVersion(version string) Option {
	return func(d *Daemon) { d.version = version }
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	Workflow     workflow.StatusSummary
	Queue        queue.Stats
	QueueDBPath  string
	LockFilePath string
	APIAddress   string
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *queue.Store, logger *slog.Logger, wf *workflow.Manager, opts ...Option) (*Daemon, error) {
	if cfg == nil || store == nil || logger == nil || wf == nil {
		return nil, errors.New("daemon requires config, store, logger, and workflow manager")
	}

	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		workflow: wf,
		alerts:   notifications.NewService(nil),
		version:  "dev",
		lockPath: cfg.LockPath(),
		lock:     flock.New(cfg.LockPath()),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.events == nil {
		d.events = NewEventHub(logger)
	}

	d.limiter = ratelimit.New(cfg.Limits.RequestsPerWindow, cfg.RateWindow())
	jobs, err := api.NewJobService(cfg, store, d.limiter, api.WithWaker(wf), api.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	d.jobs = jobs

	srv, err := newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, err
	}
	d.api = srv
	return d, nil
}

// Start acquires the daemon lock, recovers interrupted jobs, and launches the
// workers, HTTP API, and retention sweeper.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another shortcast daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	fail := func(err error) error {
		cancel()
		_ = d.lock.Unlock()
		return err
	}

	if _, err := d.workflow.Recover(runCtx, time.Now()); err != nil {
		return fail(fmt.Errorf("recover interrupted jobs: %w", err))
	}
	if err := d.workflow.Start(runCtx); err != nil {
		return fail(fmt.Errorf("start workflow: %w", err))
	}
	if err := d.api.start(runCtx); err != nil {
		d.workflow.Stop()
		return fail(err)
	}

	d.ctx = runCtx
	d.cancel = cancel
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.runMaintenance(runCtx)
	}()

	d.running.Store(true)
	d.logger.Info("shortcast daemon started",
		logging.String("lock", d.lockPath),
		logging.String("api", d.api.address()),
		logging.String(logging.FieldEventType, "daemon_started"),
	)
	d.alert(runCtx, notifications.EventDaemonStarted, notifications.Payload{
		"bind":    d.api.address(),
		"workers": d.cfg.Workflow.Workers,
		"version": d.version,
	})
	return nil
}

func (d *Daemon) alert(ctx context.Context, event notifications.Event, payload notifications.Payload) {
	if err := d.alerts.Publish(ctx, event, payload); err != nil {
		d.logger.Debug("operator notification failed",
			logging.String("event", string(event)),
			logging.Error(err),
		)
	}
}

// Stop stops background processing and releases the daemon lock. Jobs that
// were mid-artifact stay processing and are recovered on the next start.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() {
		return
	}

	d.api.stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.workflow.Stop()
	d.wg.Wait()
	d.events.CloseAll()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("shortcast daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Jobs returns the job service backing the HTTP API.
func (d *Daemon) Jobs() *api.JobService {
	return d.jobs
}

// Handler returns the HTTP handler, useful for tests that do not bind a port.
func (d *Daemon) Handler() http.Handler {
	return d.api.handler
}

// APIAddress returns the bound listener address once started.
func (d *Daemon) APIAddress() string {
	return d.api.address()
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	stats, err := d.store.Stats(ctx)
	if err != nil {
		d.logger.Warn("queue stats unavailable", logging.Error(err))
	}
	return Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Workflow:     d.workflow.Status(),
		Queue:        stats,
		QueueDBPath:  d.store.Path(),
		LockFilePath: d.lockPath,
		APIAddress:   d.api.address(),
	}
}

// Health summarizes liveness for the unauthenticated health endpoint.
func (d *Daemon) Health(ctx context.Context) api.HealthResponse {
	resp := api.HealthResponse{
		Status:   "healthy",
		Database: "ok",
		Workers:  d.cfg.Workflow.Workers,
		Version:  d.version,
	}
	if err := d.store.Ping(ctx); err != nil {
		resp.Status = "degraded"
		resp.Database = err.Error()
		return resp
	}
	stats, err := d.store.Stats(ctx)
	if err != nil {
		resp.Status = "degraded"
		resp.Database = err.Error()
		return resp
	}
	resp.TotalJobs = stats.Total
	resp.ProcessingJobs = stats.Counts[queue.StatusProcessing]
	return resp
}
