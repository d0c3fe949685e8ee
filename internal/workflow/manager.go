package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"shortcast/internal/config"
	"shortcast/internal/logging"
	"shortcast/internal/notifications"
	"shortcast/internal/queue"
	"shortcast/internal/retry"
)

// Dependencies are the external collaborators the engine drives.
type Dependencies struct {
	Generator Generator
	Publisher Publisher
	Notifier  Notifier
	Alerts    notifications.Service
}

// Manager coordinates job processing across a pool of workers.
type Manager struct {
	store     *queue.Store
	logger    *slog.Logger
	generator Generator
	publisher Publisher
	notifier  Notifier
	alerts    notifications.Service
	policy    retry.Policy
	observers []Observer
	now       func() time.Time

	workers           int
	pollInterval      time.Duration
	errorRetry        time.Duration
	heartbeatInterval time.Duration
	heartbeatTimeout  time.Duration
	stageTimeout      time.Duration
	labelLength       int
	instance          string

	wake chan struct{}

	mu      sync.RWMutex
	running bool
	cancel  context.CancelFunc
	group   *errgroup.Group
	lastErr error
	active  map[string]string
}

// Option configures optional Manager behavior.
type Option func(*Manager)

// WithSleeper replaces backoff waits, letting tests run without sleeping.
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(m *Manager) {
		m.policy.Sleeper = sleeper
	}
}

// WithObserver registers an observer for persisted job snapshots.
func WithObserver(o Observer) Option {
	return func(m *Manager) {
		if o != nil {
			m.observers = append(m.observers, o)
		}
	}
}

// WithClock overrides the time source used for artifact timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithRetryPolicy overrides the backoff policy derived from config.
func WithRetryPolicy(p retry.Policy) Option {
	return func(m *Manager) {
		sleeper := m.policy.Sleeper
		m.policy = p
		if m.policy.Sleeper == nil {
			m.policy.Sleeper = sleeper
		}
	}
}

// NewManager constructs a workflow manager.
func NewManager(cfg *config.Config, store *queue.Store, logger *slog.Logger, deps Dependencies, opts ...Option) (*Manager, error) {
	if cfg == nil || store == nil {
		return nil, errors.New("workflow manager requires config and store")
	}
	if deps.Generator == nil || deps.Publisher == nil {
		return nil, errors.New("workflow manager requires a generator and a publisher")
	}
	if deps.Notifier == nil {
		deps.Notifier = NopNotifier{}
	}
	if deps.Alerts == nil {
		deps.Alerts = notifications.NewService(nil)
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	m := &Manager{
		store:             store,
		logger:            logging.NewComponentLogger(logger, "workflow"),
		generator:         deps.Generator,
		publisher:         deps.Publisher,
		notifier:          deps.Notifier,
		alerts:            deps.Alerts,
		policy:            retry.FromConfig(cfg),
		now:               time.Now,
		workers:           cfg.Workflow.Workers,
		pollInterval:      seconds(cfg.Workflow.QueuePollInterval),
		errorRetry:        seconds(cfg.Workflow.ErrorRetryInterval),
		heartbeatInterval: seconds(cfg.Workflow.HeartbeatInterval),
		heartbeatTimeout:  seconds(cfg.Workflow.HeartbeatTimeout),
		stageTimeout:      seconds(cfg.Workflow.StageTimeout),
		labelLength:       cfg.Webhook.LabelLength,
		instance:          uuid.NewString()[:8],
		wake:              make(chan struct{}, 1),
		active:            make(map[string]string),
	}
	if m.workers <= 0 {
		m.workers = 1
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func seconds(value int) time.Duration {
	return time.Duration(value) * time.Second
}

func (m *Manager) clock() time.Time {
	return m.now().UTC()
}

// Wake nudges idle workers to poll immediately, typically after a submission.
func (m *Manager) Wake() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// StatusSummary is a lightweight view of the engine for health checks.
type StatusSummary struct {
	Running   bool
	Workers   int
	Active    map[string]string
	LastError string
}

// Status returns the latest engine information.
func (m *Manager) Status() StatusSummary {
	m.mu.RLock()
	defer m.mu.RUnlock()
	summary := StatusSummary{
		Running: m.running,
		Workers: m.workers,
		Active:  make(map[string]string, len(m.active)),
	}
	for worker, job := range m.active {
		summary.Active[worker] = job
	}
	if m.lastErr != nil {
		summary.LastError = m.lastErr.Error()
	}
	return summary
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) setActive(worker, jobID string) {
	m.mu.Lock()
	if jobID == "" {
		delete(m.active, worker)
	} else {
		m.active[worker] = jobID
	}
	m.mu.Unlock()
}
