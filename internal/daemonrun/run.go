// Package daemonrun assembles and runs the shortcast daemon process.
package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"shortcast/internal/config"
	"shortcast/internal/daemon"
	"shortcast/internal/logging"
	"shortcast/internal/notifications"
	"shortcast/internal/queue"
	"shortcast/internal/services/generator"
	"shortcast/internal/services/publisher"
	"shortcast/internal/services/webhook"
	"shortcast/internal/workflow"
)

const logRetentionInterval = 24 * time.Hour

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
	Version     string
}

// Run starts the shortcast daemon and blocks until SIGINT/SIGTERM or ctx ends.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.ValidateDaemon(); err != nil {
		return err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("shortcast-%s.log", runID))
	level := opts.LogLevel
	if strings.TrimSpace(level) == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", logPath},
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logConfigSnapshot(logger, cfg, opts.Version)

	store, err := queue.Open(cfg)
	if err != nil {
		logger.Error("open queue store", logging.Error(err))
		return err
	}
	defer store.Close()

	d, err := Build(cfg, store, logger, opts.Version)
	if err != nil {
		return err
	}
	defer d.Stop()

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check configuration and queue database access"),
			logging.String(logging.FieldImpact, "no jobs will be processed"),
		)
		return err
	}

	// The pid file and log pointer belong to whoever holds the daemon lock,
	// so they are only touched once Start has taken it.
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		logger.Warn("unable to update shortcast.log link", logging.Error(err))
	}
	cleanupLogs(logger, cfg, logPath)
	if err := writePIDFile(PIDPath(cfg)); err != nil {
		logger.Warn("unable to write pid file", logging.Error(err))
	}
	defer removeOwnPIDFile(cfg)

	group, groupCtx := errgroup.WithContext(signalCtx)
	group.Go(func() error {
		ticker := time.NewTicker(logRetentionInterval)
		defer ticker.Stop()
		for {
			select {
			case <-groupCtx.Done():
				return nil
			case <-ticker.C:
				cleanupLogs(logger, cfg, logPath)
			}
		}
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shortcast daemon shutting down")
		d.Stop()
		return nil
	})
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Build wires the adapters, workflow manager, and daemon around an open store
// without starting anything.
func Build(cfg *config.Config, store *queue.Store, logger *slog.Logger, version string) (*daemon.Daemon, error) {
	alerts := notifications.NewService(cfg)
	notifier, err := webhook.FromConfig(cfg)
	if err != nil {
		return nil, err
	}
	if !notifier.Enabled() {
		logging.WarnWithContext(logger, "webhook url not configured; artifacts will not be announced", "webhook_disabled",
			logging.String(logging.FieldImpact, "no downstream notification per video"),
		)
	}

	hub := daemon.NewEventHub(logger)
	mgr, err := workflow.NewManager(cfg, store, logger, workflow.Dependencies{
		Generator: generator.FromConfig(cfg),
		Publisher: publisher.FromConfig(cfg),
		Notifier:  notifier,
		Alerts:    alerts,
	}, workflow.WithObserver(hub))
	if err != nil {
		return nil, fmt.Errorf("create workflow manager: %w", err)
	}

	d, err := daemon.New(cfg, store, logger, mgr,
		daemon.WithEvents(hub),
		daemon.WithAlerts(alerts),
		daemon.WithVersion(version),
	)
	if err != nil {
		return nil, fmt.Errorf("create daemon: %w", err)
	}
	return d, nil
}

// PIDPath returns the pid file written while the daemon runs.
func PIDPath(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.DataDir, "shortcastd.pid")
}

// ReadPID returns the pid recorded in the pid file.
func ReadPID(cfg *config.Config) (int, error) {
	data, err := os.ReadFile(PIDPath(cfg))
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parse pid file: %w", err)
	}
	return pid, nil
}

// removeOwnPIDFile deletes the pid file only if it still names this process.
func removeOwnPIDFile(cfg *config.Config) {
	if pid, err := ReadPID(cfg); err == nil && pid == os.Getpid() {
		_ = os.Remove(PIDPath(cfg))
	}
}

func cleanupLogs(logger *slog.Logger, cfg *config.Config, current string) {
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "shortcast-*.log", Exclude: []string{current}},
	)
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "shortcast.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logConfigSnapshot(logger *slog.Logger, cfg *config.Config, version string) {
	logger.Info("configuration snapshot",
		logging.String(logging.FieldEventType, "config_snapshot"),
		logging.String("version", version),
		logging.String("bind", cfg.API.Bind),
		logging.Int("api_keys", len(cfg.API.Keys)),
		logging.Int("workers", cfg.Workflow.Workers),
		logging.String("generator", cfg.Generator.BaseURL),
		logging.String("publisher", cfg.Publisher.BaseURL),
		logging.Bool("webhook_configured", strings.TrimSpace(cfg.Webhook.URL) != ""),
		logging.Bool("ntfy_configured", strings.TrimSpace(cfg.Notifications.NtfyTopic) != ""),
		logging.Duration("publish_interval", cfg.PublishInterval()),
		logging.Int("max_concurrent_jobs", cfg.Limits.MaxConcurrentJobs),
	)
}
