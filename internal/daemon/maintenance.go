package daemon

import (
	"context"
	"errors"
	"time"

	"shortcast/internal/logging"
)

const defaultSweepInterval = time.Hour

func (d *Daemon) runMaintenance(ctx context.Context) {
	interval := time.Duration(d.cfg.Retention.SweepIntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	d.Sweep(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Sweep(ctx)
		}
	}
}

// Sweep purges terminal jobs older than the retention window and drops idle
// rate limiter state. It returns the number of purged jobs.
func (d *Daemon) Sweep(ctx context.Context) int64 {
	pruned := d.limiter.Prune()
	if d.cfg.Retention.Days <= 0 {
		return 0
	}
	cutoff := time.Now().Add(-time.Duration(d.cfg.Retention.Days) * 24 * time.Hour)
	purged, err := d.store.PurgeTerminal(ctx, cutoff)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			logging.WarnWithContext(d.logger, "retention sweep failed", "retention_sweep_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check queue database access"),
			)
		}
		return 0
	}
	if purged > 0 || pruned > 0 {
		d.logger.Info("retention sweep complete",
			logging.Int64("purged_jobs", purged),
			logging.Int("pruned_limiter_owners", pruned),
			logging.Time("cutoff", cutoff),
		)
	}
	return purged
}
