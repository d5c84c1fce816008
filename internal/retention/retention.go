// Package retention prunes aged messages from the local snapshot cache on
// a cron schedule. It touches only the cache; the authoritative history
// lives on the backend and the next stream snapshot repopulates whatever is
// still current.
package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"parley/pkg/config"
	"parley/pkg/logger"
	"parley/pkg/store"
)

// Start starts the retention scheduler if enabled. Returns a cancel func.
func Start(ctx context.Context, cfg config.RetentionConfig) (context.CancelFunc, error) {
	if !cfg.Enabled {
		logger.Info("retention_disabled")
		return func() {}, nil
	}

	period, err := parsePeriod(cfg.Period)
	if err != nil {
		return nil, err
	}

	// map empty cron to default daily @02:00
	cronExpr := cfg.Cron
	if cronExpr == "" {
		cronExpr = "0 2 * * *"
	}
	if !gronx.IsValid(cronExpr) {
		logger.Error("retention_invalid_cron", "cron", cfg.Cron)
		return nil, fmt.Errorf("invalid retention cron expression: %s", cfg.Cron)
	}

	logger.Info("retention_enabled", "cron", cronExpr, "period", cfg.Period, "dry_run", cfg.DryRun)
	ctx2, cancel := context.WithCancel(ctx)
	go runScheduler(ctx2, cronExpr, period, cfg)
	return cancel, nil
}

// RunOnce triggers a single pruning pass immediately; used by tests and
// the diagnostics endpoint.
func RunOnce(cfg config.RetentionConfig) (int, error) {
	period, err := parsePeriod(cfg.Period)
	if err != nil {
		return 0, err
	}
	return runOnce(period, cfg)
}

func parsePeriod(raw string) (time.Duration, error) {
	if raw == "" {
		return 0, fmt.Errorf("retention period required when retention is enabled")
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid retention period %q: %w", raw, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("retention period must be positive: %q", raw)
	}
	return d, nil
}

// runScheduler sleeps until each next cron tick computed by gronx and runs
// a pruning pass there.
func runScheduler(ctx context.Context, cronExpr string, period time.Duration, cfg config.RetentionConfig) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("retention_scheduler_stopping")
			return
		default:
		}

		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(cronExpr, now, false)
		if err != nil {
			logger.Error("retention_nexttick_failed", "cron", cronExpr, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				logger.Info("retention_scheduler_stopping")
				return
			}
			continue
		}

		wait := time.Until(next)
		if wait < 0 {
			wait = time.Second
		}
		select {
		case <-time.After(wait):
			if _, err := runOnce(period, cfg); err != nil {
				logger.Error("retention_run_error", "error", err)
			}
		case <-ctx.Done():
			logger.Info("retention_scheduler_stopping")
			return
		}
	}
}

func runOnce(period time.Duration, cfg config.RetentionConfig) (int, error) {
	if !store.Ready() {
		return 0, fmt.Errorf("store not open")
	}
	cutoff := time.Now().Add(-period).UnixMilli()
	removed, err := store.PruneBefore(cutoff, cfg.DryRun)
	if err != nil {
		return 0, err
	}
	if max := cfg.MaxCacheBytes.Int64(); max > 0 {
		if used := store.DiskUsage(); used > uint64(max) {
			logger.Warn("cache_over_size_cap", "used_bytes", used, "cap_bytes", max)
		}
	}
	logger.Info("retention_run_complete", "removed", removed, "dry_run", cfg.DryRun)
	return removed, nil
}
