// Package retention purges conversations with no activity past a
// configured age, on a cron schedule. It is disabled unless enabled in
// config.
package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"
	"go.uber.org/zap"

	"chatd/pkg/config"
	"chatd/pkg/logger"
	"chatd/pkg/store"
)

// Start launches the retention scheduler if enabled and returns a cancel
// func. The cron expression defaults to daily at 02:00.
func Start(ctx context.Context, cfg config.RetentionConfig, st *store.Store) (context.CancelFunc, error) {
	if !cfg.Enabled {
		logger.Log.Info("retention_disabled")
		return func() {}, nil
	}

	period, err := config.ParseDuration(cfg.Period)
	if err != nil {
		return nil, err
	}
	if period <= 0 {
		return nil, fmt.Errorf("retention enabled but period is not set")
	}

	cronExpr := cfg.Cron
	if cronExpr == "" {
		cronExpr = "0 2 * * *"
	}
	if !gronx.New().IsValid(cronExpr) {
		logger.Log.Error("retention_invalid_cron", zap.String("cron", cfg.Cron))
		return nil, fmt.Errorf("invalid retention cron expression: %s", cfg.Cron)
	}

	logger.Log.Info("retention_enabled", zap.String("cron", cronExpr), zap.Duration("period", period))
	ctx2, cancel := context.WithCancel(ctx)
	go runScheduler(ctx2, cronExpr, period, st)
	return cancel, nil
}

// runScheduler checks the cron expression once a minute and runs a purge
// when it is due.
func runScheduler(ctx context.Context, cronExpr string, period time.Duration, st *store.Store) {
	g := gronx.New()
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			due, err := g.IsDue(cronExpr, time.Now())
			if err != nil || !due {
				continue
			}
			if err := RunOnce(st, period); err != nil {
				logger.Log.Error("retention_run_failed", zap.Error(err))
			}
		}
	}
}

// RunOnce deletes every conversation whose last activity is older than
// period. Exposed so admin tooling and tests can trigger a sweep
// directly.
func RunOnce(st *store.Store, period time.Duration) error {
	cutoff := time.Now().UTC().Add(-period).UnixNano()
	convs, err := st.ListConversations()
	if err != nil {
		return err
	}
	var purged int
	for _, c := range convs {
		if c.UpdatedTS >= cutoff {
			continue
		}
		if err := st.DeleteConversation(c.ID); err != nil {
			logger.Log.Error("retention_delete_failed", zap.String("conversation", c.ID), zap.Error(err))
			continue
		}
		purged++
	}
	logger.Log.Info("retention_run_complete", zap.Int("purged", purged), zap.Int("scanned", len(convs)))
	return nil
}
