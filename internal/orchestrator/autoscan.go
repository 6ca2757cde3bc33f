package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/guardianai/patch-orchestrator/internal/domain"
	"github.com/guardianai/patch-orchestrator/internal/notify"
	"github.com/guardianai/patch-orchestrator/internal/patchstore"
)

// Autoscan runs scheduled sweeps over the repository registry. One repo
// failing never stops the sweep.
type Autoscan struct {
	orch     *Orchestrator
	store    *patchstore.Store
	schedule cron.Schedule
	notifier notify.Notifier
	logger   *slog.Logger
}

// NewAutoscan builds the sweeper. An explicit cron expression wins over the
// interval; the interval is clamped to at least one minute.
func NewAutoscan(orch *Orchestrator, store *patchstore.Store, intervalMin int, cronExpr string, notifier notify.Notifier, logger *slog.Logger) (*Autoscan, error) {
	var schedule cron.Schedule
	if cronExpr != "" {
		parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
		parsed, err := parser.Parse(cronExpr)
		if err != nil {
			return nil, fmt.Errorf("parse autoscan cron %q: %w", cronExpr, err)
		}
		schedule = parsed
	} else {
		if intervalMin < 1 {
			intervalMin = 1
		}
		schedule = cron.Every(time.Duration(intervalMin) * time.Minute)
	}
	if notifier == nil {
		notifier = notify.NoopNotifier{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Autoscan{
		orch:     orch,
		store:    store,
		schedule: schedule,
		notifier: notifier,
		logger:   logger,
	}, nil
}

// Next returns the next scheduled sweep time after t
func (a *Autoscan) Next(t time.Time) time.Time {
	return a.schedule.Next(t)
}

// Run blocks, sweeping the registry on schedule until ctx is cancelled
func (a *Autoscan) Run(ctx context.Context) {
	for {
		next := a.schedule.Next(time.Now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			a.RunOnce(ctx)
		}
	}
}

// RunOnce scans every registered repository once, isolating failures
func (a *Autoscan) RunOnce(ctx context.Context) {
	repos, err := a.store.Repos()
	if err != nil {
		a.logger.Error("autoscan: load registry", "error", err)
		return
	}
	if len(repos) == 0 {
		a.logger.Debug("autoscan: registry empty, nothing to do")
		return
	}

	a.logger.Info("autoscan sweep starting", "repos", len(repos))
	for _, repoURL := range repos {
		if ctx.Err() != nil {
			return
		}
		res, err := a.orch.Scan(ctx, Request{
			RepoURL: repoURL,
			Source:  domain.SourceAutoscan,
		})
		if err != nil {
			a.logger.Error("autoscan: scan failed", "repo", repoURL, "error", err)
			if sendErr := a.notifier.Send(notify.Notification{
				Title:   "Autoscan failed",
				Message: err.Error(),
				Type:    notify.NotifyError,
				RepoURL: repoURL,
			}); sendErr != nil {
				a.logger.Warn("notification failed", "error", sendErr)
			}
			continue
		}
		a.logger.Info("autoscan: repo scanned",
			"repo", repoURL, "patchId", res.Record.ID, "files", len(res.Edits))
	}
	a.logger.Info("autoscan sweep finished")
}
