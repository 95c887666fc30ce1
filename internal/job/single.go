package job

import (
	"context"
	"errors"
	"fmt"
	"time"

	"roas-notifier/internal/ledger"
	"roas-notifier/internal/logger"
	"roas-notifier/internal/metrics"
	"roas-notifier/internal/notify"
	"roas-notifier/internal/types"
)

// MonitorStoppedText is posted when monitor mode is interrupted.
const MonitorStoppedText = "Monitoramento interrompido"

// RunSite announces yesterday's figures for one site, followed by its
// summary and a separator. Unlike RunAll, a missing row is only logged.
func (r *Runner) RunSite(ctx context.Context, name string) (stats Stats, err error) {
	ctx, finish := r.beginRun(ctx, "site")
	defer func() { finish(&stats, err) }()

	stats.TotalSites = 1
	site, err := r.resolve(ctx, name)
	if err != nil {
		stats.Skipped++
		r.deps.Metrics.SiteOutcome(metrics.OutcomeSkipped)
		return stats, err
	}

	outcome, err := r.announceSingle(ctx, site)
	r.deps.Metrics.SiteOutcome(outcome)
	switch outcome {
	case metrics.OutcomeSent:
		stats.Processed++
		stats.Sent++
	case metrics.OutcomeNoData:
		stats.Processed++
		stats.NoData++
	case metrics.OutcomeSkipped:
		stats.Processed++
		stats.Skipped++
	default:
		stats.Failed++
	}
	return stats, err
}

func (r *Runner) announceSingle(ctx context.Context, site types.Site) (string, error) {
	ctx = notify.ContextWithSite(ctx, site.Name)
	now := r.now()
	day, year := targetDay(now)

	data, err := r.collectWithRetry(ctx, site, day, year)
	if errors.Is(err, errNoTabs) {
		logger.Warn(ctx, "Sheet has no tabs", "site", site.Name)
		return metrics.OutcomeSkipped, nil
	}
	if err != nil {
		return metrics.OutcomeFailed, err
	}
	if !data.Agg.Matched {
		logger.Warn(ctx, "No record for target day", "site", site.Name, "day", day.String(), "tabs", data.Tabs)
		return metrics.OutcomeNoData, nil
	}

	msgs := notify.Render(site.Name, data.Agg)
	if data.Agg.Contributing > 1 {
		// Render already carries the summary block
		msgs = append(msgs, notify.Separator)
	} else {
		summary, err := renderSafely(func() []string { return notify.RenderBatchSummary(data.Agg) })
		if err != nil {
			summary = []string{notify.RenderError("resumo", err), notify.Separator}
		}
		msgs = append(msgs, summary...)
	}

	return r.announceOnce(ctx, r.deps.Notifiers(site.NotifyLocator), ledger.Identity(site.Name, day.String()), msgs, ledger.Record{
		Title:     site.Name,
		Date:      day.String(),
		Aggregate: &data.Agg,
	}, now)
}

// resolve loads a site and checks it can be processed.
func (r *Runner) resolve(ctx context.Context, name string) (types.Site, error) {
	site, err := r.deps.Registry.GetSiteConfig(ctx, name)
	if err != nil {
		return types.Site{}, fmt.Errorf("load site %q: %w", name, err)
	}
	if site.NotifyLocator == "" {
		return types.Site{}, fmt.Errorf("site %q has no notification webhook", name)
	}
	if site.SourceLocator == "" {
		return types.Site{}, fmt.Errorf("site %q has no sheet", name)
	}
	return site, nil
}

// Monitor repeats RunSite every interval until ctx is cancelled. Failed
// passes are logged and retried on the next tick. On cancellation the site's
// channel is told that monitoring stopped.
func (r *Runner) Monitor(ctx context.Context, name string, interval time.Duration) error {
	if interval <= 0 {
		interval = r.cfg.MonitorInterval()
	}
	logger.Info(ctx, "Monitoring site", "site", name, "interval", interval.String())

	for {
		if ctx.Err() != nil {
			break
		}
		if _, err := r.RunSite(ctx, name); err != nil && ctx.Err() == nil {
			logger.ErrorWithErr(ctx, "Monitor pass failed", err, "site", name)
		}
		if err := r.deps.Sleep(ctx, interval); err != nil {
			break
		}
	}

	logger.Info(ctx, "Monitoring stopped", "site", name)
	// ctx is already cancelled; the notice gets its own deadline
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if site, err := r.deps.Registry.GetSiteConfig(stopCtx, name); err == nil && site.NotifyLocator != "" {
		r.send(stopCtx, r.deps.Notifiers(site.NotifyLocator), MonitorStoppedText)
	}
	return nil
}
