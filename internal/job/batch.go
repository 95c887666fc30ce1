package job

import (
	"context"
	"errors"
	"fmt"
	"time"

	"roas-notifier/internal/aggregate"
	"roas-notifier/internal/interfaces"
	"roas-notifier/internal/ledger"
	"roas-notifier/internal/logger"
	"roas-notifier/internal/metrics"
	"roas-notifier/internal/notify"
	"roas-notifier/internal/types"
)

// destination is one chat channel and the sites reporting to it.
type destination struct {
	locator string
	sites   []types.Site
}

// RunAll announces yesterday's figures for every registered site.
//
// Sites are grouped by notification locator in first-seen order. Within a
// group a separator goes between consecutive announced sites and the group
// closes with a channel summary when anything was posted to it.
func (r *Runner) RunAll(ctx context.Context) (stats Stats, err error) {
	ctx, finish := r.beginRun(ctx, "all")
	defer func() { finish(&stats, err) }()

	names, err := r.deps.Registry.ListSiteNames(ctx)
	if err != nil {
		return stats, fmt.Errorf("list sites: %w", err)
	}
	stats.TotalSites = len(names)

	groups := r.groupByDestination(ctx, names, &stats)
	now := r.now()
	day, year := targetDay(now)
	logger.Info(ctx, "Processing all sites", "sites", len(names), "channels", len(groups), "day", day.String())

	remaining := 0
	for _, g := range groups {
		remaining += len(g.sites)
	}

	for _, g := range groups {
		n := r.deps.Notifiers(g.locator)
		var announced []types.AggregateResult
		posted := false

		for i, site := range g.sites {
			if err := ctx.Err(); err != nil {
				return stats, err
			}

			agg, outcome := r.announceSite(ctx, n, site, day, year, now)
			r.deps.Metrics.SiteOutcome(outcome)
			sitePosted := false
			switch outcome {
			case metrics.OutcomeSent:
				stats.Processed++
				stats.Sent++
				announced = append(announced, agg)
				sitePosted = true
			case metrics.OutcomeNoData:
				stats.Processed++
				stats.NoData++
				sitePosted = true
			case metrics.OutcomeSkipped:
				stats.Processed++
				stats.Skipped++
			default:
				stats.Failed++
			}
			posted = posted || sitePosted

			if sitePosted && i < len(g.sites)-1 {
				r.send(ctx, n, notify.Separator)
			}

			remaining--
			if remaining > 0 {
				if err := r.jitter(ctx); err != nil {
					return stats, err
				}
			}
		}

		if posted {
			r.sendSummary(ctx, n, aggregate.Combine(announced...))
		}
	}
	return stats, nil
}

// groupByDestination resolves every site and drops those that cannot be
// processed.
func (r *Runner) groupByDestination(ctx context.Context, names []string, stats *Stats) []destination {
	var groups []destination
	index := make(map[string]int)

	for _, name := range names {
		site, err := r.deps.Registry.GetSiteConfig(ctx, name)
		if err != nil {
			logger.ErrorWithErr(ctx, "Failed to load site configuration", err, "site", name)
			stats.Failed++
			r.deps.Metrics.SiteOutcome(metrics.OutcomeFailed)
			continue
		}
		if site.NotifyLocator == "" {
			logger.Warn(ctx, "Site has no notification webhook, skipping", "site", name)
			stats.Skipped++
			r.deps.Metrics.SiteOutcome(metrics.OutcomeSkipped)
			continue
		}
		if site.SourceLocator == "" {
			logger.Warn(ctx, "Site has no sheet, skipping", "site", name)
			stats.Skipped++
			r.deps.Metrics.SiteOutcome(metrics.OutcomeSkipped)
			continue
		}

		i, ok := index[site.NotifyLocator]
		if !ok {
			i = len(groups)
			index[site.NotifyLocator] = i
			groups = append(groups, destination{locator: site.NotifyLocator})
		}
		groups[i].sites = append(groups[i].sites, site)
	}
	return groups
}

// announceSite processes one site of the batch and reports its outcome.
// A site with no row for day gets a no-data notice; a site already in the
// ledger for day is skipped silently.
func (r *Runner) announceSite(ctx context.Context, n interfaces.Notifier, site types.Site, day types.DayMonth, year int, now time.Time) (types.AggregateResult, string) {
	timer := logger.StartOperation(ctx, "job.site", "site", site.Name, "day", day.String())
	ctx = notify.ContextWithSite(timer.GetContext(), site.Name)

	data, err := r.collectWithRetry(ctx, site, day, year)
	if errors.Is(err, errNoTabs) {
		logger.Warn(ctx, "Sheet has no tabs", "site", site.Name)
		timer.End("outcome", metrics.OutcomeSkipped)
		return types.AggregateResult{}, metrics.OutcomeSkipped
	}
	if err != nil {
		timer.EndWithError(err, "site", site.Name)
		return types.AggregateResult{}, metrics.OutcomeFailed
	}

	if !data.Agg.Reportable() {
		r.send(ctx, n, notify.RenderNoData(site.Name, day.String()))
		timer.End("outcome", metrics.OutcomeNoData, "tabs", len(data.Tabs))
		return data.Agg, metrics.OutcomeNoData
	}

	outcome, err := r.announceOnce(ctx, n, ledger.Identity(site.Name, day.String()), notify.Render(site.Name, data.Agg), ledger.Record{
		Title:     site.Name,
		Date:      day.String(),
		Aggregate: &data.Agg,
	}, now)
	if err != nil {
		timer.EndWithError(err, "site", site.Name)
		return data.Agg, metrics.OutcomeFailed
	}
	timer.End("outcome", outcome, "rows", data.Agg.Contributing, "tabs", len(data.Tabs))
	return data.Agg, outcome
}

// announceOnce posts msgs unless identity is already in the ledger, and
// marks it only when every message was accepted.
func (r *Runner) announceOnce(ctx context.Context, n interfaces.Notifier, identity string, msgs []string, rec ledger.Record, now time.Time) (string, error) {
	done, err := r.deps.Ledger.IsProcessed(ctx, identity)
	if err != nil {
		return metrics.OutcomeFailed, fmt.Errorf("ledger lookup %s: %w", identity, err)
	}
	if done {
		logger.Info(ctx, "Already announced, skipping", "identity", identity)
		return metrics.OutcomeSkipped, nil
	}

	if !r.sendAll(ctx, n, msgs) {
		return metrics.OutcomeFailed, fmt.Errorf("delivery of %s was not accepted", identity)
	}

	rec.ID = identity
	rec.ProcessedAtISO = now.Format(time.RFC3339)
	if err := r.deps.Ledger.MarkProcessed(ctx, identity, rec); err != nil {
		return metrics.OutcomeFailed, fmt.Errorf("ledger mark %s: %w", identity, err)
	}
	return metrics.OutcomeSent, nil
}

// sendSummary closes a channel with its totals. A rendering failure is
// reported to the channel instead.
func (r *Runner) sendSummary(ctx context.Context, n interfaces.Notifier, total types.AggregateResult) {
	msgs, err := renderSafely(func() []string { return notify.RenderBatchSummary(total) })
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to render channel summary", err)
		r.send(ctx, n, notify.RenderError("resumo do canal", err))
		return
	}
	r.sendAll(ctx, n, msgs)
}
