package job

import (
	"context"
	"fmt"
	"sort"

	"roas-notifier/internal/aggregate"
	"roas-notifier/internal/ledger"
	"roas-notifier/internal/logger"
	"roas-notifier/internal/matcher"
	"roas-notifier/internal/metrics"
	"roas-notifier/internal/notify"
	"roas-notifier/internal/retry"
	"roas-notifier/internal/types"
)

// RunChannelBlocks announces the per-channel blocks (FB ADS, G ADS and so
// on) of every tab of a site, once per (tab, date). Dates go out sorted by
// their text. Each message is followed by a separator.
func (r *Runner) RunChannelBlocks(ctx context.Context, name string) (stats Stats, err error) {
	ctx, finish := r.beginRun(ctx, "blocks")
	defer func() { finish(&stats, err) }()

	stats.TotalSites = 1
	site, err := r.resolve(ctx, name)
	if err != nil {
		stats.Skipped++
		return stats, err
	}

	var tabs []types.TabRef
	err = retry.Do(ctx, r.policy("tabs", r.cfg.Retry.TabAttempts, r.cfg.Retry.TabMaxBackoffSeconds), func(ctx context.Context) error {
		var err error
		tabs, err = r.deps.Source.ListTabs(ctx, site.SourceLocator)
		return err
	})
	if err != nil {
		return stats, fmt.Errorf("list tabs of %s: %w", site.Name, err)
	}
	if len(tabs) == 0 {
		logger.Warn(ctx, "Sheet has no tabs", "site", site.Name)
		return stats, nil
	}

	ctx = notify.ContextWithSite(ctx, site.Name)
	n := r.deps.Notifiers(site.NotifyLocator)
	for _, ref := range tabs {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		var tab types.Tab
		err := retry.Do(ctx, r.policy("read", r.cfg.Retry.ReadAttempts, r.cfg.Retry.ReadMaxBackoffSeconds), func(ctx context.Context) error {
			var err error
			tab, err = r.deps.Source.ReadTab(ctx, site.SourceLocator, ref.ID)
			return err
		})
		if err != nil || len(tab.Rows) == 0 {
			if err != nil {
				logger.ErrorWithErr(ctx, "Failed to read tab", err, "site", site.Name, "tab", ref.Name)
			}
			stats.Failed++
			continue
		}
		page := tab.Name
		if page == "" {
			page = ref.Name
		}

		dates, groups := matcher.GroupByDate(tab.Rows)
		// announced in date-text order, not sheet order
		sort.Strings(dates)
		for _, date := range dates {
			var blocks []types.ChannelResult
			for _, row := range groups[date] {
				for _, b := range aggregate.ExtractChannels(row, r.cfg.Channels) {
					b.Tab = page
					blocks = append(blocks, b)
				}
			}
			if len(blocks) == 0 {
				continue
			}

			var msgs []string
			for _, m := range notify.RenderChannels(blocks) {
				msgs = append(msgs, m, notify.Separator)
			}

			outcome, err := r.announceOnce(ctx, n, ledger.Identity(page, date), msgs, ledger.Record{
				Title:  page,
				Date:   date,
				Blocks: blocks,
			}, r.now())
			if err != nil {
				logger.ErrorWithErr(ctx, "Failed to announce channel blocks", err, "tab", page, "date", date)
			}
			switch outcome {
			case metrics.OutcomeSent:
				stats.Processed++
				stats.Sent++
			case metrics.OutcomeSkipped:
				stats.Processed++
				stats.Skipped++
			default:
				stats.Failed++
			}
		}
	}
	return stats, nil
}
