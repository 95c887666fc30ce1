package job

import (
	"context"
	"errors"
	"fmt"
	"time"

	"roas-notifier/internal/aggregate"
	"roas-notifier/internal/logger"
	"roas-notifier/internal/matcher"
	"roas-notifier/internal/period"
	"roas-notifier/internal/retry"
	"roas-notifier/internal/types"
)

var errNoTabs = errors.New("document has no tabs")

// siteData is what one site's sheet says about the target day.
type siteData struct {
	Agg      types.AggregateResult
	Tabs     []string // names of the tabs read
	FellBack bool     // no tab named the period, the first tab was used
}

// collect reads the current-period tabs of site and aggregates the rows
// matching day. Tab listing and tab reads are retried on rate limits; a tab
// that still cannot be read is skipped.
func (r *Runner) collect(ctx context.Context, site types.Site, day types.DayMonth, year int) (siteData, error) {
	var tabs []types.TabRef
	err := retry.Do(ctx, r.policy("tabs", r.cfg.Retry.TabAttempts, r.cfg.Retry.TabMaxBackoffSeconds), func(ctx context.Context) error {
		var err error
		tabs, err = r.deps.Source.ListTabs(ctx, site.SourceLocator)
		return err
	})
	if err != nil {
		return siteData{}, fmt.Errorf("list tabs of %s: %w", site.Name, err)
	}
	if len(tabs) == 0 {
		return siteData{}, errNoTabs
	}

	selected, fellBack := r.selector.SelectWithFallback(tabs, day.Month, year)
	if fellBack {
		logger.Warn(ctx, "No tab for the current period, using the first tab",
			"site", site.Name, "tab", selected[0].Name, "month", int(day.Month), "year", year)
	}

	data := siteData{FellBack: fellBack}
	var matches []types.MatchedRow
	for _, ref := range selected {
		if err := ctx.Err(); err != nil {
			return siteData{}, err
		}

		var tab types.Tab
		err := retry.Do(ctx, r.policy("read", r.cfg.Retry.ReadAttempts, r.cfg.Retry.ReadMaxBackoffSeconds), func(ctx context.Context) error {
			var err error
			tab, err = r.deps.Source.ReadTab(ctx, site.SourceLocator, ref.ID)
			return err
		})
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return siteData{}, ctxErr
			}
			logger.ErrorWithErr(ctx, "Failed to read tab, skipping it", err, "site", site.Name, "tab", ref.Name)
			continue
		}

		name := tab.Name
		if name == "" {
			name = ref.Name
		}
		data.Tabs = append(data.Tabs, name)

		row, ok := matcher.FindRow(tab.Rows, day)
		if !ok {
			logger.Debug(ctx, "No row for target day", "site", site.Name, "tab", name, "day", day.String(), "rows", len(tab.Rows))
			continue
		}
		matches = append(matches, types.MatchedRow{Tab: name, Row: row})
	}

	data.Agg = aggregate.Aggregate(matches)
	return data, nil
}

// collectWithRetry retries the whole collection when it keeps hitting rate
// limits. Nothing is sent inside the retried section.
func (r *Runner) collectWithRetry(ctx context.Context, site types.Site, day types.DayMonth, year int) (siteData, error) {
	var data siteData
	err := retry.Do(ctx, r.policy("site", r.cfg.Retry.SiteAttempts, r.cfg.Retry.SiteMaxBackoffSeconds), func(ctx context.Context) error {
		var err error
		data, err = r.collect(ctx, site, day, year)
		return err
	})
	return data, err
}

// targetDay is the reporting day of a run started at now: yesterday, with
// the year it belongs to.
func targetDay(now time.Time) (types.DayMonth, int) {
	return period.Yesterday(now), now.AddDate(0, 0, -1).Year()
}
