package sourceobs

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"roas-notifier/internal/interfaces"
	"roas-notifier/internal/logger"
	"roas-notifier/internal/retry"
	"roas-notifier/internal/trace"
	"roas-notifier/internal/types"
)

// observableSource wraps a TabularSource with logging and tracing
type observableSource struct {
	source interfaces.TabularSource
	name   string
}

var _ interfaces.TabularSource = (*observableSource)(nil)

// Wrap adds observability to source. name labels spans and log records.
func Wrap(source interfaces.TabularSource, name string) interfaces.TabularSource {
	return &observableSource{source: source, name: name}
}

func (ob *observableSource) ListTabs(ctx context.Context, locator string) ([]types.TabRef, error) {
	ctx, span := trace.StartSpan(ctx, "source.ListTabs", attribute.String("source", ob.name))
	defer span.End()

	logger.DebugSkip(ctx, 1, "Listing tabs", "source", ob.name)

	tabs, err := ob.source.ListTabs(ctx, locator)
	if err != nil {
		if retry.IsRateLimit(err) {
			logger.WarnSkip(ctx, 1, "Tab listing rate limited", "source", ob.name, "error", err)
			return nil, err
		}
		trace.Fail(span, err)
		logger.ErrorWithErrSkip(ctx, 1, "Failed to list tabs", err, "source", ob.name)
		return nil, fmt.Errorf("%s: list tabs: %w", ob.name, err)
	}

	span.SetAttributes(attribute.Int("tabs", len(tabs)))
	logger.DebugSkip(ctx, 1, "Tabs listed", "source", ob.name, "count", len(tabs))
	return tabs, nil
}

func (ob *observableSource) ReadTab(ctx context.Context, locator, tabID string) (types.Tab, error) {
	timer := logger.StartOperation(ctx, "source.ReadTab", "source", ob.name, "tab_id", tabID)

	tab, err := ob.source.ReadTab(timer.GetContext(), locator, tabID)
	if err != nil {
		if retry.IsRateLimit(err) {
			logger.WarnSkip(timer.GetContext(), 1, "Tab read rate limited", "source", ob.name, "tab_id", tabID)
			timer.End("rate_limited", true)
			return types.Tab{}, err
		}
		timer.EndWithError(err)
		return types.Tab{}, fmt.Errorf("%s: read tab %s: %w", ob.name, tabID, err)
	}

	timer.End("tab", tab.Name, "rows", len(tab.Rows), "has_summary", tab.Summary != nil)
	return tab, nil
}
