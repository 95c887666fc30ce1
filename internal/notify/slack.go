package notify

import (
	"context"
	"net/http"
	"strings"

	"roas-notifier/internal/api"
	"roas-notifier/internal/deliverylog"
	"roas-notifier/internal/interfaces"
	"roas-notifier/internal/ledger"
	"roas-notifier/internal/logger"
)

// Auditor receives every delivery attempt. *deliverylog.Log satisfies it.
type Auditor interface {
	Append(e deliverylog.Entry) error
}

// SlackNotifier posts {"text": ...} to an incoming-webhook URL. Only a 200
// response counts as delivered; response bodies are not inspected further.
type SlackNotifier struct {
	client  *api.Client
	webhook string
	site    string
	audit   Auditor
}

// SlackOption configures a SlackNotifier
type SlackOption func(*SlackNotifier)

// WithAudit records every send attempt, delivered or not, in a.
func WithAudit(a Auditor) SlackOption {
	return func(n *SlackNotifier) { n.audit = a }
}

// WithSite tags audit entries and logs with the site being announced
func WithSite(site string) SlackOption {
	return func(n *SlackNotifier) { n.site = site }
}

func NewSlackNotifier(client *api.Client, webhook string, opts ...SlackOption) *SlackNotifier {
	n := &SlackNotifier{client: client, webhook: webhook}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

var _ interfaces.Notifier = (*SlackNotifier)(nil)

type siteKey struct{}

// ContextWithSite names the site being announced, for notifiers built by a
// factory that does not know it.
func ContextWithSite(ctx context.Context, site string) context.Context {
	return context.WithValue(ctx, siteKey{}, site)
}

func siteOf(ctx context.Context, fallback string) string {
	if fallback != "" {
		return fallback
	}
	s, _ := ctx.Value(siteKey{}).(string)
	return s
}

func (n *SlackNotifier) Send(ctx context.Context, text string) bool {
	site := siteOf(ctx, n.site)
	ok := false
	resp, err := n.client.POST(ctx, n.webhook, map[string]string{"text": text})
	if err == nil {
		ok = resp.StatusCode == http.StatusOK
	}

	dest := deliverylog.Host(n.webhook)
	if err != nil {
		logger.ErrorWithErr(ctx, "Slack webhook call failed", err, "site", site, "destination", dest)
	}
	logger.Delivery(ctx, site, dest, ok, "chars", len(text))

	if n.audit != nil {
		if aerr := n.audit.Append(deliverylog.Entry{
			RunID:       ledger.RunIDFrom(ctx),
			Site:        site,
			Destination: n.webhook,
			OK:          ok,
			Text:        text,
		}); aerr != nil {
			logger.Warn(ctx, "Failed to append delivery audit", "error", aerr)
		}
	}
	return ok
}

// DryRunNotifier logs messages instead of posting them.
type DryRunNotifier struct {
	Site        string
	Destination string
}

func (d DryRunNotifier) Send(ctx context.Context, text string) bool {
	logger.Info(ctx, "Dry run notification",
		"site", siteOf(ctx, d.Site),
		"destination", deliverylog.Host(d.Destination),
		"text", text)
	return true
}

// FactoryConfig selects how NewFactory builds notifiers.
type FactoryConfig struct {
	DryRun bool
	Audit  Auditor
}

// NewFactory returns a NotifierFactory bound to client. Locators that are
// not http(s) URLs fall back to dry-run notifiers.
func NewFactory(client *api.Client, cfg FactoryConfig) interfaces.NotifierFactory {
	return func(locator string) interfaces.Notifier {
		if cfg.DryRun || !isHTTPURL(locator) {
			return DryRunNotifier{Destination: locator}
		}
		return NewSlackNotifier(client, locator,
			WithAudit(cfg.Audit),
		)
	}
}

func isHTTPURL(s string) bool {
	return strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "http://")
}
