package interfaces

import (
	"context"

	"roas-notifier/internal/types"
)

// TabularSource reads spreadsheet-like documents made of named tabs.
type TabularSource interface {
	// ListTabs returns the tabs of the document at locator, in document order.
	ListTabs(ctx context.Context, locator string) ([]types.TabRef, error)

	// ReadTab fetches the rows of one tab. The returned Tab carries the resolved
	// display name, which may differ from the listed one.
	ReadTab(ctx context.Context, locator string, tabID string) (types.Tab, error)
}

// SiteRegistry resolves tracked sites to their source and notification locators.
type SiteRegistry interface {
	// GetSiteConfig returns the registered configuration of one site
	GetSiteConfig(ctx context.Context, name string) (types.Site, error)

	// ListSiteNames returns every registered site name in registration order
	ListSiteNames(ctx context.Context) ([]string, error)

	Close() error
}

// Notifier posts a text message to one chat destination.
type Notifier interface {
	// Send delivers text and reports whether the destination accepted it
	Send(ctx context.Context, text string) bool
}

// NotifierFactory builds a Notifier bound to a notification locator.
type NotifierFactory func(locator string) Notifier

// Ledger records which results have been announced.
type Ledger interface {
	// IsProcessed reports whether identity was already marked
	IsProcessed(ctx context.Context, identity string) (bool, error)

	// MarkProcessed persists identity with its payload. Marking an identity
	// that already exists is a no-op.
	MarkProcessed(ctx context.Context, identity string, payload any) error

	Close() error
}
