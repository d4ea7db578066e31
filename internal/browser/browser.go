// Package browser abstracts the tab-level browser capabilities the relay needs.
package browser

import (
	"context"
	"errors"

	"pkt.systems/judgerelay/adapter"
	"pkt.systems/judgerelay/schema"
)

// TabStatus is the load state of a tab.
type TabStatus string

const (
	// StatusLoading means a navigation is in flight.
	StatusLoading TabStatus = "loading"
	// StatusComplete means the current document finished loading.
	StatusComplete TabStatus = "complete"
)

// TabInfo describes an open tab.
type TabInfo struct {
	ID     schema.TabID
	URL    string
	Status TabStatus
}

// OpenTabRequest describes a tab to create.
type OpenTabRequest struct {
	URL    string
	Active bool
}

// Events delivers tab lifecycle events. Cancel funcs are idempotent.
type Events interface {
	Subscribe(tabID schema.TabID) (<-chan schema.TabEvent, func())
	SubscribeAll() (<-chan schema.TabEvent, func())
}

// Browser is a controllable browser instance.
type Browser interface {
	Events
	// ActiveTab returns the focused tab, or schema.ErrNoActiveTab.
	ActiveTab(ctx context.Context) (TabInfo, error)
	// OpenTab creates a tab and starts loading the URL.
	OpenTab(ctx context.Context, req OpenTabRequest) (TabInfo, error)
	// ActivateTab focuses a tab.
	ActivateTab(ctx context.Context, tabID schema.TabID) error
	// CloseTab closes a tab. Closing an unknown tab returns schema.ErrTabNotFound.
	CloseTab(ctx context.Context, tabID schema.TabID) error
	// Tab returns the current state of a tab, or schema.ErrTabNotFound.
	Tab(ctx context.Context, tabID schema.TabID) (TabInfo, error)
	// Tabs lists every open tab.
	Tabs(ctx context.Context) ([]TabInfo, error)
	// Page returns a scripting handle for the tab's current document.
	Page(tabID schema.TabID) (adapter.Page, error)
}

// Exists reports whether the tab is still open. Lookup failures other than
// schema.ErrTabNotFound count as open.
func Exists(ctx context.Context, b Browser, tabID schema.TabID) bool {
	_, err := b.Tab(ctx, tabID)
	return !errors.Is(err, schema.ErrTabNotFound)
}
