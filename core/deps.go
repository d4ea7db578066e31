package core

import (
	"context"

	"pkt.systems/judgerelay/adapter"
	"pkt.systems/judgerelay/internal/browser"
	"pkt.systems/judgerelay/internal/transport"
	"pkt.systems/judgerelay/schema"
	"pkt.systems/pslog"
)

// Channel reaches the page agents of tabs.
type Channel interface {
	transport.Sender
	// WaitReady blocks until an agent listens on the tab.
	WaitReady(ctx context.Context, tabID schema.TabID) error
}

// CoordinatorDeps captures the collaborators of the coordinator.
type CoordinatorDeps struct {
	Browser  browser.Browser
	Channel  Channel
	Adapters *adapter.Registry
	Sink     EventSink
	Logger   pslog.Logger
}
