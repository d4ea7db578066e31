package agent

import (
	"context"
	"sync"

	"pkt.systems/judgerelay/adapter"
	"pkt.systems/judgerelay/internal/browser"
	"pkt.systems/judgerelay/internal/logx"
	"pkt.systems/judgerelay/internal/transport"
	"pkt.systems/judgerelay/schema"
	"pkt.systems/pslog"
)

// Host attaches an agent to every judge page that finishes loading and
// retires it as soon as the page navigates away or closes.
type Host struct {
	browser  browser.Browser
	hub      *transport.Hub
	adapters *adapter.Registry

	mu     sync.Mutex
	agents map[schema.TabID]context.CancelFunc
	wg     sync.WaitGroup
}

// NewHost constructs a Host.
func NewHost(b browser.Browser, hub *transport.Hub, adapters *adapter.Registry) *Host {
	return &Host{
		browser:  b,
		hub:      hub,
		adapters: adapters,
		agents:   make(map[schema.TabID]context.CancelFunc),
	}
}

// Run processes tab events until ctx is canceled.
func (h *Host) Run(ctx context.Context) error {
	log := pslog.Ctx(ctx)
	events, cancel := h.browser.SubscribeAll()
	defer cancel()
	defer h.stopAll()

	tabs, err := h.browser.Tabs(ctx)
	if err != nil {
		log.Warn("agent host tab scan failed", "err", err)
	}
	for _, tab := range tabs {
		if tab.Status == browser.StatusComplete {
			h.attach(ctx, tab.ID, tab.URL)
		}
	}
	log.Debug("agent host started", "tabs", len(tabs))

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-events:
			if !ok {
				return nil
			}
			h.handle(ctx, event)
		}
	}
}

func (h *Host) handle(ctx context.Context, event schema.TabEvent) {
	switch event.Type {
	case schema.TabEventComplete:
		h.attach(ctx, event.TabID, event.URL)
	case schema.TabEventLoading, schema.TabEventClosed:
		h.detach(event.TabID)
	}
}

func (h *Host) attach(ctx context.Context, tabID schema.TabID, url string) {
	log := logx.WithTab(ctx, tabID)
	if _, ok := h.adapters.Match(url); !ok {
		h.detach(tabID)
		return
	}
	page, err := h.browser.Page(tabID)
	if err != nil {
		log.Debug("agent host page unavailable", "err", err)
		h.detach(tabID)
		return
	}
	agentCtx, cancel := context.WithCancel(logx.ContextWithTabLogger(ctx, log, tabID))
	h.mu.Lock()
	if prev := h.agents[tabID]; prev != nil {
		prev()
	}
	h.agents[tabID] = cancel
	h.mu.Unlock()

	box := h.hub.Open(tabID)
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer h.hub.Release(box)
		New(page, h.adapters).Serve(agentCtx, box)
	}()
	log.Debug("agent attached", "url", url)
}

func (h *Host) detach(tabID schema.TabID) {
	h.hub.Close(tabID)
	h.mu.Lock()
	cancel := h.agents[tabID]
	delete(h.agents, tabID)
	h.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (h *Host) stopAll() {
	h.mu.Lock()
	agents := h.agents
	h.agents = make(map[schema.TabID]context.CancelFunc)
	h.mu.Unlock()
	for tabID, cancel := range agents {
		h.hub.Close(tabID)
		cancel()
	}
	h.wg.Wait()
}
