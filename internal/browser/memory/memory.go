// Package memory is an in-process browser with scripted pages.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"pkt.systems/judgerelay/adapter"
	"pkt.systems/judgerelay/internal/browser"
	"pkt.systems/judgerelay/internal/eventbus"
	"pkt.systems/judgerelay/schema"
	"pkt.systems/pslog"
)

// Site scripts how pages respond to adapters. Nil hooks behave like an empty document.
type Site struct {
	// Exists answers selector queries for the document at url.
	Exists func(url, selector string) bool
	// Evaluate answers script evaluation for the document at url.
	Evaluate func(url, expression string) (any, error)
	// Click handles a click and returns the URL to navigate to, or "".
	Click func(tabID schema.TabID, url, selector string) string
}

// Options configures a Browser.
type Options struct {
	Site Site
	// LoadDelay is the time between the loading and complete events of a navigation.
	LoadDelay time.Duration
	// OpenTabErr makes OpenTab fail.
	OpenTabErr error
	Logger     pslog.Logger
}

type tab struct {
	id     schema.TabID
	url    string
	status browser.TabStatus
	nav    uint64
	order  int
}

// Browser implements browser.Browser in memory.
type Browser struct {
	mu     sync.Mutex
	tabs   map[schema.TabID]*tab
	active schema.TabID
	next   int
	opts   Options
	bus    *eventbus.Bus
	log    pslog.Logger
}

var _ browser.Browser = (*Browser)(nil)

// New constructs an empty in-memory browser.
func New(opts Options) *Browser {
	logger := opts.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Browser{
		tabs: make(map[schema.TabID]*tab),
		opts: opts,
		bus:  eventbus.New(logger),
		log:  logger,
	}
}

// SetOpenTabErr changes the OpenTab failure injected by tests.
func (b *Browser) SetOpenTabErr(err error) {
	b.mu.Lock()
	b.opts.OpenTabErr = err
	b.mu.Unlock()
}

// AddTab inserts an already loaded tab, optionally focusing it.
func (b *Browser) AddTab(url string, active bool) browser.TabInfo {
	b.mu.Lock()
	t := b.newTabLocked(url, browser.StatusComplete)
	if active {
		b.active = t.id
	}
	info := t.info()
	b.mu.Unlock()
	b.bus.Publish(schema.TabEvent{TabID: info.ID, Type: schema.TabEventComplete, URL: info.URL})
	return info
}

// Subscribe implements browser.Events.
func (b *Browser) Subscribe(tabID schema.TabID) (<-chan schema.TabEvent, func()) {
	return b.bus.Subscribe(tabID)
}

// SubscribeAll implements browser.Events.
func (b *Browser) SubscribeAll() (<-chan schema.TabEvent, func()) {
	return b.bus.SubscribeAll()
}

// ActiveTab implements browser.Browser.
func (b *Browser) ActiveTab(context.Context) (browser.TabInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t := b.tabs[b.active]
	if t == nil {
		return browser.TabInfo{}, schema.ErrNoActiveTab
	}
	return t.info(), nil
}

// OpenTab implements browser.Browser.
func (b *Browser) OpenTab(ctx context.Context, req browser.OpenTabRequest) (browser.TabInfo, error) {
	if err := ctx.Err(); err != nil {
		return browser.TabInfo{}, err
	}
	b.mu.Lock()
	if b.opts.OpenTabErr != nil {
		err := b.opts.OpenTabErr
		b.mu.Unlock()
		return browser.TabInfo{}, fmt.Errorf("%w: %w", schema.ErrTabCreateFailed, err)
	}
	t := b.newTabLocked(req.URL, browser.StatusLoading)
	if req.Active {
		b.active = t.id
	}
	info := t.info()
	nav := t.nav
	b.mu.Unlock()
	b.log.With("tab", info.ID).Debug("memory tab open", "url", info.URL)
	b.bus.Publish(schema.TabEvent{TabID: info.ID, Type: schema.TabEventLoading, URL: info.URL})
	b.completeLater(info.ID, nav)
	return info, nil
}

// Navigate points a tab at a new URL, emitting loading now and complete after LoadDelay.
func (b *Browser) Navigate(tabID schema.TabID, url string) error {
	b.mu.Lock()
	t := b.tabs[tabID]
	if t == nil {
		b.mu.Unlock()
		return schema.ErrTabNotFound
	}
	t.url = url
	t.status = browser.StatusLoading
	t.nav++
	nav := t.nav
	b.mu.Unlock()
	b.bus.Publish(schema.TabEvent{TabID: tabID, Type: schema.TabEventLoading, URL: url})
	b.completeLater(tabID, nav)
	return nil
}

func (b *Browser) completeLater(tabID schema.TabID, nav uint64) {
	go func() {
		if b.opts.LoadDelay > 0 {
			time.Sleep(b.opts.LoadDelay)
		}
		b.mu.Lock()
		t := b.tabs[tabID]
		if t == nil || t.nav != nav {
			b.mu.Unlock()
			return
		}
		t.status = browser.StatusComplete
		url := t.url
		b.mu.Unlock()
		b.bus.Publish(schema.TabEvent{TabID: tabID, Type: schema.TabEventComplete, URL: url})
	}()
}

// ActivateTab implements browser.Browser.
func (b *Browser) ActivateTab(_ context.Context, tabID schema.TabID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.tabs[tabID] == nil {
		return schema.ErrTabNotFound
	}
	b.active = tabID
	return nil
}

// CloseTab implements browser.Browser. The tab is gone before the closed event is published.
func (b *Browser) CloseTab(_ context.Context, tabID schema.TabID) error {
	b.mu.Lock()
	if b.tabs[tabID] == nil {
		b.mu.Unlock()
		return schema.ErrTabNotFound
	}
	delete(b.tabs, tabID)
	if b.active == tabID {
		b.active = ""
	}
	b.mu.Unlock()
	b.log.With("tab", tabID).Debug("memory tab closed")
	b.bus.Publish(schema.TabEvent{TabID: tabID, Type: schema.TabEventClosed})
	return nil
}

// Tab implements browser.Browser.
func (b *Browser) Tab(_ context.Context, tabID schema.TabID) (browser.TabInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t := b.tabs[tabID]
	if t == nil {
		return browser.TabInfo{}, schema.ErrTabNotFound
	}
	return t.info(), nil
}

// Tabs implements browser.Browser.
func (b *Browser) Tabs(context.Context) ([]browser.TabInfo, error) {
	b.mu.Lock()
	list := make([]*tab, 0, len(b.tabs))
	for _, t := range b.tabs {
		list = append(list, t)
	}
	b.mu.Unlock()
	sort.Slice(list, func(i, j int) bool { return list[i].order < list[j].order })
	out := make([]browser.TabInfo, 0, len(list))
	for _, t := range list {
		out = append(out, t.info())
	}
	return out, nil
}

// Page implements browser.Browser.
func (b *Browser) Page(tabID schema.TabID) (adapter.Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.tabs[tabID] == nil {
		return nil, schema.ErrTabNotFound
	}
	return &page{browser: b, tabID: tabID}, nil
}

func (b *Browser) newTabLocked(url string, status browser.TabStatus) *tab {
	b.next++
	t := &tab{
		id:     schema.TabID(strconv.Itoa(b.next)),
		url:    url,
		status: status,
		order:  b.next,
	}
	b.tabs[t.id] = t
	return t
}

func (b *Browser) currentURL(tabID schema.TabID) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t := b.tabs[tabID]
	if t == nil {
		return "", schema.ErrTabNotFound
	}
	return t.url, nil
}

func (t *tab) info() browser.TabInfo {
	return browser.TabInfo{ID: t.id, URL: t.url, Status: t.status}
}
