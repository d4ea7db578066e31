// Package cdp drives Chrome or Chromium over the DevTools protocol.
package cdp

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"

	"pkt.systems/judgerelay/adapter"
	"pkt.systems/judgerelay/internal/browser"
	"pkt.systems/judgerelay/internal/eventbus"
	"pkt.systems/judgerelay/schema"
	"pkt.systems/pslog"
)

const (
	// ModeExec launches a local browser process.
	ModeExec = "exec"
	// ModeRemote attaches to a running browser's DevTools endpoint.
	ModeRemote = "remote"
)

// Options configures the browser connection.
type Options struct {
	Mode        string
	ExecPath    string
	RemoteURL   string
	Headless    bool
	UserDataDir string
	// NoSandbox disables the Chrome sandbox, needed in most containers.
	NoSandbox bool
}

type tab struct {
	id     schema.TabID
	url    string
	status browser.TabStatus
	ctx    context.Context
	cancel context.CancelFunc
	order  int
}

// Browser implements browser.Browser on top of chromedp.
type Browser struct {
	mu      sync.Mutex
	tabs    map[schema.TabID]*tab
	active  schema.TabID
	next    int
	bus     *eventbus.Bus
	log     pslog.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	mode    string
	closing bool
}

var _ browser.Browser = (*Browser)(nil)

// New starts or connects to a browser and attaches to its page targets.
func New(ctx context.Context, opts Options) (*Browser, error) {
	logger := pslog.Ctx(ctx)
	mode := strings.ToLower(strings.TrimSpace(opts.Mode))
	if mode == "" {
		mode = ModeExec
	}

	var (
		allocCtx    context.Context
		allocCancel context.CancelFunc
	)
	switch mode {
	case ModeExec:
		execOpts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", opts.Headless),
			chromedp.Flag("disable-gpu", opts.Headless),
		)
		if opts.NoSandbox {
			execOpts = append(execOpts, chromedp.Flag("no-sandbox", true))
		}
		if path := strings.TrimSpace(opts.ExecPath); path != "" {
			execOpts = append(execOpts, chromedp.ExecPath(path))
		}
		if dir := strings.TrimSpace(opts.UserDataDir); dir != "" {
			execOpts = append(execOpts, chromedp.UserDataDir(dir))
		}
		allocCtx, allocCancel = chromedp.NewExecAllocator(context.WithoutCancel(ctx), execOpts...)
	case ModeRemote:
		remote := strings.TrimSpace(opts.RemoteURL)
		if remote == "" {
			return nil, errors.New("browser.remote_url is required in remote mode")
		}
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(context.WithoutCancel(ctx), remote)
	default:
		return nil, fmt.Errorf("unknown browser mode %q", opts.Mode)
	}

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	b := &Browser{
		tabs: make(map[schema.TabID]*tab),
		bus:  eventbus.New(logger),
		log:  logger,
		ctx:  browserCtx,
		mode: mode,
		cancel: func() {
			browserCancel()
			allocCancel()
		},
	}
	if err := chromedp.Run(browserCtx); err != nil {
		b.cancel()
		return nil, fmt.Errorf("start browser: %w", err)
	}
	chromedp.ListenBrowser(browserCtx, b.onBrowserEvent)
	c := chromedp.FromContext(browserCtx)
	if err := target.SetDiscoverTargets(true).Do(cdp.WithExecutor(browserCtx, c.Browser)); err != nil {
		b.cancel()
		return nil, fmt.Errorf("discover targets: %w", err)
	}

	infos, err := chromedp.Targets(browserCtx)
	if err != nil {
		b.cancel()
		return nil, fmt.Errorf("list targets: %w", err)
	}
	for _, info := range infos {
		if info.Type != "page" {
			continue
		}
		if _, err := b.attach(ctx, info.TargetID, info.URL); err != nil {
			logger.Warn("cdp attach failed", "target", info.TargetID, "err", err)
		}
	}
	if c.Target != nil {
		b.mu.Lock()
		if _, ok := b.tabs[schema.TabID(c.Target.TargetID)]; ok {
			b.active = schema.TabID(c.Target.TargetID)
		}
		b.mu.Unlock()
	}
	logger.Info("cdp browser ready", "mode", mode, "tabs", len(infos))
	return b, nil
}

// Close detaches from every tab and stops the browser.
func (b *Browser) Close() error {
	b.mu.Lock()
	if b.closing {
		b.mu.Unlock()
		return nil
	}
	b.closing = true
	b.mu.Unlock()
	b.cancel()
	return nil
}

// Subscribe implements browser.Events.
func (b *Browser) Subscribe(tabID schema.TabID) (<-chan schema.TabEvent, func()) {
	return b.bus.Subscribe(tabID)
}

// SubscribeAll implements browser.Events.
func (b *Browser) SubscribeAll() (<-chan schema.TabEvent, func()) {
	return b.bus.SubscribeAll()
}

// ActiveTab implements browser.Browser. DevTools has no focus query, so the
// focused tab is the one last activated through this browser.
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
	c := chromedp.FromContext(b.ctx)
	if c == nil || c.Browser == nil {
		return browser.TabInfo{}, fmt.Errorf("%w: browser not started", schema.ErrTabCreateFailed)
	}
	id, err := target.CreateTarget(req.URL).WithBackground(!req.Active).Do(cdp.WithExecutor(b.ctx, c.Browser))
	if err != nil {
		return browser.TabInfo{}, fmt.Errorf("%w: %w", schema.ErrTabCreateFailed, err)
	}
	t, err := b.attach(ctx, id, req.URL)
	if err != nil {
		return browser.TabInfo{}, fmt.Errorf("%w: %w", schema.ErrTabCreateFailed, err)
	}
	if req.Active {
		b.mu.Lock()
		b.active = t.id
		b.mu.Unlock()
	}
	b.log.With("tab", t.id).Debug("cdp tab open", "url", req.URL, "active", req.Active)
	return b.Tab(ctx, t.id)
}

// ActivateTab implements browser.Browser.
func (b *Browser) ActivateTab(ctx context.Context, tabID schema.TabID) error {
	t, err := b.lookup(tabID)
	if err != nil {
		return err
	}
	c := chromedp.FromContext(b.ctx)
	if err := target.ActivateTarget(target.ID(t.id)).Do(cdp.WithExecutor(ctx, c.Browser)); err != nil {
		return fmt.Errorf("activate tab %s: %w", tabID, err)
	}
	b.mu.Lock()
	b.active = tabID
	b.mu.Unlock()
	return nil
}

// CloseTab implements browser.Browser. The tab is gone before the closed event is published.
func (b *Browser) CloseTab(ctx context.Context, tabID schema.TabID) error {
	t, err := b.lookup(tabID)
	if err != nil {
		return err
	}
	closeErr := chromedp.Run(t.ctx, page.Close())
	b.forget(tabID)
	if closeErr != nil && !errors.Is(closeErr, context.Canceled) {
		b.log.With("tab", tabID).Debug("cdp tab close", "err", closeErr)
	}
	return nil
}

// Tab implements browser.Browser.
func (b *Browser) Tab(_ context.Context, tabID schema.TabID) (browser.TabInfo, error) {
	t, err := b.lookup(tabID)
	if err != nil {
		return browser.TabInfo{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return t.info(), nil
}

// Tabs implements browser.Browser.
func (b *Browser) Tabs(context.Context) ([]browser.TabInfo, error) {
	b.mu.Lock()
	list := make([]*tab, 0, len(b.tabs))
	for _, t := range b.tabs {
		list = append(list, t)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].order < list[j].order })
	out := make([]browser.TabInfo, 0, len(list))
	for _, t := range list {
		out = append(out, t.info())
	}
	b.mu.Unlock()
	return out, nil
}

// Page implements browser.Browser.
func (b *Browser) Page(tabID schema.TabID) (adapter.Page, error) {
	t, err := b.lookup(tabID)
	if err != nil {
		return nil, err
	}
	return &cdpPage{ctx: t.ctx}, nil
}

func (b *Browser) lookup(tabID schema.TabID) (*tab, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t := b.tabs[tabID]
	if t == nil {
		return nil, schema.ErrTabNotFound
	}
	return t, nil
}

// attach binds a chromedp context to a page target. Attaching twice returns the existing tab.
func (b *Browser) attach(ctx context.Context, id target.ID, url string) (*tab, error) {
	tabID := schema.TabID(id)
	b.mu.Lock()
	if existing := b.tabs[tabID]; existing != nil {
		b.mu.Unlock()
		return existing, nil
	}
	tabCtx, cancel := chromedp.NewContext(b.ctx, chromedp.WithTargetID(id))
	b.next++
	t := &tab{id: tabID, url: url, status: browser.StatusLoading, ctx: tabCtx, cancel: cancel, order: b.next}
	b.tabs[tabID] = t
	b.mu.Unlock()

	chromedp.ListenTarget(tabCtx, func(ev any) { b.onTargetEvent(tabID, ev) })
	if err := chromedp.Run(tabCtx); err != nil {
		b.forget(tabID)
		return nil, err
	}
	b.syncReadyState(ctx, t)
	return t, nil
}

// syncReadyState covers documents that finished loading before the listener was attached.
func (b *Browser) syncReadyState(ctx context.Context, t *tab) {
	var state struct {
		ReadyState string `json:"readyState"`
		Href       string `json:"href"`
	}
	evalCtx, cancel := context.WithTimeout(t.ctx, defaultEvalTimeout)
	defer cancel()
	err := chromedp.Run(evalCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		return evaluateJSON(ctx, `({readyState: document.readyState, href: location.href})`, &state)
	}))
	if err != nil {
		pslog.Ctx(ctx).Debug("cdp ready state unavailable", "tab", t.id, "err", err)
		return
	}
	if state.ReadyState != "complete" {
		return
	}
	b.mu.Lock()
	if b.tabs[t.id] != t || t.status == browser.StatusComplete {
		b.mu.Unlock()
		return
	}
	t.status = browser.StatusComplete
	t.url = state.Href
	b.mu.Unlock()
	b.bus.Publish(schema.TabEvent{TabID: t.id, Type: schema.TabEventComplete, URL: state.Href})
}

// forget drops a tab and publishes its closed event once.
func (b *Browser) forget(tabID schema.TabID) {
	b.mu.Lock()
	t := b.tabs[tabID]
	if t == nil {
		b.mu.Unlock()
		return
	}
	delete(b.tabs, tabID)
	if b.active == tabID {
		b.active = ""
	}
	b.mu.Unlock()
	t.cancel()
	b.log.With("tab", tabID).Debug("cdp tab closed")
	b.bus.Publish(schema.TabEvent{TabID: tabID, Type: schema.TabEventClosed})
}

func (b *Browser) onBrowserEvent(ev any) {
	switch ev := ev.(type) {
	case *target.EventTargetDestroyed:
		go b.forget(schema.TabID(ev.TargetID))
	case *target.EventTargetCreated:
		info := ev.TargetInfo
		if info == nil || info.Type != "page" {
			return
		}
		b.mu.Lock()
		_, known := b.tabs[schema.TabID(info.TargetID)]
		closing := b.closing
		b.mu.Unlock()
		if known || closing {
			return
		}
		// Listeners must not block the event loop.
		go func() {
			if _, err := b.attach(b.ctx, info.TargetID, info.URL); err != nil {
				b.log.Debug("cdp attach failed", "target", info.TargetID, "err", err)
			}
		}()
	}
}

func (b *Browser) onTargetEvent(tabID schema.TabID, ev any) {
	switch ev := ev.(type) {
	case *page.EventFrameNavigated:
		if ev.Frame == nil || ev.Frame.ParentID != "" {
			return
		}
		b.mu.Lock()
		if t := b.tabs[tabID]; t != nil {
			t.url = ev.Frame.URL
		}
		b.mu.Unlock()
	case *page.EventFrameStartedLoading:
		if string(ev.FrameID) != string(tabID) {
			return
		}
		b.setStatus(tabID, browser.StatusLoading, schema.TabEventLoading)
	case *page.EventLoadEventFired:
		b.setStatus(tabID, browser.StatusComplete, schema.TabEventComplete)
	}
}

func (b *Browser) setStatus(tabID schema.TabID, status browser.TabStatus, eventType schema.TabEventType) {
	b.mu.Lock()
	t := b.tabs[tabID]
	if t == nil {
		b.mu.Unlock()
		return
	}
	t.status = status
	url := t.url
	b.mu.Unlock()
	b.bus.Publish(schema.TabEvent{TabID: tabID, Type: eventType, URL: url})
}

func (t *tab) info() browser.TabInfo {
	return browser.TabInfo{ID: t.id, URL: t.url, Status: t.status}
}
