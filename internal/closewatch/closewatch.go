// Package closewatch tracks tabs that must not disappear while a workflow runs.
package closewatch

import (
	"context"
	"sync"

	"pkt.systems/judgerelay/schema"
	"pkt.systems/pslog"
)

// Subscriber delivers lifecycle events for a single tab.
type Subscriber interface {
	Subscribe(tabID schema.TabID) (<-chan schema.TabEvent, func())
}

// ExistsFunc reports whether a tab is currently open.
type ExistsFunc func(tabID schema.TabID) bool

// Registry holds at most one watch per tab.
type Registry struct {
	mu      sync.Mutex
	watches map[schema.TabID]*Watch
	events  Subscriber
	exists  ExistsFunc
	log     pslog.Logger
}

// Watch fires once when its tab closes, then unregisters itself.
type Watch struct {
	tabID    schema.TabID
	registry *Registry
	done     chan struct{}
	cancel   func()

	fireOnce sync.Once
	stopOnce sync.Once
	mu       sync.Mutex
	err      error
}

// New constructs a Registry. exists may be nil.
func New(events Subscriber, exists ExistsFunc, logger pslog.Logger) *Registry {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Registry{
		watches: make(map[schema.TabID]*Watch),
		events:  events,
		exists:  exists,
		log:     logger,
	}
}

// Watch returns the watch for the tab, creating it when absent. created is
// false when an existing watch was returned.
func (r *Registry) Watch(tabID schema.TabID) (w *Watch, created bool) {
	r.mu.Lock()
	if existing, ok := r.watches[tabID]; ok {
		r.mu.Unlock()
		return existing, false
	}
	events, cancel := r.events.Subscribe(tabID)
	w = &Watch{
		tabID:    tabID,
		registry: r,
		done:     make(chan struct{}),
		cancel:   cancel,
	}
	r.watches[tabID] = w
	r.mu.Unlock()
	r.log.With("tab", tabID).Debug("close watch registered")

	go w.run(events)
	// The tab may have closed before the subscription existed.
	if r.exists != nil && !r.exists(tabID) {
		w.fire()
	}
	return w, true
}

// Lookup returns the active watch for a tab.
func (r *Registry) Lookup(tabID schema.TabID) (*Watch, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.watches[tabID]
	return w, ok
}

// Len returns the number of active watches.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.watches)
}

// Close stops every watch without firing it.
func (r *Registry) Close() {
	r.mu.Lock()
	watches := make([]*Watch, 0, len(r.watches))
	for _, w := range r.watches {
		watches = append(watches, w)
	}
	r.mu.Unlock()
	for _, w := range watches {
		w.Stop()
	}
}

func (r *Registry) remove(w *Watch) {
	r.mu.Lock()
	if r.watches[w.tabID] == w {
		delete(r.watches, w.tabID)
	}
	r.mu.Unlock()
}

// TabID returns the watched tab.
func (w *Watch) TabID() schema.TabID { return w.tabID }

// Done is closed when the tab closes.
func (w *Watch) Done() <-chan struct{} { return w.done }

// Err returns schema.ErrTabClosed once the watch fired, nil before.
func (w *Watch) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Stop unregisters the watch without firing it. Safe to call repeatedly.
func (w *Watch) Stop() {
	w.stopOnce.Do(func() {
		w.registry.remove(w)
		w.cancel()
	})
}

func (w *Watch) run(events <-chan schema.TabEvent) {
	for event := range events {
		if event.Type == schema.TabEventClosed {
			w.fire()
			return
		}
	}
}

func (w *Watch) fire() {
	w.fireOnce.Do(func() {
		w.mu.Lock()
		w.err = schema.ErrTabClosed
		w.mu.Unlock()
		close(w.done)
		w.registry.log.With("tab", w.tabID).Info("watched tab closed")
		w.Stop()
	})
}
