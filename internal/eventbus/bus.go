package eventbus

import (
	"context"
	"sync"
	"time"

	"pkt.systems/judgerelay/schema"
	"pkt.systems/pslog"
)

const (
	defaultDepth = 256
	// closedGrace bounds how long a closed event may wait on a full subscriber.
	closedGrace = time.Second
)

// Bus fans out tab lifecycle events to per-tab and global subscribers.
type Bus struct {
	mu    sync.Mutex
	subs  map[schema.TabID]map[*subscriber]struct{}
	all   map[*subscriber]struct{}
	log   pslog.Logger
	depth int
	grace time.Duration
}

type subscriber struct {
	mu     sync.Mutex
	ch     chan schema.TabEvent
	closed bool
}

// New constructs a Bus.
func New(logger pslog.Logger) *Bus {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Bus{
		subs:  make(map[schema.TabID]map[*subscriber]struct{}),
		all:   make(map[*subscriber]struct{}),
		log:   logger,
		depth: defaultDepth,
		grace: closedGrace,
	}
}

// Subscribe registers a subscriber for one tab and returns a channel + cancel.
func (b *Bus) Subscribe(tabID schema.TabID) (<-chan schema.TabEvent, func()) {
	if b == nil {
		return nil, func() {}
	}
	sub := &subscriber{ch: make(chan schema.TabEvent, b.depth)}
	b.mu.Lock()
	tabSubs := b.subs[tabID]
	if tabSubs == nil {
		tabSubs = make(map[*subscriber]struct{})
		b.subs[tabID] = tabSubs
	}
	tabSubs[sub] = struct{}{}
	count := len(tabSubs)
	b.mu.Unlock()
	b.log.With("tab", tabID).Debug("eventbus subscribe", "subs", count)
	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			b.mu.Lock()
			if subs := b.subs[tabID]; subs != nil {
				delete(subs, sub)
				if len(subs) == 0 {
					delete(b.subs, tabID)
				}
			}
			b.mu.Unlock()
			sub.close()
			b.log.With("tab", tabID).Debug("eventbus unsubscribe")
		})
	}
}

// SubscribeAll registers a subscriber for every tab.
func (b *Bus) SubscribeAll() (<-chan schema.TabEvent, func()) {
	if b == nil {
		return nil, func() {}
	}
	sub := &subscriber{ch: make(chan schema.TabEvent, b.depth)}
	b.mu.Lock()
	b.all[sub] = struct{}{}
	b.mu.Unlock()
	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.all, sub)
			b.mu.Unlock()
			sub.close()
		})
	}
}

// Publish delivers an event. Loading and complete events are dropped for
// subscribers that fall behind; closed events wait briefly for room.
func (b *Bus) Publish(event schema.TabEvent) {
	if b == nil {
		return
	}
	b.mu.Lock()
	tabSubs := b.subs[event.TabID]
	subs := make([]*subscriber, 0, len(tabSubs)+len(b.all))
	for sub := range tabSubs {
		subs = append(subs, sub)
	}
	for sub := range b.all {
		subs = append(subs, sub)
	}
	b.mu.Unlock()
	if len(subs) == 0 {
		return
	}
	wait := time.Duration(0)
	if event.Type == schema.TabEventClosed {
		wait = b.grace
	}
	dropped := 0
	for _, sub := range subs {
		if !sub.send(event, wait) {
			dropped++
		}
	}
	if dropped > 0 {
		b.log.With("tab", event.TabID).Warn("eventbus dropped", "type", event.Type, "count", dropped)
	}
}

func (s *subscriber) send(event schema.TabEvent, wait time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return true
	}
	select {
	case s.ch <- event:
		return true
	default:
	}
	if wait <= 0 {
		return false
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case s.ch <- event:
		return true
	case <-timer.C:
		return false
	}
}

func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}
