package closewatch

import (
	"errors"
	"sync"
	"testing"
	"time"

	"pkt.systems/judgerelay/internal/eventbus"
	"pkt.systems/judgerelay/schema"
)

type tabSet struct {
	mu   sync.Mutex
	open map[schema.TabID]bool
}

func (s *tabSet) exists(tabID schema.TabID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open[tabID]
}

func waitDone(t *testing.T, w *Watch) {
	t.Helper()
	select {
	case <-w.Done():
	case <-time.After(time.Second):
		t.Fatalf("watch for tab %s did not fire", w.TabID())
	}
}

func TestWatchFiresOnClose(t *testing.T) {
	bus := eventbus.New(nil)
	tabs := &tabSet{open: map[schema.TabID]bool{"1": true}}
	reg := New(bus, tabs.exists, nil)

	w, created := reg.Watch("1")
	if !created {
		t.Fatalf("expected new watch")
	}
	if w.Err() != nil {
		t.Fatalf("expected nil error before close, got %v", w.Err())
	}
	bus.Publish(schema.TabEvent{TabID: "1", Type: schema.TabEventLoading})
	bus.Publish(schema.TabEvent{TabID: "1", Type: schema.TabEventClosed})
	waitDone(t, w)
	if !errors.Is(w.Err(), schema.ErrTabClosed) {
		t.Fatalf("expected ErrTabClosed, got %v", w.Err())
	}
	deadline := time.Now().Add(time.Second)
	for reg.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("watch not unregistered after firing")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWatchIsIdempotentPerTab(t *testing.T) {
	bus := eventbus.New(nil)
	tabs := &tabSet{open: map[schema.TabID]bool{"1": true}}
	reg := New(bus, tabs.exists, nil)

	first, created := reg.Watch("1")
	if !created {
		t.Fatalf("expected new watch")
	}
	second, created := reg.Watch("1")
	if created || second != first {
		t.Fatalf("expected the existing watch to be returned")
	}
	if reg.Len() != 1 {
		t.Fatalf("expected one watch, got %d", reg.Len())
	}
}

func TestWatchFiresForAlreadyClosedTab(t *testing.T) {
	bus := eventbus.New(nil)
	tabs := &tabSet{open: map[schema.TabID]bool{}}
	reg := New(bus, tabs.exists, nil)
	w, _ := reg.Watch("9")
	waitDone(t, w)
	if reg.Len() != 0 {
		t.Fatalf("expected fired watch to unregister")
	}
}

func TestStopDoesNotFire(t *testing.T) {
	bus := eventbus.New(nil)
	tabs := &tabSet{open: map[schema.TabID]bool{"1": true}}
	reg := New(bus, tabs.exists, nil)
	w, _ := reg.Watch("1")
	w.Stop()
	w.Stop()
	if reg.Len() != 0 {
		t.Fatalf("expected watch to unregister")
	}
	bus.Publish(schema.TabEvent{TabID: "1", Type: schema.TabEventClosed})
	select {
	case <-w.Done():
		t.Fatalf("stopped watch fired")
	case <-time.After(50 * time.Millisecond):
	}
	again, created := reg.Watch("1")
	if !created || again == w {
		t.Fatalf("expected a fresh watch after stop")
	}
	reg.Close()
	if reg.Len() != 0 {
		t.Fatalf("expected close to drop all watches")
	}
}
