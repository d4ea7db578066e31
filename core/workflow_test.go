package core

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"pkt.systems/judgerelay/internal/browser"
	"pkt.systems/judgerelay/internal/transport"
	"pkt.systems/judgerelay/schema"
)

// scriptedChannel answers sends from a fixed list of replies; the last one repeats.
type scriptedChannel struct {
	mu      sync.Mutex
	replies []func() (json.RawMessage, error)
	sends   int
	waits   int
}

func (c *scriptedChannel) Send(ctx context.Context, tabID schema.TabID, msg transport.Message) (json.RawMessage, error) {
	c.mu.Lock()
	idx := c.sends
	c.sends++
	if idx >= len(c.replies) {
		idx = len(c.replies) - 1
	}
	reply := c.replies[idx]
	c.mu.Unlock()
	return reply()
}

func (c *scriptedChannel) WaitReady(ctx context.Context, tabID schema.TabID) error {
	c.mu.Lock()
	c.waits++
	c.mu.Unlock()
	return nil
}

func (c *scriptedChannel) counts() (sends, waits int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sends, c.waits
}

// tabState serves a fixed tab status.
type tabState struct {
	status browser.TabStatus
}

func (s tabState) Tab(_ context.Context, tabID schema.TabID) (browser.TabInfo, error) {
	return browser.TabInfo{ID: tabID, Status: s.status}, nil
}

func replyTrue() (json.RawMessage, error) { return json.RawMessage("true"), nil }

func contextDestroyed() (json.RawMessage, error) {
	return nil, &transport.Error{Kind: transport.ErrorRemote, Op: "send", Tab: "7", Err: errors.New("Execution context was destroyed")}
}

func agentGone() (json.RawMessage, error) {
	return nil, &transport.Error{Kind: transport.ErrorChannelClosed, Op: "send", Tab: "7", Err: schema.ErrChannelClosed}
}

func navigationPollOptions() transport.PollOptions {
	return transport.PollOptions{Interval: 5 * time.Millisecond, Timeout: time.Second, RequestTimeout: 100 * time.Millisecond}
}

func acceptTrue(v bool) bool { return v }

func TestPollAcrossNavigationResumesAfterAgentFailureWhileLoading(t *testing.T) {
	ch := &scriptedChannel{replies: []func() (json.RawMessage, error){contextDestroyed, replyTrue}}

	ok, err := pollAcrossNavigation(context.Background(), ch, tabState{status: browser.StatusLoading}, "7",
		schema.MessageResult, schema.SourcePayload{Source: "JUDGE"}, acceptTrue, navigationPollOptions())
	if err != nil {
		t.Fatalf("expected poll to survive navigation, got %v", err)
	}
	if !ok {
		t.Fatalf("expected accepted reply")
	}
	if sends, waits := ch.counts(); sends != 2 || waits != 1 {
		t.Fatalf("expected 2 sends and 1 page wait, got %d and %d", sends, waits)
	}
}

func TestPollAcrossNavigationFailsOnAgentErrorOnSettledPage(t *testing.T) {
	ch := &scriptedChannel{replies: []func() (json.RawMessage, error){contextDestroyed, replyTrue}}

	_, err := pollAcrossNavigation(context.Background(), ch, tabState{status: browser.StatusComplete}, "7",
		schema.MessageResult, schema.SourcePayload{Source: "JUDGE"}, acceptTrue, navigationPollOptions())
	if transport.KindOf(err) != transport.ErrorRemote {
		t.Fatalf("expected remote error, got %v", err)
	}
	if sends, waits := ch.counts(); sends != 1 || waits != 0 {
		t.Fatalf("expected 1 send and no page wait, got %d and %d", sends, waits)
	}
}

func TestPollAcrossNavigationResumesAfterAgentGone(t *testing.T) {
	ch := &scriptedChannel{replies: []func() (json.RawMessage, error){agentGone, replyTrue}}

	if _, err := pollAcrossNavigation(context.Background(), ch, tabState{status: browser.StatusComplete}, "7",
		schema.MessageCheckLogin, schema.SourcePayload{Source: "JUDGE"}, acceptTrue, navigationPollOptions()); err != nil {
		t.Fatalf("expected poll to survive agent replacement, got %v", err)
	}
	if _, waits := ch.counts(); waits != 1 {
		t.Fatalf("expected 1 page wait, got %d", waits)
	}
}

func TestPollAcrossNavigationKeepsOverallBudget(t *testing.T) {
	ch := &scriptedChannel{replies: []func() (json.RawMessage, error){contextDestroyed}}
	opts := navigationPollOptions()
	opts.Timeout = 60 * time.Millisecond

	start := time.Now()
	_, err := pollAcrossNavigation(context.Background(), ch, tabState{status: browser.StatusLoading}, "7",
		schema.MessageResult, schema.SourcePayload{Source: "JUDGE"}, acceptTrue, opts)
	if !errors.Is(err, schema.ErrTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("poll outlived its budget: %s", elapsed)
	}
}
