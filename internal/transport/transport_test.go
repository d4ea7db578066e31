package transport

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"pkt.systems/judgerelay/schema"
)

// serve answers every request on box with handle until the mailbox closes.
func serve(box *Mailbox, handle func(*Request)) {
	go func() {
		for {
			select {
			case <-box.Done():
				return
			case req := <-box.Requests():
				handle(req)
			}
		}
	}()
}

type signal struct {
	once sync.Once
	done chan struct{}
	err  error
}

func newSignal() *signal { return &signal{done: make(chan struct{})} }

func (s *signal) fire(err error) {
	s.once.Do(func() {
		s.err = err
		close(s.done)
	})
}

func (s *signal) Done() <-chan struct{} { return s.done }
func (s *signal) Err() error            { return s.err }

func TestSendWithoutMailboxIsChannelClosed(t *testing.T) {
	hub := NewHub(nil)
	_, err := hub.Send(context.Background(), "1", Message{Type: schema.MessageCheckLogin})
	if !errors.Is(err, schema.ErrChannelClosed) {
		t.Fatalf("expected ErrChannelClosed, got %v", err)
	}
	if KindOf(err) != ErrorChannelClosed {
		t.Fatalf("expected channel_closed kind, got %q", KindOf(err))
	}
}

func TestCallRoundTrip(t *testing.T) {
	hub := NewHub(nil)
	box := hub.Open("1")
	serve(box, func(req *Request) {
		var payload schema.SourcePayload
		if err := req.Decode(&payload); err != nil {
			req.Fail(err)
			return
		}
		_ = req.Reply(payload.Source == "BOJ")
	})
	ok, err := Call[bool](context.Background(), hub, "1", schema.MessageCheckLogin, schema.SourcePayload{Source: "BOJ"}, time.Second)
	if err != nil || !ok {
		t.Fatalf("expected true reply, got %v %v", ok, err)
	}
}

func TestRemoteFailureIsClassified(t *testing.T) {
	hub := NewHub(nil)
	box := hub.Open("1")
	boom := errors.New("boom")
	serve(box, func(req *Request) { req.Fail(boom) })
	_, err := Call[bool](context.Background(), hub, "1", schema.MessageSubmit, nil, time.Second)
	if !errors.Is(err, boom) || KindOf(err) != ErrorRemote {
		t.Fatalf("expected remote failure, got %v", err)
	}
}

func TestSendRequestTimesOut(t *testing.T) {
	hub := NewHub(nil)
	hub.Open("1")
	start := time.Now()
	_, err := SendRequest(context.Background(), hub, "1", Message{Type: schema.MessageResult}, 30*time.Millisecond)
	if !errors.Is(err, schema.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("timeout took too long")
	}
}

func TestSendRequestCanceledByCaller(t *testing.T) {
	hub := NewHub(nil)
	hub.Open("1")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := SendRequest(ctx, hub, "1", Message{Type: schema.MessageResult}, time.Second)
	if KindOf(err) != ErrorCanceled || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled error, got %v", err)
	}
}

func TestReopenClosesPreviousMailbox(t *testing.T) {
	hub := NewHub(nil)
	first := hub.Open("1")
	errCh := make(chan error, 1)
	go func() {
		_, err := hub.Send(context.Background(), "1", Message{Type: schema.MessageProgress})
		errCh <- err
	}()
	<-first.Requests()
	second := hub.Open("1")
	select {
	case <-first.Done():
	default:
		t.Fatalf("expected previous mailbox to close")
	}
	if err := <-errCh; !errors.Is(err, schema.ErrChannelClosed) {
		t.Fatalf("expected in-flight request to fail with ErrChannelClosed, got %v", err)
	}
	hub.Release(first)
	if !hub.Ready("1") {
		t.Fatalf("releasing a stale mailbox must not close the current one")
	}
	hub.Release(second)
	if hub.Ready("1") {
		t.Fatalf("expected mailbox to be released")
	}
}

func TestWaitReady(t *testing.T) {
	hub := NewHub(nil)
	done := make(chan error, 1)
	go func() { done <- hub.WaitReady(context.Background(), "1") }()
	select {
	case err := <-done:
		t.Fatalf("WaitReady returned early: %v", err)
	case <-time.After(20 * time.Millisecond):
	}
	hub.Open("1")
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("WaitReady: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("WaitReady did not return after open")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := hub.WaitReady(ctx, "2"); !errors.Is(err, schema.ErrTimeout) {
		t.Fatalf("expected timeout waiting for tab 2, got %v", err)
	}
}

func TestPollUntilFirstAttemptIsImmediate(t *testing.T) {
	hub := NewHub(nil)
	box := hub.Open("1")
	serve(box, func(req *Request) { _ = req.Reply(true) })
	factory := func() (Message, error) { return NewMessage(schema.MessageCheckLogin, schema.SourcePayload{Source: "BOJ"}) }
	start := time.Now()
	ok, err := PollUntil(context.Background(), hub, "1", factory, func(v bool) bool { return v }, PollOptions{Interval: time.Hour, Timeout: time.Minute})
	if err != nil || !ok {
		t.Fatalf("expected immediate success, got %v %v", ok, err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("first attempt waited %v", elapsed)
	}
}

func TestPollUntilRetriesUntilAccepted(t *testing.T) {
	hub := NewHub(nil)
	box := hub.Open("1")
	var calls atomic.Int32
	serve(box, func(req *Request) { _ = req.Reply(calls.Add(1) >= 3) })
	factory := func() (Message, error) { return Message{Type: schema.MessageResult}, nil }
	ok, err := PollUntil(context.Background(), hub, "1", factory, func(v bool) bool { return v }, PollOptions{Interval: 5 * time.Millisecond, Timeout: time.Second})
	if err != nil || !ok {
		t.Fatalf("expected success, got %v %v", ok, err)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestPollUntilTimesOut(t *testing.T) {
	hub := NewHub(nil)
	box := hub.Open("1")
	serve(box, func(req *Request) { _ = req.Reply(false) })
	factory := func() (Message, error) { return Message{Type: schema.MessageCheckLogin}, nil }
	_, err := PollUntil(context.Background(), hub, "1", factory, func(v bool) bool { return v }, PollOptions{Interval: 5 * time.Millisecond, Timeout: 50 * time.Millisecond})
	if !errors.Is(err, schema.ErrTimeout) || KindOf(err) != ErrorTimeout {
		t.Fatalf("expected poll timeout, got %v", err)
	}
}

func TestPollUntilPropagatesAttemptError(t *testing.T) {
	hub := NewHub(nil)
	factory := func() (Message, error) { return Message{Type: schema.MessageCheckLogin}, nil }
	_, err := PollUntil(context.Background(), hub, "1", factory, func(v bool) bool { return v }, PollOptions{Interval: 5 * time.Millisecond, Timeout: time.Second})
	if !errors.Is(err, schema.ErrChannelClosed) {
		t.Fatalf("expected ErrChannelClosed, got %v", err)
	}
}

func TestRaceOpWins(t *testing.T) {
	abort := newSignal()
	got, err := Race(context.Background(), abort, func(context.Context) (int, error) { return 7, nil })
	if err != nil || got != 7 {
		t.Fatalf("expected op result, got %v %v", got, err)
	}
}

func TestRaceAbortWinsAndCancelsOp(t *testing.T) {
	abort := newSignal()
	canceled := make(chan struct{})
	go func() {
		time.Sleep(10 * time.Millisecond)
		abort.fire(schema.ErrTabClosed)
	}()
	_, err := Race(context.Background(), abort, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		close(canceled)
		return 0, ctx.Err()
	})
	if !errors.Is(err, schema.ErrTabClosed) {
		t.Fatalf("expected ErrTabClosed, got %v", err)
	}
	select {
	case <-canceled:
	case <-time.After(time.Second):
		t.Fatalf("losing op was not canceled")
	}
}

func TestRaceAbortOverridesOpFailure(t *testing.T) {
	abort := newSignal()
	_, err := Race(context.Background(), abort, func(context.Context) (int, error) {
		abort.fire(schema.ErrTabClosed)
		return 0, closedError("SUBMIT", "1")
	})
	if !errors.Is(err, schema.ErrTabClosed) {
		t.Fatalf("expected abort to override op failure, got %v", err)
	}
}

func TestRaceAlreadyAborted(t *testing.T) {
	abort := newSignal()
	abort.fire(schema.ErrTabClosed)
	ran := false
	_, err := Race(context.Background(), abort, func(context.Context) (int, error) {
		ran = true
		return 1, nil
	})
	if !errors.Is(err, schema.ErrTabClosed) || ran {
		t.Fatalf("expected abort without running op, got %v ran=%v", err, ran)
	}
}
