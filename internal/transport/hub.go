// Package transport carries typed request/response messages between the
// coordinator and the page agents living in browser tabs.
package transport

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"pkt.systems/judgerelay/schema"
	"pkt.systems/pslog"
)

const mailboxDepth = 16

// Message is a typed request addressed to a page agent.
type Message struct {
	Type    schema.MessageType `json:"type"`
	Payload json.RawMessage    `json:"payload,omitempty"`
}

// NewMessage encodes payload into a message. A nil payload is omitted.
func NewMessage(msgType schema.MessageType, payload any) (Message, error) {
	msg := Message{Type: msgType}
	if payload == nil {
		return msg, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, &Error{Kind: ErrorProtocol, Op: "encode", Err: err}
	}
	msg.Payload = data
	return msg, nil
}

// Sender delivers a message to the agent of a tab and returns its raw reply.
type Sender interface {
	Send(ctx context.Context, tabID schema.TabID, msg Message) (json.RawMessage, error)
}

type reply struct {
	data json.RawMessage
	err  error
}

// Request is a message awaiting exactly one reply.
type Request struct {
	Message  Message
	Deadline time.Time

	once  sync.Once
	reply chan reply
}

// Decode unmarshals the request payload.
func (r *Request) Decode(out any) error {
	if len(r.Message.Payload) == 0 {
		return &Error{Kind: ErrorProtocol, Op: "decode", Err: schema.ErrInvalidRequest}
	}
	if err := json.Unmarshal(r.Message.Payload, out); err != nil {
		return &Error{Kind: ErrorProtocol, Op: "decode", Err: err}
	}
	return nil
}

// Reply answers the request. Later replies are ignored.
func (r *Request) Reply(value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		r.Fail(err)
		return err
	}
	r.once.Do(func() { r.reply <- reply{data: data} })
	return nil
}

// Fail answers the request with an error.
func (r *Request) Fail(err error) {
	if err == nil {
		err = schema.ErrChannelClosed
	}
	r.once.Do(func() { r.reply <- reply{err: err} })
}

// Mailbox is the receiving end of one tab's channel.
type Mailbox struct {
	tabID     schema.TabID
	requests  chan *Request
	done      chan struct{}
	closeOnce sync.Once
}

// TabID returns the tab the mailbox serves.
func (m *Mailbox) TabID() schema.TabID { return m.tabID }

// Requests yields incoming requests.
func (m *Mailbox) Requests() <-chan *Request { return m.requests }

// Done is closed when the mailbox is closed.
func (m *Mailbox) Done() <-chan struct{} { return m.done }

func (m *Mailbox) close() {
	m.closeOnce.Do(func() { close(m.done) })
}

// Hub routes messages to per-tab mailboxes.
type Hub struct {
	mu    sync.Mutex
	boxes map[schema.TabID]*Mailbox
	ready map[schema.TabID]chan struct{}
	log   pslog.Logger
}

var _ Sender = (*Hub)(nil)

// NewHub constructs a Hub.
func NewHub(logger pslog.Logger) *Hub {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Hub{
		boxes: make(map[schema.TabID]*Mailbox),
		ready: make(map[schema.TabID]chan struct{}),
		log:   logger,
	}
}

// Open installs a fresh mailbox for the tab, closing any previous one.
func (h *Hub) Open(tabID schema.TabID) *Mailbox {
	box := &Mailbox{
		tabID:    tabID,
		requests: make(chan *Request, mailboxDepth),
		done:     make(chan struct{}),
	}
	h.mu.Lock()
	prev := h.boxes[tabID]
	h.boxes[tabID] = box
	waiters := h.ready[tabID]
	delete(h.ready, tabID)
	h.mu.Unlock()
	if prev != nil {
		prev.close()
	}
	if waiters != nil {
		close(waiters)
	}
	h.log.With("tab", tabID).Debug("mailbox open")
	return box
}

// Close closes the tab's mailbox. It reports whether one was open.
func (h *Hub) Close(tabID schema.TabID) bool {
	h.mu.Lock()
	box := h.boxes[tabID]
	delete(h.boxes, tabID)
	h.mu.Unlock()
	if box == nil {
		return false
	}
	box.close()
	h.log.With("tab", tabID).Debug("mailbox closed")
	return true
}

// Release closes box if it is still the tab's current mailbox.
func (h *Hub) Release(box *Mailbox) {
	if box == nil {
		return
	}
	h.mu.Lock()
	if h.boxes[box.tabID] == box {
		delete(h.boxes, box.tabID)
	}
	h.mu.Unlock()
	box.close()
}

// Ready reports whether the tab has an open mailbox.
func (h *Hub) Ready(tabID schema.TabID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.boxes[tabID]
	return ok
}

// WaitReady blocks until the tab has an open mailbox.
func (h *Hub) WaitReady(ctx context.Context, tabID schema.TabID) error {
	h.mu.Lock()
	if _, ok := h.boxes[tabID]; ok {
		h.mu.Unlock()
		return nil
	}
	waiters := h.ready[tabID]
	if waiters == nil {
		waiters = make(chan struct{})
		h.ready[tabID] = waiters
	}
	h.mu.Unlock()
	select {
	case <-waiters:
		return nil
	case <-ctx.Done():
		return contextError("wait", tabID, ctx)
	}
}

// Send implements Sender.
func (h *Hub) Send(ctx context.Context, tabID schema.TabID, msg Message) (json.RawMessage, error) {
	op := string(msg.Type)
	h.mu.Lock()
	box := h.boxes[tabID]
	h.mu.Unlock()
	if box == nil {
		return nil, closedError(op, tabID)
	}
	req := &Request{Message: msg, reply: make(chan reply, 1)}
	if deadline, ok := ctx.Deadline(); ok {
		req.Deadline = deadline
	}
	select {
	case box.requests <- req:
	case <-box.done:
		return nil, closedError(op, tabID)
	case <-ctx.Done():
		return nil, contextError(op, tabID, ctx)
	}
	select {
	case res := <-req.reply:
		if res.err != nil {
			return nil, &Error{Kind: ErrorRemote, Op: op, Tab: tabID, Err: res.err}
		}
		return res.data, nil
	case <-box.done:
		select {
		case res := <-req.reply:
			if res.err == nil {
				return res.data, nil
			}
		default:
		}
		return nil, closedError(op, tabID)
	case <-ctx.Done():
		return nil, contextError(op, tabID, ctx)
	}
}
