// Package agent runs the page-level half of the relay: one agent per loaded
// judge page, answering coordinator requests against the live document.
package agent

import (
	"context"
	"errors"
	"fmt"

	"pkt.systems/judgerelay/adapter"
	"pkt.systems/judgerelay/internal/logx"
	"pkt.systems/judgerelay/internal/transport"
	"pkt.systems/judgerelay/schema"
)

// ErrUnknownMessage is returned to the coordinator for unsupported message types.
var ErrUnknownMessage = errors.New("unknown message type")

// Agent answers requests for a single page.
type Agent struct {
	page     adapter.Page
	adapters *adapter.Registry
}

// New constructs an agent for page.
func New(page adapter.Page, adapters *adapter.Registry) *Agent {
	return &Agent{page: page, adapters: adapters}
}

// Serve handles requests sequentially until the mailbox or ctx closes.
func (a *Agent) Serve(ctx context.Context, box *transport.Mailbox) {
	log := logx.WithTab(ctx, box.TabID())
	for {
		select {
		case <-ctx.Done():
			return
		case <-box.Done():
			return
		case req := <-box.Requests():
			reqCtx, cancel := requestContext(ctx, req)
			value, err := a.Handle(reqCtx, req)
			cancel()
			if err != nil {
				log.Debug("agent request failed", "type", req.Message.Type, "err", err)
				req.Fail(err)
				continue
			}
			if err := req.Reply(value); err != nil {
				log.Warn("agent reply failed", "type", req.Message.Type, "err", err)
			}
		}
	}
}

// Handle dispatches one request to the adapter selected by its payload.
func (a *Agent) Handle(ctx context.Context, req *transport.Request) (any, error) {
	switch req.Message.Type {
	case schema.MessageCheckLogin:
		ad, err := a.resolve(req)
		if err != nil {
			return nil, err
		}
		return ad.CheckLoginStatus(ctx, a.page)
	case schema.MessageSubmit:
		var payload schema.PageSubmitPayload
		if err := req.Decode(&payload); err != nil {
			return nil, err
		}
		ad, err := a.adapters.Lookup(payload.Source)
		if err != nil {
			return nil, err
		}
		return ad.Submit(ctx, a.page, payload.Code, payload.Language)
	case schema.MessageResult:
		ad, err := a.resolve(req)
		if err != nil {
			return nil, err
		}
		return ad.IsResultPage(ctx, a.page)
	case schema.MessageProgress:
		ad, err := a.resolve(req)
		if err != nil {
			return nil, err
		}
		return ad.Progress(ctx, a.page)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, req.Message.Type)
	}
}

func (a *Agent) resolve(req *transport.Request) (adapter.Adapter, error) {
	var payload schema.SourcePayload
	if err := req.Decode(&payload); err != nil {
		return nil, err
	}
	return a.adapters.Lookup(payload.Source)
}

func requestContext(ctx context.Context, req *transport.Request) (context.Context, context.CancelFunc) {
	if req.Deadline.IsZero() {
		return context.WithCancel(ctx)
	}
	return context.WithDeadline(ctx, req.Deadline)
}
