package transport

import (
	"context"
	"encoding/json"
	"time"

	"pkt.systems/judgerelay/schema"
)

// DefaultRequestTimeout bounds a single request when the caller passes zero.
const DefaultRequestTimeout = 5 * time.Second

// SendRequest sends one message and waits at most timeout for the reply.
func SendRequest(ctx context.Context, s Sender, tabID schema.TabID, msg Message, timeout time.Duration) (json.RawMessage, error) {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	data, err := s.Send(reqCtx, tabID, msg)
	if err != nil && ctx.Err() != nil {
		return nil, contextError(string(msg.Type), tabID, ctx)
	}
	return data, err
}

// Call sends a typed request and decodes the typed reply.
func Call[Resp any](ctx context.Context, s Sender, tabID schema.TabID, msgType schema.MessageType, payload any, timeout time.Duration) (Resp, error) {
	var zero Resp
	msg, err := NewMessage(msgType, payload)
	if err != nil {
		return zero, err
	}
	data, err := SendRequest(ctx, s, tabID, msg, timeout)
	if err != nil {
		return zero, err
	}
	return decodeReply[Resp](msgType, tabID, data)
}

func decodeReply[Resp any](msgType schema.MessageType, tabID schema.TabID, data json.RawMessage) (Resp, error) {
	var out Resp
	if len(data) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, &Error{Kind: ErrorProtocol, Op: string(msgType), Tab: tabID, Err: err}
	}
	return out, nil
}
