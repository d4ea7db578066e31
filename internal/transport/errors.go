package transport

import (
	"context"
	"errors"
	"fmt"

	"pkt.systems/judgerelay/schema"
)

// ErrorKind classifies transport failures.
type ErrorKind string

const (
	// ErrorTimeout means no reply arrived within the request or poll budget.
	ErrorTimeout ErrorKind = "timeout"
	// ErrorChannelClosed means the tab had no agent or its agent went away.
	ErrorChannelClosed ErrorKind = "channel_closed"
	// ErrorCanceled means the caller's context was canceled.
	ErrorCanceled ErrorKind = "canceled"
	// ErrorRemote means the agent answered with a failure.
	ErrorRemote ErrorKind = "remote"
	// ErrorProtocol means a message could not be encoded or decoded.
	ErrorProtocol ErrorKind = "protocol"
)

// Error wraps transport failures with a stable classification.
type Error struct {
	Kind ErrorKind
	Op   string
	Tab  schema.TabID
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return "transport error"
	}
	prefix := "transport"
	if e.Op != "" {
		prefix = fmt.Sprintf("transport %s", e.Op)
	}
	if e.Tab != "" {
		prefix = fmt.Sprintf("%s (tab %s)", prefix, e.Tab)
	}
	if e.Err != nil {
		return prefix + ": " + e.Err.Error()
	}
	return fmt.Sprintf("%s: %s", prefix, e.Kind)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// KindOf returns the transport classification of err, or "" when err is not a transport error.
func KindOf(err error) ErrorKind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return ""
}

func timeoutError(op string, tabID schema.TabID, cause error) *Error {
	err := schema.ErrTimeout
	if cause != nil {
		err = fmt.Errorf("%w: %w", schema.ErrTimeout, cause)
	}
	return &Error{Kind: ErrorTimeout, Op: op, Tab: tabID, Err: err}
}

func closedError(op string, tabID schema.TabID) *Error {
	return &Error{Kind: ErrorChannelClosed, Op: op, Tab: tabID, Err: schema.ErrChannelClosed}
}

// contextError maps a finished context onto timeout or canceled.
func contextError(op string, tabID schema.TabID, ctx context.Context) *Error {
	err := ctx.Err()
	if errors.Is(err, context.DeadlineExceeded) {
		return timeoutError(op, tabID, err)
	}
	return &Error{Kind: ErrorCanceled, Op: op, Tab: tabID, Err: err}
}
