package transport

import (
	"context"
	"time"

	"pkt.systems/judgerelay/schema"
)

const (
	// DefaultPollInterval is the pause between poll attempts.
	DefaultPollInterval = 500 * time.Millisecond
	// DefaultPollTimeout bounds a whole poll.
	DefaultPollTimeout = 30 * time.Second
)

// PollOptions tunes PollUntil. Zero values take the defaults.
type PollOptions struct {
	Interval       time.Duration
	Timeout        time.Duration
	RequestTimeout time.Duration
}

func (o PollOptions) normalized() PollOptions {
	if o.Interval <= 0 {
		o.Interval = DefaultPollInterval
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultPollTimeout
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = DefaultRequestTimeout
	}
	return o
}

// PollUntil repeatedly sends the message built by factory until pred accepts
// the decoded reply. The first attempt is immediate. A failing attempt ends
// the poll with its error; running out of budget yields a timeout error.
func PollUntil[T any](ctx context.Context, s Sender, tabID schema.TabID, factory func() (Message, error), pred func(T) bool, opts PollOptions) (T, error) {
	var zero T
	opts = opts.normalized()
	pollCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	for {
		msg, err := factory()
		if err != nil {
			return zero, err
		}
		data, err := SendRequest(pollCtx, s, tabID, msg, opts.RequestTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return zero, contextError("poll", tabID, ctx)
			}
			if pollCtx.Err() != nil {
				return zero, timeoutError("poll", tabID, nil)
			}
			return zero, err
		}
		value, err := decodeReply[T](msg.Type, tabID, data)
		if err != nil {
			return zero, err
		}
		if pred(value) {
			return value, nil
		}
		timer := time.NewTimer(opts.Interval)
		select {
		case <-timer.C:
		case <-pollCtx.Done():
			timer.Stop()
			if ctx.Err() != nil {
				return zero, contextError("poll", tabID, ctx)
			}
			return zero, timeoutError("poll", tabID, nil)
		}
	}
}
