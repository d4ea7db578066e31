package transport

import (
	"context"
	"errors"
)

// Awaitable is a one-shot signal such as a tab close watch.
type Awaitable interface {
	Done() <-chan struct{}
	Err() error
}

var errAborted = errors.New("aborted")

// Race runs op until it settles or abort fires, whichever happens first. The
// loser is canceled. An op failure observed after abort fired reports the
// abort error instead.
func Race[T any](ctx context.Context, abort Awaitable, op func(context.Context) (T, error)) (T, error) {
	var zero T
	if abort == nil {
		return op(ctx)
	}
	select {
	case <-abort.Done():
		return zero, abortErr(abort)
	default:
	}
	opCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		value T
		err   error
	}
	done := make(chan result, 1)
	go func() {
		value, err := op(opCtx)
		done <- result{value: value, err: err}
	}()

	select {
	case <-abort.Done():
		cancel()
		return zero, abortErr(abort)
	case res := <-done:
		if res.err != nil {
			select {
			case <-abort.Done():
				return zero, abortErr(abort)
			default:
			}
		}
		return res.value, res.err
	}
}

func abortErr(abort Awaitable) error {
	if err := abort.Err(); err != nil {
		return err
	}
	return errAborted
}
