package stage

import (
	"context"

	"github.com/jzx17/httptask/pkg/types"
)

// Await subscribes to s, requests one outcome and blocks until it arrives or ctx ends.
// When ctx ends first the subscription is cancelled; shared upstream work continues.
func Await[T any](ctx context.Context, s types.Stage[T]) (T, error) {
	var zero T
	done := make(chan result[T], 1)
	sub := s.Subscribe(&channelReceiver[T]{done: done})
	sub.Request(1)

	select {
	case res := <-done:
		sub.Cancel()
		return res.value, res.err
	case <-ctx.Done():
		sub.Cancel()
		return zero, ctx.Err()
	}
}

type result[T any] struct {
	value T
	err   error
}

// channelReceiver forwards the first terminal outcome to done
type channelReceiver[T any] struct {
	value T
	got   bool
	done  chan result[T]
}

func (c *channelReceiver[T]) Receive(value T) {
	c.value = value
	c.got = true
}

func (c *channelReceiver[T]) ReceiveError(err error) {
	select {
	case c.done <- result[T]{err: err}:
	default:
	}
}

func (c *channelReceiver[T]) ReceiveTermination() {
	res := result[T]{value: c.value}
	if !c.got {
		res.err = types.ErrTerminated
	}
	select {
	case c.done <- res:
	default:
	}
}
