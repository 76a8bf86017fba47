package stage

import (
	"github.com/jzx17/httptask/pkg/types"
)

// DecodeStage turns successful responses into typed values.
// It never retries and never alters upstream failures.
type DecodeStage[T any] struct {
	hub     *hub[types.Decoded[T]]
	upSub   types.Subscription
	decoder types.Decoder[T]
}

var _ types.Stage[types.Decoded[int]] = (*DecodeStage[int])(nil)

// NewDecodeStage decorates upstream with decoder
func NewDecodeStage[T any](upstream types.Stage[*types.Response], decoder types.Decoder[T], opts ...Option) *DecodeStage[T] {
	o := newOptions("decode", opts)
	d := &DecodeStage[T]{decoder: decoder}
	d.hub = newHub[types.Decoded[T]](o.name, o.logger, o.metrics)
	d.hub.pull = func() { d.upSub.Request(1) }
	d.upSub = upstream.Subscribe(&upstreamReceiver[*types.Response]{
		onValue: d.onValue,
		onError: d.hub.fail,
		onProg:  d.hub.progress,
	})
	return d
}

// Subscribe implements types.Stage
func (d *DecodeStage[T]) Subscribe(receiver types.Receiver[types.Decoded[T]]) types.Subscription {
	return d.hub.subscribe(receiver)
}

func (d *DecodeStage[T]) onValue(resp *types.Response) {
	value, err := d.decoder.Decode(resp.Body)
	if err != nil {
		d.hub.fail(&types.DecodeFailure{Body: resp.Body, Response: resp, Cause: err})
		return
	}
	d.hub.finish(types.Decoded[T]{Value: value, Response: resp})
}
