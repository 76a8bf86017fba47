package cache

import (
	"context"
	"sync"

	"github.com/jzx17/httptask/pkg/types"
)

// Operation is a single transport call shared by every holder of the same key.
// It completes exactly once.
type Operation struct {
	key   string
	owner *RequestCache
	done  chan struct{}
	once  sync.Once

	// guarded by owner.mu
	refs int

	mu        sync.Mutex
	listeners []func(types.Progress)

	resp *types.Response
	err  error
}

func newOperation(owner *RequestCache, key string) *Operation {
	return &Operation{
		key:   key,
		owner: owner,
		done:  make(chan struct{}),
		refs:  1,
	}
}

func completedOperation(key string, resp *types.Response, err error) *Operation {
	op := &Operation{
		key:  key,
		done: make(chan struct{}),
	}
	op.complete(resp, err)
	return op
}

func (o *Operation) complete(resp *types.Response, err error) {
	o.once.Do(func() {
		o.mu.Lock()
		o.listeners = nil
		o.mu.Unlock()

		o.resp = resp
		o.err = err
		close(o.done)
	})
}

// listen attaches fn to the progress of the call; listeners are dropped on completion
func (o *Operation) listen(fn func(types.Progress)) {
	if fn == nil {
		return
	}
	o.mu.Lock()
	o.listeners = append(o.listeners, fn)
	o.mu.Unlock()
}

// report fans p out to every holder listening on the call
func (o *Operation) report(p types.Progress) {
	o.mu.Lock()
	listeners := append([]func(types.Progress)(nil), o.listeners...)
	o.mu.Unlock()

	for _, fn := range listeners {
		fn(p)
	}
}

// Key returns the request key of the operation
func (o *Operation) Key() string {
	return o.key
}

// Done returns a channel closed once the operation completes
func (o *Operation) Done() <-chan struct{} {
	return o.done
}

// Result blocks until the operation completes and returns its outcome
func (o *Operation) Result() (*types.Response, error) {
	<-o.done
	return o.resp, o.err
}

// Wait blocks until the operation completes or ctx ends
func (o *Operation) Wait(ctx context.Context) (*types.Response, error) {
	select {
	case <-o.done:
		return o.resp, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Release gives up the caller's reference. Releasing is optional once the
// operation completed; before completion the last release evicts the entry
// without aborting the transport call.
func (o *Operation) Release() {
	if o.owner == nil {
		return
	}
	o.owner.release(o)
}
