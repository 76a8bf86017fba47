// Package testutils provides test doubles and helper functions shared by package tests
package testutils

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jzx17/httptask/pkg/types"
)

// ErrExpected is the canonical failure produced by test doubles
var ErrExpected = errors.New("expected test error")

// DefaultTimeout bounds every wait in tests
const DefaultTimeout = 5 * time.Second

// FakeTransport is a scripted Transport.
// Each call consumes the next scripted outcome; the last one repeats.
// When Gate is non-nil every call blocks until the gate is closed.
type FakeTransport struct {
	mu       sync.Mutex
	outcomes []types.Outcome
	requests []*types.Request
	calls    int64

	Gate chan struct{}

	// Started receives one value per call, if non-nil (buffered by the caller)
	Started chan *types.Request
}

// NewFakeTransport creates a transport answering with outcomes in order
func NewFakeTransport(outcomes ...types.Outcome) *FakeTransport {
	if len(outcomes) == 0 {
		outcomes = []types.Outcome{types.Success(OKResponse(nil))}
	}
	return &FakeTransport{outcomes: outcomes}
}

// Send implements types.Transport
func (f *FakeTransport) Send(ctx context.Context, req *types.Request) (*types.Response, error) {
	n := atomic.AddInt64(&f.calls, 1)

	f.mu.Lock()
	f.requests = append(f.requests, req)
	idx := int(n - 1)
	if idx >= len(f.outcomes) {
		idx = len(f.outcomes) - 1
	}
	outcome := f.outcomes[idx]
	gate := f.Gate
	started := f.Started
	f.mu.Unlock()

	if started != nil {
		started <- req
	}
	if gate != nil {
		<-gate
	}
	return outcome.Response, outcome.Err
}

// Calls returns how many times Send was invoked
func (f *FakeTransport) Calls() int {
	return int(atomic.LoadInt64(&f.calls))
}

// Requests returns the requests seen so far
func (f *FakeTransport) Requests() []*types.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*types.Request, len(f.requests))
	copy(out, f.requests)
	return out
}

// OKResponse builds a 200 response with body
func OKResponse(body []byte) *types.Response {
	return StatusResponse(200, body)
}

// StatusResponse builds a response with the given status and body
func StatusResponse(status int, body []byte) *types.Response {
	return &types.Response{StatusCode: status, Body: body}
}

// Event is one signal observed by a Recorder
type Event[T any] struct {
	Value      T
	Err        error
	Terminated bool
	Progress   *types.Progress
}

// Recorder is a Receiver that records every signal
type Recorder[T any] struct {
	mu       sync.Mutex
	events   []Event[T]
	terminal chan struct{}
	once     sync.Once
}

// NewRecorder creates an empty recorder
func NewRecorder[T any]() *Recorder[T] {
	return &Recorder[T]{terminal: make(chan struct{})}
}

// Receive implements types.Receiver
func (r *Recorder[T]) Receive(value T) {
	r.mu.Lock()
	r.events = append(r.events, Event[T]{Value: value})
	r.mu.Unlock()
}

// ReceiveError implements types.Receiver
func (r *Recorder[T]) ReceiveError(err error) {
	r.mu.Lock()
	r.events = append(r.events, Event[T]{Err: err})
	r.mu.Unlock()
	r.once.Do(func() { close(r.terminal) })
}

// ReceiveTermination implements types.Receiver
func (r *Recorder[T]) ReceiveTermination() {
	r.mu.Lock()
	r.events = append(r.events, Event[T]{Terminated: true})
	r.mu.Unlock()
	r.once.Do(func() { close(r.terminal) })
}

// ReceiveProgress implements types.ProgressReceiver
func (r *Recorder[T]) ReceiveProgress(p types.Progress) {
	r.mu.Lock()
	r.events = append(r.events, Event[T]{Progress: &p})
	r.mu.Unlock()
}

// Terminal returns a channel closed on the first terminal signal
func (r *Recorder[T]) Terminal() <-chan struct{} {
	return r.terminal
}

// Events returns a copy of the recorded events
func (r *Recorder[T]) Events() []Event[T] {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event[T], len(r.events))
	copy(out, r.events)
	return out
}

// WaitTerminal fails the test if no terminal signal arrives in time
func (r *Recorder[T]) WaitTerminal(t testing.TB) {
	t.Helper()
	select {
	case <-r.terminal:
	case <-time.After(DefaultTimeout):
		require.FailNow(t, "timed out waiting for terminal signal")
	}
}

// Outcome summarises the recorded terminal outcome: the last value and the error, if any
func (r *Recorder[T]) Outcome() (T, error) {
	var zero T
	r.mu.Lock()
	defer r.mu.Unlock()
	value := zero
	for _, ev := range r.events {
		if ev.Err != nil {
			return zero, ev.Err
		}
		if !ev.Terminated && ev.Progress == nil {
			value = ev.Value
		}
	}
	return value, nil
}

// TerminalCount returns how many terminal signals were recorded
func (r *Recorder[T]) TerminalCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Err != nil || ev.Terminated {
			n++
		}
	}
	return n
}

// Context returns a context bounded by DefaultTimeout and cancelled at test cleanup
func Context(t testing.TB) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultTimeout)
	t.Cleanup(cancel)
	return ctx
}
