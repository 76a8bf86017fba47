// Package cache provides the in-flight request cache that deduplicates identical transport calls.
//
// The cache maps a request key to the Operation currently in flight for it. An entry
// is evicted as soon as its operation completes, or when the last holder releases it
// before completion, so a later identical request always starts a fresh call.
package cache

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/jzx17/httptask/pkg/metrics"
	"github.com/jzx17/httptask/pkg/types"
)

// DuplicationPolicy selects how Acquire treats an identical in-flight request
type DuplicationPolicy int

const (
	// AlwaysCreateNew always starts a fresh transport call
	AlwaysCreateNew DuplicationPolicy = iota
	// UseCurrentIfPossible shares the in-flight call for the same key, if any
	UseCurrentIfPossible
	// DropIfDuplicated fails immediately with ErrDuplicateRequest when a call is in flight
	DropIfDuplicated
)

// String returns the string representation of DuplicationPolicy
func (p DuplicationPolicy) String() string {
	switch p {
	case AlwaysCreateNew:
		return "always_create_new"
	case UseCurrentIfPossible:
		return "use_current_if_possible"
	case DropIfDuplicated:
		return "drop_if_duplicated"
	default:
		return "unknown"
	}
}

// ParsePolicy parses the string form produced by DuplicationPolicy.String
func ParsePolicy(s string) (DuplicationPolicy, error) {
	switch s {
	case "", "always_create_new":
		return AlwaysCreateNew, nil
	case "use_current_if_possible":
		return UseCurrentIfPossible, nil
	case "drop_if_duplicated":
		return DropIfDuplicated, nil
	default:
		return AlwaysCreateNew, fmt.Errorf("unknown duplication policy %q", s)
	}
}

// RequestCache tracks in-flight transport operations by request key
type RequestCache struct {
	mu      sync.Mutex
	entries map[string]*Operation

	baseCtx context.Context
	clock   types.Clock
	logger  *zap.Logger
	metrics *metrics.Collector
}

// Option configures a RequestCache
type Option func(*RequestCache)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(c *RequestCache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics sets the metrics collector
func WithMetrics(collector *metrics.Collector) Option {
	return func(c *RequestCache) {
		c.metrics = collector
	}
}

// WithClock sets the clock used to time transport calls
func WithClock(clock types.Clock) Option {
	return func(c *RequestCache) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithBaseContext sets the context transport calls run under.
// Its values are kept but its cancellation is ignored.
func WithBaseContext(ctx context.Context) Option {
	return func(c *RequestCache) {
		if ctx != nil {
			c.baseCtx = ctx
		}
	}
}

// New creates an empty request cache
func New(opts ...Option) *RequestCache {
	c := &RequestCache{
		entries: make(map[string]*Operation),
		baseCtx: context.Background(),
		clock:   types.NewRealClock(),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SendFunc performs the underlying call of an operation, reporting progress through report
type SendFunc func(ctx context.Context, report func(types.Progress)) (*types.Response, error)

// Acquire returns an operation for req according to policy.
// The caller holds one reference on the returned operation and should Release it
// once it no longer needs the result.
func (c *RequestCache) Acquire(ctx context.Context, transport types.Transport, req *types.Request, policy DuplicationPolicy) *Operation {
	return c.acquire(ctx, req, policy, func(ctx context.Context, _ func(types.Progress)) (*types.Response, error) {
		return transport.Send(ctx, req)
	}, nil)
}

// AcquireFunc is like Acquire but runs send instead of a Transport.
// onProgress, if non-nil, receives the progress of the underlying call whether
// this caller started it or joined it; it stays attached until the call completes.
func (c *RequestCache) AcquireFunc(ctx context.Context, req *types.Request, policy DuplicationPolicy, send SendFunc, onProgress func(types.Progress)) *Operation {
	return c.acquire(ctx, req, policy, send, onProgress)
}

func (c *RequestCache) acquire(ctx context.Context, req *types.Request, policy DuplicationPolicy, send SendFunc, onProgress func(types.Progress)) *Operation {
	key := req.Key()

	c.mu.Lock()
	current, inFlight := c.entries[key]
	switch {
	case inFlight && policy == UseCurrentIfPossible:
		current.refs++
		current.listen(onProgress)
		c.mu.Unlock()
		c.metrics.RecordAcquire(policy.String(), metrics.AcquireShared)
		c.logger.Debug("sharing in-flight request", zap.Stringer("request", req))
		return current
	case inFlight && policy == DropIfDuplicated:
		c.mu.Unlock()
		c.metrics.RecordAcquire(policy.String(), metrics.AcquireDropped)
		c.logger.Debug("dropping duplicated request", zap.Stringer("request", req))
		return completedOperation(key, nil, types.ErrDuplicateRequest)
	}

	op := newOperation(c, key)
	op.listen(onProgress)
	// AlwaysCreateNew replaces any current entry; the older operation still
	// completes and is then ignored by evict's identity check.
	c.entries[key] = op
	inFlightCount := len(c.entries)
	c.mu.Unlock()

	c.metrics.RecordAcquire(policy.String(), metrics.AcquireCreated)
	c.metrics.SetInFlight(inFlightCount)
	c.logger.Debug("starting transport call", zap.Stringer("request", req), zap.Stringer("policy", policy))

	runCtx := context.WithoutCancel(c.baseCtx)
	if ctx != nil {
		runCtx = context.WithoutCancel(ctx)
	}
	go c.run(runCtx, op, send)
	return op
}

func (c *RequestCache) run(ctx context.Context, op *Operation, send SendFunc) {
	start := c.clock.Now()
	resp, err := send(ctx, op.report)
	c.metrics.RecordTransport(c.clock.Since(start), err)

	c.evict(op)
	op.complete(resp, err)
}

// evict removes op from the cache if it is still the current entry for its key
func (c *RequestCache) evict(op *Operation) {
	c.mu.Lock()
	if c.entries[op.key] == op {
		delete(c.entries, op.key)
	}
	inFlightCount := len(c.entries)
	c.mu.Unlock()
	c.metrics.SetInFlight(inFlightCount)
}

// release drops one reference on op; the last release before completion evicts it
func (c *RequestCache) release(op *Operation) {
	c.mu.Lock()
	if op.refs > 0 {
		op.refs--
	}
	orphaned := op.refs == 0 && c.entries[op.key] == op
	c.mu.Unlock()

	if orphaned {
		c.logger.Debug("evicting released operation", zap.String("key", op.key))
		c.evict(op)
	}
}

// InFlight returns the number of tracked operations
func (c *RequestCache) InFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Contains reports whether an operation for req is in flight
func (c *RequestCache) Contains(req *types.Request) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[req.Key()]
	return ok
}
