package stage

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/jzx17/httptask/pkg/cache"
	"github.com/jzx17/httptask/pkg/types"
)

// SourceStage is the root of a pipeline. Each demand cycle dispatches the current
// request through the request cache exactly once and fans the outcome out.
type SourceStage struct {
	hub       *hub[*types.Response]
	transport types.Transport
	cache     *cache.RequestCache
	policy    cache.DuplicationPolicy
	ctx       context.Context
	executor  types.Executor
	logger    *zap.Logger

	mu        sync.Mutex
	request   *types.Request
	preflight []types.Adapter
}

var _ types.HTTPStage = (*SourceStage)(nil)

// NewSource creates a source stage for req.
// Without WithCache the stage gets a private cache, which still guarantees one call per demand cycle.
func NewSource(transport types.Transport, req *types.Request, opts ...Option) *SourceStage {
	o := newOptions("source", opts)

	c := o.cache
	if c == nil {
		c = cache.New(
			cache.WithLogger(o.logger),
			cache.WithMetrics(o.metrics),
			cache.WithClock(o.clock),
			cache.WithBaseContext(o.ctx),
		)
	}

	s := &SourceStage{
		transport: transport,
		cache:     c,
		policy:    o.policy,
		ctx:       o.ctx,
		executor:  o.executor,
		logger:    o.logger,
		request:   req,
		preflight: append([]types.Adapter(nil), o.preflight...),
	}
	s.hub = newHub[*types.Response](o.name, o.logger, o.metrics)
	s.hub.pull = func() { s.executor.Go(s.dispatch) }
	return s
}

// Subscribe implements types.Stage
func (s *SourceStage) Subscribe(receiver types.Receiver[*types.Response]) types.Subscription {
	return s.hub.subscribe(receiver)
}

// CurrentRequest implements types.HTTPStage
func (s *SourceStage) CurrentRequest() *types.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.request
}

// ReplaceRequest implements types.HTTPStage
func (s *SourceStage) ReplaceRequest(req *types.Request) {
	if req == nil {
		return
	}
	s.mu.Lock()
	s.request = req
	s.mu.Unlock()
	s.logger.Debug("request replaced", zap.Stringer("request", req))
}

// AddPreflight implements types.HTTPStage
func (s *SourceStage) AddPreflight(adapter types.Adapter) {
	if adapter == nil {
		return
	}
	s.mu.Lock()
	s.preflight = append(s.preflight, adapter)
	s.mu.Unlock()
}

// Cache returns the request cache the stage dispatches through
func (s *SourceStage) Cache() *cache.RequestCache {
	return s.cache
}

func (s *SourceStage) dispatch() {
	s.mu.Lock()
	req := s.request
	adapters := append([]types.Adapter(nil), s.preflight...)
	s.mu.Unlock()

	if req == nil {
		s.hub.fail(types.ErrNilRequest)
		return
	}

	// pre-flight adaptation applies to this dispatch only
	for _, adapter := range adapters {
		adapted, err := adapter.Adapt(s.ctx, req)
		if err != nil {
			s.logger.Warn("pre-flight adaptation failed", zap.Stringer("request", req), zap.Error(err))
			s.hub.fail(&types.AdaptError{Err: err, Request: req})
			return
		}
		if adapted != nil {
			req = adapted
		}
	}

	s.logger.Debug("dispatching", zap.Stringer("request", req), zap.Stringer("policy", s.policy))
	op := s.cache.AcquireFunc(s.ctx, req, s.policy, func(ctx context.Context, report func(types.Progress)) (*types.Response, error) {
		return s.send(ctx, req, report)
	}, s.hub.progress)
	resp, err := op.Wait(s.ctx)
	op.Release()

	if err != nil {
		if !errors.Is(err, types.ErrDuplicateRequest) {
			s.logger.Debug("dispatch failed", zap.Stringer("request", req), zap.Error(err))
		}
		s.hub.fail(err)
		return
	}
	s.hub.finish(resp)
}

// send performs the single transport call shared by every holder of the operation.
// report fans progress out to every source holding the operation.
func (s *SourceStage) send(ctx context.Context, req *types.Request, report func(types.Progress)) (*types.Response, error) {
	var (
		resp *types.Response
		err  error
	)
	if pt, ok := s.transport.(types.ProgressTransport); ok {
		resp, err = pt.SendWithProgress(ctx, req, report)
	} else {
		resp, err = s.transport.Send(ctx, req)
	}

	switch {
	case err != nil:
		return nil, &types.TransportError{Request: req, Cause: err}
	case resp == nil:
		return nil, &types.UnexpectedResponseError{Request: req}
	default:
		return resp, nil
	}
}
