package stage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jzx17/httptask/pkg/types"
)

// RetryState is the lifecycle state of a recovering stage
type RetryState int

const (
	// WaitingUpstream means a pull is outstanding or the stage is idle
	WaitingUpstream RetryState = iota
	// AwaitingRetryDecision means the decider is being consulted about a failure
	AwaitingRetryDecision
	// Delaying means the stage waits before re-pulling upstream
	Delaying
	// Terminal means the last demand cycle has been delivered
	Terminal
)

// String returns the string representation of RetryState
func (s RetryState) String() string {
	switch s {
	case WaitingUpstream:
		return "waiting_upstream"
	case AwaitingRetryDecision:
		return "awaiting_retry_decision"
	case Delaying:
		return "delaying"
	case Terminal:
		return "terminal"
	default:
		return "unknown"
	}
}

// recovery holds what differs between the retry and adapt flavours
type recovery struct {
	decide       func(ctx context.Context, err error, req *types.Request) (types.Decision, error)
	dropped      func(reason string, req *types.Request, cause error) error
	failed       func(err error, req *types.Request, cause error) error
	defaultDelay time.Duration
}

// recoverer decorates an HTTPStage with failure recovery.
// On an upstream failure it asks a decider what to do and either re-pulls
// upstream after a delay or ends the demand cycle with a wrapped error.
type recoverer struct {
	hub      *hub[*types.Response]
	upstream types.HTTPStage
	upSub    types.Subscription
	rec      recovery
	opts     *options

	mu      sync.Mutex
	state   RetryState
	attempt int
}

func newRecoverer(upstream types.HTTPStage, rec recovery, o *options) *recoverer {
	r := &recoverer{
		upstream: upstream,
		rec:      rec,
		opts:     o,
	}
	r.hub = newHub[*types.Response](o.name, o.logger, o.metrics)
	r.hub.pull = r.pull
	r.upSub = upstream.Subscribe(&upstreamReceiver[*types.Response]{
		onValue: r.onValue,
		onError: r.onError,
		onProg:  r.hub.progress,
	})
	return r
}

// Subscribe implements types.Stage
func (r *recoverer) Subscribe(receiver types.Receiver[*types.Response]) types.Subscription {
	return r.hub.subscribe(receiver)
}

// CurrentRequest implements types.HTTPStage
func (r *recoverer) CurrentRequest() *types.Request {
	return r.upstream.CurrentRequest()
}

// ReplaceRequest implements types.HTTPStage
func (r *recoverer) ReplaceRequest(req *types.Request) {
	r.upstream.ReplaceRequest(req)
}

// AddPreflight implements types.HTTPStage
func (r *recoverer) AddPreflight(adapter types.Adapter) {
	r.upstream.AddPreflight(adapter)
}

// State returns the current lifecycle state
func (r *recoverer) State() RetryState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Attempts returns the number of failures seen in the current demand cycle
func (r *recoverer) Attempts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempt
}

// pull starts a demand cycle from a fresh attempt count
func (r *recoverer) pull() {
	r.mu.Lock()
	r.attempt = 0
	r.state = WaitingUpstream
	r.mu.Unlock()
	r.upSub.Request(1)
}

func (r *recoverer) setState(state RetryState) {
	r.mu.Lock()
	r.state = state
	r.mu.Unlock()
}

func (r *recoverer) onValue(resp *types.Response) {
	r.setState(Terminal)
	r.hub.finish(resp)
}

func (r *recoverer) onError(err error) {
	r.mu.Lock()
	r.attempt++
	attempt := r.attempt
	r.state = AwaitingRetryDecision
	r.mu.Unlock()

	r.opts.executor.Go(func() { r.resolve(err, attempt) })
}

func (r *recoverer) resolve(cause error, attempt int) {
	req := r.upstream.CurrentRequest()
	ctx := types.WithAttempt(r.opts.ctx, attempt)

	decision, err := r.rec.decide(ctx, cause, req)
	if err != nil {
		r.opts.logger.Warn("decider failed",
			zap.String("stage", r.opts.name), zap.Int("attempt", attempt), zap.Error(err))
		r.terminate(r.rec.failed(err, req, cause))
		return
	}

	r.opts.metrics.RecordDecision(r.opts.name, decision.Kind.String())
	r.opts.logger.Info("decision",
		zap.String("stage", r.opts.name),
		zap.Int("attempt", attempt),
		zap.Stringer("decision", decision.Kind),
		zap.Error(cause))

	switch decision.Kind {
	case types.DecisionRetry:
		r.again(attempt, cause)
	case types.DecisionRetryWithRequest:
		if decision.Request == nil {
			r.terminate(r.rec.failed(fmt.Errorf("%s decision without a request", decision.Kind), req, cause))
			return
		}
		r.upstream.ReplaceRequest(decision.Request)
		r.again(attempt, cause)
	case types.DecisionDropWithReason:
		r.terminate(r.rec.dropped(decision.Reason, req, cause))
	default:
		r.terminate(cause)
	}
}

// again waits out the delay for attempt and re-pulls upstream.
// A longer RetryAfter carried by cause wins over the configured delay.
func (r *recoverer) again(attempt int, cause error) {
	delay := r.opts.delayFor(attempt, r.rec.defaultDelay)
	if after := types.GetRetryDelay(cause); after > delay {
		delay = after
	}
	if delay > 0 {
		r.setState(Delaying)
		select {
		case <-r.opts.clock.After(delay):
		case <-r.opts.ctx.Done():
			r.terminate(r.opts.ctx.Err())
			return
		}
	}
	r.setState(WaitingUpstream)
	r.upSub.Request(1)
}

func (r *recoverer) terminate(err error) {
	r.setState(Terminal)
	r.hub.fail(err)
}
