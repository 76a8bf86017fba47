package retry

import (
	"context"
	"fmt"

	"github.com/jzx17/httptask/pkg/types"
)

// Policy is an attempt-bounded Retrier.
// A failure is retried while its condition holds and fewer than MaxAttempts
// dispatches have been made; once the limit is hit the request is dropped with a reason.
type Policy struct {
	maxAttempts int
	condition   Condition
	handler     EventHandler
}

var _ types.Retrier = (*Policy)(nil)

// PolicyOption configures a Policy
type PolicyOption func(*Policy)

// WithCondition sets which failures are worth retrying
func WithCondition(condition Condition) PolicyOption {
	return func(p *Policy) {
		if condition != nil {
			p.condition = condition
		}
	}
}

// WithEventHandler sets the handler notified about every decision
func WithEventHandler(handler EventHandler) PolicyOption {
	return func(p *Policy) {
		p.handler = handler
	}
}

// NewPolicy creates a policy allowing up to maxAttempts dispatches in total.
// maxAttempts <= 0 means no limit.
func NewPolicy(maxAttempts int, opts ...PolicyOption) *Policy {
	p := &Policy{
		maxAttempts: maxAttempts,
		condition:   DefaultRetryCondition,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// MaxAttempts returns the dispatch limit
func (p *Policy) MaxAttempts() int {
	return p.maxAttempts
}

// ShouldRetry implements types.Retrier
func (p *Policy) ShouldRetry(ctx context.Context, err error, req *types.Request) (types.Decision, error) {
	attempt := types.AttemptFromContext(ctx)

	if !p.condition(err) {
		p.notify(func(h EventHandler) { h.OnGiveUp(ctx, attempt, err) })
		return types.Drop(), nil
	}
	if p.maxAttempts > 0 && attempt >= p.maxAttempts {
		p.notify(func(h EventHandler) { h.OnMaxAttemptsReached(ctx, attempt, err) })
		return types.DropWithReason(fmt.Sprintf("max attempts (%d) reached", p.maxAttempts)), nil
	}
	p.notify(func(h EventHandler) { h.OnRetryAttempt(ctx, attempt, err) })
	return types.Retry(), nil
}

func (p *Policy) notify(fn func(EventHandler)) {
	if p.handler != nil {
		fn(p.handler)
	}
}

// Never drops every failure unchanged
func Never() types.Retrier {
	return types.RetrierFunc(func(context.Context, error, *types.Request) (types.Decision, error) {
		return types.Drop(), nil
	})
}

// Always retries every failure
func Always() types.Retrier {
	return types.RetrierFunc(func(context.Context, error, *types.Request) (types.Decision, error) {
		return types.Retry(), nil
	})
}

// WithRequest retries with the request produced by next.
// A nil request from next drops the failure.
func WithRequest(next func(ctx context.Context, err error, req *types.Request) (*types.Request, error)) types.Retrier {
	return types.RetrierFunc(func(ctx context.Context, err error, req *types.Request) (types.Decision, error) {
		replacement, nextErr := next(ctx, err, req)
		if nextErr != nil {
			return types.Decision{}, nextErr
		}
		if replacement == nil {
			return types.Drop(), nil
		}
		return types.RetryWithRequest(replacement), nil
	})
}
