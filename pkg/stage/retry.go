package stage

import (
	"context"

	"github.com/jzx17/httptask/pkg/types"
)

// RetryStage re-issues a failed request when its Retrier says so.
// The stage has no attempt limit of its own; the Retrier decides when to stop.
type RetryStage struct {
	*recoverer
}

var _ types.HTTPStage = (*RetryStage)(nil)

// NewRetryStage decorates upstream with retrier
func NewRetryStage(upstream types.HTTPStage, retrier types.Retrier, opts ...Option) *RetryStage {
	o := newOptions("retry", opts)
	rec := recovery{
		decide: func(ctx context.Context, err error, req *types.Request) (types.Decision, error) {
			return retrier.ShouldRetry(ctx, err, req)
		},
		dropped: func(reason string, req *types.Request, cause error) error {
			return &types.RetryFailure{Reason: reason, Request: req, Cause: cause}
		},
		failed: func(err error, req *types.Request, cause error) error {
			return &types.RetryError{Err: err, Request: req, Cause: cause}
		},
		defaultDelay: DefaultRetryDelay,
	}
	return &RetryStage{recoverer: newRecoverer(upstream, rec, o)}
}
