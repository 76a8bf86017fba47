package stage

import (
	"context"

	"github.com/jzx17/httptask/pkg/types"
)

// AdaptStage modifies requests on behalf of the pipeline.
//
// Pre-flight adapters given through WithPreflight are installed into the source and
// run before every dispatch. A decider given through WithDecider reacts to failures:
// it may re-pull with the current request, install a new one, or drop.
// Without a decider failures pass through unchanged.
type AdaptStage struct {
	*recoverer
}

var _ types.HTTPStage = (*AdaptStage)(nil)

// NewAdaptStage decorates upstream with request adaptation
func NewAdaptStage(upstream types.HTTPStage, opts ...Option) *AdaptStage {
	o := newOptions("adapt", opts)
	for _, adapter := range o.preflight {
		upstream.AddPreflight(adapter)
	}

	decider := o.decider
	rec := recovery{
		decide: func(ctx context.Context, err error, req *types.Request) (types.Decision, error) {
			if decider == nil {
				return types.Drop(), nil
			}
			return decider.ShouldAdapt(ctx, err, req)
		},
		dropped: func(reason string, req *types.Request, cause error) error {
			return &types.AdaptFailure{Reason: reason, Request: req, Cause: cause}
		},
		failed: func(err error, req *types.Request, cause error) error {
			return &types.AdaptError{Err: err, Request: req, Cause: cause}
		},
	}
	return &AdaptStage{recoverer: newRecoverer(upstream, rec, o)}
}
