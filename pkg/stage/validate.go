package stage

import (
	"fmt"

	"github.com/jzx17/httptask/pkg/types"
)

// ValidateStage checks successful responses and turns rejected ones into ValidationFailure.
// Failures from upstream pass through without reaching the validator.
type ValidateStage struct {
	hub       *hub[*types.Response]
	upstream  types.HTTPStage
	upSub     types.Subscription
	validator types.Validator
}

var _ types.HTTPStage = (*ValidateStage)(nil)

// NewValidateStage decorates upstream with validator
func NewValidateStage(upstream types.HTTPStage, validator types.Validator, opts ...Option) *ValidateStage {
	o := newOptions("validate", opts)
	v := &ValidateStage{
		upstream:  upstream,
		validator: validator,
	}
	v.hub = newHub[*types.Response](o.name, o.logger, o.metrics)
	v.hub.pull = func() { v.upSub.Request(1) }
	v.upSub = upstream.Subscribe(&upstreamReceiver[*types.Response]{
		onValue: v.onValue,
		onError: v.hub.fail,
		onProg:  v.hub.progress,
	})
	return v
}

// Subscribe implements types.Stage
func (v *ValidateStage) Subscribe(receiver types.Receiver[*types.Response]) types.Subscription {
	return v.hub.subscribe(receiver)
}

// CurrentRequest implements types.HTTPStage
func (v *ValidateStage) CurrentRequest() *types.Request {
	return v.upstream.CurrentRequest()
}

// ReplaceRequest implements types.HTTPStage
func (v *ValidateStage) ReplaceRequest(req *types.Request) {
	v.upstream.ReplaceRequest(req)
}

// AddPreflight implements types.HTTPStage
func (v *ValidateStage) AddPreflight(adapter types.Adapter) {
	v.upstream.AddPreflight(adapter)
}

func (v *ValidateStage) onValue(resp *types.Response) {
	result := v.validator.Validate(resp.Body, resp)
	if !result.Valid {
		v.hub.fail(&types.ValidationFailure{Reason: result.Reason, Body: resp.Body, Response: resp})
		return
	}
	v.hub.finish(resp)
}

// AllowStatusCodes accepts responses whose status is one of codes
func AllowStatusCodes(codes ...int) types.Validator {
	allowed := make(map[int]struct{}, len(codes))
	for _, code := range codes {
		allowed[code] = struct{}{}
	}
	return types.ValidatorFunc(func(_ []byte, resp *types.Response) types.Validation {
		if _, ok := allowed[resp.StatusCode]; ok {
			return types.Valid()
		}
		return types.Invalid(unexpectedStatus(resp.StatusCode))
	})
}

// AllowStatusRange accepts responses whose status lies in [lo, hi]
func AllowStatusRange(lo, hi int) types.Validator {
	return types.ValidatorFunc(func(_ []byte, resp *types.Response) types.Validation {
		if resp.StatusCode >= lo && resp.StatusCode <= hi {
			return types.Valid()
		}
		return types.Invalid(unexpectedStatus(resp.StatusCode))
	})
}

// AllowSuccess accepts 2xx responses
func AllowSuccess() types.Validator {
	return AllowStatusRange(200, 299)
}

func unexpectedStatus(code int) string {
	return fmt.Sprintf("unexpected status code: %d", code)
}
