package retry

import (
	"context"
	"errors"
	"net/http"

	"github.com/jzx17/httptask/pkg/types"
)

// Condition reports whether a failure is worth retrying
type Condition func(error) bool

// DefaultRetryCondition retries transient failures: transport errors, 5xx and 429
// responses, and errors marked retryable. Cancellation and duplicates are never retried.
func DefaultRetryCondition(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, types.ErrDuplicateRequest) {
		return false
	}
	if types.IsRetryable(err) {
		return true
	}
	if code, ok := types.StatusCode(err); ok {
		return code >= http.StatusInternalServerError || code == http.StatusTooManyRequests
	}

	var transportErr *types.TransportError
	return errors.As(err, &transportErr)
}

// OnStatus retries failures carrying one of the given status codes
func OnStatus(codes ...int) Condition {
	set := make(map[int]struct{}, len(codes))
	for _, code := range codes {
		set[code] = struct{}{}
	}
	return func(err error) bool {
		code, ok := types.StatusCode(err)
		if !ok {
			return false
		}
		_, hit := set[code]
		return hit
	}
}

// OnErrors retries failures matching any of targets with errors.Is
func OnErrors(targets ...error) Condition {
	return func(err error) bool {
		for _, target := range targets {
			if errors.Is(err, target) {
				return true
			}
		}
		return false
	}
}

// Any combines conditions; a failure is retried when one of them holds
func Any(conditions ...Condition) Condition {
	return func(err error) bool {
		for _, c := range conditions {
			if c(err) {
				return true
			}
		}
		return false
	}
}
