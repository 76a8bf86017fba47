package types

import "fmt"

// DecisionKind enumerates recovery decisions taken after a failure
type DecisionKind int

const (
	// DecisionDrop forwards the failure unchanged
	DecisionDrop DecisionKind = iota
	// DecisionDropWithReason forwards the failure wrapped with a reason
	DecisionDropWithReason
	// DecisionRetry re-issues the current request
	DecisionRetry
	// DecisionRetryWithRequest replaces the current request and re-issues it
	DecisionRetryWithRequest
)

// String returns the string representation of DecisionKind
func (k DecisionKind) String() string {
	switch k {
	case DecisionDrop:
		return "drop"
	case DecisionDropWithReason:
		return "drop_with_reason"
	case DecisionRetry:
		return "retry"
	case DecisionRetryWithRequest:
		return "retry_with_request"
	default:
		return "unknown"
	}
}

// Decision is the answer of a Retrier or AdaptDecider
type Decision struct {
	Kind    DecisionKind
	Request *Request
	Reason  string
}

// Drop forwards the original failure
func Drop() Decision {
	return Decision{Kind: DecisionDrop}
}

// DropWithReason forwards the failure wrapped with reason
func DropWithReason(reason string) Decision {
	return Decision{Kind: DecisionDropWithReason, Reason: reason}
}

// Retry re-issues the current request
func Retry() Decision {
	return Decision{Kind: DecisionRetry}
}

// RetryWithRequest re-issues req, which replaces the current request
func RetryWithRequest(req *Request) Decision {
	return Decision{Kind: DecisionRetryWithRequest, Request: req}
}

// String implements fmt.Stringer
func (d Decision) String() string {
	switch d.Kind {
	case DecisionDropWithReason:
		return fmt.Sprintf("%s(%s)", d.Kind, d.Reason)
	case DecisionRetryWithRequest:
		return fmt.Sprintf("%s(%s)", d.Kind, d.Request)
	default:
		return d.Kind.String()
	}
}

// Validation is the verdict of a Validator
type Validation struct {
	Valid  bool
	Reason string
}

// Valid accepts a response
func Valid() Validation {
	return Validation{Valid: true}
}

// Invalid rejects a response with reason
func Invalid(reason string) Validation {
	return Validation{Reason: reason}
}
