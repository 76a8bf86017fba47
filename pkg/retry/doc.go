// Package retry provides Retrier implementations and backoff strategies for RetryStage.
//
// A Retrier is consulted by a RetryStage after every failed attempt. The attempt number
// is carried in the context and read with types.AttemptFromContext.
//
// Bounded retries of transient failures:
//
//	policy := retry.NewPolicy(3,
//		retry.WithCondition(retry.Any(retry.DefaultRetryCondition, retry.OnStatus(409))),
//		retry.WithEventHandler(retry.NewDefaultEventHandler(logger.Sugar())))
//
//	backoff := retry.NewExponentialBackoff(100*time.Millisecond,
//		retry.WithMaxDelay(5*time.Second),
//		retry.WithJitter(retry.EqualJitter))
//
//	s := stage.NewRetryStage(src, policy, stage.WithBackoff(backoff))
//
// Policy drops non-transient failures unchanged and ends with a RetryFailure once the
// attempt limit is reached.
package retry
