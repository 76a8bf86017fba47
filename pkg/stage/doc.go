// Package stage implements the pull-based stages an HTTP pipeline is built from.
//
// A stage produces outcomes for its subscribers only when asked. Subscription.Request
// registers the subscriber for the next outcome and, unless a pull is already outstanding,
// pulls one item from upstream. Demand arriving while a pull is outstanding joins it, so
// every subscriber registered at that point receives the same outcome.
//
// The chain always starts with a SourceStage, which performs one cache-mediated transport
// call per demand cycle. Decorators wrap it:
//
//	src := stage.NewSource(transport, req, stage.WithCache(c), stage.WithDuplicationPolicy(cache.UseCurrentIfPossible))
//	retried := stage.NewRetryStage(src, retrier, stage.WithRetryDelay(200*time.Millisecond))
//	checked := stage.NewValidateStage(retried, stage.AllowSuccess())
//	decoded := stage.NewDecodeStage[User](checked, decode.JSON[User]())
//
//	user, err := stage.Await[types.Decoded[User]](ctx, decoded)
//
// A demand cycle ends with Receive followed by ReceiveTermination, or with ReceiveError.
// Cancelling a subscription only detaches that subscriber.
package stage
