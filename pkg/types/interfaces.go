// Package types defines core interfaces for the httptask pipeline
package types

import (
	"context"
	"time"
)

// Receiver accepts the output of a stage.
// A demand cycle ends either with Receive followed by ReceiveTermination, or with ReceiveError.
type Receiver[T any] interface {
	// Receive delivers a successful value
	Receive(value T)

	// ReceiveError delivers a terminal failure
	ReceiveError(err error)

	// ReceiveTermination signals the end of a successful demand cycle
	ReceiveTermination()
}

// ProgressReceiver is implemented by receivers that want non-terminal progress events
type ProgressReceiver interface {
	ReceiveProgress(p Progress)
}

// Subscription links one receiver to a stage
type Subscription interface {
	// ID returns the subscription identity
	ID() string

	// Request signals demand for n outcomes; n <= 0 is ignored
	Request(n int)

	// Cancel detaches the receiver; it never aborts shared upstream work
	Cancel()
}

// Stage produces values for one or more subscribers under pull-based demand
type Stage[T any] interface {
	Subscribe(receiver Receiver[T]) Subscription
}

// HTTPStage is a stage producing raw responses that decorators can steer
type HTTPStage interface {
	Stage[*Response]

	// CurrentRequest returns the request the next dispatch will start from
	CurrentRequest() *Request

	// ReplaceRequest installs req for subsequent dispatches
	ReplaceRequest(req *Request)

	// AddPreflight appends an adapter applied before every dispatch
	AddPreflight(adapter Adapter)
}

// Transport performs exactly one network operation per call
type Transport interface {
	Send(ctx context.Context, req *Request) (*Response, error)
}

// TransportFunc adapts a function to Transport
type TransportFunc func(ctx context.Context, req *Request) (*Response, error)

// Send calls f(ctx, req)
func (f TransportFunc) Send(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// ProgressTransport is a transport able to report transfer progress
type ProgressTransport interface {
	Transport

	// SendWithProgress behaves like Send and calls onProgress while the body is read
	SendWithProgress(ctx context.Context, req *Request, onProgress func(Progress)) (*Response, error)
}

// Adapter transforms a request before it is dispatched
type Adapter interface {
	Adapt(ctx context.Context, req *Request) (*Request, error)
}

// AdapterFunc adapts a function to Adapter
type AdapterFunc func(ctx context.Context, req *Request) (*Request, error)

// Adapt calls f(ctx, req)
func (f AdapterFunc) Adapt(ctx context.Context, req *Request) (*Request, error) {
	return f(ctx, req)
}

// AdaptDecider decides how to recover from a failure by adapting the request
type AdaptDecider interface {
	ShouldAdapt(ctx context.Context, err error, req *Request) (Decision, error)
}

// AdaptDeciderFunc adapts a function to AdaptDecider
type AdaptDeciderFunc func(ctx context.Context, err error, req *Request) (Decision, error)

// ShouldAdapt calls f(ctx, err, req)
func (f AdaptDeciderFunc) ShouldAdapt(ctx context.Context, err error, req *Request) (Decision, error) {
	return f(ctx, err, req)
}

// Retrier decides whether a failed request is attempted again.
// The 1-based attempt number is available through AttemptFromContext.
type Retrier interface {
	ShouldRetry(ctx context.Context, err error, req *Request) (Decision, error)
}

// RetrierFunc adapts a function to Retrier
type RetrierFunc func(ctx context.Context, err error, req *Request) (Decision, error)

// ShouldRetry calls f(ctx, err, req)
func (f RetrierFunc) ShouldRetry(ctx context.Context, err error, req *Request) (Decision, error) {
	return f(ctx, err, req)
}

// Interceptor both adapts requests before dispatch and decides retries after failure
type Interceptor interface {
	Adapter
	Retrier
}

// Validator inspects a successful response. It must not panic and has no side effects.
type Validator interface {
	Validate(body []byte, resp *Response) Validation
}

// ValidatorFunc adapts a function to Validator
type ValidatorFunc func(body []byte, resp *Response) Validation

// Validate calls f(body, resp)
func (f ValidatorFunc) Validate(body []byte, resp *Response) Validation {
	return f(body, resp)
}

// Decoder turns a payload into a typed value
type Decoder[T any] interface {
	Decode(data []byte) (T, error)
}

// DecoderFunc adapts a function to Decoder
type DecoderFunc[T any] func(data []byte) (T, error)

// Decode calls f(data)
func (f DecoderFunc[T]) Decode(data []byte) (T, error) {
	return f(data)
}

// Decoded is the output of a decode stage
type Decoded[T any] struct {
	// Value is the decoded payload
	Value T

	// Response is the response the value was decoded from
	Response *Response
}

// Executor runs asynchronous stage work
type Executor interface {
	Go(fn func())
}

// ExecutorFunc adapts a function to Executor
type ExecutorFunc func(fn func())

// Go calls f(fn)
func (f ExecutorFunc) Go(fn func()) {
	f(fn)
}

// GoExecutor runs every function on its own goroutine
var GoExecutor Executor = ExecutorFunc(func(fn func()) { go fn() })

// Task defines the task interface
type Task interface {
	// Execute executes the task
	Execute(ctx context.Context) error

	// ID returns the task ID
	ID() string
}

// WorkerPool defines the worker pool interface
type WorkerPool interface {
	// Submit submits a task to the worker pool
	Submit(task Task) error

	// SubmitWithTimeout submits a task to the worker pool with timeout
	SubmitWithTimeout(task Task, timeout time.Duration) error

	// Start starts the worker pool
	Start(ctx context.Context) error

	// Stop stops the worker pool
	Stop() error

	// Size returns the size of the worker pool
	Size() int

	// Stats returns worker pool statistics
	Stats() WorkerPoolStats
}

// WorkerPoolStats defines basic statistics for worker pools
type WorkerPoolStats struct {
	// PoolSize is the size of the pool
	PoolSize int

	// ActiveWorkers is the number of workers currently running a task
	ActiveWorkers int

	// QueueSize is the current number of tasks in the queue
	QueueSize int

	// QueueCapacity is the capacity of the queue
	QueueCapacity int

	// Completed is the number of tasks finished
	Completed int64

	// Failed is the number of tasks that returned an error or panicked
	Failed int64
}

// Result defines the result of asynchronous execution
type Result[R any] struct {
	// Value is the execution result
	Value R

	// Error is the execution error
	Error error

	// Duration is the execution time
	Duration time.Duration
}

// BatchResult defines the result of batch execution
type BatchResult[R any] struct {
	// Index is the index of the input
	Index int

	// Value is the execution result
	Value R

	// Error is the execution error
	Error error

	// Duration is the execution time
	Duration time.Duration
}
