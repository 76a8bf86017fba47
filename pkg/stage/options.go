package stage

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/jzx17/httptask/pkg/cache"
	"github.com/jzx17/httptask/pkg/metrics"
	"github.com/jzx17/httptask/pkg/types"
)

// DefaultRetryDelay is the pause RetryStage takes before re-pulling upstream
const DefaultRetryDelay = 100 * time.Millisecond

// Backoff computes the delay before the given 1-based retry attempt
type Backoff interface {
	NextDelay(attempt int) time.Duration
}

// options collects the settings of every stage kind; each constructor reads the ones it uses
type options struct {
	name     string
	ctx      context.Context
	logger   *zap.Logger
	metrics  *metrics.Collector
	executor types.Executor
	clock    types.Clock

	// source
	cache     *cache.RequestCache
	policy    cache.DuplicationPolicy
	preflight []types.Adapter

	// retry and adapt
	delay    time.Duration
	delaySet bool
	backoff  Backoff
	decider  types.AdaptDecider
}

// Option configures a stage
type Option func(*options)

func newOptions(name string, opts []Option) *options {
	o := &options{
		name:     name,
		ctx:      context.Background(),
		logger:   zap.NewNop(),
		executor: types.GoExecutor,
		clock:    types.NewRealClock(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithName sets the stage name used in logs and metrics
func WithName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.name = name
		}
	}
}

// WithContext sets the context passed to the transport and to collaborators
func WithContext(ctx context.Context) Option {
	return func(o *options) {
		if ctx != nil {
			o.ctx = ctx
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics sets the metrics collector
func WithMetrics(collector *metrics.Collector) Option {
	return func(o *options) {
		o.metrics = collector
	}
}

// WithExecutor sets where asynchronous stage work runs
func WithExecutor(executor types.Executor) Option {
	return func(o *options) {
		if executor != nil {
			o.executor = executor
		}
	}
}

// WithClock sets the clock used for retry and adapt delays
func WithClock(clock types.Clock) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithCache makes a SourceStage dispatch through a shared request cache
func WithCache(c *cache.RequestCache) Option {
	return func(o *options) {
		o.cache = c
	}
}

// WithDuplicationPolicy sets how a SourceStage treats identical in-flight requests
func WithDuplicationPolicy(policy cache.DuplicationPolicy) Option {
	return func(o *options) {
		o.policy = policy
	}
}

// WithAdapter appends a pre-flight adapter to a SourceStage
func WithAdapter(adapter types.Adapter) Option {
	return func(o *options) {
		if adapter != nil {
			o.preflight = append(o.preflight, adapter)
		}
	}
}

// WithPreflight installs a pre-flight adapter through an AdaptStage.
// It is applied by the source before every dispatch.
func WithPreflight(adapter types.Adapter) Option {
	return WithAdapter(adapter)
}

// WithDecider enables the reactive path of an AdaptStage
func WithDecider(decider types.AdaptDecider) Option {
	return func(o *options) {
		o.decider = decider
	}
}

// WithRetryDelay sets a fixed delay before each retry
func WithRetryDelay(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.delay = d
			o.delaySet = true
		}
	}
}

// WithAdaptDelay sets a fixed delay before an adapted request is re-pulled
func WithAdaptDelay(d time.Duration) Option {
	return WithRetryDelay(d)
}

// WithBackoff computes the delay per attempt, overriding any fixed delay
func WithBackoff(backoff Backoff) Option {
	return func(o *options) {
		o.backoff = backoff
	}
}

// delayFor returns the wait before the given attempt is re-pulled
func (o *options) delayFor(attempt int, fallback time.Duration) time.Duration {
	if o.backoff != nil {
		return o.backoff.NextDelay(attempt)
	}
	if o.delaySet {
		return o.delay
	}
	return fallback
}
