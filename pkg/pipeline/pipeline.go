// Package pipeline composes stages into a request pipeline with a fluent builder
package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/jzx17/httptask/pkg/cache"
	"github.com/jzx17/httptask/pkg/metrics"
	"github.com/jzx17/httptask/pkg/stage"
	"github.com/jzx17/httptask/pkg/types"
	"github.com/jzx17/httptask/pkg/worker"
)

// DefaultTimeout bounds Execute unless WithTimeout says otherwise
const DefaultTimeout = 30 * time.Second

// settings holds the pipeline-wide configuration
type settings struct {
	common  []stage.Option
	source  []stage.Option
	timeout time.Duration
	clock   types.Clock
	logger  *zap.Logger
}

// Option configures a Pipeline
type Option func(*settings)

// WithLogger sets the logger shared by every stage
func WithLogger(logger *zap.Logger) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
			s.common = append(s.common, stage.WithLogger(logger))
		}
	}
}

// WithMetrics sets the collector shared by every stage and the cache
func WithMetrics(collector *metrics.Collector) Option {
	return func(s *settings) {
		s.common = append(s.common, stage.WithMetrics(collector))
	}
}

// WithClock sets the clock used for delays and durations
func WithClock(clock types.Clock) Option {
	return func(s *settings) {
		if clock != nil {
			s.clock = clock
			s.common = append(s.common, stage.WithClock(clock))
		}
	}
}

// WithContext sets the context passed to the transport and collaborators
func WithContext(ctx context.Context) Option {
	return func(s *settings) {
		s.common = append(s.common, stage.WithContext(ctx))
	}
}

// WithExecutor runs asynchronous stage work on executor
func WithExecutor(executor types.Executor) Option {
	return func(s *settings) {
		s.common = append(s.common, stage.WithExecutor(executor))
	}
}

// WithWorkerPool runs asynchronous stage work on a started pool.
// Use a different pool for ExecuteBatch: batch tasks hold their worker until the stage work completes.
func WithWorkerPool(pool *worker.FixedPool) Option {
	return WithExecutor(pool.Executor())
}

// WithCache shares a request cache with other pipelines
func WithCache(c *cache.RequestCache) Option {
	return func(s *settings) {
		s.source = append(s.source, stage.WithCache(c))
	}
}

// WithDuplicationPolicy sets how the source treats an identical in-flight request
func WithDuplicationPolicy(policy cache.DuplicationPolicy) Option {
	return func(s *settings) {
		s.source = append(s.source, stage.WithDuplicationPolicy(policy))
	}
}

// WithTimeout bounds Execute; zero disables the bound
func WithTimeout(timeout time.Duration) Option {
	return func(s *settings) {
		if timeout >= 0 {
			s.timeout = timeout
		}
	}
}

// WithStageOptions passes raw options to every stage
func WithStageOptions(opts ...stage.Option) Option {
	return func(s *settings) {
		s.common = append(s.common, opts...)
	}
}

// Pipeline is a chain of stages ending in a response stage.
// Builder methods wrap the current tail and return the same Pipeline.
type Pipeline struct {
	settings *settings
	source   *stage.SourceStage
	tail     types.HTTPStage
}

// New creates a pipeline dispatching req through transport
func New(transport types.Transport, req *types.Request, opts ...Option) *Pipeline {
	s := &settings{
		timeout: DefaultTimeout,
		clock:   types.NewRealClock(),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	source := stage.NewSource(transport, req, s.stageOptions(s.source...)...)
	return &Pipeline{settings: s, source: source, tail: source}
}

func (s *settings) stageOptions(extra ...stage.Option) []stage.Option {
	opts := make([]stage.Option, 0, len(s.common)+len(extra))
	opts = append(opts, s.common...)
	return append(opts, extra...)
}

// Adapt applies adapter to the request before every dispatch
func (p *Pipeline) Adapt(adapter types.Adapter) *Pipeline {
	p.tail = stage.NewAdaptStage(p.tail, p.settings.stageOptions(stage.WithPreflight(adapter))...)
	return p
}

// AdaptOnFailure lets decider rewrite the request after a failure
func (p *Pipeline) AdaptOnFailure(decider types.AdaptDecider, opts ...stage.Option) *Pipeline {
	all := p.settings.stageOptions(stage.WithDecider(decider))
	p.tail = stage.NewAdaptStage(p.tail, append(all, opts...)...)
	return p
}

// Retry retries failures as decided by retrier
func (p *Pipeline) Retry(retrier types.Retrier, opts ...stage.Option) *Pipeline {
	p.tail = stage.NewRetryStage(p.tail, retrier, append(p.settings.stageOptions(), opts...)...)
	return p
}

// RetryDecision retries failures as decided by fn
func (p *Pipeline) RetryDecision(fn func(ctx context.Context, err error, req *types.Request) (types.Decision, error), opts ...stage.Option) *Pipeline {
	return p.Retry(types.RetrierFunc(fn), opts...)
}

// Intercept installs interceptor as both pre-flight adapter and retrier
func (p *Pipeline) Intercept(interceptor types.Interceptor, opts ...stage.Option) *Pipeline {
	return p.Adapt(interceptor).Retry(interceptor, opts...)
}

// Validate checks successful responses with validator
func (p *Pipeline) Validate(validator types.Validator) *Pipeline {
	p.tail = stage.NewValidateStage(p.tail, validator, p.settings.stageOptions()...)
	return p
}

// ValidateFunc checks successful responses with fn
func (p *Pipeline) ValidateFunc(fn func(body []byte, resp *types.Response) types.Validation) *Pipeline {
	return p.Validate(types.ValidatorFunc(fn))
}

// Allow accepts only the given status codes, or any 2xx when none are given
func (p *Pipeline) Allow(codes ...int) *Pipeline {
	if len(codes) == 0 {
		return p.Validate(stage.AllowSuccess())
	}
	return p.Validate(stage.AllowStatusCodes(codes...))
}

// Stage returns the tail stage for direct subscription
func (p *Pipeline) Stage() types.HTTPStage {
	return p.tail
}

// Source returns the source stage
func (p *Pipeline) Source() *stage.SourceStage {
	return p.source
}
