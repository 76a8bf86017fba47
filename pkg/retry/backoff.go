package retry

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"
)

// DefaultMaxDelay caps growing backoff strategies unless WithMaxDelay says otherwise
const DefaultMaxDelay = 30 * time.Second

// BackoffStrategy computes the delay before a retry attempt
type BackoffStrategy interface {
	// NextDelay returns the delay before the given 1-based attempt
	NextDelay(attempt int) time.Duration

	// Reset clears any state carried between attempts
	Reset()
}

// BackoffKind names a backoff strategy in configuration
type BackoffKind string

const (
	BackoffFixed        BackoffKind = "fixed"
	BackoffExponential  BackoffKind = "exponential"
	BackoffLinear       BackoffKind = "linear"
	BackoffDecorrelated BackoffKind = "decorrelated"
)

type backoffConfig struct {
	multiplier float64
	increment  time.Duration
	maxDelay   time.Duration
	jitter     JitterFunc
}

// BackoffOption configures a backoff strategy
type BackoffOption func(*backoffConfig)

// WithMultiplier sets the growth factor of exponential backoff
func WithMultiplier(multiplier float64) BackoffOption {
	return func(c *backoffConfig) {
		if multiplier >= 1 {
			c.multiplier = multiplier
		}
	}
}

// WithIncrement sets the step of linear backoff; it defaults to the initial delay
func WithIncrement(increment time.Duration) BackoffOption {
	return func(c *backoffConfig) {
		if increment >= 0 {
			c.increment = increment
		}
	}
}

// WithMaxDelay caps the computed delay
func WithMaxDelay(maxDelay time.Duration) BackoffOption {
	return func(c *backoffConfig) {
		if maxDelay > 0 {
			c.maxDelay = maxDelay
		}
	}
}

// WithJitter randomizes every computed delay
func WithJitter(jitter JitterFunc) BackoffOption {
	return func(c *backoffConfig) {
		c.jitter = jitter
	}
}

func newBackoffConfig(initial time.Duration, opts []BackoffOption) backoffConfig {
	c := backoffConfig{
		multiplier: 2.0,
		increment:  initial,
		maxDelay:   DefaultMaxDelay,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

func (c backoffConfig) finish(delay time.Duration) time.Duration {
	if delay > c.maxDelay || delay < 0 {
		delay = c.maxDelay
	}
	if c.jitter != nil {
		delay = c.jitter(delay)
	}
	return delay
}

// FixedBackoff waits the same delay before every attempt
type FixedBackoff struct {
	delay time.Duration
	cfg   backoffConfig
}

// NewFixedBackoff creates a fixed backoff
func NewFixedBackoff(delay time.Duration, opts ...BackoffOption) *FixedBackoff {
	return &FixedBackoff{delay: delay, cfg: newBackoffConfig(delay, opts)}
}

// NextDelay implements BackoffStrategy
func (b *FixedBackoff) NextDelay(int) time.Duration {
	if b.cfg.jitter != nil {
		return b.cfg.jitter(b.delay)
	}
	return b.delay
}

// Reset implements BackoffStrategy
func (b *FixedBackoff) Reset() {}

// ExponentialBackoff multiplies the delay by a constant factor per attempt
type ExponentialBackoff struct {
	initial time.Duration
	cfg     backoffConfig
}

// NewExponentialBackoff creates an exponential backoff, doubling by default
func NewExponentialBackoff(initial time.Duration, opts ...BackoffOption) *ExponentialBackoff {
	return &ExponentialBackoff{initial: initial, cfg: newBackoffConfig(initial, opts)}
}

// NextDelay implements BackoffStrategy
func (b *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	scaled := float64(b.initial) * math.Pow(b.cfg.multiplier, float64(attempt-1))
	if scaled > float64(math.MaxInt64) {
		return b.cfg.finish(b.cfg.maxDelay)
	}
	return b.cfg.finish(time.Duration(scaled))
}

// Reset implements BackoffStrategy
func (b *ExponentialBackoff) Reset() {}

// LinearBackoff adds a constant increment per attempt
type LinearBackoff struct {
	initial time.Duration
	cfg     backoffConfig
}

// NewLinearBackoff creates a linear backoff
func NewLinearBackoff(initial time.Duration, opts ...BackoffOption) *LinearBackoff {
	return &LinearBackoff{initial: initial, cfg: newBackoffConfig(initial, opts)}
}

// NextDelay implements BackoffStrategy
func (b *LinearBackoff) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return b.cfg.finish(b.initial + time.Duration(attempt-1)*b.cfg.increment)
}

// Reset implements BackoffStrategy
func (b *LinearBackoff) Reset() {}

// DecorrelatedJitterBackoff picks each delay at random between the base delay and
// three times the previous one, capped by the max delay.
type DecorrelatedJitterBackoff struct {
	base time.Duration
	cfg  backoffConfig

	mu   sync.Mutex
	prev time.Duration
}

// NewDecorrelatedJitterBackoff creates a decorrelated jitter backoff
func NewDecorrelatedJitterBackoff(base time.Duration, opts ...BackoffOption) *DecorrelatedJitterBackoff {
	return &DecorrelatedJitterBackoff{base: base, cfg: newBackoffConfig(base, opts), prev: base}
}

// NextDelay implements BackoffStrategy
func (b *DecorrelatedJitterBackoff) NextDelay(int) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	upper := b.prev * 3
	if upper > b.cfg.maxDelay {
		upper = b.cfg.maxDelay
	}
	if upper <= b.base {
		b.prev = b.base
		return b.base
	}
	b.prev = b.base + rand.N(upper-b.base)
	return b.prev
}

// Reset implements BackoffStrategy
func (b *DecorrelatedJitterBackoff) Reset() {
	b.mu.Lock()
	b.prev = b.base
	b.mu.Unlock()
}

// NewBackoff builds a strategy by kind
func NewBackoff(kind BackoffKind, initial time.Duration, opts ...BackoffOption) (BackoffStrategy, error) {
	switch kind {
	case "", BackoffFixed:
		return NewFixedBackoff(initial, opts...), nil
	case BackoffExponential:
		return NewExponentialBackoff(initial, opts...), nil
	case BackoffLinear:
		return NewLinearBackoff(initial, opts...), nil
	case BackoffDecorrelated:
		return NewDecorrelatedJitterBackoff(initial, opts...), nil
	default:
		return nil, fmt.Errorf("unknown backoff kind %q", kind)
	}
}

// JitterFunc randomizes a delay
type JitterFunc func(time.Duration) time.Duration

// FullJitter picks a delay in [0, delay)
func FullJitter(delay time.Duration) time.Duration {
	if delay <= 0 {
		return 0
	}
	return rand.N(delay)
}

// EqualJitter keeps half the delay and randomizes the other half
func EqualJitter(delay time.Duration) time.Duration {
	half := delay / 2
	if half <= 0 {
		return delay
	}
	return half + rand.N(half)
}

// ProportionalJitter spreads the delay by up to ±factor of itself
func ProportionalJitter(factor float64) JitterFunc {
	return func(delay time.Duration) time.Duration {
		if delay <= 0 || factor <= 0 {
			return delay
		}
		spread := (rand.Float64()*2 - 1) * factor * float64(delay)
		result := delay + time.Duration(spread)
		if result < 0 {
			return 0
		}
		return result
	}
}
