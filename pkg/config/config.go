// Package config loads pipeline settings from YAML
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jzx17/httptask/pkg/cache"
	"github.com/jzx17/httptask/pkg/pipeline"
	"github.com/jzx17/httptask/pkg/retry"
	"github.com/jzx17/httptask/pkg/stage"
)

// RetryConfig configures the retry stage
type RetryConfig struct {
	// MaxAttempts is the total number of dispatches; zero disables retry
	MaxAttempts int `yaml:"max_attempts"`

	// Delay is the initial delay before a retry
	Delay time.Duration `yaml:"delay"`

	// Backoff is one of fixed, exponential, linear, decorrelated
	Backoff retry.BackoffKind `yaml:"backoff"`

	// Multiplier is the growth factor of exponential backoff
	Multiplier float64 `yaml:"multiplier"`

	// MaxDelay caps the backoff delay
	MaxDelay time.Duration `yaml:"max_delay"`

	// Jitter is one of none, full, equal
	Jitter string `yaml:"jitter"`
}

// PipelineConfig is the YAML form of a pipeline
type PipelineConfig struct {
	// Duplication is the duplication policy name
	Duplication string `yaml:"duplication"`

	// Timeout bounds Execute
	Timeout time.Duration `yaml:"timeout"`

	// AllowStatus lists the accepted status codes; empty accepts any 2xx
	AllowStatus []int `yaml:"allow_status"`

	// ValidateStatus turns on status validation
	ValidateStatus bool `yaml:"validate_status"`

	Retry RetryConfig `yaml:"retry"`
}

// DefaultPipelineConfig returns the default configuration
func DefaultPipelineConfig() *PipelineConfig {
	return &PipelineConfig{
		Duplication:    cache.UseCurrentIfPossible.String(),
		Timeout:        pipeline.DefaultTimeout,
		ValidateStatus: true,
		Retry: RetryConfig{
			MaxAttempts: 3,
			Delay:       stage.DefaultRetryDelay,
			Backoff:     retry.BackoffExponential,
			Multiplier:  2.0,
			MaxDelay:    retry.DefaultMaxDelay,
			Jitter:      "none",
		},
	}
}

// Validate checks the configuration for errors
func (c *PipelineConfig) Validate() error {
	var errs []error

	if _, err := cache.ParsePolicy(c.Duplication); err != nil {
		errs = append(errs, err)
	}
	if c.Timeout < 0 {
		errs = append(errs, fmt.Errorf("timeout must not be negative, got %s", c.Timeout))
	}
	for _, code := range c.AllowStatus {
		if code < 100 || code > 599 {
			errs = append(errs, fmt.Errorf("invalid status code %d", code))
		}
	}

	r := c.Retry
	if r.MaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("retry.max_attempts must not be negative, got %d", r.MaxAttempts))
	}
	if r.Delay < 0 {
		errs = append(errs, fmt.Errorf("retry.delay must not be negative, got %s", r.Delay))
	}
	if r.MaxDelay < 0 {
		errs = append(errs, fmt.Errorf("retry.max_delay must not be negative, got %s", r.MaxDelay))
	}
	if r.Multiplier != 0 && r.Multiplier < 1 {
		errs = append(errs, fmt.Errorf("retry.multiplier must be at least 1, got %g", r.Multiplier))
	}
	if _, err := retry.NewBackoff(r.Backoff, r.Delay); err != nil {
		errs = append(errs, fmt.Errorf("retry.backoff: %w", err))
	}
	if _, err := jitterFunc(r.Jitter); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// Parse decodes YAML over the defaults and validates the result
func Parse(data []byte) (*PipelineConfig, error) {
	cfg := DefaultPipelineConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse pipeline config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline config: %w", err)
	}
	return cfg, nil
}

// Load reads and parses the YAML file at path
func Load(path string) (*PipelineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pipeline config: %w", err)
	}
	return Parse(data)
}

// Options maps the configuration onto pipeline options
func (c *PipelineConfig) Options() ([]pipeline.Option, error) {
	policy, err := cache.ParsePolicy(c.Duplication)
	if err != nil {
		return nil, err
	}
	return []pipeline.Option{
		pipeline.WithDuplicationPolicy(policy),
		pipeline.WithTimeout(c.Timeout),
	}, nil
}

// RetryOptions maps the retry section onto retry stage options
func (c *PipelineConfig) RetryOptions() ([]stage.Option, error) {
	r := c.Retry

	var backoffOpts []retry.BackoffOption
	if r.Multiplier != 0 {
		backoffOpts = append(backoffOpts, retry.WithMultiplier(r.Multiplier))
	}
	if r.MaxDelay > 0 {
		backoffOpts = append(backoffOpts, retry.WithMaxDelay(r.MaxDelay))
	}
	jitter, err := jitterFunc(r.Jitter)
	if err != nil {
		return nil, err
	}
	if jitter != nil {
		backoffOpts = append(backoffOpts, retry.WithJitter(jitter))
	}

	backoff, err := retry.NewBackoff(r.Backoff, r.Delay, backoffOpts...)
	if err != nil {
		return nil, err
	}
	return []stage.Option{stage.WithBackoff(backoff)}, nil
}

// Apply builds validation and retry onto p as configured
func (c *PipelineConfig) Apply(p *pipeline.Pipeline, opts ...retry.PolicyOption) (*pipeline.Pipeline, error) {
	if c.ValidateStatus {
		p = p.Allow(c.AllowStatus...)
	}
	if c.Retry.MaxAttempts <= 1 {
		return p, nil
	}
	retryOpts, err := c.RetryOptions()
	if err != nil {
		return nil, err
	}
	return p.Retry(retry.NewPolicy(c.Retry.MaxAttempts, opts...), retryOpts...), nil
}

func jitterFunc(name string) (retry.JitterFunc, error) {
	switch name {
	case "", "none":
		return nil, nil
	case "full":
		return retry.FullJitter, nil
	case "equal":
		return retry.EqualJitter, nil
	default:
		return nil, fmt.Errorf("unknown jitter %q", name)
	}
}
