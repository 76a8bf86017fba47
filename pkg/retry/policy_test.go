package retry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/jzx17/httptask/pkg/types"
)

var errBoom = errors.New("boom")

func transportErr() error {
	return &types.TransportError{Request: types.Get("https://example.com"), Cause: errBoom}
}

func statusErr(code int) error {
	resp := &types.Response{StatusCode: code}
	return &types.ValidationFailure{Reason: fmt.Sprintf("unexpected status code: %d", code), Response: resp}
}

func attemptCtx(n int) context.Context {
	return types.WithAttempt(context.Background(), n)
}

func TestPolicy_RetriesUntilLimit(t *testing.T) {
	p := NewPolicy(3)
	req := types.Get("https://example.com")

	for attempt := 1; attempt < 3; attempt++ {
		d, err := p.ShouldRetry(attemptCtx(attempt), transportErr(), req)
		require.NoError(t, err)
		assert.Equal(t, types.DecisionRetry, d.Kind, "attempt %d", attempt)
	}

	d, err := p.ShouldRetry(attemptCtx(3), transportErr(), req)
	require.NoError(t, err)
	assert.Equal(t, types.DecisionDropWithReason, d.Kind)
	assert.Equal(t, "max attempts (3) reached", d.Reason)
}

func TestPolicy_NonTransientDropped(t *testing.T) {
	p := NewPolicy(5)
	d, err := p.ShouldRetry(attemptCtx(1), statusErr(404), types.Get("https://example.com"))
	require.NoError(t, err)
	assert.Equal(t, types.DecisionDrop, d.Kind)
}

func TestPolicy_Unlimited(t *testing.T) {
	p := NewPolicy(0)
	d, err := p.ShouldRetry(attemptCtx(1000), transportErr(), nil)
	require.NoError(t, err)
	assert.Equal(t, types.DecisionRetry, d.Kind)
}

func TestPolicy_CustomCondition(t *testing.T) {
	p := NewPolicy(2, WithCondition(OnStatus(409)))

	d, _ := p.ShouldRetry(attemptCtx(1), statusErr(409), nil)
	assert.Equal(t, types.DecisionRetry, d.Kind)

	d, _ = p.ShouldRetry(attemptCtx(1), transportErr(), nil)
	assert.Equal(t, types.DecisionDrop, d.Kind)
}

type recordingHandler struct {
	mu     sync.Mutex
	events []string
}

func (h *recordingHandler) record(kind string, attempt int) {
	h.mu.Lock()
	h.events = append(h.events, fmt.Sprintf("%s:%d", kind, attempt))
	h.mu.Unlock()
}

func (h *recordingHandler) OnRetryAttempt(_ context.Context, attempt int, _ error) {
	h.record("retry", attempt)
}

func (h *recordingHandler) OnGiveUp(_ context.Context, attempt int, _ error) {
	h.record("give_up", attempt)
}

func (h *recordingHandler) OnMaxAttemptsReached(_ context.Context, attempt int, _ error) {
	h.record("max", attempt)
}

func TestPolicy_NotifiesHandler(t *testing.T) {
	h := &recordingHandler{}
	p := NewPolicy(2, WithEventHandler(h))

	_, _ = p.ShouldRetry(attemptCtx(1), transportErr(), nil)
	_, _ = p.ShouldRetry(attemptCtx(2), transportErr(), nil)
	_, _ = p.ShouldRetry(attemptCtx(1), statusErr(400), nil)

	assert.Equal(t, []string{"retry:1", "max:2", "give_up:1"}, h.events)
}

func TestDefaultEventHandler_LogsThroughZap(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	h := NewDefaultEventHandler(zap.New(core).Sugar())
	p := NewPolicy(2, WithEventHandler(h))

	_, _ = p.ShouldRetry(attemptCtx(1), transportErr(), nil)
	_, _ = p.ShouldRetry(attemptCtx(2), transportErr(), nil)

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zap.InfoLevel, entries[0].Level)
	assert.Contains(t, entries[0].Message, "attempt 1 failed, retrying")
	assert.Equal(t, zap.ErrorLevel, entries[1].Level)
	assert.Contains(t, entries[1].Message, "max retry attempts (2) reached")
}

func TestDefaultRetryCondition(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"transport", transportErr(), true},
		{"server error", statusErr(503), true},
		{"too many requests", statusErr(429), true},
		{"client error", statusErr(404), false},
		{"retryable", &types.RetryableError{Err: errBoom, Retryable: true}, true},
		{"not retryable", &types.RetryableError{Err: errBoom, Retryable: false}, false},
		{"canceled transport", &types.TransportError{Cause: context.Canceled}, false},
		{"duplicate", types.ErrDuplicateRequest, false},
		{"plain", errBoom, false},
		{"wrapped status", &types.RetryFailure{Reason: "x", Cause: statusErr(500)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DefaultRetryCondition(tt.err))
		})
	}
}

func TestConditions(t *testing.T) {
	sentinel := errors.New("sentinel")
	cond := Any(OnErrors(sentinel), OnStatus(418))

	assert.True(t, cond(fmt.Errorf("wrapped: %w", sentinel)))
	assert.True(t, cond(statusErr(418)))
	assert.False(t, cond(statusErr(500)))
	assert.False(t, cond(errBoom))
}

func TestSimpleRetriers(t *testing.T) {
	d, err := Never().ShouldRetry(attemptCtx(1), errBoom, nil)
	require.NoError(t, err)
	assert.Equal(t, types.DecisionDrop, d.Kind)

	d, err = Always().ShouldRetry(attemptCtx(99), errBoom, nil)
	require.NoError(t, err)
	assert.Equal(t, types.DecisionRetry, d.Kind)
}

func TestWithRequest(t *testing.T) {
	next := types.Get("https://example.com/next")
	r := WithRequest(func(ctx context.Context, err error, req *types.Request) (*types.Request, error) {
		switch types.AttemptFromContext(ctx) {
		case 1:
			return next, nil
		case 2:
			return nil, nil
		default:
			return nil, errBoom
		}
	})

	d, err := r.ShouldRetry(attemptCtx(1), errBoom, nil)
	require.NoError(t, err)
	assert.Equal(t, types.DecisionRetryWithRequest, d.Kind)
	assert.Same(t, next, d.Request)

	d, err = r.ShouldRetry(attemptCtx(2), errBoom, nil)
	require.NoError(t, err)
	assert.Equal(t, types.DecisionDrop, d.Kind)

	_, err = r.ShouldRetry(attemptCtx(3), errBoom, nil)
	assert.ErrorIs(t, err, errBoom)
}
