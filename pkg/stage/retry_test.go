package stage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jzx17/httptask/internal/testutils"
	"github.com/jzx17/httptask/pkg/types"
)

// scriptedRetrier answers with decisions in order and records the attempts it saw
type scriptedRetrier struct {
	mu        sync.Mutex
	decisions []types.Decision
	attempts  []int
	errs      []error
}

func (s *scriptedRetrier) ShouldRetry(ctx context.Context, err error, req *types.Request) (types.Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts = append(s.attempts, types.AttemptFromContext(ctx))
	s.errs = append(s.errs, err)
	idx := len(s.attempts) - 1
	if idx >= len(s.decisions) {
		idx = len(s.decisions) - 1
	}
	return s.decisions[idx], nil
}

func (s *scriptedRetrier) seen() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.attempts...)
}

func TestRetryStage_RetryThenDrop(t *testing.T) {
	first := errors.New("first failure")
	second := errors.New("second failure")
	tr := testutils.NewFakeTransport(types.Failure(first), types.Failure(second))
	retrier := &scriptedRetrier{decisions: []types.Decision{types.Retry(), types.Drop()}}

	s := NewRetryStage(NewSource(tr, types.Get("https://example.com")), retrier, WithRetryDelay(0))

	_, err := Await[*types.Response](testutils.Context(t), s)
	require.Error(t, err)
	assert.Equal(t, 2, tr.Calls())

	var te *types.TransportError
	require.ErrorAs(t, err, &te, "second failure passes through unwrapped")
	assert.ErrorIs(t, err, second)
	assert.False(t, errors.Is(err, first))

	var rf *types.RetryFailure
	assert.False(t, errors.As(err, &rf))
	assert.Equal(t, []int{1, 2}, retrier.seen())
	assert.Equal(t, Terminal, s.State())
}

func TestRetryStage_RetryUntilSuccess(t *testing.T) {
	tr := testutils.NewFakeTransport(
		types.Failure(testutils.ErrExpected),
		types.Failure(testutils.ErrExpected),
		types.Success(testutils.OKResponse([]byte("done"))),
	)
	retrier := &scriptedRetrier{decisions: []types.Decision{types.Retry()}}
	s := NewRetryStage(NewSource(tr, types.Get("https://example.com")), retrier, WithRetryDelay(0))

	resp, err := Await[*types.Response](testutils.Context(t), s)
	require.NoError(t, err)
	assert.Equal(t, []byte("done"), resp.Body)
	assert.Equal(t, 3, tr.Calls())
	assert.Equal(t, 2, s.Attempts())
}

func TestRetryStage_DropWithReason(t *testing.T) {
	tr := testutils.NewFakeTransport(types.Failure(testutils.ErrExpected))
	req := types.Get("https://example.com")
	retrier := types.RetrierFunc(func(context.Context, error, *types.Request) (types.Decision, error) {
		return types.DropWithReason("x"), nil
	})
	s := NewRetryStage(NewSource(tr, req), retrier)

	_, err := Await[*types.Response](testutils.Context(t), s)
	var rf *types.RetryFailure
	require.ErrorAs(t, err, &rf)
	assert.Equal(t, "x", rf.Reason)
	assert.Same(t, req, rf.Request)
	assert.ErrorIs(t, err, testutils.ErrExpected)

	var te *types.TransportError
	assert.ErrorAs(t, rf.Cause, &te)
	assert.Equal(t, 1, tr.Calls())
}

func TestRetryStage_DeciderErrorIsRetryError(t *testing.T) {
	deciderErr := errors.New("decider broke")
	tr := testutils.NewFakeTransport(types.Failure(testutils.ErrExpected))
	retrier := types.RetrierFunc(func(context.Context, error, *types.Request) (types.Decision, error) {
		return types.Decision{}, deciderErr
	})
	s := NewRetryStage(NewSource(tr, types.Get("https://example.com")), retrier)

	_, err := Await[*types.Response](testutils.Context(t), s)
	var re *types.RetryError
	require.ErrorAs(t, err, &re)
	assert.ErrorIs(t, err, deciderErr)
	assert.ErrorIs(t, err, testutils.ErrExpected)
}

func TestRetryStage_RetryWithRequest(t *testing.T) {
	tr := testutils.NewFakeTransport(types.Failure(testutils.ErrExpected), types.Success(testutils.OKResponse(nil)))
	src := NewSource(tr, types.Get("https://example.com/v1"))
	replacement := types.Get("https://example.com/v2")

	retrier := types.RetrierFunc(func(ctx context.Context, err error, req *types.Request) (types.Decision, error) {
		return types.RetryWithRequest(replacement), nil
	})
	s := NewRetryStage(src, retrier, WithRetryDelay(0))

	_, err := Await[*types.Response](testutils.Context(t), s)
	require.NoError(t, err)

	sent := tr.Requests()
	require.Len(t, sent, 2)
	assert.Equal(t, "https://example.com/v1", sent[0].URL)
	assert.Equal(t, "https://example.com/v2", sent[1].URL)
	assert.Same(t, replacement, s.CurrentRequest())
}

func TestRetryStage_RetryWithNilRequest(t *testing.T) {
	tr := testutils.NewFakeTransport(types.Failure(testutils.ErrExpected))
	retrier := types.RetrierFunc(func(context.Context, error, *types.Request) (types.Decision, error) {
		return types.RetryWithRequest(nil), nil
	})
	s := NewRetryStage(NewSource(tr, types.Get("https://example.com")), retrier)

	_, err := Await[*types.Response](testutils.Context(t), s)
	var re *types.RetryError
	assert.ErrorAs(t, err, &re)
	assert.Equal(t, 1, tr.Calls())
}

func TestRetryStage_AttemptsResetPerDemandCycle(t *testing.T) {
	tr := testutils.NewFakeTransport(
		types.Failure(testutils.ErrExpected),
		types.Success(testutils.OKResponse(nil)),
		types.Failure(testutils.ErrExpected),
		types.Success(testutils.OKResponse(nil)),
	)
	retrier := &scriptedRetrier{decisions: []types.Decision{types.Retry()}}
	s := NewRetryStage(NewSource(tr, types.Get("https://example.com")), retrier, WithRetryDelay(0))

	for i := 0; i < 2; i++ {
		_, err := Await[*types.Response](testutils.Context(t), s)
		require.NoError(t, err)
	}
	assert.Equal(t, []int{1, 1}, retrier.seen())
	assert.Equal(t, 4, tr.Calls())
}

func TestRetryStage_SuccessSkipsRetrier(t *testing.T) {
	tr := testutils.NewFakeTransport()
	retrier := &scriptedRetrier{decisions: []types.Decision{types.Retry()}}
	s := NewRetryStage(NewSource(tr, types.Get("https://example.com")), retrier)

	_, err := Await[*types.Response](testutils.Context(t), s)
	require.NoError(t, err)
	assert.Empty(t, retrier.seen())
}

func TestRetryStage_DelayUsesClock(t *testing.T) {
	mock := testutils.NewMockClock(t)
	clock := testutils.NewClockWrapper(mock)

	tr := testutils.NewFakeTransport(types.Failure(testutils.ErrExpected), types.Success(testutils.OKResponse(nil)))
	retrier := &scriptedRetrier{decisions: []types.Decision{types.Retry()}}
	s := NewRetryStage(NewSource(tr, types.Get("https://example.com")), retrier,
		WithClock(clock), WithRetryDelay(time.Second))

	rec := testutils.NewRecorder[*types.Response]()
	s.Subscribe(rec).Request(1)

	require.Eventually(t, func() bool { return s.State() == Delaying }, time.Second, time.Millisecond)
	assert.Equal(t, 1, tr.Calls())

	ok := testutils.AdvanceUntil(t, mock, time.Second, testutils.DefaultTimeout, func() bool {
		return tr.Calls() == 2
	})
	require.True(t, ok)

	rec.WaitTerminal(t)
	_, err := rec.Outcome()
	assert.NoError(t, err)
}

type stepBackoff struct {
	mu    sync.Mutex
	asked []int
}

func (b *stepBackoff) NextDelay(attempt int) time.Duration {
	b.mu.Lock()
	b.asked = append(b.asked, attempt)
	b.mu.Unlock()
	return 0
}

func TestRetryStage_BackoffConsultedPerAttempt(t *testing.T) {
	tr := testutils.NewFakeTransport(
		types.Failure(testutils.ErrExpected),
		types.Failure(testutils.ErrExpected),
		types.Success(testutils.OKResponse(nil)),
	)
	backoff := &stepBackoff{}
	s := NewRetryStage(NewSource(tr, types.Get("https://example.com")),
		&scriptedRetrier{decisions: []types.Decision{types.Retry()}}, WithBackoff(backoff))

	_, err := Await[*types.Response](testutils.Context(t), s)
	require.NoError(t, err)

	backoff.mu.Lock()
	defer backoff.mu.Unlock()
	assert.Equal(t, []int{1, 2}, backoff.asked)
}

func TestRetryStage_FanOutAcrossRetries(t *testing.T) {
	tr := testutils.NewFakeTransport(types.Failure(testutils.ErrExpected), types.Success(testutils.OKResponse([]byte("ok"))))
	s := NewRetryStage(NewSource(tr, types.Get("https://example.com")),
		&scriptedRetrier{decisions: []types.Decision{types.Retry()}}, WithRetryDelay(0))

	a := testutils.NewRecorder[*types.Response]()
	b := testutils.NewRecorder[*types.Response]()
	s.Subscribe(a).Request(1)
	s.Subscribe(b).Request(1)

	a.WaitTerminal(t)
	b.WaitTerminal(t)
	respA, _ := a.Outcome()
	respB, _ := b.Outcome()
	assert.Same(t, respA, respB)
	assert.Equal(t, 2, tr.Calls())
}

func TestRetryStage_ContextCancelledWhileDelaying(t *testing.T) {
	mock := testutils.NewMockClock(t)
	ctx, cancel := context.WithCancel(context.Background())

	tr := testutils.NewFakeTransport(types.Failure(testutils.ErrExpected))
	s := NewRetryStage(NewSource(tr, types.Get("https://example.com")),
		&scriptedRetrier{decisions: []types.Decision{types.Retry()}},
		WithClock(testutils.NewClockWrapper(mock)), WithContext(ctx), WithRetryDelay(time.Minute))

	rec := testutils.NewRecorder[*types.Response]()
	s.Subscribe(rec).Request(1)
	require.Eventually(t, func() bool { return s.State() == Delaying }, time.Second, time.Millisecond)

	cancel()
	rec.WaitTerminal(t)
	_, err := rec.Outcome()
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, tr.Calls())
}

func TestRetryState_String(t *testing.T) {
	assert.Equal(t, "waiting_upstream", WaitingUpstream.String())
	assert.Equal(t, "awaiting_retry_decision", AwaitingRetryDecision.String())
	assert.Equal(t, "delaying", Delaying.String())
	assert.Equal(t, "terminal", Terminal.String())
	assert.Equal(t, "unknown", RetryState(9).String())
}

func TestRetryStage_RetryAfterExtendsDelay(t *testing.T) {
	mock := testutils.NewMockClock(t)
	throttled := &types.RetryableError{Err: testutils.ErrExpected, Retryable: true, RetryAfter: 3 * time.Second}

	tr := testutils.NewFakeTransport(types.Failure(throttled), types.Success(testutils.OKResponse(nil)))
	s := NewRetryStage(NewSource(tr, types.Get("https://example.com")),
		&scriptedRetrier{decisions: []types.Decision{types.Retry()}},
		WithClock(testutils.NewClockWrapper(mock)), WithRetryDelay(time.Second))

	rec := testutils.NewRecorder[*types.Response]()
	s.Subscribe(rec).Request(1)
	require.Eventually(t, func() bool { return s.State() == Delaying }, time.Second, time.Millisecond)

	mock.Advance(time.Second).MustWait(testutils.Context(t))
	assert.Equal(t, 1, tr.Calls(), "configured delay alone is not enough")

	ok := testutils.AdvanceUntil(t, mock, time.Second, testutils.DefaultTimeout, func() bool {
		return tr.Calls() == 2
	})
	require.True(t, ok)
	rec.WaitTerminal(t)
}
