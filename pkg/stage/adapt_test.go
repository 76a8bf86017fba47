package stage

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jzx17/httptask/internal/testutils"
	"github.com/jzx17/httptask/pkg/types"
)

func TestAdaptStage_PreflightInstalledIntoSource(t *testing.T) {
	tr := testutils.NewFakeTransport()
	src := NewSource(tr, types.Get("https://example.com"))
	s := NewAdaptStage(src, WithPreflight(types.AdapterFunc(func(_ context.Context, r *types.Request) (*types.Request, error) {
		return r.WithHeader("Authorization", "Bearer t"), nil
	})))

	_, err := Await[*types.Response](testutils.Context(t), s)
	require.NoError(t, err)
	assert.Equal(t, "Bearer t", tr.Requests()[0].Header.Get("Authorization"))
	assert.Empty(t, s.CurrentRequest().Header.Get("Authorization"))
}

func TestAdaptStage_WithoutDeciderPassesFailureThrough(t *testing.T) {
	tr := testutils.NewFakeTransport(types.Failure(testutils.ErrExpected))
	s := NewAdaptStage(NewSource(tr, types.Get("https://example.com")))

	_, err := Await[*types.Response](testutils.Context(t), s)
	var te *types.TransportError
	assert.ErrorAs(t, err, &te)
	assert.Equal(t, 1, tr.Calls())
}

func TestAdaptStage_DeciderReplacesRequest(t *testing.T) {
	tr := testutils.NewFakeTransport(types.Failure(testutils.ErrExpected), types.Success(testutils.OKResponse(nil)))
	s := NewAdaptStage(NewSource(tr, types.Get("https://example.com")),
		WithDecider(types.AdaptDeciderFunc(func(_ context.Context, _ error, req *types.Request) (types.Decision, error) {
			return types.RetryWithRequest(req.WithHeader("X-Refreshed", "1")), nil
		})))

	_, err := Await[*types.Response](testutils.Context(t), s)
	require.NoError(t, err)

	sent := tr.Requests()
	require.Len(t, sent, 2)
	assert.Empty(t, sent[0].Header.Get("X-Refreshed"))
	assert.Equal(t, "1", sent[1].Header.Get("X-Refreshed"))
}

func TestAdaptStage_DropWithReason(t *testing.T) {
	tr := testutils.NewFakeTransport(types.Failure(testutils.ErrExpected))
	s := NewAdaptStage(NewSource(tr, types.Get("https://example.com")),
		WithDecider(types.AdaptDeciderFunc(func(context.Context, error, *types.Request) (types.Decision, error) {
			return types.DropWithReason("token expired"), nil
		})))

	_, err := Await[*types.Response](testutils.Context(t), s)
	var af *types.AdaptFailure
	require.ErrorAs(t, err, &af)
	assert.Equal(t, "token expired", af.Reason)
	assert.ErrorIs(t, err, testutils.ErrExpected)
}

func TestAdaptStage_DeciderError(t *testing.T) {
	deciderErr := errors.New("cannot refresh")
	tr := testutils.NewFakeTransport(types.Failure(testutils.ErrExpected))
	s := NewAdaptStage(NewSource(tr, types.Get("https://example.com")),
		WithDecider(types.AdaptDeciderFunc(func(context.Context, error, *types.Request) (types.Decision, error) {
			return types.Decision{}, deciderErr
		})))

	_, err := Await[*types.Response](testutils.Context(t), s)
	var ae *types.AdaptError
	require.ErrorAs(t, err, &ae)
	assert.ErrorIs(t, err, deciderErr)
	assert.ErrorIs(t, err, testutils.ErrExpected)
	assert.NotNil(t, ae.Cause)
}

func TestAdaptStage_ComposesWithRetry(t *testing.T) {
	tr := testutils.NewFakeTransport(types.Failure(testutils.ErrExpected), types.Success(testutils.OKResponse([]byte("ok"))))
	src := NewSource(tr, types.Get("https://example.com"))

	var calls int32
	adapted := NewAdaptStage(src, WithPreflight(types.AdapterFunc(func(_ context.Context, r *types.Request) (*types.Request, error) {
		atomic.AddInt32(&calls, 1)
		return r, nil
	})))
	retried := NewRetryStage(adapted, types.RetrierFunc(func(context.Context, error, *types.Request) (types.Decision, error) {
		return types.Retry(), nil
	}), WithRetryDelay(0))

	resp, err := Await[*types.Response](testutils.Context(t), retried)
	require.NoError(t, err)
	assert.Equal(t, []byte("ok"), resp.Body)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls), "pre-flight runs before every dispatch")
}
