package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jzx17/httptask/internal/testutils"
	"github.com/jzx17/httptask/pkg/pipeline"
	"github.com/jzx17/httptask/pkg/retry"
	"github.com/jzx17/httptask/pkg/types"
)

func TestDefaultPipelineConfig(t *testing.T) {
	cfg := DefaultPipelineConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "use_current_if_possible", cfg.Duplication)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, retry.BackoffExponential, cfg.Retry.Backoff)
}

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(`
duplication: drop_if_duplicated
timeout: 2s
allow_status: [200, 204]
retry:
  max_attempts: 5
  delay: 50ms
  backoff: linear
  jitter: equal
`))
	require.NoError(t, err)
	assert.Equal(t, "drop_if_duplicated", cfg.Duplication)
	assert.Equal(t, 2*time.Second, cfg.Timeout)
	assert.Equal(t, []int{200, 204}, cfg.AllowStatus)
	assert.True(t, cfg.ValidateStatus, "unset fields keep their defaults")
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, 50*time.Millisecond, cfg.Retry.Delay)
	assert.Equal(t, retry.BackoffLinear, cfg.Retry.Backoff)
	assert.Equal(t, 2.0, cfg.Retry.Multiplier)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "malformed", yaml: "retry: ["},
		{name: "unknown policy", yaml: "duplication: sometimes"},
		{name: "negative timeout", yaml: "timeout: -1s"},
		{name: "bad status", yaml: "allow_status: [42]"},
		{name: "negative attempts", yaml: "retry: {max_attempts: -1}"},
		{name: "unknown backoff", yaml: "retry: {backoff: cubic}"},
		{name: "small multiplier", yaml: "retry: {multiplier: 0.5}"},
		{name: "unknown jitter", yaml: "retry: {jitter: wild}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte("retry:\n  max_attempts: 2\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Retry.MaxAttempts)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestApply(t *testing.T) {
	cfg, err := Parse([]byte(`
retry:
  max_attempts: 3
  delay: 0s
  backoff: fixed
`))
	require.NoError(t, err)

	opts, err := cfg.Options()
	require.NoError(t, err)

	tr := testutils.NewFakeTransport(
		types.Success(testutils.StatusResponse(502, nil)),
		types.Success(testutils.OKResponse([]byte("ok"))),
	)
	p, err := cfg.Apply(pipeline.New(tr, types.Get("https://example.com"), opts...))
	require.NoError(t, err)

	resp, err := p.Execute(testutils.Context(t))
	require.NoError(t, err)
	assert.Equal(t, []byte("ok"), resp.Body)
	assert.Equal(t, 2, tr.Calls())
}

func TestApply_NoRetry(t *testing.T) {
	cfg := DefaultPipelineConfig()
	cfg.Retry.MaxAttempts = 0

	tr := testutils.NewFakeTransport(types.Success(testutils.StatusResponse(500, nil)))
	p, err := cfg.Apply(pipeline.New(tr, types.Get("https://example.com")))
	require.NoError(t, err)

	_, err = p.Execute(testutils.Context(t))
	var vf *types.ValidationFailure
	assert.ErrorAs(t, err, &vf)
	assert.Equal(t, 1, tr.Calls())
}
