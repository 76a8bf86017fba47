// Package transport provides the net/http implementation of types.Transport
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/jzx17/httptask/pkg/types"
)

// ErrBodyTooLarge indicates the response payload exceeded the configured limit
var ErrBodyTooLarge = errors.New("response body too large")

const (
	defaultTimeout     = 30 * time.Second
	defaultMaxBodySize = 32 << 20
	readChunkSize      = 32 << 10
)

// HTTPTransport sends requests with an http.Client and buffers the whole payload.
// Every call is exactly one round trip; retries belong to the pipeline.
type HTTPTransport struct {
	client      *http.Client
	logger      *zap.Logger
	maxBodySize int64
	headers     http.Header
	clock       types.Clock
}

var _ types.ProgressTransport = (*HTTPTransport)(nil)

// Option configures an HTTPTransport
type Option func(*HTTPTransport)

// WithClient sets the underlying client
func WithClient(client *http.Client) Option {
	return func(t *HTTPTransport) {
		if client != nil {
			t.client = client
		}
	}
}

// WithTimeout sets the client timeout for one round trip including the body read
func WithTimeout(d time.Duration) Option {
	return func(t *HTTPTransport) {
		if d > 0 {
			c := *t.client
			c.Timeout = d
			t.client = &c
		}
	}
}

// WithMaxBodySize limits how many payload bytes are buffered
func WithMaxBodySize(n int64) Option {
	return func(t *HTTPTransport) {
		if n > 0 {
			t.maxBodySize = n
		}
	}
}

// WithDefaultHeader adds a header sent with every request that does not set it
func WithDefaultHeader(key, value string) Option {
	return func(t *HTTPTransport) {
		t.headers.Add(key, value)
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(t *HTTPTransport) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithClock sets the clock used to time round trips
func WithClock(clock types.Clock) Option {
	return func(t *HTTPTransport) {
		if clock != nil {
			t.clock = clock
		}
	}
}

// New creates an HTTP transport
func New(opts ...Option) *HTTPTransport {
	t := &HTTPTransport{
		client:      &http.Client{Timeout: defaultTimeout},
		logger:      zap.NewNop(),
		maxBodySize: defaultMaxBodySize,
		headers:     make(http.Header),
		clock:       types.NewRealClock(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Send implements types.Transport
func (t *HTTPTransport) Send(ctx context.Context, req *types.Request) (*types.Response, error) {
	return t.SendWithProgress(ctx, req, nil)
}

// SendWithProgress implements types.ProgressTransport.
// onProgress is called after every chunk read from the body; it may be nil.
func (t *HTTPTransport) SendWithProgress(ctx context.Context, req *types.Request, onProgress func(types.Progress)) (*types.Response, error) {
	if req == nil {
		return nil, types.ErrNilRequest
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.EffectiveMethod(), req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for key, values := range t.headers {
		if req.Header.Get(key) == "" {
			httpReq.Header[key] = append([]string(nil), values...)
		}
	}
	for key, values := range req.Header {
		httpReq.Header[key] = append([]string(nil), values...)
	}

	start := t.clock.Now()
	httpResp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	payload, err := t.readBody(httpResp, req, onProgress)
	if err != nil {
		return nil, err
	}

	t.logger.Debug("round trip",
		zap.Stringer("request", req),
		zap.Int("status", httpResp.StatusCode),
		zap.Int("bytes", len(payload)),
		zap.Duration("elapsed", t.clock.Since(start)))

	return &types.Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       payload,
	}, nil
}

func (t *HTTPTransport) readBody(httpResp *http.Response, req *types.Request, onProgress func(types.Progress)) ([]byte, error) {
	expected := httpResp.ContentLength
	if expected > t.maxBodySize {
		return nil, fmt.Errorf("%w: %d bytes announced", ErrBodyTooLarge, expected)
	}

	var buf bytes.Buffer
	if expected > 0 {
		buf.Grow(int(expected))
	}
	limited := io.LimitReader(httpResp.Body, t.maxBodySize+1)
	chunk := make([]byte, readChunkSize)
	for {
		n, err := limited.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
			if int64(buf.Len()) > t.maxBodySize {
				return nil, ErrBodyTooLarge
			}
			if onProgress != nil {
				onProgress(types.Progress{Request: req, BytesReceived: int64(buf.Len()), BytesExpected: expected})
			}
		}
		if errors.Is(err, io.EOF) {
			return buf.Bytes(), nil
		}
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
	}
}
