// Package types defines the core data model and contracts of the httptask pipeline
package types

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Request describes one HTTP request issued through a pipeline.
// Requests are treated as immutable once handed to a stage; use Clone or the
// With* helpers to derive a modified copy.
type Request struct {
	// Method is the HTTP method, GET when empty
	Method string

	// URL is the absolute request URL
	URL string

	// Header holds request headers
	Header http.Header

	// Body is the request payload (may be nil)
	Body []byte
}

// NewRequest creates a request with the given method and URL
func NewRequest(method, url string) *Request {
	return &Request{
		Method: method,
		URL:    url,
		Header: make(http.Header),
	}
}

// Get creates a GET request
func Get(url string) *Request {
	return NewRequest(http.MethodGet, url)
}

// EffectiveMethod returns the method, defaulting to GET
func (r *Request) EffectiveMethod() string {
	if r.Method == "" {
		return http.MethodGet
	}
	return strings.ToUpper(r.Method)
}

// Clone returns a deep copy of the request
func (r *Request) Clone() *Request {
	if r == nil {
		return nil
	}
	clone := &Request{
		Method: r.Method,
		URL:    r.URL,
		Header: r.Header.Clone(),
	}
	if clone.Header == nil {
		clone.Header = make(http.Header)
	}
	if r.Body != nil {
		clone.Body = append([]byte(nil), r.Body...)
	}
	return clone
}

// WithHeader returns a copy of the request with the header set
func (r *Request) WithHeader(key, value string) *Request {
	clone := r.Clone()
	clone.Header.Set(key, value)
	return clone
}

// WithBody returns a copy of the request carrying body
func (r *Request) WithBody(body []byte) *Request {
	clone := r.Clone()
	clone.Body = append([]byte(nil), body...)
	return clone
}

// Key returns the identity fingerprint used for deduplication.
// Two requests with the same method, URL, headers and body share a key.
func (r *Request) Key() string {
	h := sha256.New()
	h.Write([]byte(r.EffectiveMethod()))
	h.Write([]byte{0})
	h.Write([]byte(r.URL))
	h.Write([]byte{0})

	names := make([]string, 0, len(r.Header))
	for name := range r.Header {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		h.Write([]byte(http.CanonicalHeaderKey(name)))
		h.Write([]byte{':'})
		h.Write([]byte(strings.Join(r.Header[name], ",")))
		h.Write([]byte{0})
	}

	bodySum := sha256.Sum256(r.Body)
	h.Write(bodySum[:])
	return hex.EncodeToString(h.Sum(nil))
}

// String returns "METHOD URL"
func (r *Request) String() string {
	if r == nil {
		return "<nil request>"
	}
	return fmt.Sprintf("%s %s", r.EffectiveMethod(), r.URL)
}

// Response is the raw result of a transport call: payload bytes plus metadata
type Response struct {
	// StatusCode is the HTTP status code
	StatusCode int

	// Header holds response headers
	Header http.Header

	// Body is the full response payload
	Body []byte
}

// Outcome is the result of one completed attempt: either a response or an error
type Outcome struct {
	Response *Response
	Err      error
}

// Success creates a successful outcome
func Success(resp *Response) Outcome {
	return Outcome{Response: resp}
}

// Failure creates a failed outcome
func Failure(err error) Outcome {
	return Outcome{Err: err}
}

// IsSuccess reports whether the outcome carries a response
func (o Outcome) IsSuccess() bool {
	return o.Err == nil
}

// Progress is a non-terminal event describing transfer progress of a request
type Progress struct {
	// Request is the request being transferred
	Request *Request

	// BytesReceived is the number of payload bytes received so far
	BytesReceived int64

	// BytesExpected is the expected payload size, -1 when unknown
	BytesExpected int64
}

// Fraction returns the completed fraction in [0,1], or -1 when the size is unknown
func (p Progress) Fraction() float64 {
	if p.BytesExpected <= 0 {
		return -1
	}
	f := float64(p.BytesReceived) / float64(p.BytesExpected)
	if f > 1 {
		return 1
	}
	return f
}
