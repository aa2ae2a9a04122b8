// Package fetcher defines the transport contract drivers use to talk to directory
// sites. Implementations live in subpackages.
package fetcher

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"time"
)

// DefaultTimeout bounds a single HTTP exchange when configuration sets none.
const DefaultTimeout = 30 * time.Second

// Request describes one outbound HTTP call.
type Request struct {
	Method string
	URL    string
	Header http.Header
	// Form is sent url-encoded as the body when Body is empty.
	Form url.Values
	Body []byte
	// NoRedirect returns a 3xx response unfollowed.
	NoRedirect bool
}

// Payload returns the encoded request body, or nil for a bodiless request.
func (r Request) Payload() []byte {
	if len(r.Body) > 0 {
		return r.Body
	}
	if len(r.Form) > 0 {
		return []byte(r.Form.Encode())
	}
	return nil
}

// MethodOrDefault returns Method, defaulting to POST for requests with a payload and
// GET otherwise.
func (r Request) MethodOrDefault() string {
	if r.Method != "" {
		return r.Method
	}
	if r.Payload() != nil {
		return http.MethodPost
	}
	return http.MethodGet
}

// Response captures the result of one HTTP exchange.
type Response struct {
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
	Duration   time.Duration
}

// Fetcher performs HTTP exchanges for a single session. Transport failures are
// returned as errors; every HTTP status is returned as a Response with a nil error.
// A Fetcher owns its cookie jar and is not shared between sessions.
type Fetcher interface {
	Do(ctx context.Context, req Request) (Response, error)
}

// Factory builds a fresh Fetcher for each session.
type Factory func() (Fetcher, error)

// Config is shared by the fetcher implementations.
type Config struct {
	Timeout   time.Duration
	Transport http.RoundTripper
}

// TimeoutOrDefault returns the configured timeout or DefaultTimeout.
func (c Config) TimeoutOrDefault() time.Duration {
	if c.Timeout <= 0 {
		return DefaultTimeout
	}
	return c.Timeout
}

// NewHTTPTransport returns a pooled transport with conservative dial timeouts.
func NewHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          20,
		IdleConnTimeout:       90 * time.Second,
	}
}
