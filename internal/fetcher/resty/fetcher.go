// Package restyfetcher implements fetcher.Fetcher with go-resty. It suits JSON
// search endpoints and plain profile pages.
package restyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"sync/atomic"

	"github.com/go-resty/resty/v2"

	"github.com/JakeFAU/bar-directory-crawler/internal/fetcher"
)

const maxRedirects = 10

var errTooManyRedirects = errors.New("stopped after 10 redirects")

// Fetcher wraps one resty client, and therefore one cookie jar, per session.
type Fetcher struct {
	client     *resty.Client
	noRedirect atomic.Bool
}

// New builds a Fetcher with its own cookie jar.
func New(cfg fetcher.Config) (*Fetcher, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	transport := cfg.Transport
	if transport == nil {
		transport = fetcher.NewHTTPTransport()
	}
	f := &Fetcher{}
	f.client = resty.New().
		SetTransport(transport).
		SetCookieJar(jar).
		SetTimeout(cfg.TimeoutOrDefault()).
		SetRedirectPolicy(resty.RedirectPolicyFunc(f.checkRedirect))
	return f, nil
}

// NewFactory returns a fetcher.Factory producing resty fetchers.
func NewFactory(cfg fetcher.Config) fetcher.Factory {
	return func() (fetcher.Fetcher, error) {
		return New(cfg)
	}
}

func (f *Fetcher) checkRedirect(_ *http.Request, via []*http.Request) error {
	if f.noRedirect.Load() {
		return http.ErrUseLastResponse
	}
	if len(via) >= maxRedirects {
		return errTooManyRedirects
	}
	return nil
}

// Do executes one request. Non-2xx statuses are returned as responses.
func (f *Fetcher) Do(ctx context.Context, request fetcher.Request) (fetcher.Response, error) {
	f.noRedirect.Store(request.NoRedirect)
	r := f.client.R().SetContext(ctx)
	if len(request.Header) > 0 {
		r.SetHeaderMultiValues(request.Header)
	}
	if payload := request.Payload(); payload != nil {
		if len(request.Body) == 0 && request.Header.Get("Content-Type") == "" {
			r.SetHeader("Content-Type", "application/x-www-form-urlencoded")
		}
		r.SetBody(payload)
	}

	resp, err := r.Execute(request.MethodOrDefault(), request.URL)
	if err != nil {
		return fetcher.Response{}, fmt.Errorf("resty request failed: %w", err)
	}
	finalURL := request.URL
	if resp.RawResponse != nil && resp.RawResponse.Request != nil {
		finalURL = resp.RawResponse.Request.URL.String()
	}
	return fetcher.Response{
		URL:        finalURL,
		StatusCode: resp.StatusCode(),
		Header:     resp.Header().Clone(),
		Body:       append([]byte(nil), resp.Body()...),
		Duration:   resp.Time(),
	}, nil
}
