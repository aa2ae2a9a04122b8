// Package collyfetcher implements fetcher.Fetcher using gocolly. It suits HTML
// directories whose search forms depend on session cookies and postbacks.
package collyfetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"sync/atomic"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/bar-directory-crawler/internal/fetcher"
)

const maxRedirects = 10

// Fetcher implements fetcher.Fetcher using a Colly collector. Each request runs on a
// clone of the base collector; clones share the backend and cookie jar.
type Fetcher struct {
	cfg           fetcher.Config
	baseCollector *colly.Collector
	noRedirect    atomic.Bool
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher with its own cookie jar.
func New(cfg fetcher.Config) (*Fetcher, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
		colly.IgnoreRobotsTxt(),
	)
	transport := cfg.Transport
	if transport == nil {
		transport = fetcher.NewHTTPTransport()
	}
	c.WithTransport(transport)
	c.SetCookieJar(jar)
	c.SetRequestTimeout(cfg.TimeoutOrDefault())

	f := &Fetcher{cfg: cfg, baseCollector: c}
	c.SetRedirectHandler(f.checkRedirect)
	return f, nil
}

// NewFactory returns a fetcher.Factory producing colly fetchers.
func NewFactory(cfg fetcher.Config) fetcher.Factory {
	return func() (fetcher.Fetcher, error) {
		return New(cfg)
	}
}

// Do executes one request. Non-2xx statuses are returned as responses.
func (f *Fetcher) Do(ctx context.Context, request fetcher.Request) (fetcher.Response, error) {
	var (
		result   fetcher.Response
		fetchErr error
	)
	start := time.Now()
	collector := f.baseCollector.Clone()
	collector.Context = ctx
	f.configureCollectorHooks(collector, start, &result, &fetchErr)
	f.noRedirect.Store(request.NoRedirect)

	if err := f.runCollector(ctx, collector, request, &fetchErr); err != nil {
		return fetcher.Response{}, err
	}
	return result, nil
}

func (f *Fetcher) checkRedirect(_ *http.Request, via []*http.Request) error {
	if f.noRedirect.Load() || len(via) >= maxRedirects {
		return http.ErrUseLastResponse
	}
	return nil
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	start time.Time,
	result *fetcher.Response,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		if r.Headers != nil && r.Headers.Get("Accept") == "*/*" {
			r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/json;q=0.9,*/*;q=0.8")
		}
	})

	hooks.OnResponse(func(r *colly.Response) {
		var headers http.Header
		if r.Headers != nil {
			headers = r.Headers.Clone()
		}
		u := ""
		if r.Request != nil && r.Request.URL != nil {
			u = r.Request.URL.String()
		}
		*result = fetcher.Response{
			URL:        u,
			StatusCode: r.StatusCode,
			Header:     headers,
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})

	hooks.OnError(func(_ *colly.Response, err error) {
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, request fetcher.Request, fetchErr *error) error {
	hdr := request.Header.Clone()
	if hdr == nil {
		hdr = http.Header{}
	}
	var body io.Reader
	if payload := request.Payload(); payload != nil {
		body = bytes.NewReader(payload)
		if len(request.Body) == 0 && hdr.Get("Content-Type") == "" {
			hdr.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}

	done := make(chan error, 1)
	go func() {
		done <- collector.Request(request.MethodOrDefault(), request.URL, body, nil, hdr)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
				return fmt.Errorf("colly fetch canceled: %w", ctxErr)
			}
			return fmt.Errorf("colly request failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
}
