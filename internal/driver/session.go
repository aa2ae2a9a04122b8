package driver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/JakeFAU/bar-directory-crawler/internal/fetcher"
	"github.com/JakeFAU/bar-directory-crawler/internal/logging"
	"github.com/JakeFAU/bar-directory-crawler/internal/metrics"
	"github.com/JakeFAU/bar-directory-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/bar-directory-crawler/internal/record"
)

// Session is the state of one Search call: its limiter, its fetcher and cookie jar,
// the dedup set, and scratch values drivers thread between pages. Requests issued
// through a Session are strictly serial.
type Session struct {
	base    *Base
	limiter *ratelimit.Limiter
	fetcher fetcher.Fetcher
	log     *logging.Logger
	opts    Options
	seen    map[string]struct{}
	values  map[string]string
}

// Do paces, sends, and classifies one request, retrying 429/403 and transport
// failures as the limiter allows. A nil error means a 2xx non-challenge response,
// or a 3xx when req.NoRedirect is set. Failures carry a *FetchError and, where one
// was received, the response.
func (s *Session) Do(ctx context.Context, req fetcher.Request) (fetcher.Response, error) {
	site := s.base.cfg.Name
	for {
		if err := s.limiter.Wait(ctx); err != nil {
			return fetcher.Response{}, err
		}
		req.Header = withUserAgent(req.Header, s.limiter.UserAgent())
		s.log.Scrape(req.MethodOrDefault(), zap.String("url", req.URL))

		resp, err := s.fetcher.Do(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return fetcher.Response{}, fmt.Errorf("fetch %s: %w", req.URL, ctx.Err())
			}
			metrics.ObserveRequest(site, metrics.OutcomeTransport)
			s.log.Warn("transport error", zap.String("url", req.URL), zap.Error(err))
			if s.limiter.HandleBlock(ctx, 0) {
				continue
			}
			if ctx.Err() != nil {
				return fetcher.Response{}, fmt.Errorf("fetch %s: %w", req.URL, ctx.Err())
			}
			return fetcher.Response{}, &FetchError{Kind: ErrTransport, URL: req.URL, Err: err}
		}

		switch code := resp.StatusCode; {
		case code == http.StatusTooManyRequests || code == http.StatusForbidden:
			metrics.ObserveRequest(site, metrics.OutcomeRateLimited)
			s.log.Warn("blocked", zap.String("url", req.URL), zap.Int("status", code),
				zap.Int("blocks", s.limiter.Blocks()+1))
			if s.limiter.HandleBlock(ctx, code) {
				continue
			}
			if ctx.Err() != nil {
				return resp, fmt.Errorf("fetch %s: %w", req.URL, ctx.Err())
			}
			return resp, &FetchError{Kind: ErrRateLimited, URL: req.URL, Status: code}
		case code >= 200 && code < 300:
			if s.base.DetectCaptcha(resp.Body) {
				metrics.ObserveRequest(site, metrics.OutcomeChallenge)
				return resp, &FetchError{Kind: ErrBlockedContent, URL: req.URL, Status: code}
			}
			s.limiter.ResetBackoff()
			metrics.ObserveRequest(site, metrics.OutcomeOK)
			return resp, nil
		case code >= 300 && code < 400 && req.NoRedirect:
			metrics.ObserveRequest(site, metrics.OutcomeRedirect)
			return resp, nil
		default:
			metrics.ObserveRequest(site, metrics.OutcomeUnexpected)
			return resp, &FetchError{Kind: ErrUnexpectedResponse, URL: req.URL, Status: code}
		}
	}
}

// Get is Do for a plain GET.
func (s *Session) Get(ctx context.Context, rawURL string) (fetcher.Response, error) {
	return s.Do(ctx, fetcher.Request{Method: http.MethodGet, URL: rawURL})
}

// Follow walks a redirect chain by hand, one paced GET per hop, so cookies set on
// intermediate responses are kept. It stops after maxHops hops.
func (s *Session) Follow(ctx context.Context, resp fetcher.Response, maxHops int) (fetcher.Response, error) {
	for hop := 0; isRedirect(resp.StatusCode); hop++ {
		if hop >= maxHops {
			return resp, &FetchError{Kind: ErrUnexpectedResponse, URL: resp.URL, Status: resp.StatusCode,
				Err: errors.New("too many redirects")}
		}
		loc := resp.Header.Get("Location")
		if loc == "" {
			return resp, &FetchError{Kind: ErrUnexpectedResponse, URL: resp.URL, Status: resp.StatusCode,
				Err: errors.New("redirect without location")}
		}
		next, err := resolve(resp.URL, loc)
		if err != nil {
			return resp, &FetchError{Kind: ErrUnexpectedResponse, URL: resp.URL, Status: resp.StatusCode, Err: err}
		}
		resp, err = s.Do(ctx, fetcher.Request{Method: http.MethodGet, URL: next, NoRedirect: true})
		if err != nil {
			return resp, err
		}
		if resp.URL == "" {
			resp.URL = next
		}
	}
	return resp, nil
}

// Enrich runs the driver's profile waterfall on rec unless profiles are disabled.
// Failures are logged and returned; the record keeps whatever the primary search
// supplied.
func (s *Session) Enrich(ctx context.Context, rec *record.Record) error {
	if s.opts.SkipProfiles || rec == nil {
		return nil
	}
	err := s.base.EnrichFromProfile(ctx, s, rec)
	if err != nil && ctx.Err() == nil {
		s.log.Warn("profile enrichment failed", zap.String("profile_url", rec.ProfileURL), zap.Error(err))
	}
	return err
}

// Seen reports whether a record with the same dedup key was already yielded.
func (s *Session) Seen(rec record.Record) bool {
	_, ok := s.seen[rec.Key()]
	return ok
}

func (s *Session) markSeen(key string) bool {
	if _, ok := s.seen[key]; ok {
		return false
	}
	s.seen[key] = struct{}{}
	return true
}

// Value returns a session-scoped scratch value.
func (s *Session) Value(key string) string {
	return s.values[key]
}

// SetValue stores a session-scoped scratch value, such as hidden form state.
func (s *Session) SetValue(key, value string) {
	s.values[key] = value
}

// Limiter exposes the session's limiter.
func (s *Session) Limiter() *ratelimit.Limiter {
	return s.limiter
}

// Logger exposes the session's logger.
func (s *Session) Logger() *logging.Logger {
	return s.log
}

// Options returns the search options the session was opened with.
func (s *Session) Options() Options {
	return s.opts
}

// URL resolves ref against the driver's base URL.
func (s *Session) URL(ref string) string {
	u, err := resolve(s.base.cfg.BaseURL+"/", ref)
	if err != nil {
		return ref
	}
	return u
}

func withUserAgent(h http.Header, ua string) http.Header {
	if h.Get("User-Agent") != "" {
		return h
	}
	out := h.Clone()
	if out == nil {
		out = http.Header{}
	}
	out.Set("User-Agent", ua)
	return out
}

func isRedirect(code int) bool {
	switch code {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	default:
		return false
	}
}

func resolve(base, ref string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parse reference: %w", err)
	}
	return b.ResolveReference(r).String(), nil
}
