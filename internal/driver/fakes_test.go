package driver

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/bar-directory-crawler/internal/fetcher"
	"github.com/JakeFAU/bar-directory-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/bar-directory-crawler/internal/record"
	"github.com/JakeFAU/bar-directory-crawler/internal/useragent"
)

type reply struct {
	status int
	body   string
	header http.Header
	err    error
}

// fakeFetcher serves queued replies per URL. An exhausted queue answers 200 with
// an empty body.
type fakeFetcher struct {
	mu      sync.Mutex
	replies map[string][]reply
	calls   []fetcher.Request
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{replies: make(map[string][]reply)}
}

func (f *fakeFetcher) on(url string, replies ...reply) *fakeFetcher {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies[url] = append(f.replies[url], replies...)
	return f
}

func (f *fakeFetcher) Do(_ context.Context, req fetcher.Request) (fetcher.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	queue := f.replies[req.URL]
	r := reply{status: http.StatusOK}
	if len(queue) > 0 {
		r = queue[0]
		f.replies[req.URL] = queue[1:]
	}
	if r.err != nil {
		return fetcher.Response{}, r.err
	}
	return fetcher.Response{URL: req.URL, StatusCode: r.status, Body: []byte(r.body), Header: r.header}, nil
}

func (f *fakeFetcher) Calls() []fetcher.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fetcher.Request(nil), f.calls...)
}

func (f *fakeFetcher) factory() fetcher.Factory {
	return func() (fetcher.Fetcher, error) { return f, nil }
}

type recordingPauser struct {
	mu     sync.Mutex
	pauses []time.Duration
}

func (p *recordingPauser) Pause(ctx context.Context, d time.Duration) error {
	p.mu.Lock()
	p.pauses = append(p.pauses, d)
	p.mu.Unlock()
	return ctx.Err()
}

var errBoom = errors.New("connection reset")

func testDeps(f *fakeFetcher, maxRetries int) Deps {
	return Deps{
		Agents: useragent.NewPool([]string{"test-agent"}),
		Limits: ratelimit.Config{
			BaseDelay:      50 * time.Millisecond,
			MaxRetries:     maxRetries,
			BackoffInitial: time.Second,
			BackoffFactor:  2,
			BackoffMax:     time.Minute,
		},
		LimiterOptions: []ratelimit.Option{
			ratelimit.WithPauser(&recordingPauser{}),
			ratelimit.WithJitter(func(time.Duration) time.Duration { return 0 }),
		},
		NewFetcher: f.factory(),
	}
}

func newTestBase(t *testing.T, cfg Config, deps Deps, opts ...BaseOption) *Base {
	t.Helper()
	if cfg.Name == "" {
		cfg.Name = "test-site"
	}
	b, err := NewBase(cfg, deps, opts...)
	require.NoError(t, err)
	return b
}

// linePage fetches "<base>/<unit>/<page>" and treats each body line as "Full Name|bar".
func linePage(ctx context.Context, s *Session, unit string, page int) (Page, error) {
	resp, err := s.Get(ctx, pageURL(unit, page))
	if err != nil {
		return Page{}, err
	}
	var out Page
	for _, line := range strings.Split(strings.TrimSpace(string(resp.Body)), "\n") {
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "|", 3)
		rec := record.Record{FullName: parts[0]}
		if len(parts) > 1 {
			rec.BarNumber = parts[1]
		}
		if len(parts) > 2 {
			rec.AdmissionDate = parts[2]
		}
		out.Records = append(out.Records, rec)
	}
	return out, nil
}

func pageURL(unit string, page int) string {
	return "https://directory.test/" + unit + "/" + string(rune('0'+page))
}

func collect(seq func(func(Item) bool)) []Item {
	var items []Item
	for it := range seq {
		items = append(items, it)
	}
	return items
}

func kinds(items []Item) (records, progress, blocked int) {
	for _, it := range items {
		switch it.Kind {
		case KindRecord:
			records++
		case KindProgress:
			progress++
		case KindBlocked:
			blocked++
		}
	}
	return records, progress, blocked
}
