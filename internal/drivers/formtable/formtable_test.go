package formtable

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/bar-directory-crawler/internal/config"
	"github.com/JakeFAU/bar-directory-crawler/internal/driver"
	"github.com/JakeFAU/bar-directory-crawler/internal/fetcher"
	collyfetcher "github.com/JakeFAU/bar-directory-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/bar-directory-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/bar-directory-crawler/internal/record"
	"github.com/JakeFAU/bar-directory-crawler/internal/useragent"
)

const searchForm = `<html><body>
<form method="post" action="./Search.aspx" id="form1">
<input type="hidden" name="__VIEWSTATE" value="vs-search" />
<input type="hidden" name="__EVENTVALIDATION" value="ev-search" />
<input type="text" name="ctl00$City" />
</form></body></html>`

const resultsPage = `<html><body>
<form method="post" action="./Search.aspx" id="form1">
<input type="hidden" name="__VIEWSTATE" value="vs-results" />
<input type="hidden" name="__EVENTVALIDATION" value="ev-results" />
<span id="count">Showing %d results</span>
<table id="results">
<tr><th>Name</th><th>Number</th><th>City</th></tr>
%s
</table></form></body></html>`

const profile = `<html><body><dl>
<dt>Email</dt><dd>jane@doe.ca</dd>
<dt>Firm</dt><dd>Doe Legal</dd>
<dt>Called to the Bar</dt><dd>2012</dd>
</dl></body></html>`

type nopPauser struct{}

func (nopPauser) Pause(ctx context.Context, _ time.Duration) error { return ctx.Err() }

type aspServer struct {
	*httptest.Server
	posts atomic.Int32
}

func newASPServer(t *testing.T, withState bool) *aspServer {
	t.Helper()
	srv := &aspServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("/Search.aspx", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			http.SetCookie(w, &http.Cookie{Name: "ASP.NET_SessionId", Value: "s1", Path: "/"})
			if !withState {
				_, _ = io.WriteString(w, "<html><body><form></form></body></html>")
				return
			}
			_, _ = io.WriteString(w, searchForm)
			return
		}
		srv.posts.Add(1)
		if err := r.ParseForm(); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if r.PostForm.Get("__EVENTTARGET") == "ctl00$Grid" {
			if r.PostForm.Get("__VIEWSTATE") != "vs-results" || r.PostForm.Get("__EVENTARGUMENT") != "Page$2" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			_, _ = fmt.Fprintf(w, resultsPage, 3, `<tr><td>Ann Lee</td><td>103</td><td>Toronto</td></tr>`)
			return
		}
		if r.PostForm.Get("__VIEWSTATE") != "vs-search" ||
			r.PostForm.Get("ctl00$City") != "Toronto" ||
			r.PostForm.Get("ctl00$Practice") != "FAM" ||
			r.PostForm.Get("ctl00$Mode") != "Advanced" {
			_, _ = fmt.Fprintf(w, resultsPage, 0, "")
			return
		}
		_, _ = fmt.Fprintf(w, resultsPage, 3,
			`<tr><td>Doe, Jane</td><td>101</td><td>Toronto</td><td><a class="profile" href="Profile.aspx?id=101">View</a></td></tr>
<tr><td>John Smith</td><td>102</td><td>Toronto</td></tr>`)
	})
	mux.HandleFunc("/Profile.aspx", func(w http.ResponseWriter, r *http.Request) {
		if _, err := r.Cookie("ASP.NET_SessionId"); err != nil {
			_, _ = io.WriteString(w, "<html><body>Session expired</body></html>")
			return
		}
		_, _ = io.WriteString(w, profile)
	})
	srv.Server = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testSite(baseURL string) config.SiteConfig {
	return config.SiteConfig{
		Name:          "test-bar",
		Kind:          config.KindFormTable,
		Region:        "ON",
		Country:       "CA",
		BaseURL:       baseURL,
		PageSize:      2,
		Units:         []string{"Toronto"},
		PracticeAreas: map[string]string{"Family Law": "FAM"},
		Form: config.FormConfig{
			SearchPath:          "Search.aspx",
			CityField:           "ctl00$City",
			PracticeField:       "ctl00$Practice",
			PagerTarget:         "ctl00$Grid",
			Fields:              []config.Param{{Name: "ctl00$Mode", Value: "Advanced"}},
			RowSelector:         "#results tr",
			Columns:             map[string]int{"full_name": 0, "bar_number": 1, "city": 2},
			ProfileLinkSelector: "a.profile",
			TotalSelector:       "#count",
		},
	}
}

func testDeps() driver.Deps {
	return driver.Deps{
		Agents:         useragent.NewPool([]string{"test-agent"}),
		Limits:         ratelimit.Config{MaxRetries: 2},
		LimiterOptions: []ratelimit.Option{ratelimit.WithPauser(nopPauser{})},
		NewFetcher:     collyfetcher.NewFactory(fetcher.Config{Timeout: 5 * time.Second}),
	}
}

func records(items []driver.Item) []record.Record {
	var out []record.Record
	for _, it := range items {
		if it.Kind == driver.KindRecord {
			out = append(out, it.Record)
		}
	}
	return out
}

func TestSearchPostbackPagination(t *testing.T) {
	t.Parallel()
	srv := newASPServer(t, true)
	d, err := New(testSite(srv.URL), testDeps())
	require.NoError(t, err)
	require.Equal(t, driver.EnrichInline, d.Config().EnrichMode)

	var items []driver.Item
	for it := range d.Search(context.Background(), "family law", driver.Options{}) {
		items = append(items, it)
	}
	require.Equal(t, driver.KindProgress, items[0].Kind)

	recs := records(items)
	require.Len(t, recs, 3)
	require.Equal(t, int32(2), srv.posts.Load())

	jane := recs[0]
	require.Equal(t, "Jane", jane.FirstName)
	require.Equal(t, "Doe", jane.LastName)
	require.Equal(t, "101", jane.BarNumber)
	require.Equal(t, "jane@doe.ca", jane.Email)
	require.Equal(t, "Doe Legal", jane.FirmName)
	require.Equal(t, "2012", jane.AdmissionDate)
	require.Equal(t, "ON", jane.State)
	require.Equal(t, "family law", jane.PracticeArea)
	require.Equal(t, srv.URL+"/Profile.aspx?id=101", jane.ProfileURL)

	require.Equal(t, "John", recs[1].FirstName)
	require.Empty(t, recs[1].Email)
	require.Equal(t, "Ann Lee", recs[2].FullName)
}

func TestSearchSkipProfiles(t *testing.T) {
	t.Parallel()
	srv := newASPServer(t, true)
	d, err := New(testSite(srv.URL), testDeps())
	require.NoError(t, err)

	var recs []record.Record
	for it := range d.Search(context.Background(), "family law", driver.Options{SkipProfiles: true, MaxPages: 1}) {
		if it.Kind == driver.KindRecord {
			recs = append(recs, it.Record)
		}
	}
	require.Len(t, recs, 2)
	require.Empty(t, recs[0].Email)
}

func TestSearchWithoutViewStateIsIncompatible(t *testing.T) {
	t.Parallel()
	srv := newASPServer(t, false)
	d, err := New(testSite(srv.URL), testDeps())
	require.NoError(t, err)

	var kinds []driver.Kind
	for it := range d.Search(context.Background(), "family law", driver.Options{}) {
		kinds = append(kinds, it.Kind)
	}
	require.Equal(t, []driver.Kind{driver.KindProgress}, kinds)
	require.Zero(t, srv.posts.Load())
}

func TestEnrichModeOverride(t *testing.T) {
	t.Parallel()
	site := testSite("https://directory.test")
	site.EnrichMode = "deferred"
	d, err := New(site, testDeps())
	require.NoError(t, err)
	require.Equal(t, driver.EnrichDeferred, d.Config().EnrichMode)
}

func TestInlineEnrichmentStopsWhenProfilesBlocked(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name    string
		profile http.HandlerFunc
		calls   int32
	}{
		{
			name: "rate limited",
			profile: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusTooManyRequests)
			},
			calls: 2,
		},
		{
			name: "challenge page",
			profile: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = io.WriteString(w, "<html><head><title>Just a moment...</title></head><body></body></html>")
			},
			calls: 1,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			var profiles atomic.Int32
			mux := http.NewServeMux()
			mux.HandleFunc("/Search.aspx", func(w http.ResponseWriter, r *http.Request) {
				if r.Method == http.MethodGet {
					_, _ = io.WriteString(w, searchForm)
					return
				}
				_, _ = fmt.Fprintf(w, resultsPage, 3,
					`<tr><td>Jane Doe</td><td>101</td><td>Toronto</td><td><a class="profile" href="Profile.aspx?id=101">View</a></td></tr>
<tr><td>John Smith</td><td>102</td><td>Toronto</td><td><a class="profile" href="Profile.aspx?id=102">View</a></td></tr>
<tr><td>Ann Lee</td><td>103</td><td>Toronto</td><td><a class="profile" href="Profile.aspx?id=103">View</a></td></tr>`)
			})
			mux.HandleFunc("/Profile.aspx", func(w http.ResponseWriter, r *http.Request) {
				profiles.Add(1)
				tc.profile(w, r)
			})
			srv := httptest.NewServer(mux)
			t.Cleanup(srv.Close)

			site := testSite(srv.URL)
			site.PageSize = 3
			d, err := New(site, testDeps())
			require.NoError(t, err)

			var recs []record.Record
			for it := range d.Search(context.Background(), "family law", driver.Options{MaxPages: 1}) {
				if it.Kind == driver.KindRecord {
					recs = append(recs, it.Record)
				}
			}
			require.Len(t, recs, 3, "listing fields are still yielded")
			require.Equal(t, tc.calls, profiles.Load(), "no profile requests after the first block")
		})
	}
}
