// Package formtable drives ASP.NET WebForms directories: a GET for the search
// form, a POST carrying the hidden view state, and postback pagination through
// __EVENTTARGET/__EVENTARGUMENT. Profile pages share the search session, so they
// are fetched inline right after the results page that listed them.
package formtable

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"iter"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/bar-directory-crawler/internal/config"
	"github.com/JakeFAU/bar-directory-crawler/internal/driver"
	"github.com/JakeFAU/bar-directory-crawler/internal/drivers/profilepage"
	"github.com/JakeFAU/bar-directory-crawler/internal/fetcher"
	"github.com/JakeFAU/bar-directory-crawler/internal/record"
)

const (
	viewState  = "__VIEWSTATE"
	eventTgt   = "__EVENTTARGET"
	eventArg   = "__EVENTARGUMENT"
	stateKey   = "formtable.state"
	actionKey  = "formtable.action"
	defaultRow = "tr"
)

var totalPattern = regexp.MustCompile(`\d[\d,]*`)

// Driver is a configurable WebForms results-table driver.
type Driver struct {
	*driver.Base
	form config.FormConfig
}

// New builds a Driver from site configuration. Enrichment defaults to inline.
func New(site config.SiteConfig, deps driver.Deps) (*Driver, error) {
	mode := driver.EnrichInline
	if site.EnrichMode != "" {
		mode = driver.ParseEnrichMode(site.EnrichMode)
	}
	d := &Driver{form: site.Form}
	if d.form.RowSelector == "" {
		d.form.RowSelector = defaultRow
	}
	base, err := driver.NewBase(driver.Config{
		Name:                site.Name,
		Region:              site.Region,
		Country:             site.Country,
		BaseURL:             site.BaseURL,
		PageSize:            site.PageSize,
		PracticeAreas:       site.PracticeAreas,
		Units:               site.Units,
		UnitKind:            driver.UnitKind(site.UnitKind),
		MaxConsecutiveEmpty: site.MaxConsecutiveEmpty,
		EnrichMode:          mode,
	}, deps, driver.WithEnricher(driver.Waterfall{{Name: "profile", Run: d.profile}}))
	if err != nil {
		return nil, err
	}
	d.Base = base
	return d, nil
}

// Search implements driver.Driver.
func (d *Driver) Search(ctx context.Context, query string, opts driver.Options) iter.Seq[driver.Item] {
	code, ok := d.ResolvePracticeCode(query)
	if !ok && strings.TrimSpace(query) != "" {
		d.Logger().Warn("searching without practice area filter", zap.String("query", query))
	}
	return d.Base.Search(ctx, query, opts, func(ctx context.Context, s *driver.Session, unit string, page int) (driver.Page, error) {
		return d.page(ctx, s, query, code, unit, page)
	})
}

func (d *Driver) page(ctx context.Context, s *driver.Session, query, code, unit string, page int) (driver.Page, error) {
	var (
		resp fetcher.Response
		err  error
	)
	if page == 1 {
		resp, err = d.submitSearch(ctx, s, code, unit)
	} else {
		resp, err = d.postback(ctx, s, page)
	}
	if err != nil {
		return driver.Page{}, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return driver.Page{}, driver.Unexpected("parse results page: %v", err)
	}
	state := hiddenFields(doc)
	if state.Get(viewState) != "" {
		s.SetValue(stateKey, state.Encode())
		s.SetValue(actionKey, formAction(doc, resp.URL))
	}

	out := driver.Page{Records: d.rows(doc, resp.URL)}
	if total, ok := d.total(doc); ok {
		out.Total, out.HasTotal = total, true
	}
	if d.Config().EnrichMode == driver.EnrichInline {
		d.enrichRows(ctx, s, query, out.Records)
	}
	return out, nil
}

// enrichRows fetches profiles for the rows of one results page. Once the site
// starts blocking, the remaining rows keep only their listing fields.
func (d *Driver) enrichRows(ctx context.Context, s *driver.Session, query string, rows []record.Record) {
	for i := range rows {
		rec := &rows[i]
		if rec.ProfileURL == "" || s.Seen(d.TransformResult(*rec, query)) {
			continue
		}
		err := s.Enrich(ctx, rec)
		if errors.Is(err, driver.ErrBlockedContent) || errors.Is(err, driver.ErrRateLimited) {
			d.Logger().Warn("profiles blocked, skipping remaining rows",
				zap.String("profile_url", rec.ProfileURL), zap.Int("skipped", len(rows)-i-1))
			return
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func (d *Driver) submitSearch(ctx context.Context, s *driver.Session, code, unit string) (fetcher.Response, error) {
	searchURL := s.URL(d.form.SearchPath)
	resp, err := s.Get(ctx, searchURL)
	if err != nil {
		return resp, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return resp, driver.Unexpected("parse search form: %v", err)
	}
	form := hiddenFields(doc)
	if form.Get(viewState) == "" {
		return resp, driver.Incompatible("search form at %s has no %s", searchURL, viewState)
	}
	for _, f := range d.form.Fields {
		form.Set(f.Name, f.Value)
	}
	if d.form.CityField != "" {
		form.Set(d.form.CityField, unit)
	}
	if d.form.PracticeField != "" && code != "" {
		form.Set(d.form.PracticeField, code)
	}
	if d.form.SubmitField != "" {
		form.Set(d.form.SubmitField, d.form.SubmitValue)
	}
	return s.Do(ctx, fetcher.Request{Method: "POST", URL: formAction(doc, resp.URL), Form: form})
}

func (d *Driver) postback(ctx context.Context, s *driver.Session, page int) (fetcher.Response, error) {
	form, err := url.ParseQuery(s.Value(stateKey))
	if err != nil || form.Get(viewState) == "" {
		return fetcher.Response{}, driver.Incompatible("results page carried no %s for paging", viewState)
	}
	if d.form.PagerTarget == "" {
		return fetcher.Response{}, driver.Incompatible("no pager target configured")
	}
	form.Set(eventTgt, d.form.PagerTarget)
	form.Set(eventArg, "Page$"+strconv.Itoa(page))
	return s.Do(ctx, fetcher.Request{Method: "POST", URL: s.Value(actionKey), Form: form})
}

func (d *Driver) rows(doc *goquery.Document, pageURL string) []record.Record {
	var out []record.Record
	doc.Find(d.form.RowSelector).Each(func(_ int, row *goquery.Selection) {
		cells := row.ChildrenFiltered("td")
		if cells.Length() == 0 {
			return
		}
		var rec record.Record
		for field, idx := range d.form.Columns {
			if idx >= 0 && idx < cells.Length() {
				rec.Set(field, cells.Eq(idx).Text())
			}
		}
		if d.form.ProfileLinkSelector != "" {
			if href, ok := row.Find(d.form.ProfileLinkSelector).First().Attr("href"); ok {
				rec.ProfileURL = resolve(pageURL, href)
			}
		}
		out = append(out, rec)
	})
	return out
}

func (d *Driver) total(doc *goquery.Document) (int, bool) {
	if d.form.TotalSelector == "" {
		return 0, false
	}
	sel := doc.Find(d.form.TotalSelector).First()
	if sel.Length() == 0 {
		return 0, false
	}
	m := totalPattern.FindString(sel.Text())
	if m == "" {
		return 0, false
	}
	n, err := strconv.Atoi(strings.ReplaceAll(m, ",", ""))
	if err != nil {
		return 0, false
	}
	return n, true
}

func (d *Driver) profile(ctx context.Context, s *driver.Session, rec record.Record) (record.Record, error) {
	if rec.ProfileURL == "" {
		return record.Record{}, nil
	}
	resp, err := s.Get(ctx, rec.ProfileURL)
	if err != nil {
		return record.Record{}, err
	}
	found, err := profilepage.Parse(resp.Body, resp.URL, d.form.ProfileLabels)
	if err != nil {
		return record.Record{}, fmt.Errorf("profile %s: %w", rec.ProfileURL, err)
	}
	return found, nil
}

func hiddenFields(doc *goquery.Document) url.Values {
	form := url.Values{}
	doc.Find(`input[type="hidden"]`).Each(func(_ int, in *goquery.Selection) {
		if name, ok := in.Attr("name"); ok && name != "" {
			form.Set(name, in.AttrOr("value", ""))
		}
	})
	return form
}

func formAction(doc *goquery.Document, pageURL string) string {
	action, ok := doc.Find("form").First().Attr("action")
	if !ok || strings.TrimSpace(action) == "" {
		return pageURL
	}
	return resolve(pageURL, action)
}

func resolve(base, ref string) string {
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}
