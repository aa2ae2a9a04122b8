// Package jsonapi drives directories backed by a JSON search endpoint. Result and
// total locations are configured as gjson paths, so one driver covers the common
// shapes ({"results": [...]}, {"data": {"items": [...]}}, bare arrays).
package jsonapi

import (
	"context"
	"fmt"
	"iter"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/JakeFAU/bar-directory-crawler/internal/config"
	"github.com/JakeFAU/bar-directory-crawler/internal/driver"
	"github.com/JakeFAU/bar-directory-crawler/internal/drivers/profilepage"
	"github.com/JakeFAU/bar-directory-crawler/internal/fetcher"
	"github.com/JakeFAU/bar-directory-crawler/internal/record"
)

// sourceIDKey is the Extra key holding the site's own identifier for a record.
const sourceIDKey = "source_id"

const acceptJSON = "application/json, text/javascript;q=0.9, */*;q=0.1"

// Driver is a configurable JSON endpoint driver.
type Driver struct {
	*driver.Base
	api config.APIConfig
}

// New builds a Driver from site configuration. Enrichment defaults to deferred.
func New(site config.SiteConfig, deps driver.Deps) (*Driver, error) {
	d := &Driver{api: site.API}
	steps := driver.Waterfall{
		{Name: "profile-json", Run: d.profileJSON},
		{Name: "profile-page", Run: d.profilePage},
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
		EnrichMode:          driver.ParseEnrichMode(site.EnrichMode),
	}, deps, driver.WithEnricher(steps))
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
		return d.page(ctx, s, code, unit, page)
	})
}

func (d *Driver) page(ctx context.Context, s *driver.Session, code, unit string, page int) (driver.Page, error) {
	target, err := d.searchURL(s, placeholders{
		unit:     unit,
		practice: code,
		page:     page,
		pageSize: d.Config().PageSize,
	})
	if err != nil {
		return driver.Page{}, driver.Incompatible("build search url: %v", err)
	}
	body, err := getJSON(ctx, s, target)
	if err != nil {
		return driver.Page{}, err
	}

	results, ok := d.results(body)
	if !ok {
		return driver.Page{}, driver.Incompatible("no results array at %v", d.api.ResultsPaths)
	}
	var out driver.Page
	for _, item := range results {
		out.Records = append(out.Records, d.record(s, item))
	}
	for _, p := range d.api.TotalPaths {
		if n, ok := count(gjson.GetBytes(body, p)); ok {
			out.Total, out.HasTotal = n, true
			break
		}
	}
	return out, nil
}

// count reads a result total. Null, empty, and non-numeric values mean the site
// did not report one.
func count(t gjson.Result) (int, bool) {
	switch t.Type {
	case gjson.Number:
		return int(t.Int()), true
	case gjson.String:
		n, err := strconv.Atoi(strings.ReplaceAll(strings.TrimSpace(t.Str), ",", ""))
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

func (d *Driver) results(body []byte) ([]gjson.Result, bool) {
	for _, p := range d.api.ResultsPaths {
		if r := gjson.GetBytes(body, p); r.IsArray() {
			return r.Array(), true
		}
	}
	if root := gjson.ParseBytes(body); root.IsArray() {
		return root.Array(), true
	}
	return nil, false
}

func (d *Driver) record(s *driver.Session, item gjson.Result) record.Record {
	var rec record.Record
	assign(&rec, item, d.api.Fields)
	if d.api.IDField != "" {
		if id := item.Get(d.api.IDField).String(); id != "" {
			rec.Set(sourceIDKey, id)
			if d.api.ProfilePagePath != "" && rec.ProfileURL == "" {
				rec.ProfileURL = s.URL(expand(d.api.ProfilePagePath, map[string]string{"id": id}, url.PathEscape))
			}
		}
	}
	return rec
}

func (d *Driver) profileJSON(ctx context.Context, s *driver.Session, rec record.Record) (record.Record, error) {
	id := rec.Get(sourceIDKey)
	if d.api.ProfilePath == "" || id == "" {
		return record.Record{}, nil
	}
	body, err := getJSON(ctx, s, s.URL(expand(d.api.ProfilePath, map[string]string{"id": id}, url.PathEscape)))
	if err != nil {
		return record.Record{}, err
	}
	var found record.Record
	assign(&found, gjson.ParseBytes(body), d.api.ProfileFields)
	return found, nil
}

func (d *Driver) profilePage(ctx context.Context, s *driver.Session, rec record.Record) (record.Record, error) {
	if rec.ProfileURL == "" {
		return record.Record{}, nil
	}
	resp, err := s.Get(ctx, rec.ProfileURL)
	if err != nil {
		return record.Record{}, err
	}
	return profilepage.Parse(resp.Body, resp.URL, nil)
}

// assign copies the first non-empty candidate path for each field.
func assign(rec *record.Record, doc gjson.Result, fields map[string][]string) {
	for field, paths := range fields {
		for _, p := range paths {
			if v := strings.TrimSpace(doc.Get(p).String()); v != "" {
				rec.Set(field, v)
				break
			}
		}
	}
}

func getJSON(ctx context.Context, s *driver.Session, target string) ([]byte, error) {
	resp, err := s.Do(ctx, fetcher.Request{
		Method: http.MethodGet,
		URL:    target,
		Header: http.Header{"Accept": {acceptJSON}},
	})
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(resp.Body) {
		return nil, driver.Unexpected("%s returned %d bytes of invalid JSON", target, len(resp.Body))
	}
	return resp.Body, nil
}

type placeholders struct {
	unit     string
	practice string
	page     int
	pageSize int
}

func (p placeholders) values() map[string]string {
	return map[string]string{
		"unit":      p.unit,
		"practice":  p.practice,
		"page":      strconv.Itoa(p.page),
		"page0":     strconv.Itoa(p.page - 1),
		"page_size": strconv.Itoa(p.pageSize),
		"offset":    strconv.Itoa((p.page - 1) * p.pageSize),
	}
}

func (d *Driver) searchURL(s *driver.Session, p placeholders) (string, error) {
	vals := p.values()
	u, err := url.Parse(s.URL(expand(d.api.SearchPath, vals, url.PathEscape)))
	if err != nil {
		return "", fmt.Errorf("parse %q: %w", d.api.SearchPath, err)
	}
	q := u.Query()
	for _, param := range d.api.Params {
		if v := expand(param.Value, vals, nil); v != "" {
			q.Set(param.Name, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// expand substitutes {name} placeholders, passing each value through escape when set.
func expand(tmpl string, vals map[string]string, escape func(string) string) string {
	if !strings.Contains(tmpl, "{") {
		return tmpl
	}
	pairs := make([]string, 0, 2*len(vals))
	for k, v := range vals {
		if escape != nil {
			v = escape(v)
		}
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}
