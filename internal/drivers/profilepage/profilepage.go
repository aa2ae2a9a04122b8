// Package profilepage extracts contact fields from attorney profile pages laid out
// as label/value pairs.
package profilepage

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/bar-directory-crawler/internal/names"
	"github.com/JakeFAU/bar-directory-crawler/internal/record"
)

// DefaultLabels maps common profile labels to record fields.
var DefaultLabels = map[string]string{
	"email":             "email",
	"e-mail":            "email",
	"email address":     "email",
	"phone":             "phone",
	"telephone":         "phone",
	"phone number":      "phone",
	"website":           "website",
	"web site":          "website",
	"firm":              "firm_name",
	"firm name":         "firm_name",
	"law firm":          "firm_name",
	"employer":          "firm_name",
	"business name":     "firm_name",
	"city":              "city",
	"postal code":       "zip",
	"zip":               "zip",
	"status":            "bar_status",
	"membership status": "bar_status",
	"bar number":        "bar_number",
	"licence number":    "bar_number",
	"license number":    "bar_number",
	"admitted":          "admission_date",
	"date admitted":     "admission_date",
	"admission date":    "admission_date",
	"date of admission": "admission_date",
	"called to the bar": "admission_date",
	"year of call":      "admission_date",
}

// Parse reads label/value pairs from dl, two-cell table rows, and mailto:/tel:
// links. labels extends DefaultLabels; keys are matched case-insensitively.
// Only the first value found for a field is kept.
func Parse(body []byte, pageURL string, labels map[string]string) (record.Record, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return record.Record{}, fmt.Errorf("parse profile: %w", err)
	}
	table := make(map[string]string, len(DefaultLabels)+len(labels))
	for k, v := range DefaultLabels {
		table[k] = v
	}
	for k, v := range labels {
		table[cleanLabel(k)] = v
	}

	var rec record.Record
	assign := func(label, value string) {
		field, ok := table[cleanLabel(label)]
		if !ok {
			return
		}
		value = names.CleanText(value)
		if value != "" && rec.Get(field) == "" {
			rec.Set(field, value)
		}
	}

	doc.Find("dt").Each(func(_ int, dt *goquery.Selection) {
		assign(dt.Text(), dt.NextFiltered("dd").Text())
	})
	doc.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		cells := tr.ChildrenFiltered("th, td")
		if cells.Length() == 2 {
			assign(cells.Eq(0).Text(), cells.Eq(1).Text())
		}
	})
	doc.Find("[data-label]").Each(func(_ int, el *goquery.Selection) {
		label, _ := el.Attr("data-label")
		assign(label, el.Text())
	})

	base, _ := url.Parse(pageURL)
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href := strings.TrimSpace(a.AttrOr("href", ""))
		lower := strings.ToLower(href)
		switch {
		case strings.HasPrefix(lower, "mailto:"):
			if rec.Email == "" {
				rec.Email = strings.TrimSpace(href[len("mailto:"):])
			}
		case strings.HasPrefix(lower, "tel:"):
			if rec.Phone == "" {
				rec.Phone = strings.TrimSpace(href[len("tel:"):])
			}
		case rec.Website == "" && isWebsiteLink(a, href, base):
			rec.Website = href
		}
	})
	return rec, nil
}

func isWebsiteLink(a *goquery.Selection, href string, base *url.URL) bool {
	u, err := url.Parse(href)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return false
	}
	if base != nil && strings.EqualFold(u.Hostname(), base.Hostname()) {
		return false
	}
	text := strings.ToLower(strings.TrimSpace(a.Text()))
	return strings.Contains(text, "website") || strings.Contains(text, "web site") ||
		strings.HasPrefix(text, "www.") || strings.Contains(text, u.Hostname())
}

func cleanLabel(s string) string {
	s = strings.ToLower(names.CleanText(s))
	return strings.TrimSpace(strings.TrimRight(s, ": "))
}
