// Package names holds the text helpers shared by every driver: HTML-safe field
// cleaning and the best-effort personal name splitter.
package names

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Name is a split personal name. Empty fields mean unknown.
type Name struct {
	First string
	Last  string
}

var (
	strict = bluemonday.StrictPolicy()
	title  = cases.Title(language.English)
	angles = strings.NewReplacer("<", "&lt;", ">", "&gt;")
)

var honorifics = map[string]struct{}{
	"mr": {}, "mrs": {}, "ms": {}, "miss": {}, "mx": {}, "dr": {}, "hon": {},
	"honourable": {}, "honorable": {}, "prof": {}, "sir": {}, "dame": {},
	"judge": {}, "justice": {}, "rev": {}, "the": {},
}

var suffixes = map[string]struct{}{
	"jr": {}, "sr": {}, "ii": {}, "iii": {}, "iv": {}, "kc": {}, "qc": {}, "sc": {},
	"esq": {}, "phd": {}, "llb": {}, "llm": {}, "jd": {}, "mbe": {}, "obe": {}, "cbe": {},
	"cpa": {},
}

// CleanText strips markup, decodes entities, applies NFKC, and collapses whitespace.
// Angle brackets that survive decoding stay escaped so a second pass never reads
// them as tags.
func CleanText(s string) string {
	if s == "" {
		return ""
	}
	if strings.ContainsAny(s, "<&") {
		s = html.UnescapeString(strict.Sanitize(s))
	}
	s = angles.Replace(norm.NFKC.String(s))
	return strings.Join(strings.Fields(s), " ")
}

// TitleCase title-cases s after cleaning it. Useful for directories that publish
// names in upper case.
func TitleCase(s string) string {
	return title.String(strings.ToLower(CleanText(s)))
}

// Split splits a free-form name into first and last. It accepts "Last, First Middle"
// and "First Middle Last", stripping honorifics and post-nominals. Multi-word
// surnames are not recognized.
func Split(full string) Name {
	full = CleanText(full)
	if full == "" {
		return Name{}
	}

	segments := make([]string, 0, 3)
	for _, seg := range strings.Split(full, ",") {
		if seg = strings.TrimSpace(seg); seg != "" {
			segments = append(segments, seg)
		}
	}
	for len(segments) > 1 && allSuffixes(segments[len(segments)-1]) {
		segments = segments[:len(segments)-1]
	}

	if len(segments) >= 2 {
		last := stripAffixes(strings.Fields(segments[0]))
		first := stripAffixes(strings.Fields(segments[1]))
		n := Name{}
		if len(last) > 0 {
			n.Last = strings.Join(last, " ")
		}
		if len(first) > 0 {
			n.First = first[0]
		}
		return n
	}

	tokens := stripAffixes(strings.Fields(segments[0]))
	switch len(tokens) {
	case 0:
		return Name{}
	case 1:
		return Name{Last: tokens[0]}
	default:
		return Name{First: tokens[0], Last: tokens[len(tokens)-1]}
	}
}

func stripAffixes(tokens []string) []string {
	for len(tokens) > 0 {
		if _, ok := honorifics[key(tokens[0])]; !ok {
			break
		}
		tokens = tokens[1:]
	}
	for len(tokens) > 0 {
		if _, ok := suffixes[key(tokens[len(tokens)-1])]; !ok {
			break
		}
		tokens = tokens[:len(tokens)-1]
	}
	return tokens
}

func allSuffixes(seg string) bool {
	fields := strings.Fields(seg)
	if len(fields) == 0 {
		return false
	}
	for _, f := range fields {
		if _, ok := suffixes[key(f)]; !ok {
			return false
		}
	}
	return true
}

func key(token string) string {
	return strings.ToLower(strings.Trim(strings.ReplaceAll(token, ".", ""), ",;()"))
}
