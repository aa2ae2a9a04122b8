package driver

import (
	"maps"
	"slices"
	"strings"
)

// EnrichMode selects where profile enrichment runs.
type EnrichMode int

const (
	// EnrichDeferred lets the runtime enrich each record right before yielding it.
	EnrichDeferred EnrichMode = iota
	// EnrichInline leaves enrichment to the driver's page handler, for sites whose
	// profile pages are bound to the originating search session.
	EnrichInline
)

func (m EnrichMode) String() string {
	if m == EnrichInline {
		return "inline"
	}
	return "deferred"
}

// ParseEnrichMode maps "inline" to EnrichInline and anything else to EnrichDeferred.
func ParseEnrichMode(s string) EnrichMode {
	if strings.EqualFold(strings.TrimSpace(s), "inline") {
		return EnrichInline
	}
	return EnrichDeferred
}

// UnitKind names what a driver's search units are.
type UnitKind string

// Unit kinds.
const (
	UnitCity   UnitKind = "city"
	UnitPrefix UnitKind = "prefix"
)

// Config is a driver's identity and static search space. It is copied on
// construction and never mutated during a search.
type Config struct {
	Name    string
	Region  string
	Country string
	BaseURL string
	// PageSize is the nominal number of results per page; 0 means unknown.
	PageSize int
	// PracticeAreas maps free-text aliases to site-native codes. Keys are matched
	// case-insensitively.
	PracticeAreas map[string]string
	// Units is the default ordered list of search units.
	Units    []string
	UnitKind UnitKind
	// MaxConsecutiveEmpty is how many empty pages in a row end pagination when the
	// site reports no total.
	MaxConsecutiveEmpty int
	EnrichMode          EnrichMode
}

func (c Config) clone() Config {
	out := c
	out.Name = strings.TrimSpace(c.Name)
	out.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	out.PracticeAreas = make(map[string]string, len(c.PracticeAreas))
	for alias, code := range c.PracticeAreas {
		alias = normalizeAlias(alias)
		if alias == "" {
			continue
		}
		out.PracticeAreas[alias] = strings.TrimSpace(code)
	}
	out.Units = make([]string, 0, len(c.Units))
	for _, u := range c.Units {
		if u = strings.TrimSpace(u); u != "" {
			out.Units = append(out.Units, u)
		}
	}
	if out.UnitKind == "" {
		out.UnitKind = UnitCity
	}
	if out.MaxConsecutiveEmpty <= 0 {
		out.MaxConsecutiveEmpty = 1
	}
	return out
}

// Aliases returns the practice-area aliases in sorted order.
func (c Config) Aliases() []string {
	return slices.Sorted(maps.Keys(c.PracticeAreas))
}

func normalizeAlias(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Options bound and tune a single search. The zero value means no bounds.
type Options struct {
	// City replaces the default unit list with a single unit.
	City        string
	MaxCities   int
	MaxPrefixes int
	// MaxPages bounds pagination depth per unit.
	MaxPages int
	// MinYear drops records admitted before this year.
	MinYear      int
	SkipProfiles bool
}
