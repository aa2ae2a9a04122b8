// Package record defines the normalized attorney record every driver yields and the
// single normalization funnel that guarantees its invariants.
package record

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/JakeFAU/bar-directory-crawler/internal/names"
)

// Record is one normalized directory entry. Empty strings mean unknown.
type Record struct {
	FirstName     string            `json:"first_name"`
	LastName      string            `json:"last_name"`
	FullName      string            `json:"full_name"`
	FirmName      string            `json:"firm_name"`
	City          string            `json:"city"`
	State         string            `json:"state"`
	Zip           string            `json:"zip"`
	Country       string            `json:"country"`
	Phone         string            `json:"phone"`
	Email         string            `json:"email"`
	Website       string            `json:"website"`
	BarNumber     string            `json:"bar_number"`
	BarStatus     string            `json:"bar_status"`
	AdmissionDate string            `json:"admission_date"`
	PracticeArea  string            `json:"practice_area"`
	ProfileURL    string            `json:"profile_url"`
	Extra         map[string]string `json:"extra,omitempty"`
}

// Defaults are driver-level values applied to empty fields.
type Defaults struct {
	State   string
	Country string
}

// Fields lists the JSON names of the fixed string fields in declaration order.
var Fields = []string{
	"first_name", "last_name", "full_name", "firm_name", "city", "state", "zip",
	"country", "phone", "email", "website", "bar_number", "bar_status",
	"admission_date", "practice_area", "profile_url",
}

// Enrichable lists the fields a profile page is expected to fill.
var Enrichable = []string{"email", "phone", "website", "firm_name", "admission_date"}

var yearPattern = regexp.MustCompile(`\b(1[89]\d{2}|20\d{2})\b`)

func (r *Record) field(name string) *string {
	switch name {
	case "first_name":
		return &r.FirstName
	case "last_name":
		return &r.LastName
	case "full_name", "name":
		return &r.FullName
	case "firm_name", "firm":
		return &r.FirmName
	case "city":
		return &r.City
	case "state", "region":
		return &r.State
	case "zip", "postal_code":
		return &r.Zip
	case "country":
		return &r.Country
	case "phone":
		return &r.Phone
	case "email":
		return &r.Email
	case "website":
		return &r.Website
	case "bar_number", "external_id":
		return &r.BarNumber
	case "bar_status", "status":
		return &r.BarStatus
	case "admission_date":
		return &r.AdmissionDate
	case "practice_area":
		return &r.PracticeArea
	case "profile_url":
		return &r.ProfileURL
	default:
		return nil
	}
}

// Set assigns value to the field with the given JSON name. Unknown names land in Extra.
func (r *Record) Set(name, value string) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return
	}
	if p := r.field(name); p != nil {
		*p = value
		return
	}
	if r.Extra == nil {
		r.Extra = make(map[string]string)
	}
	r.Extra[name] = value
}

// Get returns the field with the given JSON name, falling back to Extra.
func (r Record) Get(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if p := r.field(name); p != nil {
		return *p
	}
	return r.Extra[name]
}

// Normalize is the funnel every driver calls before yielding. It cleans every field,
// applies driver defaults, echoes the query as practice_area, and keeps the name
// fields consistent. Normalize(Normalize(r, q, d), q, d) equals Normalize(r, q, d).
func Normalize(raw Record, query string, d Defaults) Record {
	out := raw
	for _, name := range Fields {
		p := out.field(name)
		*p = names.CleanText(*p)
	}
	if out.State == "" {
		out.State = strings.TrimSpace(d.State)
	}
	if out.Country == "" {
		out.Country = strings.TrimSpace(d.Country)
	}
	if q := names.CleanText(query); q != "" {
		out.PracticeArea = q
	}

	out.Email = strings.ToLower(out.Email)
	out.Email = strings.TrimPrefix(out.Email, "mailto:")
	if i := strings.IndexByte(out.Email, '?'); i >= 0 {
		out.Email = out.Email[:i]
	}
	out.Phone = strings.TrimSpace(strings.TrimPrefix(out.Phone, "tel:"))
	out.BarNumber = strings.TrimLeft(out.BarNumber, "# ")

	if out.FullName != "" && out.FirstName == "" && out.LastName == "" {
		n := names.Split(out.FullName)
		out.FirstName, out.LastName = n.First, n.Last
	}
	switch {
	case out.FullName == "":
		out.FullName = strings.TrimSpace(out.FirstName + " " + out.LastName)
	case out.FirstName != "" && out.LastName != "" && !consistent(out):
		out.FullName = out.FirstName + " " + out.LastName
	}

	out.Extra = nil
	for k, v := range raw.Extra {
		k = strings.ToLower(strings.TrimSpace(k))
		v = names.CleanText(v)
		if k == "" || v == "" {
			continue
		}
		if out.Extra == nil {
			out.Extra = make(map[string]string, len(raw.Extra))
		}
		out.Extra[k] = v
	}
	return out
}

// consistent reports whether every token of the first and last names appears as a
// whole token of the full name.
func consistent(r Record) bool {
	full := make(map[string]struct{})
	for _, tok := range nameTokens(r.FullName) {
		full[tok] = struct{}{}
	}
	for _, tok := range append(nameTokens(r.FirstName), nameTokens(r.LastName)...) {
		if _, ok := full[tok]; !ok {
			return false
		}
	}
	return true
}

func nameTokens(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\'' && r != '-'
	})
}

// Key is the in-call dedup key: the bar number when present, otherwise full name and
// firm. It returns "" when the record has neither.
func (r Record) Key() string {
	if id := strings.ToLower(strings.TrimSpace(r.BarNumber)); id != "" {
		return "id:" + id
	}
	full := strings.ToLower(strings.TrimSpace(r.FullName))
	if full == "" {
		return ""
	}
	return "name:" + full + "|" + strings.ToLower(strings.TrimSpace(r.FirmName))
}

// AdmissionYear extracts the first plausible 4-digit year from AdmissionDate.
func (r Record) AdmissionYear() (int, bool) {
	m := yearPattern.FindString(r.AdmissionDate)
	if m == "" {
		return 0, false
	}
	y, err := strconv.Atoi(m)
	if err != nil {
		return 0, false
	}
	return y, true
}

// FillMissing copies non-empty fields from src into empty fields of r. Populated
// fields are never overwritten. It reports whether anything changed.
func (r *Record) FillMissing(src Record) bool {
	changed := false
	for _, name := range Fields {
		dst := r.field(name)
		if *dst != "" {
			continue
		}
		if v := strings.TrimSpace(*src.field(name)); v != "" {
			*dst = v
			changed = true
		}
	}
	for k, v := range src.Extra {
		if v == "" {
			continue
		}
		if _, ok := r.Extra[k]; ok && r.Extra[k] != "" {
			continue
		}
		if r.Extra == nil {
			r.Extra = make(map[string]string)
		}
		r.Extra[k] = v
		changed = true
	}
	return changed
}

// Missing lists the enrichable fields that are still empty.
func (r Record) Missing() []string {
	var out []string
	for _, name := range Enrichable {
		if r.Get(name) == "" {
			out = append(out, name)
		}
	}
	return out
}

// Complete reports whether every enrichable field is populated.
func (r Record) Complete() bool {
	return len(r.Missing()) == 0
}
