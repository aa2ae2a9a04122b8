package driver

import "github.com/JakeFAU/bar-directory-crawler/internal/record"

// Kind tags what an Item carries.
type Kind int

// Item kinds.
const (
	KindRecord Kind = iota
	KindProgress
	KindBlocked
)

func (k Kind) String() string {
	switch k {
	case KindRecord:
		return "record"
	case KindProgress:
		return "progress"
	case KindBlocked:
		return "blocked"
	default:
		return "unknown"
	}
}

// Progress is emitted once per search unit, before any of that unit's records.
type Progress struct {
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Unit    string `json:"unit,omitempty"`
}

// Blocked is emitted when a unit is abandoned because the site challenged or
// throttled us past the retry budget. Page is 0 when unknown.
type Blocked struct {
	Unit string `json:"unit"`
	Page int    `json:"page,omitempty"`
}

// Item is one element of a search sequence: exactly one of a record, a progress
// signal, or a block signal, as selected by Kind.
type Item struct {
	Kind     Kind
	Record   record.Record
	Progress Progress
	Blocked  Blocked
}

// RecordItem wraps a normalized record.
func RecordItem(r record.Record) Item {
	return Item{Kind: KindRecord, Record: r}
}

// ProgressItem builds a progress signal.
func ProgressItem(current, total int, unit string) Item {
	return Item{Kind: KindProgress, Progress: Progress{Current: current, Total: total, Unit: unit}}
}

// BlockedItem builds a block signal.
func BlockedItem(unit string, page int) Item {
	return Item{Kind: KindBlocked, Blocked: Blocked{Unit: unit, Page: page}}
}
