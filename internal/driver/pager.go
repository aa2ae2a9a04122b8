package driver

// Pager applies the shared pagination policy for one search unit.
//
// With a reported total, paging continues while the last page was non-empty and
// fewer records than the total have been seen. Without one, paging continues while
// pages come back full-sized, and an empty page is tolerated until maxEmpty empty
// pages have arrived in a row. maxPages bounds depth in both cases.
type Pager struct {
	pageSize int
	maxPages int
	maxEmpty int

	pages    int
	seen     int
	emptyRun int
}

// NewPager builds a Pager. Non-positive pageSize means unknown; non-positive
// maxPages means unbounded; maxEmpty defaults to 1.
func NewPager(pageSize, maxPages, maxEmpty int) *Pager {
	if maxEmpty <= 0 {
		maxEmpty = 1
	}
	return &Pager{pageSize: pageSize, maxPages: maxPages, maxEmpty: maxEmpty}
}

// Next records a fetched page of n records and reports whether to fetch another.
func (p *Pager) Next(n, total int, hasTotal bool) bool {
	p.pages++
	p.seen += n
	if p.maxPages > 0 && p.pages >= p.maxPages {
		return false
	}
	if hasTotal {
		return n > 0 && p.seen < total
	}
	if n == 0 {
		p.emptyRun++
		return p.emptyRun < p.maxEmpty
	}
	p.emptyRun = 0
	return p.pageSize <= 0 || n >= p.pageSize
}

// Pages is the number of pages recorded so far.
func (p *Pager) Pages() int {
	return p.pages
}

// Seen is the running record count.
func (p *Pager) Seen() int {
	return p.seen
}
