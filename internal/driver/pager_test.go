package driver

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// drive feeds page sizes to a Pager and returns how many pages were fetched.
func drive(p *Pager, pages []int, total int, hasTotal bool) int {
	fetched := 0
	for _, n := range pages {
		fetched++
		if !p.Next(n, total, hasTotal) {
			break
		}
	}
	return fetched
}

func TestPager(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		pager    *Pager
		pages    []int
		total    int
		hasTotal bool
		want     int
	}{
		{name: "full pages then empty without total", pager: NewPager(20, 0, 1), pages: []int{20, 20, 20, 0, 20}, want: 4},
		{name: "reported total stops without empty probe", pager: NewPager(20, 0, 1), pages: []int{20, 20, 5, 0}, total: 45, hasTotal: true, want: 3},
		{name: "short page ends without total", pager: NewPager(20, 0, 1), pages: []int{20, 7, 20}, want: 2},
		{name: "max pages bounds depth", pager: NewPager(20, 2, 1), pages: []int{20, 20, 20}, want: 2},
		{name: "tolerates empty run below threshold", pager: NewPager(20, 0, 3), pages: []int{20, 0, 0, 20, 0, 0, 0, 20}, want: 7},
		{name: "empty first page with total", pager: NewPager(20, 0, 1), pages: []int{0, 20}, total: 10, hasTotal: true, want: 1},
		{name: "unknown page size continues on non-empty", pager: NewPager(0, 0, 1), pages: []int{3, 1, 0, 4}, want: 3},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, drive(tc.pager, tc.pages, tc.total, tc.hasTotal))
		})
	}
}

func TestPagerCounters(t *testing.T) {
	t.Parallel()
	p := NewPager(10, 0, 0)
	require.True(t, p.Next(10, 0, false))
	require.False(t, p.Next(4, 0, false))
	require.Equal(t, 2, p.Pages())
	require.Equal(t, 14, p.Seen())
}
