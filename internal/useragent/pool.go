// Package useragent holds the rotation of browser user-agent strings handed to
// each driver session.
package useragent

import (
	"strings"
	"sync/atomic"
)

// DefaultAgents is the built-in rotation used when configuration supplies none.
var DefaultAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/128.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:129.0) Gecko/20100101 Firefox/129.0",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/127.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/128.0.0.0 Safari/537.36",
}

// Pool hands out user agents in round-robin order. It is safe for concurrent
// use by drivers running against different hosts.
type Pool struct {
	agents []string
	cursor atomic.Uint64
}

// NewPool builds a Pool from agents, dropping blanks and duplicates. An empty
// input falls back to DefaultAgents.
func NewPool(agents []string) *Pool {
	out := make([]string, 0, len(agents))
	seen := make(map[string]struct{}, len(agents))
	for _, a := range agents {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	if len(out) == 0 {
		out = append(out, DefaultAgents...)
	}
	return &Pool{agents: out}
}

// Next returns the agent under the cursor and advances it.
func (p *Pool) Next() string {
	if p == nil || len(p.agents) == 0 {
		return DefaultAgents[0]
	}
	n := p.cursor.Add(1) - 1
	return p.agents[n%uint64(len(p.agents))]
}

// Len reports how many distinct agents are in rotation.
func (p *Pool) Len() int {
	if p == nil {
		return 0
	}
	return len(p.agents)
}
