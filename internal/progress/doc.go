// Package progress carries search-run milestones (units started, units blocked,
// sites finished) from the pipeline to pluggable sinks. Events are batched on a
// background goroutine so a slow sink never stalls a search.
package progress
