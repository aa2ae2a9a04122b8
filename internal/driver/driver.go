// Package driver is the runtime every site driver is built on: the streaming search
// protocol, per-search sessions with pacing and retry, pagination, normalization,
// and the profile enrichment hook.
package driver

import (
	"context"
	"iter"
)

// Driver searches one jurisdiction's directory.
//
// Search returns a lazy sequence. Each element is a record, a progress signal, or a
// block signal. Progress for a unit precedes its records, records keep site order,
// and no record repeats within one call. Breaking out of the range loop, or
// canceling ctx, stops all further requests.
type Driver interface {
	Name() string
	Config() Config
	Search(ctx context.Context, query string, opts Options) iter.Seq[Item]
}
