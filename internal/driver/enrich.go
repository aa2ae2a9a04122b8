package driver

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/bar-directory-crawler/internal/record"
)

// Enricher fills empty fields of a record from secondary pages. It must never
// overwrite a populated field.
type Enricher interface {
	Enrich(ctx context.Context, s *Session, rec *record.Record) error
}

// EnricherFunc adapts a function to Enricher.
type EnricherFunc func(ctx context.Context, s *Session, rec *record.Record) error

// Enrich calls f.
func (f EnricherFunc) Enrich(ctx context.Context, s *Session, rec *record.Record) error {
	return f(ctx, s, rec)
}

// Step is one source in a waterfall. Run returns whatever fields it found.
type Step struct {
	Name string
	Run  func(ctx context.Context, s *Session, rec record.Record) (record.Record, error)
}

// Waterfall tries steps in order, merging each step's findings into the empty
// fields of the record, and stops once every enrichable field is populated. A
// failing step is logged and skipped unless the site is blocking us, in which
// case the remaining steps are abandoned.
type Waterfall []Step

// Enrich implements Enricher.
func (w Waterfall) Enrich(ctx context.Context, s *Session, rec *record.Record) error {
	for _, step := range w {
		if rec.Complete() {
			return nil
		}
		found, err := step.Run(ctx, s, *rec)
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("enrich %s: %w", step.Name, ctx.Err())
			}
			if errors.Is(err, ErrBlockedContent) || errors.Is(err, ErrRateLimited) {
				return fmt.Errorf("enrich %s: %w", step.Name, err)
			}
			s.Logger().Skip("enrichment step failed", zap.String("step", step.Name), zap.Error(err))
			continue
		}
		rec.FillMissing(found)
	}
	return nil
}
