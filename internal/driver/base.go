package driver

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/antzucaro/matchr"
	"go.uber.org/zap"

	"github.com/JakeFAU/bar-directory-crawler/internal/captcha"
	"github.com/JakeFAU/bar-directory-crawler/internal/fetcher"
	"github.com/JakeFAU/bar-directory-crawler/internal/logging"
	"github.com/JakeFAU/bar-directory-crawler/internal/metrics"
	"github.com/JakeFAU/bar-directory-crawler/internal/names"
	"github.com/JakeFAU/bar-directory-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/bar-directory-crawler/internal/record"
	"github.com/JakeFAU/bar-directory-crawler/internal/useragent"
)

// suggestThreshold is the minimum Jaro-Winkler similarity for an alias hint.
const suggestThreshold = 0.85

// Deps are the collaborators a Base needs. Everything except NewFetcher has a
// usable zero value.
type Deps struct {
	Logger         *logging.Logger
	Detector       *captcha.Detector
	Agents         *useragent.Pool
	Limits         ratelimit.Config
	LimiterOptions []ratelimit.Option
	NewFetcher     fetcher.Factory
}

// Page is what a driver's page handler extracts from one results page.
type Page struct {
	Records []record.Record
	// Total is the site-reported result count for the unit, valid when HasTotal.
	Total    int
	HasTotal bool
}

// PageFunc fetches and parses page number page (1-based) of unit. It must issue
// every request through s.
type PageFunc func(ctx context.Context, s *Session, unit string, page int) (Page, error)

// BaseOption customizes a Base.
type BaseOption func(*Base)

// WithEnricher installs the driver's profile enricher.
func WithEnricher(e Enricher) BaseOption {
	return func(b *Base) {
		b.enricher = e
	}
}

// Base carries the shared driver behavior. Site drivers embed it and supply a
// PageFunc.
type Base struct {
	cfg      Config
	deps     Deps
	log      *logging.Logger
	enricher Enricher
}

// NewBase builds a Base from an immutable copy of cfg.
func NewBase(cfg Config, deps Deps, opts ...BaseOption) (*Base, error) {
	cfg = cfg.clone()
	if cfg.Name == "" {
		return nil, errors.New("driver name is required")
	}
	if deps.NewFetcher == nil {
		return nil, fmt.Errorf("driver %s: fetcher factory is required", cfg.Name)
	}
	if deps.Detector == nil {
		deps.Detector = captcha.NewDetector()
	}
	deps.Limits.Site = cfg.Name
	b := &Base{
		cfg:  cfg,
		deps: deps,
		log:  deps.Logger.Named(cfg.Name),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Name returns the driver name.
func (b *Base) Name() string {
	return b.cfg.Name
}

// Config returns a copy of the driver configuration.
func (b *Base) Config() Config {
	return b.cfg.clone()
}

// Logger returns the driver logger.
func (b *Base) Logger() *logging.Logger {
	return b.log
}

// ResolvePracticeCode maps a free-text query to the site-native code. The lookup is
// case-insensitive; ok is false when no alias matches, and the driver decides
// whether to search unfiltered.
func (b *Base) ResolvePracticeCode(query string) (string, bool) {
	q := normalizeAlias(query)
	if q == "" {
		return "", false
	}
	if code, ok := b.cfg.PracticeAreas[q]; ok {
		return code, true
	}
	if hint, score := b.SuggestPracticeArea(q); hint != "" {
		b.log.Info("no practice area alias matched", zap.String("query", query),
			zap.String("did_you_mean", hint), zap.Float64("similarity", score))
	}
	return "", false
}

// SuggestPracticeArea returns the alias most similar to query, or "" when nothing
// scores above the threshold.
func (b *Base) SuggestPracticeArea(query string) (string, float64) {
	q := normalizeAlias(query)
	best, bestScore := "", 0.0
	for _, alias := range b.cfg.Aliases() {
		if score := matchr.JaroWinkler(q, alias, false); score > bestScore {
			best, bestScore = alias, score
		}
	}
	if bestScore < suggestThreshold {
		return "", bestScore
	}
	return best, bestScore
}

// Cities returns the ordered search units for opts: the single requested city, or
// the default units truncated to the relevant bound.
func (b *Base) Cities(opts Options) []string {
	if c := strings.TrimSpace(opts.City); c != "" {
		return []string{c}
	}
	limit := opts.MaxCities
	if b.cfg.UnitKind == UnitPrefix {
		limit = opts.MaxPrefixes
	}
	units := append([]string(nil), b.cfg.Units...)
	if limit > 0 && limit < len(units) {
		units = units[:limit]
	}
	return units
}

// SplitName splits a free-form name into first and last.
func (b *Base) SplitName(full string) names.Name {
	return names.Split(full)
}

// DetectCaptcha reports whether body is a challenge page.
func (b *Base) DetectCaptcha(body []byte) bool {
	return b.deps.Detector.Detect(body)
}

// TransformResult normalizes a raw record and echoes query as the practice area.
func (b *Base) TransformResult(raw record.Record, query string) record.Record {
	return record.Normalize(raw, query, record.Defaults{State: b.cfg.Region, Country: b.cfg.Country})
}

// EnrichFromProfile runs the installed enricher. Without one it does nothing.
func (b *Base) EnrichFromProfile(ctx context.Context, s *Session, rec *record.Record) error {
	if b.enricher == nil {
		return nil
	}
	return b.enricher.Enrich(ctx, s, rec)
}

// NewSession opens the per-search state: a fresh limiter and a fresh fetcher.
func (b *Base) NewSession(opts Options) (*Session, error) {
	f, err := b.deps.NewFetcher()
	if err != nil {
		return nil, fmt.Errorf("driver %s: create fetcher: %w", b.cfg.Name, err)
	}
	return &Session{
		base:    b,
		limiter: ratelimit.New(b.deps.Limits, b.deps.Agents, b.deps.LimiterOptions...),
		fetcher: f,
		log:     b.log,
		opts:    opts,
		seen:    make(map[string]struct{}),
		values:  make(map[string]string),
	}, nil
}

// Search runs the streaming protocol over the units from Cities, calling fetch for
// each page. A failing unit is abandoned without ending the search; challenge pages
// and exhausted rate-limit retries additionally yield a block signal.
func (b *Base) Search(ctx context.Context, query string, opts Options, fetch PageFunc) iter.Seq[Item] {
	return func(yield func(Item) bool) {
		s, err := b.NewSession(opts)
		if err != nil {
			b.log.Error("open session", zap.Error(err))
			return
		}
		units := b.Cities(opts)
		for i, unit := range units {
			if ctx.Err() != nil {
				return
			}
			b.log.Progress("search unit", zap.String("unit", unit), zap.Int("current", i+1), zap.Int("total", len(units)))
			if !yield(ProgressItem(i+1, len(units), unit)) {
				return
			}
			if !b.searchUnit(ctx, s, query, unit, fetch, yield) {
				return
			}
		}
		b.log.Success("search finished", zap.String("query", query), zap.Int("records", len(s.seen)))
	}
}

func (b *Base) searchUnit(ctx context.Context, s *Session, query, unit string, fetch PageFunc, yield func(Item) bool) bool {
	pager := NewPager(b.cfg.PageSize, s.opts.MaxPages, b.cfg.MaxConsecutiveEmpty)
	for page := 1; ; page++ {
		pg, err := fetch(ctx, s, unit, page)
		if err != nil {
			if ctx.Err() != nil {
				return false
			}
			fields := []zap.Field{zap.String("unit", unit), zap.Int("page", page), zap.Error(err)}
			switch {
			case errors.Is(err, ErrBlockedContent), errors.Is(err, ErrRateLimited):
				b.log.Warn("unit blocked", fields...)
				metrics.ObserveUnit(b.cfg.Name, metrics.UnitBlocked)
				return yield(BlockedItem(unit, page))
			case errors.Is(err, ErrIncompatible):
				b.log.Error("site incompatible, skipping unit", fields...)
			default:
				b.log.Warn("unit abandoned", fields...)
			}
			metrics.ObserveUnit(b.cfg.Name, metrics.UnitAbandoned)
			return true
		}
		for _, raw := range pg.Records {
			if !b.emit(ctx, s, query, raw, yield) {
				return false
			}
		}
		if !pager.Next(len(pg.Records), pg.Total, pg.HasTotal) {
			break
		}
	}
	metrics.ObserveUnit(b.cfg.Name, metrics.UnitCompleted)
	return true
}

func (b *Base) emit(ctx context.Context, s *Session, query string, raw record.Record, yield func(Item) bool) bool {
	rec := b.TransformResult(raw, query)
	if b.tooOld(rec, s.opts.MinYear) {
		return true
	}
	key := rec.Key()
	if key == "" {
		b.log.Skip("record without identity", zap.String("firm", rec.FirmName))
		return true
	}
	if !s.markSeen(key) {
		b.log.Skip("duplicate record", zap.String("key", key))
		return true
	}
	if b.cfg.EnrichMode == EnrichDeferred && !rec.Complete() {
		_ = s.Enrich(ctx, &rec)
		rec = b.TransformResult(rec, query)
		if b.tooOld(rec, s.opts.MinYear) {
			return true
		}
		if enriched := rec.Key(); enriched != key && !s.markSeen(enriched) {
			b.log.Skip("duplicate record after enrichment", zap.String("key", enriched))
			return true
		}
	}
	if ctx.Err() != nil {
		return false
	}
	metrics.ObserveRecord(b.cfg.Name)
	return yield(RecordItem(rec))
}

func (b *Base) tooOld(rec record.Record, minYear int) bool {
	if minYear <= 0 {
		return false
	}
	y, ok := rec.AdmissionYear()
	if ok && y < minYear {
		b.log.Skip("admitted before min year", zap.String("name", rec.FullName), zap.Int("year", y))
		return true
	}
	return false
}
