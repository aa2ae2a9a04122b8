// Package pipeline runs searches across several drivers at once and funnels their
// records into a single sink. Each driver keeps its own session, so concurrency here
// never increases the request rate against any one site.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/bar-directory-crawler/internal/driver"
	"github.com/JakeFAU/bar-directory-crawler/internal/logging"
	"github.com/JakeFAU/bar-directory-crawler/internal/progress"
)

// Job is one search to run.
type Job struct {
	Driver  driver.Driver
	Query   string
	Options driver.Options
}

// Summary describes how one job went.
type Summary struct {
	RunID    string           `json:"run_id"`
	Site     string           `json:"site"`
	Query    string           `json:"query"`
	Records  int              `json:"records"`
	Units    int              `json:"units"`
	Blocked  []driver.Blocked `json:"blocked,omitempty"`
	Duration time.Duration    `json:"duration"`
	Err      string           `json:"error,omitempty"`
}

// Pipeline fans jobs out over a bounded number of goroutines.
type Pipeline struct {
	sink        Sink
	log         *logging.Logger
	concurrency int
	events      progress.Emitter
	newID       func() (uuid.UUID, error)
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithEmitter reports run milestones to e.
func WithEmitter(e progress.Emitter) Option {
	return func(p *Pipeline) {
		if e != nil {
			p.events = e
		}
	}
}

// New constructs a Pipeline. concurrency below one runs jobs serially.
func New(sink Sink, log *logging.Logger, concurrency int, opts ...Option) *Pipeline {
	if concurrency < 1 {
		concurrency = 1
	}
	p := &Pipeline{sink: sink, log: log, concurrency: concurrency, events: (*progress.Hub)(nil), newID: uuid.NewV7}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pipeline) emit(evt progress.Event) {
	evt.TS = time.Now().UTC()
	p.events.Emit(evt)
}

// Run executes every job and returns one summary per job, in job order. A sink
// failure cancels the remaining jobs and is returned; a canceled ctx stops all jobs
// and returns the summaries gathered so far with ctx's error.
func (p *Pipeline) Run(ctx context.Context, jobs []Job) ([]Summary, error) {
	if p.sink == nil {
		return nil, errors.New("pipeline: sink is required")
	}
	id, err := p.newID()
	if err != nil {
		return nil, fmt.Errorf("generate run id: %w", err)
	}
	runID := id.String()
	log := p.log.With(zap.String("run_id", runID))
	log.Info("run started", zap.Int("jobs", len(jobs)), zap.Int("concurrency", p.concurrency))
	start := time.Now()
	p.emit(progress.Event{RunID: runID, Stage: progress.StageRunStart})

	summaries := make([]Summary, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i, job := range jobs {
		g.Go(func() error {
			s, err := p.runJob(gctx, log, runID, job)
			summaries[i] = s
			return err
		})
	}
	err = g.Wait()
	if err == nil {
		err = ctx.Err()
	}

	total := 0
	for _, s := range summaries {
		total += s.Records
	}
	done := progress.Event{RunID: runID, Stage: progress.StageRunDone, Records: total, Dur: time.Since(start)}
	if err != nil {
		done.Note = err.Error()
	}
	p.emit(done)
	if err != nil {
		log.Error("run failed", zap.Int("records", total), zap.Error(err))
		return summaries, err
	}
	log.Success("run finished", zap.Int("records", total))
	return summaries, nil
}

func (p *Pipeline) runJob(ctx context.Context, log *logging.Logger, runID string, job Job) (Summary, error) {
	name := job.Driver.Name()
	sum := Summary{RunID: runID, Site: name, Query: job.Query}
	log = log.Named(name)
	start := time.Now()

	var sinkErr error
	for item := range job.Driver.Search(ctx, job.Query, job.Options) {
		switch item.Kind {
		case driver.KindProgress:
			sum.Units++
			log.Progress("unit", zap.String("unit", item.Progress.Unit),
				zap.Int("current", item.Progress.Current), zap.Int("total", item.Progress.Total))
			p.emit(progress.Event{RunID: runID, Stage: progress.StageUnitStart, Site: name, Unit: item.Progress.Unit,
				Current: item.Progress.Current, Total: item.Progress.Total, Records: sum.Records})
		case driver.KindBlocked:
			sum.Blocked = append(sum.Blocked, item.Blocked)
			log.Warn("unit blocked by site", zap.String("unit", item.Blocked.Unit), zap.Int("page", item.Blocked.Page))
			p.emit(progress.Event{RunID: runID, Stage: progress.StageUnitBlocked, Site: name, Unit: item.Blocked.Unit,
				Page: item.Blocked.Page, Records: sum.Records})
		case driver.KindRecord:
			if err := p.sink.Write(ctx, Line{RunID: runID, Site: name, Record: item.Record}); err != nil {
				sinkErr = fmt.Errorf("%s: %w", name, err)
			} else {
				sum.Records++
			}
		}
		if sinkErr != nil {
			break
		}
	}
	sum.Duration = time.Since(start)
	if sinkErr != nil {
		sum.Err = sinkErr.Error()
		p.emit(progress.Event{RunID: runID, Stage: progress.StageSiteError, Site: name, Records: sum.Records,
			Dur: sum.Duration, Note: sum.Err})
		return sum, sinkErr
	}
	p.emit(progress.Event{RunID: runID, Stage: progress.StageSiteDone, Site: name, Records: sum.Records, Dur: sum.Duration})
	log.Success("search complete", zap.Int("records", sum.Records), zap.Int("units", sum.Units),
		zap.Int("blocked", len(sum.Blocked)))
	return sum, nil
}
