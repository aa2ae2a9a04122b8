package cmd

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/bar-directory-crawler/internal/driver"
	"github.com/JakeFAU/bar-directory-crawler/internal/logging"
	"github.com/JakeFAU/bar-directory-crawler/internal/pipeline"
	"github.com/JakeFAU/bar-directory-crawler/internal/progress"
	"github.com/JakeFAU/bar-directory-crawler/internal/progress/sinks"
)

type searchFlags struct {
	sites []string
	query string
	out   string
	opts  driver.Options
}

func newSearchCmd() *cobra.Command {
	var f searchFlags
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search one or more directories",
		Long: `Runs a search against every configured site (or the ones named with --site)
and writes the normalized records as JSON lines. Sites run concurrently; requests
to any one site are strictly sequential and paced.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSearch(cmd, f)
		},
	}
	fl := cmd.Flags()
	fl.StringSliceVar(&f.sites, "site", nil, "site name to search (repeatable, default all)")
	fl.StringVar(&f.query, "query", "", "practice area to search for")
	fl.StringVar(&f.opts.City, "city", "", "search a single city instead of the default list")
	fl.IntVar(&f.opts.MaxCities, "max-cities", 0, "limit the number of default cities searched")
	fl.IntVar(&f.opts.MaxPrefixes, "max-prefixes", 0, "limit the number of name prefixes searched")
	fl.IntVar(&f.opts.MaxPages, "max-pages", 0, "limit pages fetched per city or prefix")
	fl.IntVar(&f.opts.MinYear, "min-year", 0, "drop attorneys admitted before this year")
	fl.BoolVar(&f.opts.SkipProfiles, "skip-profiles", false, "do not fetch profile pages")
	fl.StringVar(&f.out, "out", "", "output file (default output.path, - for stdout)")
	return cmd
}

func runSearch(cmd *cobra.Command, f searchFlags) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	selected, err := selectDrivers(appInstance.GetDrivers(), f.sites)
	if err != nil {
		return err
	}
	if len(selected) == 0 {
		return errors.New("no sites configured")
	}

	cfg := appInstance.GetConfig()
	out := f.out
	if out == "" {
		out = cfg.Output.Path
	}
	sink, err := pipeline.OpenJSONL(out)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := sink.Close(); cerr != nil {
			appInstance.GetLogger().Warn("close output", zap.Error(cerr))
		}
	}()

	jobs := make([]pipeline.Job, 0, len(selected))
	for _, d := range selected {
		jobs = append(jobs, pipeline.Job{Driver: d, Query: f.query, Options: f.opts})
	}
	var opts []pipeline.Option
	if cfg.Output.ProgressPath != "" {
		fileSink, err := sinks.OpenFileSink(cfg.Output.ProgressPath)
		if err != nil {
			return err
		}
		hub := progress.NewHub(progress.Config{Logger: appInstance.GetLogger()}, fileSink)
		defer func() {
			if cerr := hub.Close(context.WithoutCancel(cmd.Context())); cerr != nil {
				appInstance.GetLogger().Warn("close progress hub", zap.Error(cerr))
			}
		}()
		opts = append(opts, pipeline.WithEmitter(hub))
	}
	p := pipeline.New(sink, logging.NewLogger(appInstance.GetLogger()), cfg.Pipeline.Concurrency, opts...)
	summaries, err := p.Run(cmd.Context(), jobs)
	for _, s := range summaries {
		if s.Site == "" {
			continue
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "%-20s records=%d units=%d blocked=%d duration=%s\n",
			s.Site, s.Records, s.Units, len(s.Blocked), s.Duration.Round(time.Millisecond))
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run search: %w", err)
	}
	return nil
}

func selectDrivers(all []driver.Driver, names []string) ([]driver.Driver, error) {
	if len(names) == 0 {
		return all, nil
	}
	var out []driver.Driver
	for _, n := range names {
		i := slices.IndexFunc(all, func(d driver.Driver) bool { return strings.EqualFold(d.Name(), n) })
		if i < 0 {
			return nil, fmt.Errorf("unknown site %q", n)
		}
		if !slices.Contains(out, all[i]) {
			out = append(out, all[i])
		}
	}
	return out, nil
}
