package cmd

import (
	"bytes"
	"context"
	"errors"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/bar-directory-crawler/internal/config"
	"github.com/JakeFAU/bar-directory-crawler/internal/driver"
	"github.com/JakeFAU/bar-directory-crawler/internal/record"
)

type fakeApp struct {
	drivers  []driver.Driver
	closed   bool
	progress string
}

func (a *fakeApp) Close() { a.closed = true }
func (a *fakeApp) GetLogger() *zap.Logger { return zap.NewNop() }
func (a *fakeApp) GetDrivers() []driver.Driver { return a.drivers }
func (a *fakeApp) GetConfig() config.Config {
	return config.Config{
		Output:   config.OutputConfig{Path: "-", ProgressPath: a.progress},
		Pipeline: config.PipelineConfig{Concurrency: 2},
	}
}

type fakeDriver struct {
	cfg   driver.Config
	got   driver.Options
	query string
}

func (d *fakeDriver) Name() string { return d.cfg.Name }
func (d *fakeDriver) Config() driver.Config { return d.cfg }

func (d *fakeDriver) Search(_ context.Context, query string, opts driver.Options) iter.Seq[driver.Item] {
	d.got, d.query = opts, query
	return func(yield func(driver.Item) bool) {
		if !yield(driver.ProgressItem(1, 1, "Ottawa")) {
			return
		}
		yield(driver.RecordItem(record.Record{FirstName: "Jane", LastName: "Doe", FullName: "Jane Doe"}))
	}
}

func useApp(t *testing.T, a App, err error) {
	t.Helper()
	orig := newApp
	newApp = func(context.Context, string) (App, error) { return a, err }
	t.Cleanup(func() { newApp = orig })
}

func run(args ...string) (string, string, error) {
	var stdout, stderr bytes.Buffer
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func newFakes() (*fakeDriver, *fakeDriver) {
	alpha := &fakeDriver{cfg: driver.Config{
		Name: "alpha", Region: "ON", Units: []string{"Ottawa", "Toronto"},
		PracticeAreas: map[string]string{"tax": "T", "family law": "F"},
		EnrichMode:    driver.EnrichInline,
	}}
	beta := &fakeDriver{cfg: driver.Config{Name: "beta", Region: "BC", UnitKind: driver.UnitPrefix}}
	return alpha, beta
}

func TestSearchCommand(t *testing.T) {
	alpha, beta := newFakes()
	dir := t.TempDir()
	a := &fakeApp{drivers: []driver.Driver{alpha, beta}, progress: filepath.Join(dir, "progress.jsonl")}
	useApp(t, a, nil)
	out := filepath.Join(dir, "records.jsonl")

	_, stderr, err := run("search", "--site", "ALPHA", "--query", "tax", "--city", "Ottawa",
		"--max-pages", "2", "--min-year", "2000", "--skip-profiles", "--out", out)
	require.NoError(t, err)
	require.True(t, a.closed)
	require.Equal(t, "tax", alpha.query)
	require.Equal(t, driver.Options{City: "Ottawa", MaxPages: 2, MinYear: 2000, SkipProfiles: true}, alpha.got)
	require.Empty(t, beta.query)
	require.Contains(t, stderr, "alpha")
	require.Contains(t, stderr, "records=1")

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)
	require.Contains(t, lines[0], `"site":"alpha"`)
	require.Contains(t, lines[0], `"full_name":"Jane Doe"`)

	events, err := os.ReadFile(a.progress)
	require.NoError(t, err)
	require.Contains(t, string(events), `"stage":"UNIT_START"`)
	require.Contains(t, string(events), `"stage":"RUN_DONE"`)
}

func TestSearchUnknownSite(t *testing.T) {
	alpha, _ := newFakes()
	useApp(t, &fakeApp{drivers: []driver.Driver{alpha}}, nil)
	_, _, err := run("search", "--site", "gamma", "--out", filepath.Join(t.TempDir(), "x.jsonl"))
	require.ErrorContains(t, err, `unknown site "gamma"`)
}

func TestSitesCommand(t *testing.T) {
	alpha, beta := newFakes()
	useApp(t, &fakeApp{drivers: []driver.Driver{alpha, beta}}, nil)
	stdout, _, err := run("sites")
	require.NoError(t, err)
	require.Contains(t, stdout, "NAME")
	require.Contains(t, stdout, "family law, tax")
	require.Contains(t, stdout, "2 city")
	require.Contains(t, stdout, "0 prefix")
	require.Contains(t, stdout, "inline")
}

func TestAppInitFailure(t *testing.T) {
	useApp(t, nil, errors.New("bad config"))
	_, _, err := run("sites")
	require.ErrorContains(t, err, "bad config")
}

func TestSelectDrivers(t *testing.T) {
	alpha, beta := newFakes()
	all := []driver.Driver{alpha, beta}

	got, err := selectDrivers(all, nil)
	require.NoError(t, err)
	require.Len(t, got, 2)

	got, err = selectDrivers(all, []string{"beta", "Beta"})
	require.NoError(t, err)
	require.Equal(t, []driver.Driver{beta}, got)
}
