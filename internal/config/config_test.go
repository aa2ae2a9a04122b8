package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
logging:
  development: false
http:
  timeout_seconds: 45
ratelimit:
  base_delay_ms: 1500
  jitter_ms: 0
  max_retries: 4
  backoff_initial_ms: 100
  backoff_factor: 3
  backoff_max_ms: 500
user_agents:
  - agent-one
captcha:
  extra_phrases: ["unusual traffic"]
sites:
  - name: lso
    kind: formtable
    region: ON
    country: CA
    base_url: https://lso.example
    page_size: 25
    unit_kind: city
    units: [Toronto, Ottawa]
    enrich_mode: inline
    practice_areas:
      Family Law: FAM
    form:
      search_path: /Find.aspx
      row_selector: "table.results tr"
      fields:
        - name: ctl00$Main$Type
          value: Lawyer
      columns:
        full_name: 0
        city: 2
  - name: nsbs
    kind: jsonapi
    base_url: https://nsbs.example
    api:
      search_path: /api/search
      params:
        - name: PageSize
          value: "{page_size}"
      results_paths: [data.items, results]
      fields:
        full_name: [displayName, name]
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.False(t, cfg.Logging.Development)
	require.Equal(t, 45*time.Second, cfg.Timeout())
	limits := cfg.Limits()
	require.Equal(t, 1500*time.Millisecond, limits.BaseDelay)
	require.Equal(t, 4, limits.MaxRetries)
	require.InDelta(t, 3.0, limits.BackoffFactor, 1e-9)
	require.Equal(t, 500*time.Millisecond, limits.MinInterval, "unset keys keep defaults")
	require.Equal(t, []string{"agent-one"}, cfg.UserAgents)
	require.Equal(t, []string{"unusual traffic"}, cfg.Captcha.ExtraPhrases)
	require.Equal(t, 4, cfg.Pipeline.Concurrency)

	require.Len(t, cfg.Sites, 2)
	lso, ok := cfg.Site("LSO")
	require.True(t, ok)
	require.Len(t, lso.PracticeAreas, 1)
	for _, code := range lso.PracticeAreas {
		require.Equal(t, "FAM", code)
	}
	require.Equal(t, []Param{{Name: "ctl00$Main$Type", Value: "Lawyer"}}, lso.Form.Fields)
	require.Equal(t, 2, lso.Form.Columns["city"])

	nsbs, ok := cfg.Site("nsbs")
	require.True(t, ok)
	require.Equal(t, "PageSize", nsbs.API.Params[0].Name, "list params keep their case")
	require.Equal(t, []string{"displayName", "name"}, nsbs.API.Fields["full_name"])
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)
	require.True(t, cfg.Logging.Development)
	require.Equal(t, 30*time.Second, cfg.Timeout())
	require.Equal(t, 3, cfg.RateLimit.MaxRetries)
	require.Equal(t, "-", cfg.Output.Path)
	require.Empty(t, cfg.Sites)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		HTTP:      HTTPConfig{TimeoutSeconds: 10},
		RateLimit: RateLimitConfig{BaseDelayMs: 100, MaxRetries: 3, BackoffFactor: 2},
		Pipeline:  PipelineConfig{Concurrency: 1},
	}
	site := SiteConfig{Name: "a", Kind: KindJSONAPI, BaseURL: "https://a", API: APIConfig{SearchPath: "/s"}}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "invalid timeout", mutate: func(c *Config) { c.HTTP.TimeoutSeconds = 0 }, want: "http.timeout_seconds"},
		{name: "invalid retries", mutate: func(c *Config) { c.RateLimit.MaxRetries = 0 }, want: "ratelimit.max_retries"},
		{name: "flat backoff", mutate: func(c *Config) { c.RateLimit.BackoffFactor = 1 }, want: "ratelimit.backoff_factor"},
		{name: "zero base delay", mutate: func(c *Config) { c.RateLimit.BaseDelayMs = 0 }, want: "ratelimit.base_delay_ms"},
		{name: "negative delay", mutate: func(c *Config) { c.RateLimit.JitterMs = -1 }, want: "ratelimit delays"},
		{name: "no concurrency", mutate: func(c *Config) { c.Pipeline.Concurrency = 0 }, want: "pipeline.concurrency"},
		{name: "metrics without addr", mutate: func(c *Config) { c.Metrics.Enabled = true }, want: "metrics.addr"},
		{name: "duplicate site", mutate: func(c *Config) { c.Sites = []SiteConfig{site, site} }, want: "duplicate name"},
		{name: "unknown kind", mutate: func(c *Config) {
			s := site
			s.Kind = "graphql"
			c.Sites = []SiteConfig{s}
		}, want: "unknown kind"},
		{name: "form without rows", mutate: func(c *Config) {
			s := site
			s.Kind = KindFormTable
			c.Sites = []SiteConfig{s}
		}, want: "form.row_selector"},
		{name: "bad unit kind", mutate: func(c *Config) {
			s := site
			s.UnitKind = "letter"
			c.Sites = []SiteConfig{s}
		}, want: "unit_kind"},
		{name: "missing base url", mutate: func(c *Config) {
			s := site
			s.BaseURL = ""
			c.Sites = []SiteConfig{s}
		}, want: "base_url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := base
			tt.mutate(&c)
			err := c.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}

	require.NoError(t, base.Validate())
}
