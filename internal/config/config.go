// Package config loads and validates scraper configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/bar-directory-crawler/internal/policy/ratelimit"
)

// Driver kinds understood by the registry.
const (
	KindFormTable = "formtable"
	KindJSONAPI   = "jsonapi"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Logging    LoggingConfig   `mapstructure:"logging"`
	HTTP       HTTPConfig      `mapstructure:"http"`
	RateLimit  RateLimitConfig `mapstructure:"ratelimit"`
	UserAgents []string        `mapstructure:"user_agents"`
	Captcha    CaptchaConfig   `mapstructure:"captcha"`
	Metrics    MetricsConfig   `mapstructure:"metrics"`
	Output     OutputConfig    `mapstructure:"output"`
	Pipeline   PipelineConfig  `mapstructure:"pipeline"`
	Sites      []SiteConfig    `mapstructure:"sites"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// HTTPConfig bounds each HTTP exchange.
type HTTPConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// RateLimitConfig is the single pacing and retry policy applied to every driver.
type RateLimitConfig struct {
	BaseDelayMs      int     `mapstructure:"base_delay_ms"`
	JitterMs         int     `mapstructure:"jitter_ms"`
	MaxRetries       int     `mapstructure:"max_retries"`
	BackoffInitialMs int     `mapstructure:"backoff_initial_ms"`
	BackoffFactor    float64 `mapstructure:"backoff_factor"`
	BackoffMaxMs     int     `mapstructure:"backoff_max_ms"`
	MinIntervalMs    int     `mapstructure:"min_interval_ms"`
}

// CaptchaConfig extends the built-in challenge phrase table.
type CaptchaConfig struct {
	ExtraPhrases []string `mapstructure:"extra_phrases"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// OutputConfig selects where records are written. ProgressPath, when set,
// receives run milestones as JSON lines.
type OutputConfig struct {
	Path         string `mapstructure:"path"`
	ProgressPath string `mapstructure:"progress_path"`
}

// PipelineConfig bounds how many drivers run at once. Drivers target different
// hosts, so running them concurrently never doubles up on one site.
type PipelineConfig struct {
	Concurrency int `mapstructure:"concurrency"`
}

// Param is an ordered name/value pair. Viper lowercases map keys, so parameters
// whose names are case-sensitive are configured as a list.
type Param struct {
	Name  string `mapstructure:"name"`
	Value string `mapstructure:"value"`
}

// SiteConfig configures one driver instance.
type SiteConfig struct {
	Name                string            `mapstructure:"name"`
	Kind                string            `mapstructure:"kind"`
	Region              string            `mapstructure:"region"`
	Country             string            `mapstructure:"country"`
	BaseURL             string            `mapstructure:"base_url"`
	PageSize            int               `mapstructure:"page_size"`
	MaxConsecutiveEmpty int               `mapstructure:"max_consecutive_empty"`
	UnitKind            string            `mapstructure:"unit_kind"`
	Units               []string          `mapstructure:"units"`
	PracticeAreas       map[string]string `mapstructure:"practice_areas"`
	EnrichMode          string            `mapstructure:"enrich_mode"`
	Form                FormConfig        `mapstructure:"form"`
	API                 APIConfig         `mapstructure:"api"`
}

// FormConfig drives the ASP.NET WebForms table driver.
type FormConfig struct {
	SearchPath    string  `mapstructure:"search_path"`
	CityField     string  `mapstructure:"city_field"`
	PracticeField string  `mapstructure:"practice_field"`
	SubmitField   string  `mapstructure:"submit_field"`
	SubmitValue   string  `mapstructure:"submit_value"`
	PagerTarget   string  `mapstructure:"pager_target"`
	Fields        []Param `mapstructure:"fields"`
	RowSelector   string  `mapstructure:"row_selector"`
	// Columns maps record field names to zero-based cell indexes.
	Columns             map[string]int `mapstructure:"columns"`
	ProfileLinkSelector string         `mapstructure:"profile_link_selector"`
	TotalSelector       string         `mapstructure:"total_selector"`
	// ProfileLabels maps lower-cased profile labels to record field names.
	ProfileLabels map[string]string `mapstructure:"profile_labels"`
}

// APIConfig drives the JSON search endpoint driver. Params and paths may contain
// {unit}, {practice}, {page} (1-based), {page0} (0-based), {page_size}, {offset},
// and {id} placeholders. Params that expand to an empty value are omitted.
type APIConfig struct {
	SearchPath   string              `mapstructure:"search_path"`
	Params       []Param             `mapstructure:"params"`
	ResultsPaths []string            `mapstructure:"results_paths"`
	TotalPaths   []string            `mapstructure:"total_paths"`
	Fields       map[string][]string `mapstructure:"fields"`
	IDField      string              `mapstructure:"id_field"`
	ProfilePath  string              `mapstructure:"profile_path"`
	// ProfileFields maps record field names to candidate gjson paths in the
	// profile document.
	ProfileFields   map[string][]string `mapstructure:"profile_fields"`
	ProfilePagePath string              `mapstructure:"profile_page_path"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("BAR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	def := ratelimit.DefaultConfig()
	v.SetDefault("logging.development", true)
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("ratelimit.base_delay_ms", def.BaseDelay.Milliseconds())
	v.SetDefault("ratelimit.jitter_ms", def.Jitter.Milliseconds())
	v.SetDefault("ratelimit.max_retries", def.MaxRetries)
	v.SetDefault("ratelimit.backoff_initial_ms", def.BackoffInitial.Milliseconds())
	v.SetDefault("ratelimit.backoff_factor", def.BackoffFactor)
	v.SetDefault("ratelimit.backoff_max_ms", def.BackoffMax.Milliseconds())
	v.SetDefault("ratelimit.min_interval_ms", def.MinInterval.Milliseconds())
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9090")
	v.SetDefault("output.path", "-")
	v.SetDefault("pipeline.concurrency", 4)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.RateLimit.MaxRetries <= 0 {
		return fmt.Errorf("ratelimit.max_retries must be > 0")
	}
	if c.RateLimit.BackoffFactor <= 1 {
		return fmt.Errorf("ratelimit.backoff_factor must be > 1")
	}
	if c.RateLimit.BaseDelayMs <= 0 {
		return fmt.Errorf("ratelimit.base_delay_ms must be > 0")
	}
	if c.RateLimit.JitterMs < 0 || c.RateLimit.MinIntervalMs < 0 {
		return fmt.Errorf("ratelimit delays must be >= 0")
	}
	if c.Pipeline.Concurrency <= 0 {
		return fmt.Errorf("pipeline.concurrency must be > 0")
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr must be set when metrics are enabled")
	}
	seen := make(map[string]struct{}, len(c.Sites))
	for i, s := range c.Sites {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("sites[%d]: %w", i, err)
		}
		key := strings.ToLower(s.Name)
		if _, dup := seen[key]; dup {
			return fmt.Errorf("sites[%d]: duplicate name %q", i, s.Name)
		}
		seen[key] = struct{}{}
	}
	return nil
}

// Validate checks one site entry.
func (s SiteConfig) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if s.BaseURL == "" {
		return fmt.Errorf("%s: base_url is required", s.Name)
	}
	switch s.UnitKind {
	case "", "city", "prefix":
	default:
		return fmt.Errorf("%s: unit_kind must be city or prefix", s.Name)
	}
	switch s.Kind {
	case KindFormTable:
		if s.Form.RowSelector == "" {
			return fmt.Errorf("%s: form.row_selector is required", s.Name)
		}
	case KindJSONAPI:
		if s.API.SearchPath == "" {
			return fmt.Errorf("%s: api.search_path is required", s.Name)
		}
	default:
		return fmt.Errorf("%s: unknown kind %q", s.Name, s.Kind)
	}
	return nil
}

// Limits converts the rate limit section into a limiter config.
func (c Config) Limits() ratelimit.Config {
	ms := func(n int) time.Duration { return time.Duration(n) * time.Millisecond }
	return ratelimit.Config{
		BaseDelay:      ms(c.RateLimit.BaseDelayMs),
		Jitter:         ms(c.RateLimit.JitterMs),
		MaxRetries:     c.RateLimit.MaxRetries,
		BackoffInitial: ms(c.RateLimit.BackoffInitialMs),
		BackoffFactor:  c.RateLimit.BackoffFactor,
		BackoffMax:     ms(c.RateLimit.BackoffMaxMs),
		MinInterval:    ms(c.RateLimit.MinIntervalMs),
	}
}

// Timeout is the per-request wall-clock bound.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// Site returns the site with the given name, case-insensitively.
func (c Config) Site(name string) (SiteConfig, bool) {
	for _, s := range c.Sites {
		if strings.EqualFold(s.Name, name) {
			return s, true
		}
	}
	return SiteConfig{}, false
}
