// Package drivers builds configured site drivers. HTML form directories get a
// colly fetcher and JSON endpoints a resty one unless the caller supplies its own.
package drivers

import (
	"fmt"
	"slices"
	"strings"

	"github.com/JakeFAU/bar-directory-crawler/internal/config"
	"github.com/JakeFAU/bar-directory-crawler/internal/driver"
	"github.com/JakeFAU/bar-directory-crawler/internal/drivers/formtable"
	"github.com/JakeFAU/bar-directory-crawler/internal/drivers/jsonapi"
	"github.com/JakeFAU/bar-directory-crawler/internal/fetcher"
	collyfetcher "github.com/JakeFAU/bar-directory-crawler/internal/fetcher/colly"
	restyfetcher "github.com/JakeFAU/bar-directory-crawler/internal/fetcher/resty"
)

// Kinds lists the supported site kinds.
func Kinds() []string {
	return []string{config.KindFormTable, config.KindJSONAPI}
}

// Build constructs the driver for one site entry.
func Build(site config.SiteConfig, deps driver.Deps, httpCfg fetcher.Config) (driver.Driver, error) {
	if err := site.Validate(); err != nil {
		return nil, fmt.Errorf("build driver: %w", err)
	}
	switch site.Kind {
	case config.KindFormTable:
		if deps.NewFetcher == nil {
			deps.NewFetcher = collyfetcher.NewFactory(httpCfg)
		}
		return formtable.New(site, deps)
	case config.KindJSONAPI:
		if deps.NewFetcher == nil {
			deps.NewFetcher = restyfetcher.NewFactory(httpCfg)
		}
		return jsonapi.New(site, deps)
	default:
		return nil, fmt.Errorf("build driver %s: unknown kind %q (want one of %v)", site.Name, site.Kind, Kinds())
	}
}

// BuildAll constructs every configured site, optionally restricted to names.
func BuildAll(cfg config.Config, deps driver.Deps, names ...string) ([]driver.Driver, error) {
	for _, n := range names {
		if _, ok := cfg.Site(n); !ok {
			return nil, fmt.Errorf("unknown site %q", n)
		}
	}
	httpCfg := fetcher.Config{Timeout: cfg.Timeout()}
	var out []driver.Driver
	for _, site := range cfg.Sites {
		wanted := func(n string) bool { return strings.EqualFold(n, site.Name) }
		if len(names) > 0 && !slices.ContainsFunc(names, wanted) {
			continue
		}
		d, err := Build(site, deps, httpCfg)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}
