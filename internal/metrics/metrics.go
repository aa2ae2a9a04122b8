// Package metrics exposes Prometheus collectors for the directory scraping engine.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Request outcomes recorded by ObserveRequest.
const (
	OutcomeOK          = "ok"
	OutcomeTransport   = "transport_error"
	OutcomeRateLimited = "rate_limited"
	OutcomeChallenge   = "challenge"
	OutcomeUnexpected  = "unexpected"
	OutcomeRedirect    = "redirect"
)

// Unit results recorded by ObserveUnit.
const (
	UnitCompleted = "completed"
	UnitBlocked   = "blocked"
	UnitAbandoned = "abandoned"
)

var (
	scraperRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_requests_total",
			Help: "Outbound directory requests, labeled by site and outcome.",
		},
		[]string{"site", "outcome"},
	)

	scraperBlocksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_blocks_total",
			Help: "Blocked responses routed through backoff, labeled by site and status code (0 = transport).",
		},
		[]string{"site", "code"},
	)

	scraperPacingDelaySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scraper_pacing_delay_seconds",
			Help:    "Histogram of inter-request and backoff pauses.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"site", "kind"},
	)

	scraperRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_records_total",
			Help: "Normalized records yielded, labeled by site.",
		},
		[]string{"site"},
	)

	scraperUnitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_units_total",
			Help: "Search units attempted, labeled by site and result.",
		},
		[]string{"site", "result"},
	)
)

// SanitizeSite reduces a site name or URL to a lowercase label.
// It returns "unknown" for empty or unparseable input.
func SanitizeSite(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "unknown"
	}
	if !strings.Contains(raw, "://") {
		if strings.ContainsAny(raw, "./:") {
			raw = "http://" + raw
		} else {
			return strings.ToLower(raw)
		}
	}
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRequest counts one outbound request.
func ObserveRequest(site, outcome string) {
	scraperRequestsTotal.WithLabelValues(SanitizeSite(site), outcome).Inc()
}

// ObserveBlock counts one block routed through the limiter backoff.
func ObserveBlock(site string, code int) {
	scraperBlocksTotal.WithLabelValues(SanitizeSite(site), strconv.Itoa(code)).Inc()
}

// ObservePause records a pacing ("wait") or backoff ("backoff") pause.
func ObservePause(site, kind string, d time.Duration) {
	if d <= 0 {
		return
	}
	scraperPacingDelaySeconds.WithLabelValues(SanitizeSite(site), kind).Observe(d.Seconds())
}

// ObserveRecord counts one yielded record.
func ObserveRecord(site string) {
	scraperRecordsTotal.WithLabelValues(SanitizeSite(site)).Inc()
}

// ObserveUnit counts one finished search unit.
func ObserveUnit(site, result string) {
	scraperUnitsTotal.WithLabelValues(SanitizeSite(site), result).Inc()
}
