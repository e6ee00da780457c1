package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the pipeline counters exposed on /metrics. TimezoneFallbacks
// tracks how often a source adapter had to infer a timezone instead of
// reading an explicit marker, which is the main data-quality watch item for
// closing dates.
type Metrics struct {
	ScrapeRuns        *prometheus.CounterVec
	ItemsUpserted     *prometheus.CounterVec
	ItemsClosed       *prometheus.CounterVec
	ParseFailures     *prometheus.CounterVec
	TimezoneFallbacks *prometheus.CounterVec
	ScrapeDuration    *prometheus.SummaryVec
}

func New() *Metrics {
	m := &Metrics{
		ScrapeRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "auctionharvest",
			Name:      "scrape_runs_total",
			Help:      "Number of scrape runs by source and status",
		}, []string{"source", "status"}),
		ItemsUpserted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "auctionharvest",
			Name:      "items_upserted_total",
			Help:      "Number of auction items inserted or updated by source",
		}, []string{"source", "op"}),
		ItemsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "auctionharvest",
			Name:      "items_closed_total",
			Help:      "Number of auction items marked unavailable during reconciliation",
		}, []string{"source"}),
		ParseFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "auctionharvest",
			Name:      "parse_failures_total",
			Help:      "Number of listing rows skipped because they failed to parse",
		}, []string{"source"}),
		TimezoneFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "auctionharvest",
			Name:      "timezone_fallbacks_total",
			Help:      "Number of closing dates resolved by timezone inference instead of an explicit marker",
		}, []string{"source", "method"}),
		ScrapeDuration: prometheus.NewSummaryVec(prometheus.SummaryOpts{
			Namespace: "auctionharvest",
			Name:      "scrape_duration_seconds",
			Help:      "Time spent on a full scrape run",
		}, []string{"source"}),
	}
	prometheus.MustRegister(
		m.ScrapeRuns, m.ItemsUpserted, m.ItemsClosed,
		m.ParseFailures, m.TimezoneFallbacks, m.ScrapeDuration,
	)
	return m
}

// Nop returns unregistered metrics for tests.
func Nop() *Metrics {
	return &Metrics{
		ScrapeRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scrape_runs_total",
		}, []string{"source", "status"}),
		ItemsUpserted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "items_upserted_total",
		}, []string{"source", "op"}),
		ItemsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "items_closed_total",
		}, []string{"source"}),
		ParseFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "parse_failures_total",
		}, []string{"source"}),
		TimezoneFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "timezone_fallbacks_total",
		}, []string{"source", "method"}),
		ScrapeDuration: prometheus.NewSummaryVec(prometheus.SummaryOpts{
			Name: "scrape_duration_seconds",
		}, []string{"source"}),
	}
}
