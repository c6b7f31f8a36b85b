package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// QuoteUpdates counts quote writes by outcome (committed, stale, invalid).
var QuoteUpdates = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "brokerfeed_quote_updates_total",
		Help: "Quote cache writes by outcome",
	},
	[]string{"outcome"},
)

// FetchThrough counts upstream fetch-through attempts by result.
var FetchThrough = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "brokerfeed_fetch_through_total",
		Help: "Upstream fetch-through attempts by result",
	},
	[]string{"result"},
)

var FetchLatency = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "brokerfeed_fetch_through_latency_seconds",
		Help:    "Latency of upstream fetch-through round trips",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	},
)

var FeedInitAttempts = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "brokerfeed_feed_init_attempts_total",
		Help: "Upstream initialization attempts by result",
	},
	[]string{"result"},
)

var FeedInitialized = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "brokerfeed_feed_initialized",
		Help: "1 when the upstream feed is initialized",
	},
)

// Settlements counts trade settlements by result (recorded, duplicate, failed).
var Settlements = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "brokerfeed_settlements_total",
		Help: "Trade settlements by result",
	},
	[]string{"result"},
)

var CommissionsRecorded = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "brokerfeed_ib_commissions_total",
		Help: "IB commission records written",
	},
)

var SettingsFallbacks = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "brokerfeed_settings_fallbacks_total",
		Help: "Times hardcoded defaults replaced stored configuration",
	},
	[]string{"kind"},
)
