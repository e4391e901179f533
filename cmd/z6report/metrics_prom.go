package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/copyleftdev/z6sim/core"
)

// Gauges mirrored from the post-run MetricsReducer output. z6report never
// scrapes live — it loads one finished ledger at startup and publishes a
// static snapshot, so these gauges are set once, not on every scrape.
var (
	requestsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "z6sim_requests_total",
		Help: "Total requests issued during the run.",
	})
	requestsSuccess = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "z6sim_requests_success",
		Help: "Requests that completed with a successful response.",
	})
	requestsFailed = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "z6sim_requests_failed",
		Help: "Requests that completed with an error or a failing status.",
	})
	latencyP99NS = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "z6sim_latency_p99_ns",
		Help: "p99 response latency in nanoseconds.",
	})
	requestsPerTick = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "z6sim_requests_per_tick",
		Help: "Completed responses per logical tick.",
	})
)

func publishMetrics(m core.RunMetrics) {
	requestsTotal.Set(float64(m.Requests.Total))
	requestsSuccess.Set(float64(m.Requests.Success))
	requestsFailed.Set(float64(m.Requests.Failed))
	latencyP99NS.Set(float64(m.Latency.P99))
	requestsPerTick.Set(m.Throughput.RequestsPerTick)
}

func promHandler() http.Handler {
	return promhttp.Handler()
}
