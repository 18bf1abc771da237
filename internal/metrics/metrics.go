// Package metrics holds Prometheus instruments shared by the handler and
// the storage chain.  All collectors are registered with the global
// registry, so importing this package is enough to expose them on the
// scrape path.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Requests counts handled submissions by outcome (ok, honeypot,
	// preflight, forbidden, method, unsupported, invalid, too_large,
	// misconfigured, storage_error, panic).
	Requests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signup_requests_total",
			Help: "Signup requests by outcome.",
		}, []string{"outcome"})

	// StorageWrites counts write attempts per path (rest_upsert, sql_insert,
	// …) and result (ok, rejected, unreachable, timeout).
	StorageWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signup_storage_writes_total",
			Help: "Storage write attempts by path and result.",
		}, []string{"path", "result"})

	StorageWriteSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "signup_storage_write_seconds",
			Help:    "Latency of storage write attempts.",
			Buckets: []float64{.025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"path"})
)

func init() {
	prometheus.MustRegister(
		Requests,
		StorageWrites,
		StorageWriteSeconds,
	)
}
