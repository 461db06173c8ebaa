package ingest

import "github.com/prometheus/client_golang/prometheus"

// Outcome labels recorded on the ingestion counter.
const (
	OutcomeOK         = "ok"
	OutcomeParseError = "parse_error"
	OutcomeClientGone = "client_gone"
	OutcomeIOError    = "io_error"
)

var (
	metricRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "inletd_ingest_requests_total",
		Help: "Ingestions finished, by outcome.",
	}, []string{"outcome"})

	metricBodyBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "inletd_ingest_body_bytes_total",
		Help: "Request body bytes read from client sockets.",
	})

	metricBodiesMemory = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "inletd_ingest_bodies_memory_total",
		Help: "Request bodies materialized in memory.",
	})

	metricBodiesSpooled = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "inletd_ingest_bodies_spooled_total",
		Help: "Request bodies spooled to disk.",
	})
)

func init() {
	prometheus.MustRegister(metricRequests, metricBodyBytes, metricBodiesMemory, metricBodiesSpooled)
}
