package server

import "github.com/prometheus/client_golang/prometheus"

var (
	metricAccepted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "inletd_server_connections_total",
		Help: "Connections accepted and handed to workers.",
	})
	metricRejected = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "inletd_server_rejected_total",
		Help: "Connections refused by the per-peer accept limiter.",
	})
	metricActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "inletd_server_active_connections",
		Help: "Connections currently being served.",
	})
	metricResponses = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "inletd_server_responses_total",
		Help: "Responses written, by status class.",
	}, []string{"class"})
)

func init() {
	prometheus.MustRegister(metricAccepted, metricRejected, metricActive, metricResponses)
}
