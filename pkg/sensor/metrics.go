package sensor

import "github.com/prometheus/client_golang/prometheus"

var (
	metricSpoolFree = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "inletd_spool_free_bytes",
		Help: "Free bytes on the spool filesystem at the last poll.",
	})
	metricSpoolTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "inletd_spool_total_bytes",
		Help: "Total bytes on the spool filesystem.",
	})
	metricAlerts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "inletd_spool_space_alerts_total",
		Help: "Times the spool filesystem dropped below the free-byte floor.",
	})
)

func init() {
	prometheus.MustRegister(metricSpoolFree, metricSpoolTotal, metricAlerts)
}
