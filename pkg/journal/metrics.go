package journal

import "github.com/prometheus/client_golang/prometheus"

var metricAppends = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "inletd_journal_appends_total",
	Help: "Entries appended to the request journal.",
})

func init() {
	prometheus.MustRegister(metricAppends)
}
