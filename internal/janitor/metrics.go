package janitor

import "github.com/prometheus/client_golang/prometheus"

var (
	metricRuns = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "inletd_janitor_runs_total",
		Help: "Completed janitor sweeps.",
	})
	metricSpoolRemoved = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "inletd_janitor_spool_removed_total",
		Help: "Orphaned spool files removed.",
	})
	metricJournalPruned = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "inletd_janitor_journal_pruned_total",
		Help: "Journal entries pruned by age.",
	})
)

func init() {
	prometheus.MustRegister(metricRuns, metricSpoolRemoved, metricJournalPruned)
}
