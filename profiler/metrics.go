package profiler

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the Prometheus collectors a Recorder updates as it observes
// transaction lifecycle events.
type Metrics struct {
	TransactionsStarted   prometheus.Counter
	TransactionsCommitted prometheus.Counter
	Conflicts             prometheus.Counter
	ActiveTransactions    prometheus.Gauge
	CommitDuration        prometheus.Histogram
}

// NewMetrics constructs and registers the collectors against reg. Passing
// prometheus.NewRegistry() (rather than the global DefaultRegisterer) keeps
// multiple Recorders in the same process independent, which matters for
// tests that construct more than one.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TransactionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stm_transactions_started_total",
			Help: "Total number of transaction attempts started, including retries and re-conflicted attempts.",
		}),
		TransactionsCommitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stm_transactions_committed_total",
			Help: "Total number of transactions that committed successfully.",
		}),
		Conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stm_conflicts_total",
			Help: "Total number of commit attempts rejected due to a stale read.",
		}),
		ActiveTransactions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stm_active_transactions",
			Help: "Number of top-level transaction attempts currently in flight.",
		}),
		CommitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "stm_commit_duration_seconds",
			Help:    "Wall-clock time from a transaction's first attempt to its eventual commit.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(
		m.TransactionsStarted,
		m.TransactionsCommitted,
		m.Conflicts,
		m.ActiveTransactions,
		m.CommitDuration,
	)
	return m
}
