package docdb

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	keysFoundTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docdb_keys_found_total",
		Help: "the number of row keys examined by row iterators",
	})
	obsoleteKeysFoundTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docdb_obsolete_keys_found_total",
		Help: "the number of examined row keys whose row was tombstoned or expired",
	})
	obsoleteKeysFoundPastCutoffTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docdb_obsolete_keys_found_past_cutoff_total",
		Help: "the number of obsolete row keys written before the history cutoff",
	})
)

// Metrics is the row-iterator counter set. Iterators accumulate locally and
// flush once per scan, so the shared counters see one atomic add per scan.
type Metrics struct {
	KeysFound                   prometheus.Counter
	ObsoleteKeysFound           prometheus.Counter
	ObsoleteKeysFoundPastCutoff prometheus.Counter
}

// DefaultMetrics returns the process-wide counter set.
func DefaultMetrics() *Metrics {
	return &Metrics{
		KeysFound:                   keysFoundTotal,
		ObsoleteKeysFound:           obsoleteKeysFoundTotal,
		ObsoleteKeysFoundPastCutoff: obsoleteKeysFoundPastCutoffTotal,
	}
}
