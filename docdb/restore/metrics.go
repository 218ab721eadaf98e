package restore

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var patchOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "restore_patch_operations_total",
	Help: "the number of write operations emitted by restore patches",
}, []string{"op"})
