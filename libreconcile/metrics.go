package libreconcile

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	reconcileCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "purldb",
			Subsystem: "libreconcile",
			Name:      "reconcile_total",
			Help:      "Total number of reconcile requests by outcome.",
		},
		[]string{"outcome"},
	)
)
