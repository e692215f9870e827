package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "opsgate_operations_total",
		Help: "Operation requests by verb and outcome.",
	}, []string{"verb", "outcome"})

	confirmationsIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "opsgate_confirmations_issued_total",
		Help: "Confirmation tokens issued to callers.",
	})

	confirmationsRedeemed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "opsgate_confirmations_redeemed_total",
		Help: "Confirmation tokens successfully redeemed.",
	})
)
