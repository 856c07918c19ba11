// Package metrics exposes prometheus counters for cell operations.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	operations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cellule",
		Name:      "operations_total",
		Help:      "Data operations by name and outcome.",
	}, []string{"operation", "result"})

	rejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cellule",
		Name:      "validation_rejections_total",
		Help:      "Inputs rejected before reaching storage.",
	}, []string{"operation"})
)

// ObserveOperation counts one call of op, labelled ok or error.
func ObserveOperation(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	operations.WithLabelValues(op, result).Inc()
}

// ObserveRejection counts one rejected input for op.
func ObserveRejection(op string) {
	rejections.WithLabelValues(op).Inc()
}

// Handler serves the default registry in the prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
