package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		progressRequests,
	)
}

var (
	progressRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "progress_api_requests_total",
			Help: "Progress API calls by endpoint and outcome (ok|unavailable).",
		},
		[]string{"endpoint", "outcome"},
	)
)

func ProgressRequest(endpoint string, ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "unavailable"
	}
	progressRequests.WithLabelValues(endpoint, outcome).Inc()
}
