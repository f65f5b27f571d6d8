package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		sessionsStarted,
		sessionsCompleted,
		turnsProcessed,
		completionNotifyFailures,
	)
}

var (
	sessionsStarted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tutoring_sessions_started_total",
			Help: "Count of tutoring sessions created.",
		},
	)

	sessionsCompleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tutoring_sessions_completed_total",
			Help: "Count of sessions that reached topic completion.",
		},
	)

	turnsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tutoring_turns_total",
			Help: "Count of processed conversation turns, by completion outcome.",
		},
		[]string{"completed"},
	)

	completionNotifyFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tutoring_completion_notify_failures_total",
			Help: "Completion notifications the progress API did not accept.",
		},
	)
)

func SessionStarted() { sessionsStarted.Inc() }

func TurnProcessed(completed bool) {
	turnsProcessed.WithLabelValues(strconv.FormatBool(completed)).Inc()
	if completed {
		sessionsCompleted.Inc()
	}
}

func CompletionNotifyFailed() { completionNotifyFailures.Inc() }
