// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "findot"

var (
	ExpensesSaved = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "expense",
		Name:      "saved_total",
		Help:      "Expenses appended to the ledger",
	})

	ParseFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "expense",
		Name:      "parse_failures_total",
		Help:      "Messages that could not be parsed, by reason",
	}, []string{"reason"})

	LedgerCalls = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "call_duration_seconds",
		Help:      "Ledger store call latency",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"operation", "status"})

	Actions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "actions",
		Name:      "total",
		Help:      "Undo and ignore requests by outcome",
	}, []string{"action", "result"})

	Commands = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "bot",
		Name:      "commands_total",
		Help:      "Dispatched bot commands",
	}, []string{"command"})

	Transcriptions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "speech",
		Name:      "transcriptions_total",
		Help:      "Voice notes sent for transcription by outcome",
	}, []string{"result"})

	MirroredEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "mirror",
		Name:      "events_total",
		Help:      "Ledger events applied by the mirror worker",
	}, []string{"kind", "result"})
)

// Status labels an outcome for LedgerCalls.
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
