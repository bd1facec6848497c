// Package metrics exposes Prometheus counters for the bridge pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsAccepted counts payloads that passed shape validation.
	EventsAccepted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flixbridge_events_accepted_total",
		Help: "Payloads accepted by intake, by source.",
	}, []string{"source"})

	// EventsRejected counts payloads rejected at intake.
	EventsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flixbridge_events_rejected_total",
		Help: "Payloads rejected by intake, by source.",
	}, []string{"source"})

	// EventsCommitted counts events durably appended to the log.
	EventsCommitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flixbridge_events_committed_total",
		Help: "Events durably committed to the event log, by source.",
	}, []string{"source"})

	// StorageErrors counts failed commits.
	StorageErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flixbridge_storage_errors_total",
		Help: "Event log append failures.",
	})

	// DispatchDecisions counts authorization gate outcomes.
	DispatchDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flixbridge_dispatch_decisions_total",
		Help: "Dispatch authorization outcomes, by service and decision.",
	}, []string{"service", "decision"})

	// ProbeResults counts liveness probe outcomes.
	ProbeResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flixbridge_probe_results_total",
		Help: "Liveness probe outcomes, by service and result.",
	}, []string{"service", "result"})
)
