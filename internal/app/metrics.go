package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	relayedEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_relay_events_total",
		Help: "Monitoring events processed by the relay, by normalized event type.",
	}, []string{"event_type"})

	broadcastsDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_relay_broadcasts_dropped_total",
		Help: "Broadcasts that reached a reference with no live subscribers.",
	})

	auditFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_relay_audit_failures_total",
		Help: "Audit sink writes that failed and were swallowed.",
	})

	relayStepFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_relay_step_failures_total",
		Help: "Per-event relay steps that failed or panicked, by step name.",
	}, []string{"step"})
)
