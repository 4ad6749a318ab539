// Package metrics holds the domain counters exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	AutomationRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "automation_runs_total",
			Help: "Billing-cycle runs by trigger and outcome",
		},
		[]string{"trigger", "dry_run", "outcome"},
	)
	AutomationActions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "automation_actions_total",
			Help: "Actions taken by the billing-cycle scheduler",
		},
		[]string{"action"},
	)
	AutomationRunDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "automation_run_duration_seconds",
			Help:    "Duration of billing-cycle runs",
			Buckets: prometheus.DefBuckets,
		},
	)
	PaymentTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_transitions_total",
			Help: "Payment state changes by target status",
		},
		[]string{"status"},
	)
	MessagesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_sent_total",
			Help: "Outbound WhatsApp messages by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)
)

// Register adds the domain collectors to reg.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(AutomationRuns, AutomationActions, AutomationRunDuration, PaymentTransitions, MessagesSent)
}
