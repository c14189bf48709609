package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Workflow counters, exposed on /metrics.
var (
	TransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "invora_request_transitions_total",
		Help: "Completed request status transitions, labelled by resulting status.",
	}, []string{"status"})

	VendorRemindersTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "invora_vendor_reminders_sent_total",
		Help: "Vendor ETA reminders emitted by the scheduler.",
	})

	StateConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "invora_state_conflicts_total",
		Help: "Transitions lost to a concurrent update and surfaced as retryable conflicts.",
	})
)
