package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Process-wide counters exposed on /metrics. Registered once at import.
var (
	UpdatesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "confessd_updates_received_total",
		Help: "Inbound webhook updates received.",
	})
	UpdatesDuplicate = promauto.NewCounter(prometheus.CounterOpts{
		Name: "confessd_updates_duplicate_total",
		Help: "Updates short-circuited by the dedup gate.",
	})
	UpdatesProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "confessd_updates_processed_total",
		Help: "Updates whose business logic completed inside the budget.",
	})
	DeadlineExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "confessd_deadline_expired_total",
		Help: "Updates acknowledged before business logic finished.",
	})
	ConfessionsApproved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "confessd_confessions_approved_total",
		Help: "Confessions approved by moderators.",
	})
	ConfessionsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "confessd_confessions_rejected_total",
		Help: "Confessions rejected and deleted.",
	})
	OutboxSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "confessd_outbox_sent_total",
		Help: "Outbox deliveries that succeeded.",
	})
	OutboxFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "confessd_outbox_failed_total",
		Help: "Outbox deliveries that failed and were swallowed.",
	})
)
