package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ImportRows = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pimm_import_rows_total",
			Help: "CSV import rows applied, by outcome",
		},
		[]string{"outcome"},
	)
	ImportSessions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pimm_import_sessions_total",
			Help: "Import preview sessions, by final state",
		},
		[]string{"state"},
	)
	UsersCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pimm_users_created_total",
			Help: "Accounts created for principal investigators, by source",
		},
		[]string{"source"},
	)
	TrackingAdds = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pimm_tracking_adds_total",
			Help: "Projects added to tracking, by result",
		},
		[]string{"result"},
	)
	JobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pimm_job_duration_seconds",
			Help:    "Background job duration",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
		[]string{"job", "status"},
	)
)

func init() {
	prometheus.MustRegister(ImportRows, ImportSessions, UsersCreated, TrackingAdds, JobDuration)
}
