package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Admission / queue metrics
	JobsSubmittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobgw_jobs_submitted_total",
			Help: "Total number of jobs admitted, by source",
		},
		[]string{"source"},
	)

	JobsByStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "jobgw_jobs_total",
			Help: "Current number of jobs by status bucket",
		},
		[]string{"status"},
	)

	AdmissionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "jobgw_admission_duration_seconds",
			Help:    "Time taken to admit a job (score + persist + enqueue)",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Event bus metrics
	EventsReceivedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobgw_events_received_total",
			Help: "Total number of messages received from store subscriptions, by channel",
		},
		[]string{"channel"},
	)

	EventsDecodeFailedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobgw_events_decode_failed_total",
			Help: "Total number of messages discarded as undecodable, by channel",
		},
		[]string{"channel"},
	)

	// Fan-out / registry metrics
	ConnectionsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "jobgw_connections_total",
			Help: "Current number of live connections by variant",
		},
		[]string{"variant"},
	)

	FanOutDeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobgw_fanout_deliveries_total",
			Help: "Total number of event deliveries attempted, by variant and outcome",
		},
		[]string{"variant", "outcome"},
	)

	FanOutLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "jobgw_fanout_latency_seconds",
			Help:    "Time from event receipt at Fan-Out to last recipient write",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Snapshot metrics
	SnapshotBuildDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "jobgw_snapshot_build_duration_seconds",
			Help:    "Time taken to build a full-state snapshot for a newly attached monitor",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Admin reconciler metrics
	ReconciliationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "jobgw_reconciliation_duration_seconds",
			Help:    "Time taken for a cleanup/reconciliation cycle in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReconciliationCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "jobgw_reconciliation_cycles_total",
			Help: "Total number of cleanup/reconciliation cycles completed",
		},
	)

	OrphanedJobsRequeuedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "jobgw_orphaned_jobs_requeued_total",
			Help: "Total number of jobs returned to pending by orphan sweep or worker reset",
		},
	)

	MachinesDeletedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "jobgw_machines_deleted_total",
			Help: "Total number of machines removed by admin delete",
		},
	)

	// Ingress metrics
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobgw_http_requests_total",
			Help: "Total number of HTTP requests by route and status",
		},
		[]string{"route", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "jobgw_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)

func init() {
	prometheus.MustRegister(JobsSubmittedTotal)
	prometheus.MustRegister(JobsByStatus)
	prometheus.MustRegister(AdmissionDuration)
	prometheus.MustRegister(EventsReceivedTotal)
	prometheus.MustRegister(EventsDecodeFailedTotal)
	prometheus.MustRegister(ConnectionsTotal)
	prometheus.MustRegister(FanOutDeliveriesTotal)
	prometheus.MustRegister(FanOutLatency)
	prometheus.MustRegister(SnapshotBuildDuration)
	prometheus.MustRegister(ReconciliationDuration)
	prometheus.MustRegister(ReconciliationCyclesTotal)
	prometheus.MustRegister(OrphanedJobsRequeuedTotal)
	prometheus.MustRegister(MachinesDeletedTotal)
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
