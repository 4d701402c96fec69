package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tablebook"

// Commit results.
const (
	ResultCommitted = "committed"
	ResultConflict  = "conflict"
	ResultError     = "error"
)

// Calendar sync results.
const (
	ResultSent    = "sent"
	ResultFailed  = "failed"
	ResultDropped = "dropped"
)

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	bookingCommits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_commits_total",
			Help:      "Booking commit outcomes.",
		},
		[]string{"result"},
	)

	commitRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_commit_retries_total",
			Help:      "Optimistic commit attempts lost to a concurrent writer.",
		},
	)

	calendarSync = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calendar_sync_total",
			Help:      "Calendar push outcomes.",
		},
		[]string{"result"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, bookingCommits, commitRetries, calendarSync)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

func IncCommit(result string) {
	bookingCommits.WithLabelValues(result).Inc()
}

func IncCommitRetry() {
	commitRetries.Inc()
}

func IncCalendarSync(result string) {
	calendarSync.WithLabelValues(result).Inc()
}

// CalendarQueueGauge reports the calendar inserts waiting in the worker queue.
func CalendarQueueGauge(pending func() int) prometheus.Collector {
	return prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "calendar_queue_pending",
			Help:      "Calendar inserts waiting to be sent.",
		},
		func() float64 { return float64(pending()) },
	)
}

// RegisterCalendarQueue exposes pending on the default registry.
func RegisterCalendarQueue(pending func() int) error {
	return prometheus.Register(CalendarQueueGauge(pending))
}
