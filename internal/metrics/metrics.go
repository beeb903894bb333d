package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "agendei"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		},
		[]string{"route", "code"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	wizardTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wizard_transitions_total",
			Help:      "Booking wizard transitions by name and result.",
		},
		[]string{"transition", "result"},
	)

	appointmentsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "appointments_created_total",
			Help:      "Appointments created by source.",
		},
		[]string{"source"},
	)

	activeSubscriptions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "store_active_subscriptions",
			Help:      "Live appointment subscriptions.",
		},
	)

	snapshotsDelivered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_snapshots_total",
			Help:      "Appointment snapshots produced by subscriptions.",
		},
	)

	syncTasks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sheets_sync_tasks_total",
			Help:      "Sheets sync tasks by result.",
		},
		[]string{"result"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			wizardTransitions,
			appointmentsCreated,
			activeSubscriptions,
			snapshotsDelivered,
			syncTasks,
		)
	})
}

func ObserveHTTP(route, code string, elapsed time.Duration) {
	httpRequests.WithLabelValues(route, code).Inc()
	httpDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

// IncTransition records a wizard transition; result is "ok" or "rejected".
func IncTransition(transition, result string) {
	wizardTransitions.WithLabelValues(transition, result).Inc()
}

func IncAppointmentCreated(source string) {
	appointmentsCreated.WithLabelValues(source).Inc()
}

func SubscriptionOpened() { activeSubscriptions.Inc() }

func SubscriptionClosed() { activeSubscriptions.Dec() }

func IncSnapshot() { snapshotsDelivered.Inc() }

func IncSyncTask(result string) {
	syncTasks.WithLabelValues(result).Inc()
}
