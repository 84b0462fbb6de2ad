package reconcile

import "github.com/prometheus/client_golang/prometheus"

var (
	readingsAcceptedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "steps_service",
		Subsystem: "reconcile",
		Name:      "readings_accepted_total",
		Help:      "Number of sensor readings accepted into daily totals.",
	})

	readingsRejectedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "steps_service",
		Subsystem: "reconcile",
		Name:      "readings_rejected_total",
		Help:      "Number of sensor readings rejected as implausible, labeled by reason.",
	}, []string{"reason"})

	rolloversCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "steps_service",
		Subsystem: "reconcile",
		Name:      "rollovers_total",
		Help:      "Number of local-midnight day boundaries processed.",
	})

	syncSuccessCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "steps_service",
		Subsystem: "reconcile",
		Name:      "syncs_total",
		Help:      "Number of successful remote record writes.",
	})

	syncFailureCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "steps_service",
		Subsystem: "reconcile",
		Name:      "sync_failures_total",
		Help:      "Number of remote writes that degraded to the offline queue.",
	})

	queueReplayedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "steps_service",
		Subsystem: "reconcile",
		Name:      "queue_entries_replayed_total",
		Help:      "Number of offline queue entries replayed to the remote store.",
	})
)

func init() {
	prometheus.MustRegister(
		readingsAcceptedCounter,
		readingsRejectedCounter,
		rolloversCounter,
		syncSuccessCounter,
		syncFailureCounter,
		queueReplayedCounter,
	)
}

func recordReadingAccepted() {
	readingsAcceptedCounter.Inc()
}

func recordReadingRejected(reason string) {
	readingsRejectedCounter.WithLabelValues(reason).Inc()
}

func recordRollover() {
	rolloversCounter.Inc()
}

func recordSyncSuccess() {
	syncSuccessCounter.Inc()
}

func recordSyncFailure() {
	syncFailureCounter.Inc()
}

func recordQueueReplayed(n int) {
	queueReplayedCounter.Add(float64(n))
}
