package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	dailyPersistGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "steps_service",
		Subsystem: "persistence",
		Name:      "last_record_persisted_timestamp_seconds",
		Help:      "Unix timestamp of the most recent daily record persisted to Postgres.",
	})
	dayClosedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "steps_service",
		Subsystem: "persistence",
		Name:      "last_day_closed_timestamp_seconds",
		Help:      "Unix timestamp of the most recent day-closed flush.",
	})
)

func init() {
	prometheus.MustRegister(dailyPersistGauge, dayClosedGauge)
}

// RecordDailyPersisted updates the persistence watermark gauge.
func RecordDailyPersisted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	dailyPersistGauge.Set(float64(ts.Unix()))
}

// RecordDayClosed updates the day-closed watermark gauge.
func RecordDayClosed(ts time.Time) {
	if ts.IsZero() {
		return
	}
	dayClosedGauge.Set(float64(ts.Unix()))
}
