package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics records backup cycle outcomes. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	cycleDuration     prometheus.Histogram
	cyclesTotal       prometheus.Counter
	cycleFailures     prometheus.Counter
	dumpsTotal        *prometheus.CounterVec
	lastCycleTime     prometheus.Gauge
	lastCycleSuccess  prometheus.Gauge
	lastFailedTargets prometheus.Gauge
	activeEvents      prometheus.Gauge
}

func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "meosbackup"
	}

	m := &Metrics{
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Duration of backup cycles in seconds",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		cyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Total number of backup cycles attempted",
		}),
		cycleFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycle_failures_total",
			Help:      "Total number of aborted backup cycles",
		}),
		dumpsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dumps_total",
			Help:      "Total number of database dumps by target kind and status",
		}, []string{"kind", "status"}),
		lastCycleTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_cycle_timestamp",
			Help:      "Timestamp of the last backup cycle",
		}),
		lastCycleSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_cycle_success",
			Help:      "Whether the last cycle dumped the main database (1) or not (0)",
		}),
		lastFailedTargets: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_cycle_failed_targets",
			Help:      "Number of event databases that failed to dump in the last cycle",
		}),
		activeEvents: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_events",
			Help:      "Number of active events found by the last cycle",
		}),
	}

	prometheus.MustRegister(
		m.cycleDuration,
		m.cyclesTotal,
		m.cycleFailures,
		m.dumpsTotal,
		m.lastCycleTime,
		m.lastCycleSuccess,
		m.lastFailedTargets,
		m.activeEvents,
	)

	return m
}

// RecordDump counts one dump of kind "main" or "event".
func (m *Metrics) RecordDump(kind string, ok bool) {
	if m == nil {
		return
	}
	status := "success"
	if !ok {
		status = "failure"
	}
	m.dumpsTotal.WithLabelValues(kind, status).Inc()
}

func (m *Metrics) RecordCycle(duration time.Duration, mainOK bool, failedTargets int, aborted bool) {
	if m == nil {
		return
	}
	m.cyclesTotal.Inc()
	if aborted {
		m.cycleFailures.Inc()
	}
	m.cycleDuration.Observe(duration.Seconds())
	m.lastCycleTime.SetToCurrentTime()
	if mainOK {
		m.lastCycleSuccess.Set(1)
	} else {
		m.lastCycleSuccess.Set(0)
	}
	m.lastFailedTargets.Set(float64(failedTargets))
}

func (m *Metrics) SetActiveEvents(n int) {
	if m == nil {
		return
	}
	m.activeEvents.Set(float64(n))
}

func Handler() http.Handler {
	return promhttp.Handler()
}
