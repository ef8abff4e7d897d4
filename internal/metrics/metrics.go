package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds the Prometheus collectors of the sprint engine.
type Metrics struct {
	SprintsClosedTotal  *prometheus.CounterVec
	AwardedPointsTotal  *prometheus.CounterVec
	TasksMovedTotal     *prometheus.CounterVec
	SprintCloseDuration prometheus.Histogram
	RelayPublishedTotal prometheus.Counter
	RelayFailuresTotal  prometheus.Counter
}

// Get returns the process-wide metrics, registering them on first use with
// the default registry.
//
// Metrics:
//   - teamline_sprints_closed_total{disposition}
//   - teamline_experience_awarded_points_total{specialization}
//   - teamline_tasks_moved_total{destination}
//   - teamline_sprint_close_duration_seconds
//   - teamline_relay_published_total
//   - teamline_relay_failures_total
func Get() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			SprintsClosedTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "teamline_sprints_closed_total",
					Help: "Sprints closed, by disposition of unfinished work",
				},
				[]string{"disposition"}, // "backlog" or "new_sprint"
			),
			AwardedPointsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "teamline_experience_awarded_points_total",
					Help: "Experience points awarded on sprint close",
				},
				[]string{"specialization"},
			),
			TasksMovedTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "teamline_tasks_moved_total",
					Help: "Unfinished tasks moved out of a closing sprint",
				},
				[]string{"destination"},
			),
			SprintCloseDuration: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "teamline_sprint_close_duration_seconds",
					Help:    "Time spent closing a sprint",
					Buckets: prometheus.DefBuckets,
				},
			),
			RelayPublishedTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "teamline_relay_published_total",
					Help: "Events published to NATS",
				},
			),
			RelayFailuresTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "teamline_relay_failures_total",
					Help: "Event publishes that failed",
				},
			),
		}
	})
	return globalMetrics
}
