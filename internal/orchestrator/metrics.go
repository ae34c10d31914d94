package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/seantiz/qcflow/internal/model"
)

var (
	tasksSubmitted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "qcflow_tasks_submitted_total",
			Help: "Total number of tasks accepted for execution.",
		},
	)

	tasksFinalized = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qcflow_tasks_finalized_total",
			Help: "Total number of tasks that reached a terminal state.",
		},
		[]string{"status"},
	)

	tasksRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "qcflow_tasks_running",
			Help: "Number of tasks currently holding an execution slot.",
		},
	)

	taskDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "qcflow_task_duration_seconds",
			Help:    "Time from submission to terminal state, in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(tasksSubmitted)
	prometheus.MustRegister(tasksFinalized)
	prometheus.MustRegister(tasksRunning)
	prometheus.MustRegister(taskDuration)

	tasksFinalized.WithLabelValues(model.StatusCompleted)
	tasksFinalized.WithLabelValues(model.StatusFailed)
}
