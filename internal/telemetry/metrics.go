package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики очереди задач.
var (
	// JobsSubmitted — задачи, записанные в inbox.
	JobsSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flowrun_jobs_submitted_total",
		Help: "Total number of jobs written to the inbox",
	})

	// JobsClaimed — задачи, успешно забранные worker'ом (rename удался).
	JobsClaimed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flowrun_jobs_claimed_total",
		Help: "Total number of inbox files claimed by a worker",
	})

	// JobsFinished — завершённые задачи по типу backend'а и статусу.
	JobsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flowrun_jobs_finished_total",
		Help: "Total number of finished jobs",
	}, []string{"kind", "status"})

	// JobDuration — время выполнения задачи backend'ом.
	JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "flowrun_job_duration_seconds",
		Help:    "Backend execution time",
		Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
	}, []string{"kind"})

	// JobsInFlight — задачи, исполняемые прямо сейчас.
	JobsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "flowrun_jobs_in_flight",
		Help: "Number of jobs currently being processed",
	})

	// ProcessesKilled — принудительно убитые деревья процессов по причине.
	ProcessesKilled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flowrun_processes_killed_total",
		Help: "Total number of process trees killed",
	}, []string{"reason"})
)

// Метрики движка.
var (
	// NodesExecuted — выполненные узлы по типу.
	NodesExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flowrun_nodes_executed_total",
		Help: "Total number of executed flow nodes",
	}, []string{"kind"})

	// RunsFinished — завершённые обходы flow по статусу.
	RunsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flowrun_runs_total",
		Help: "Total number of finished flow runs",
	}, []string{"status"})
)
