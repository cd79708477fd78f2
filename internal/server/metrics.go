package server

import (
	"github.com/prometheus/client_golang/prometheus"
)

// metrics holds the Prometheus collectors for optimization jobs.
type metrics struct {
	jobsStarted  *prometheus.CounterVec
	jobsFinished *prometheus.CounterVec
	evaluations  *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	activeJobs   prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		jobsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "annealer",
			Name:      "jobs_started_total",
			Help:      "Optimization jobs accepted, by algorithm.",
		}, []string{"algorithm"}),
		jobsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "annealer",
			Name:      "jobs_finished_total",
			Help:      "Optimization jobs that reached a terminal state, by algorithm and status.",
		}, []string{"algorithm", "status"}),
		evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "annealer",
			Name:      "objective_evaluations_total",
			Help:      "Objective function evaluations performed, by algorithm.",
		}, []string{"algorithm"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "annealer",
			Name:      "job_duration_seconds",
			Help:      "Wall-clock duration of optimization jobs.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"algorithm"}),
		activeJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "annealer",
			Name:      "active_jobs",
			Help:      "Optimization jobs currently pending or running.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.jobsStarted, m.jobsFinished, m.evaluations, m.duration, m.activeJobs)
	}
	return m
}
