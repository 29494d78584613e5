// Package observability holds the run metrics exported with --metrics-file.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	APIPagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sqeffect_api_pages_total",
		Help: "Analysis-history pages obtained, by source (network or cache).",
	}, []string{"source"})

	APIErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sqeffect_api_errors_total",
		Help: "Failed analysis-history page requests, by kind.",
	}, []string{"kind"})

	SnapshotsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sqeffect_snapshots_total",
		Help: "Metric snapshots attempted, by outcome.",
	}, []string{"outcome"})

	ProjectsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sqeffect_projects_total",
		Help: "Projects processed, by stage and outcome.",
	}, []string{"stage", "outcome"})

	RenderDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sqeffect_render_seconds",
		Help:    "Time spent rendering one activity page.",
		Buckets: []float64{0.5, 1, 2, 3, 5, 8, 13, 21, 34},
	})
)

// Outcome label values.
const (
	OutcomeOK      = "ok"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// WriteFile writes the default registry to path in the text exposition format.
func WriteFile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
