// Package metrics counts fits, simulated paths and fallbacks for a run and
// can dump them in the Prometheus text format for node_exporter's textfile
// collector.
package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/asharahmed/us-econ-growth/internal/exog"
	"github.com/asharahmed/us-econ-growth/internal/model"
	"github.com/asharahmed/us-econ-growth/internal/regime"
	"github.com/asharahmed/us-econ-growth/internal/series"
	"github.com/asharahmed/us-econ-growth/internal/trajectory"
)

// Recorder holds the run metrics. A nil *Recorder ignores every call.
type Recorder struct {
	registry *prometheus.Registry

	Fits          *prometheus.CounterVec
	FitDuration   *prometheus.HistogramVec
	FitIterations *prometheus.HistogramVec
	Paths         prometheus.Counter
	Fallbacks     *prometheus.CounterVec
	StepDuration  *prometheus.HistogramVec
}

// New creates a Recorder on its own registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),

		Fits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gdpsim_fits_total",
				Help: "Model fits by model kind and outcome",
			},
			[]string{"kind", "outcome"},
		),

		FitDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gdpsim_fit_duration_seconds",
				Help:    "Wall time of model fits",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
			},
			[]string{"kind"},
		),

		FitIterations: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gdpsim_fit_iterations",
				Help:    "Optimizer or EM iterations used by successful fits",
				Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
			},
			[]string{"kind"},
		),

		Paths: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "gdpsim_simulated_paths_total",
				Help: "Simulated trajectories",
			},
		),

		Fallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gdpsim_covariate_fallbacks_total",
				Help: "Covariate forecasts replaced by a fallback",
			},
			[]string{"covariate", "kind"},
		),

		StepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gdpsim_step_duration_seconds",
				Help:    "Duration of each pipeline step in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"step"},
		),
	}
	r.registry.MustRegister(r.Fits, r.FitDuration, r.FitIterations, r.Paths, r.Fallbacks, r.StepDuration)
	return r
}

// Registry exposes the underlying registry, e.g. for tests.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Outcome classifies a fit error for the outcome label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	case errors.Is(err, model.ErrNonStationarity):
		return "non_stationary"
	case errors.Is(err, model.ErrFitDidNotConverge), errors.Is(err, regime.ErrFitDidNotConverge):
		return "not_converged"
	case errors.Is(err, series.ErrInsufficientData):
		return "insufficient_data"
	case errors.Is(err, series.ErrMissingValues), errors.Is(err, series.ErrAlignment):
		return "bad_input"
	case errors.Is(err, exog.ErrExogenousForecast):
		return "exogenous_forecast"
	case errors.Is(err, trajectory.ErrDiscontinuity):
		return "discontinuity"
	default:
		return "error"
	}
}

// ObserveFit records one fit attempt.
func (r *Recorder) ObserveFit(kind string, err error, iterations int, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.Fits.WithLabelValues(kind, Outcome(err)).Inc()
	r.FitDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
	if err == nil {
		r.FitIterations.WithLabelValues(kind).Observe(float64(iterations))
	}
}

// AddPaths counts n simulated trajectories.
func (r *Recorder) AddPaths(n int) {
	if r == nil {
		return
	}
	r.Paths.Add(float64(n))
}

// ObserveFallbacks counts the quality flags raised by the covariate forecaster.
func (r *Recorder) ObserveFallbacks(flags []exog.QualityFlag) {
	if r == nil {
		return
	}
	for _, f := range flags {
		r.Fallbacks.WithLabelValues(f.Covariate, f.Kind).Inc()
	}
}

// ObserveStep records how long a pipeline step took.
func (r *Recorder) ObserveStep(step string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.StepDuration.WithLabelValues(step).Observe(elapsed.Seconds())
}

// WriteTextfile writes every metric to path atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, r.registry)
}
