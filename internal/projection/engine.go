// Package projection runs the full pipeline: prepare the historical series,
// fit the target model, forecast its covariates, project the target and
// splice the result onto history.
package projection

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/asharahmed/us-econ-growth/internal/ensemble"
	"github.com/asharahmed/us-econ-growth/internal/exog"
	"github.com/asharahmed/us-econ-growth/internal/metrics"
	"github.com/asharahmed/us-econ-growth/internal/model"
	"github.com/asharahmed/us-econ-growth/internal/regime"
	"github.com/asharahmed/us-econ-growth/internal/series"
	"github.com/asharahmed/us-econ-growth/internal/trajectory"
)

// Scale the target model is fit on
type Scale string

const (
	ScaleGrowth Scale = "growth"
	ScaleLevel  Scale = "level"
)

// Settings drive one projection run.
type Settings struct {
	Model model.Spec
	// Covariate model; zero Kind picks exog.DefaultSpec
	CovariateModel           model.Spec
	Scale                    Scale
	Horizon                  int
	Seed                     int64
	Stochastic               bool
	FallbackToHistoricalMean bool
	GrowthPeriods            int
	Fill                     series.FillMethod
	// Confidence level of the band around deterministic ARIMA-family growth
	// forecasts, e.g. 0.95; 0 disables it
	IntervalLevel float64
	// Optional training window bounds; zero means unbounded
	TrainStart, TrainEnd series.TimePoint
}

// Validate checks the settings that do not depend on data.
func (s Settings) Validate() error {
	if err := s.Model.Validate(); err != nil {
		return fmt.Errorf("model: %w", err)
	}
	if s.Horizon <= 0 {
		return fmt.Errorf("horizon must be > 0")
	}
	if s.GrowthPeriods < 1 {
		return fmt.Errorf("growth periods must be >= 1")
	}
	switch s.Scale {
	case ScaleGrowth, ScaleLevel:
	default:
		return fmt.Errorf("unknown scale %q", s.Scale)
	}
	if s.Scale == ScaleLevel && !s.Model.Kind.TakesCovariates() {
		return fmt.Errorf("%s models are fit on growth, not levels", s.Model.Kind)
	}
	if s.IntervalLevel < 0 || s.IntervalLevel >= 1 {
		return fmt.Errorf("interval level must be in [0, 1), got %v", s.IntervalLevel)
	}
	if s.TrainStart != 0 && s.TrainEnd != 0 && s.TrainEnd < s.TrainStart {
		return fmt.Errorf("train_end is before train_start")
	}
	return nil
}

// Inputs are the raw historical series.
type Inputs struct {
	Level      *series.Series
	Covariates []*series.Series
}

// Prepared holds the cleaned training data.
type Prepared struct {
	Level  *series.Series
	Growth *series.Series
	// Series the model is fit on: Growth or Level, over the training window
	Target     *series.Series
	Covariates *series.MultiSeries
	History    trajectory.Historical
}

// Result of a single projection.
type Result struct {
	Trajectory      *trajectory.Trajectory
	Model           model.FittedModel
	Prepared        *Prepared
	CovariateModels map[string]string
	FutureExog      *series.MultiSeries
	// Forecast band of the projected growth; nil for stochastic runs,
	// regime models and level-scale fits
	Interval *model.Interval
}

// Engine runs projections with fixed settings.
type Engine struct {
	settings Settings
	log      zerolog.Logger
	metrics  *metrics.Recorder
}

// NewEngine validates settings. rec may be nil.
func NewEngine(settings Settings, log zerolog.Logger, rec *metrics.Recorder) (*Engine, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return &Engine{settings: settings, log: log, metrics: rec}, nil
}

func (e *Engine) Settings() Settings { return e.settings }

// step logs and times one numbered pipeline step.
func (e *Engine) step(n int, name string, fn func() error) error {
	start := time.Now()
	err := fn()
	elapsed := time.Since(start)
	e.metrics.ObserveStep(name, elapsed)
	ev := e.log.Debug()
	if err != nil {
		ev = e.log.Error().Err(err)
	}
	ev.Int("step", n).Str("name", name).Dur("elapsed", elapsed).Msg("pipeline step")
	return err
}

// Prepare cleans the inputs into a training set: gaps become explicit and
// are filled, the level is turned into growth, covariates are inner-joined
// with the target and everything is cut to the training window.
func (e *Engine) Prepare(in Inputs) (*Prepared, error) {
	s := e.settings
	if in.Level == nil {
		return nil, fmt.Errorf("%w: no level series", series.ErrInsufficientData)
	}

	level, err := clean(in.Level, s.Fill)
	if err != nil {
		return nil, err
	}
	growth, err := series.GrowthRate(level, s.GrowthPeriods)
	if err != nil {
		return nil, err
	}

	target := growth
	if s.Scale == ScaleLevel {
		target = level
	}

	covs := in.Covariates
	if len(covs) > 0 && !s.Model.Kind.TakesCovariates() {
		e.log.Warn().Int("covariates", len(covs)).Str("kind", string(s.Model.Kind)).
			Msg("regime models take no covariates, ignoring them")
		covs = nil
	}

	var exogHist *series.MultiSeries
	if len(covs) > 0 {
		all := []*series.Series{target}
		names := make([]string, 0, len(covs))
		for _, c := range covs {
			filled, err := clean(c, s.Fill)
			if err != nil {
				return nil, err
			}
			all = append(all, filled)
			names = append(names, filled.Name())
		}
		joined, err := series.Align(series.Inner, all...)
		if err != nil {
			return nil, err
		}
		target, _ = joined.Series(target.Name())
		if exogHist, err = joined.Select(names...); err != nil {
			return nil, err
		}
	}

	from, to := target.First(), target.Last()
	if s.TrainStart != 0 && s.TrainStart > from {
		from = s.TrainStart
	}
	if s.TrainEnd != 0 && s.TrainEnd < to {
		to = s.TrainEnd
	}
	target = target.Window(from, to)
	if target.Len() == 0 {
		return nil, fmt.Errorf("%w: training window is empty", series.ErrInsufficientData)
	}
	if exogHist != nil {
		exogHist = exogHist.Window(from, to)
	}

	last := target.Last()
	p := &Prepared{
		Level:      level.Window(level.First(), last),
		Growth:     growth.Window(growth.First(), last),
		Target:     target,
		Covariates: exogHist,
	}
	p.History = trajectory.Historical{Growth: p.Growth, Level: p.Level, Periods: s.GrowthPeriods}
	return p, nil
}

// clean makes gaps explicit and fills every missing value.
func clean(s *series.Series, method series.FillMethod) (*series.Series, error) {
	reg := series.Regularize(s)
	if !reg.HasMissing() {
		return reg, nil
	}
	return series.FillMissing(reg, method)
}

// Fit fits the configured model on the prepared target.
func (e *Engine) Fit(ctx context.Context, p *Prepared) (model.FittedModel, error) {
	ctx = e.log.WithContext(ctx)
	start := time.Now()
	m, err := model.Fit(ctx, p.Target, p.Covariates, e.settings.Model)
	e.metrics.ObserveFit(string(e.settings.Model.Kind), err, iterations(m), time.Since(start))
	if err != nil {
		return nil, err
	}
	e.log.Info().Str("model", m.Summary()).Str("series", p.Target.Name()).Msg("model fitted")
	return m, nil
}

func iterations(m model.FittedModel) int {
	switch v := m.(type) {
	case *model.ARIMA:
		return v.Iterations()
	case *regime.Fitted:
		return v.Iterations()
	}
	return 0
}

// ForecastCovariates forecasts every covariate over the horizon.
func (e *Engine) ForecastCovariates(ctx context.Context, p *Prepared) (*exog.Result, error) {
	if p.Covariates == nil {
		return &exog.Result{}, nil
	}
	fc := exog.New(exog.Options{
		Spec:                     e.settings.CovariateModel,
		FallbackToHistoricalMean: e.settings.FallbackToHistoricalMean,
		Logger:                   e.log,
	})
	res, err := fc.Forecast(e.log.WithContext(ctx), p.Covariates, e.settings.Horizon)
	if err != nil {
		return nil, err
	}
	e.metrics.ObserveFallbacks(res.Flags)
	return res, nil
}

// Project runs the whole pipeline once.
func (e *Engine) Project(ctx context.Context, in Inputs) (*Result, error) {
	s := e.settings
	res := &Result{}

	var p *Prepared
	var m model.FittedModel
	var cov *exog.Result
	var projected *series.Series
	var states []int

	// 1. Clean inputs into the training set
	if err := e.step(1, "prepare", func() (err error) {
		p, err = e.Prepare(in)
		return err
	}); err != nil {
		return nil, err
	}
	res.Prepared = p

	// 2. Fit the target model
	if err := e.step(2, "fit", func() (err error) {
		m, err = e.Fit(ctx, p)
		return err
	}); err != nil {
		return nil, err
	}
	res.Model = m

	// 3. Forecast the covariates the target model needs
	if err := e.step(3, "covariates", func() (err error) {
		cov, err = e.ForecastCovariates(ctx, p)
		return err
	}); err != nil {
		return nil, err
	}
	res.CovariateModels = cov.Models
	res.FutureExog = cov.Forecasts

	// 4. Project the target, as a point forecast or one sampled path
	if err := e.step(4, "project", func() (err error) {
		if !s.Stochastic {
			if am, ok := m.(*model.ARIMA); ok && s.IntervalLevel > 0 && s.Scale == ScaleGrowth {
				res.Interval, err = am.ForecastInterval(s.Horizon, cov.Forecasts, s.IntervalLevel)
				if err != nil {
					return err
				}
				projected = res.Interval.Point
				return nil
			}
			projected, err = m.Forecast(s.Horizon, cov.Forecasts)
			return err
		}
		rng := rand.New(rand.NewSource(s.Seed))
		if rf, ok := m.(*regime.Fitted); ok {
			path, err := rf.SimulatePath(s.Horizon, rng)
			if err != nil {
				return err
			}
			states = path.States
			projected = path.Series(p.Target.Name(), p.Target.Frequency(), rf.LastPeriod()+1)
			return nil
		}
		projected, err = m.Simulate(s.Horizon, cov.Forecasts, rng)
		return err
	}); err != nil {
		return nil, err
	}
	if s.Stochastic {
		e.metrics.AddPaths(1)
	}

	// 5. Splice onto history
	if err := e.step(5, "compose", func() (err error) {
		opts := []trajectory.Option{
			trajectory.WithModel(m.Summary()),
			trajectory.WithQuality(cov.Flags...),
		}
		if states != nil {
			opts = append(opts, trajectory.WithStatePath(states))
		}
		if s.Scale == ScaleLevel {
			res.Trajectory, err = trajectory.ComposeLevels(p.History, projected, opts...)
		} else {
			res.Trajectory, err = trajectory.Compose(p.History, projected, opts...)
		}
		return err
	}); err != nil {
		return nil, err
	}

	t := res.Trajectory
	e.log.Info().
		Str("run_id", t.RunID).
		Str("model", t.Model).
		Str("splice", t.Frequency.Format(t.Splice)).
		Int("horizon", t.Horizon()).
		Int("quality_flags", len(t.Quality)).
		Msg("projection done")
	return res, nil
}

// Ensemble fits once and simulates many paths in parallel.
func (e *Engine) Ensemble(ctx context.Context, in Inputs, opts ensemble.Options) (*ensemble.Result, *Result, error) {
	if e.settings.Scale == ScaleLevel {
		return nil, nil, fmt.Errorf("ensembles are built on growth-scale models")
	}
	p, err := e.Prepare(in)
	if err != nil {
		return nil, nil, err
	}
	m, err := e.Fit(ctx, p)
	if err != nil {
		return nil, nil, err
	}
	cov, err := e.ForecastCovariates(ctx, p)
	if err != nil {
		return nil, nil, err
	}
	if opts.Seed == 0 {
		opts.Seed = e.settings.Seed
	}

	start := time.Now()
	bands, err := ensemble.Run(ctx, p.History, m, cov.Forecasts, e.settings.Horizon, opts)
	e.metrics.ObserveStep("ensemble", time.Since(start))
	if err != nil {
		return nil, nil, err
	}
	e.metrics.AddPaths(bands.Paths)

	e.log.Info().
		Str("run_id", bands.RunID).
		Str("model", bands.Model).
		Int("paths", bands.Paths).
		Int64("seed", bands.Seed).
		Msg("ensemble done")

	return bands, &Result{Model: m, Prepared: p, CovariateModels: cov.Models, FutureExog: cov.Forecasts}, nil
}
