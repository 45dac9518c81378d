// Package exog forecasts covariate series forward so a target model fit
// with covariates can be conditioned on their future values.
package exog

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/asharahmed/us-econ-growth/internal/model"
	"github.com/asharahmed/us-econ-growth/internal/series"
)

var ErrExogenousForecast = errors.New("exogenous forecast failed")

// FallbackHistoricalMean marks a covariate whose forecast was replaced by
// its training-window mean.
const FallbackHistoricalMean = "fallback_historical_mean"

// QualityFlag records a substitution made while producing covariate
// forecasts. It travels with the trajectory built from them.
type QualityFlag struct {
	Covariate string  `yaml:"covariate"`
	Kind      string  `yaml:"kind"`
	Reason    string  `yaml:"reason"`
	Value     float64 `yaml:"value"`
}

func (q QualityFlag) String() string {
	return fmt.Sprintf("%s: %s = %.4f (%s)", q.Covariate, q.Kind, q.Value, q.Reason)
}

// Options configure a Forecaster.
type Options struct {
	// Model fit to each covariate. A zero Kind selects DefaultSpec for the
	// data frequency.
	Spec model.Spec
	// Per-covariate overrides of Spec
	Specs map[string]model.Spec
	// Replace a failed covariate forecast with its historical mean instead of
	// failing. Every replacement is logged and flagged.
	FallbackToHistoricalMean bool
	Logger                   zerolog.Logger
}

// DefaultSpec is the covariate model: SARIMAX(1,1,1)(0,1,1)[s] for
// sub-annual data and ARIMA(1,1,1) for annual data.
func DefaultSpec(freq series.Frequency) model.Spec {
	if s := freq.PeriodsPerYear(); s > 1 {
		return model.Spec{
			Kind: model.KindSARIMAX,
			Orders: model.Orders{
				P: 1, D: 1, Q: 1,
				Seasonal: model.SeasonalOrders{P: 0, D: 1, Q: 1, Period: s},
			},
		}
	}
	return model.Spec{
		Kind:   model.KindARIMA,
		Orders: model.Orders{P: 1, D: 1, Q: 1},
	}
}

// Forecaster fits one univariate model per covariate and forecasts it.
type Forecaster struct {
	opts Options
}

func New(opts Options) *Forecaster {
	return &Forecaster{opts: opts}
}

// Result holds the assembled covariate forecasts.
type Result struct {
	// One column per covariate on the horizon periods after the history
	Forecasts *series.MultiSeries
	// Substitutions made under FallbackToHistoricalMean
	Flags []QualityFlag
	// Model summary per covariate, or the fallback marker
	Models map[string]string
}

// Forecast fits each covariate of history independently on the full history
// window, forecasts it exactly horizon periods and assembles the results on
// the shared future axis. A covariate whose fit or forecast fails, or whose
// forecast is not finite or collapses to zero, fails the whole call with
// ErrExogenousForecast unless the historical-mean fallback was declared.
func (f *Forecaster) Forecast(ctx context.Context, history *series.MultiSeries, horizon int) (*Result, error) {
	if horizon <= 0 {
		return nil, fmt.Errorf("horizon must be > 0")
	}
	if history == nil || history.Len() == 0 || len(history.Names()) == 0 {
		return nil, fmt.Errorf("%w: no covariate history", ErrExogenousForecast)
	}
	if err := history.RequireComplete(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExogenousForecast, err)
	}

	log := f.opts.Logger
	times := history.Times()
	last := times[len(times)-1]
	axis := make([]series.TimePoint, horizon)
	for i := range axis {
		axis[i] = last + series.TimePoint(i+1)
	}

	res := &Result{Models: make(map[string]string)}
	names := history.Names()
	cols := make(map[string][]float64, len(names))

	for _, name := range names {
		hist, _ := history.Series(name)
		spec := f.specFor(name, history.Frequency())

		values, summary, err := f.forecastOne(ctx, hist, spec, horizon)
		if err == nil {
			cols[name] = values
			res.Models[name] = summary
			log.Debug().Str("covariate", name).Str("model", summary).Msg("covariate forecast")
			continue
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: covariate %q: %w", ErrExogenousForecast, name, err)
		}
		if !f.opts.FallbackToHistoricalMean {
			return nil, fmt.Errorf("%w: covariate %q: %w", ErrExogenousForecast, name, err)
		}

		mean := hist.Mean()
		flat := make([]float64, horizon)
		for i := range flat {
			flat[i] = mean
		}
		cols[name] = flat
		res.Models[name] = FallbackHistoricalMean
		flag := QualityFlag{
			Covariate: name,
			Kind:      FallbackHistoricalMean,
			Reason:    err.Error(),
			Value:     mean,
		}
		res.Flags = append(res.Flags, flag)
		log.Warn().
			Str("covariate", name).
			Float64("mean", mean).
			Err(err).
			Msg("covariate forecast replaced by historical mean")
	}

	out, err := series.NewMulti(history.Frequency(), axis, names, cols)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExogenousForecast, err)
	}
	res.Forecasts = out
	return res, nil
}

func (f *Forecaster) specFor(name string, freq series.Frequency) model.Spec {
	if s, ok := f.opts.Specs[name]; ok {
		return s
	}
	if f.opts.Spec.Kind != "" {
		return f.opts.Spec
	}
	return DefaultSpec(freq)
}

// forecastOne fits and forecasts a single covariate and checks the result.
func (f *Forecaster) forecastOne(ctx context.Context, hist *series.Series, spec model.Spec, horizon int) ([]float64, string, error) {
	fitted, err := model.Fit(ctx, hist, nil, spec)
	if err != nil {
		return nil, "", err
	}
	fc, err := fitted.Forecast(horizon, nil)
	if err != nil {
		return nil, "", err
	}
	values := fc.Values()
	if len(values) != horizon {
		return nil, "", fmt.Errorf("forecast has %d periods, want %d", len(values), horizon)
	}
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, "", fmt.Errorf("forecast is not finite at %s", fc.Frequency().Format(fc.Times()[i]))
		}
	}
	if allZero(values) && hist.Mean() != 0 {
		return nil, "", fmt.Errorf("%s forecast degenerated to all zeros", fitted.Summary())
	}
	return values, fitted.Summary(), nil
}

func allZero(v []float64) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
