package model

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asharahmed/us-econ-growth/internal/series"
)

// simulateAR1 draws n points of y_t = c + phi*y_{t-1} + e_t after a burn-in.
func simulateAR1(seed int64, n int, c, phi, sd float64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	y := 0.0
	out := make([]float64, 0, n)
	for i := 0; i < n+100; i++ {
		y = c + phi*y + rng.NormFloat64()*sd
		if i >= 100 {
			out = append(out, y)
		}
	}
	return out
}

func annualSeries(name string, start int, values []float64) *series.Series {
	return series.Contiguous(name, series.Annual, series.TimePoint(start), values)
}

func TestFitARRecoversCoefficient(t *testing.T) {
	y := annualSeries("growth", 1700, simulateAR1(7, 300, 0, 0.6, 1))

	m, err := FitARIMA(context.Background(), y, nil, Spec{Kind: KindARIMA, Orders: Orders{P: 1}})
	require.NoError(t, err)

	p := m.Params()
	require.Len(t, p.AR, 1)
	assert.InDelta(t, 0.6, p.AR[0], 0.15)
	assert.InDelta(t, 1.0, m.Sigma2(), 0.3)
	assert.Equal(t, 299, m.NumObs())
	assert.Equal(t, "ARIMA(1,0,0)", m.Summary())
	assert.False(t, math.IsNaN(m.AIC()))
}

func TestFitWithConstantRecoversMean(t *testing.T) {
	// Unconditional mean c/(1-phi) = 3
	y := annualSeries("growth", 1700, simulateAR1(11, 300, 1.5, 0.5, 0.5))

	m, err := FitARIMA(context.Background(), y, nil, Spec{Kind: KindARIMA, Orders: Orders{P: 1}, IncludeConstant: true})
	require.NoError(t, err)

	// Long-horizon forecast reverts to the mean
	fc, err := m.Forecast(200, nil)
	require.NoError(t, err)
	assert.InDelta(t, 3.0, fc.LastValue(), 0.5)
}

func TestForecastRandomWalkWithDrift(t *testing.T) {
	values := make([]float64, 20)
	for i := range values {
		values[i] = 10 + 2*float64(i)
	}
	y := annualSeries("level", 2000, values)

	m, err := FitARIMA(context.Background(), y, nil, Spec{Kind: KindARIMA, Orders: Orders{D: 1}, IncludeConstant: true})
	require.NoError(t, err)

	fc, err := m.Forecast(3, nil)
	require.NoError(t, err)
	assert.Equal(t, []series.TimePoint{2020, 2021, 2022}, fc.Times())
	assert.InDeltaSlice(t, []float64{50, 52, 54}, fc.Values(), 1e-9)
	assert.Equal(t, "level", fc.Name())
}

func TestForecastIsDeterministic(t *testing.T) {
	y := annualSeries("growth", 1800, simulateAR1(3, 120, 0.5, 0.4, 1))
	spec := Spec{Kind: KindARIMA, Orders: Orders{P: 1, Q: 1}, IncludeConstant: true}

	a, err := FitARIMA(context.Background(), y, nil, spec)
	require.NoError(t, err)
	b, err := FitARIMA(context.Background(), y, nil, spec)
	require.NoError(t, err)

	fa, err := a.Forecast(5, nil)
	require.NoError(t, err)
	fb, err := b.Forecast(5, nil)
	require.NoError(t, err)
	assert.Equal(t, fa.Values(), fb.Values())
}

func TestSimulateSeedReproducible(t *testing.T) {
	y := annualSeries("growth", 1800, simulateAR1(5, 120, 0.5, 0.4, 1))
	m, err := FitARIMA(context.Background(), y, nil, Spec{Kind: KindARIMA, Orders: Orders{P: 1}, IncludeConstant: true})
	require.NoError(t, err)

	a, err := m.Simulate(10, nil, rand.New(rand.NewSource(42)))
	require.NoError(t, err)
	b, err := m.Simulate(10, nil, rand.New(rand.NewSource(42)))
	require.NoError(t, err)
	c, err := m.Simulate(10, nil, rand.New(rand.NewSource(43)))
	require.NoError(t, err)

	assert.Equal(t, a.Values(), b.Values())
	assert.NotEqual(t, a.Values(), c.Values())
	assert.Equal(t, m.LastPeriod()+1, a.First())

	_, err = m.Simulate(10, nil, nil)
	assert.Error(t, err)
}

func exogFixture(t *testing.T) (*series.Series, *series.MultiSeries, []float64) {
	t.Helper()
	rng := rand.New(rand.NewSource(1))
	n := 30
	x := make([]float64, n+3)
	for i := range x {
		x[i] = rng.Float64() * 10
	}
	y := make([]float64, n)
	for i := range y {
		y[i] = 1 + 2*x[i]
	}
	hist, err := series.Align(series.Inner,
		annualSeries("rate", 1990, x[:n]),
	)
	require.NoError(t, err)
	return annualSeries("growth", 1990, y), hist, x[n:]
}

func TestFitWithCovariate(t *testing.T) {
	y, hist, future := exogFixture(t)
	spec := Spec{Kind: KindSARIMAX, IncludeConstant: true}

	m, err := FitARIMA(context.Background(), y, hist, spec)
	require.NoError(t, err)
	assert.Equal(t, []string{"rate"}, m.Covariates())
	assert.InDelta(t, 1, m.Params().Constant, 1e-6)
	assert.InDeltaSlice(t, []float64{2}, m.Params().Beta, 1e-6)

	exog, err := series.NewMulti(series.Annual, []series.TimePoint{2020, 2021, 2022}, []string{"rate"},
		map[string][]float64{"rate": future})
	require.NoError(t, err)

	fc, err := m.Forecast(3, exog)
	require.NoError(t, err)
	for i, v := range fc.Values() {
		assert.InDelta(t, 1+2*future[i], v, 1e-6)
	}
}

func TestForecastMissingExogenousData(t *testing.T) {
	y, hist, future := exogFixture(t)
	m, err := FitARIMA(context.Background(), y, hist, Spec{Kind: KindSARIMAX, IncludeConstant: true})
	require.NoError(t, err)

	// One period short of the horizon
	short, err := series.NewMulti(series.Annual, []series.TimePoint{2020, 2021}, []string{"rate"},
		map[string][]float64{"rate": future[:2]})
	require.NoError(t, err)
	_, err = m.Forecast(3, short)
	assert.ErrorIs(t, err, ErrMissingExogenousData)

	_, err = m.Forecast(3, nil)
	assert.ErrorIs(t, err, ErrMissingExogenousData)

	// Right length, wrong axis
	shifted, err := series.NewMulti(series.Annual, []series.TimePoint{2021, 2022, 2023}, []string{"rate"},
		map[string][]float64{"rate": future})
	require.NoError(t, err)
	_, err = m.Forecast(3, shifted)
	assert.ErrorIs(t, err, ErrMissingExogenousData)

	// Missing value inside the horizon
	holes, err := series.NewMulti(series.Annual, []series.TimePoint{2020, 2021, 2022}, []string{"rate"},
		map[string][]float64{"rate": {1, math.NaN(), 2}})
	require.NoError(t, err)
	_, err = m.Forecast(3, holes)
	assert.ErrorIs(t, err, ErrMissingExogenousData)

	// Wrong covariate
	other, err := series.NewMulti(series.Annual, []series.TimePoint{2020, 2021, 2022}, []string{"cpi"},
		map[string][]float64{"cpi": future})
	require.NoError(t, err)
	_, err = m.Forecast(3, other)
	assert.ErrorIs(t, err, ErrMissingExogenousData)

	// Same ordinals, but quarterly
	quarterly, err := series.NewMulti(series.Quarterly, []series.TimePoint{2020, 2021, 2022}, []string{"rate"},
		map[string][]float64{"rate": future})
	require.NoError(t, err)
	_, err = m.Forecast(3, quarterly)
	assert.ErrorIs(t, err, ErrMissingExogenousData)
	assert.ErrorContains(t, err, "quarterly")
}

func TestFitNonStationarity(t *testing.T) {
	// Exponential growth has its AR root at 1.05, outside the unit circle
	values := make([]float64, 40)
	for i := range values {
		values[i] = 100 * math.Pow(1.05, float64(i))
	}
	y := annualSeries("level", 1980, values)

	_, err := FitARIMA(context.Background(), y, nil, Spec{
		Kind:            KindARIMA,
		Orders:          Orders{P: 1},
		IncludeConstant: true,
		MaxIterations:   2,
	})
	assert.ErrorIs(t, err, ErrNonStationarity)
}

func TestFitDidNotConverge(t *testing.T) {
	y := annualSeries("growth", 1800, simulateAR1(9, 80, 0, 0.3, 1))
	spec := Spec{Kind: KindARIMA, Orders: Orders{P: 2}, MaxIterations: 1}

	_, err := FitARIMA(context.Background(), y, nil, spec)
	assert.ErrorIs(t, err, ErrFitDidNotConverge)
	assert.NotErrorIs(t, err, ErrNonStationarity)
}

func TestFitCancelled(t *testing.T) {
	y := annualSeries("growth", 1800, simulateAR1(9, 80, 0, 0.3, 1))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := FitARIMA(ctx, y, nil, Spec{Kind: KindARIMA, Orders: Orders{P: 1, Q: 1}})
	assert.ErrorIs(t, err, ErrFitDidNotConverge)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFitInsufficientData(t *testing.T) {
	y := annualSeries("growth", 2000, []float64{1, 2, 3})
	_, err := FitARIMA(context.Background(), y, nil, Spec{Kind: KindARIMA, Orders: Orders{P: 2, D: 1}})
	assert.ErrorIs(t, err, series.ErrInsufficientData)
}

func TestFitRejectsMissingAndGaps(t *testing.T) {
	y := annualSeries("growth", 2000, []float64{1, math.NaN(), 3, 4, 5, 6, 7, 8})
	_, err := FitARIMA(context.Background(), y, nil, Spec{Kind: KindARIMA, Orders: Orders{P: 1}})
	assert.ErrorIs(t, err, series.ErrMissingValues)

	gappy, err := series.New("growth", series.Annual, []series.TimePoint{2000, 2001, 2005, 2006, 2007, 2008},
		[]float64{1, 2, 3, 4, 5, 6})
	require.NoError(t, err)
	_, err = FitARIMA(context.Background(), gappy, nil, Spec{Kind: KindARIMA, Orders: Orders{P: 1}})
	assert.ErrorIs(t, err, series.ErrMissingValues)
}

func TestForecastInterval(t *testing.T) {
	y := annualSeries("growth", 1800, simulateAR1(21, 150, 1, 0.5, 1))
	m, err := FitARIMA(context.Background(), y, nil, Spec{Kind: KindARIMA, Orders: Orders{P: 1}, IncludeConstant: true})
	require.NoError(t, err)

	iv, err := m.ForecastInterval(4, nil, 0.95)
	require.NoError(t, err)

	phi := m.Params().AR[0]
	assert.InDelta(t, math.Sqrt(m.Sigma2()), iv.StdErr[0], 1e-12)
	assert.InDelta(t, math.Sqrt(m.Sigma2()*(1+phi*phi)), iv.StdErr[1], 1e-12)
	for h := 0; h < 4; h++ {
		p := iv.Point.Values()[h]
		assert.InDelta(t, p-1.959964*iv.StdErr[h], iv.Lower.Values()[h], 1e-5)
		assert.InDelta(t, p+1.959964*iv.StdErr[h], iv.Upper.Values()[h], 1e-5)
		if h > 0 {
			assert.Greater(t, iv.StdErr[h], iv.StdErr[h-1])
		}
	}

	_, err = m.ForecastInterval(4, nil, 1.5)
	assert.Error(t, err)
}

func TestFitDispatchesRegime(t *testing.T) {
	y := annualSeries("growth", 1900, simulateAR1(2, 60, 2, 0, 1))

	m, err := Fit(context.Background(), y, nil, Spec{Kind: KindRegime, NumStates: 1})
	require.NoError(t, err)
	assert.Empty(t, m.Covariates())
	assert.Equal(t, series.TimePoint(1959), m.LastPeriod())

	_, hist, _ := exogFixture(t)
	_, err = Fit(context.Background(), y, hist, Spec{Kind: KindRegime, NumStates: 2})
	assert.Error(t, err)
}

func TestFitDispatchesIID(t *testing.T) {
	y := annualSeries("growth", 2000, []float64{1, 2, 3, 4, 5})

	m, err := Fit(context.Background(), y, nil, Spec{Kind: KindIID})
	require.NoError(t, err)
	assert.Equal(t, "IID(mean=3.000,sd=1.581)", m.Summary())

	fc, err := m.Forecast(3, nil)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{3, 3, 3}, fc.Values(), 1e-12)

	_, hist, _ := exogFixture(t)
	_, err = Fit(context.Background(), y, hist, Spec{Kind: KindIID})
	assert.ErrorContains(t, err, "does not take covariates")

	_, err = Fit(context.Background(), annualSeries("growth", 2000, []float64{1}), nil, Spec{Kind: KindIID})
	assert.ErrorIs(t, err, series.ErrInsufficientData)
}

func TestFitARIMARejectsRegimeSpec(t *testing.T) {
	y := annualSeries("growth", 1900, simulateAR1(2, 60, 2, 0, 1))
	_, err := FitARIMA(context.Background(), y, nil, Spec{Kind: KindRegime, NumStates: 2})
	assert.Error(t, err)
	_, err = FitARIMA(context.Background(), y, nil, Spec{Kind: KindIID})
	assert.Error(t, err)
}
