package regime

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asharahmed/us-econ-growth/internal/series"
)

func twoState(t *testing.T) *Model {
	t.Helper()
	m, err := New(
		[]float64{0.5, 0.5},
		[][]float64{{0.9, 0.1}, {0.2, 0.8}},
		[]Emission{
			{Mean: 2.5, Scale: 1.0, Family: Normal},
			{Mean: -2.0, Scale: 1.5, Family: Normal},
		},
	)
	require.NoError(t, err)
	return m
}

func TestNewValidation(t *testing.T) {
	ok := []Emission{{Mean: 1, Scale: 1}, {Mean: -1, Scale: 1}}

	tests := []struct {
		name       string
		initial    []float64
		transition [][]float64
		emissions  []Emission
		want       error
	}{
		{"row sums to 1.1", []float64{0.5, 0.5}, [][]float64{{0.9, 0.2}, {0.5, 0.5}}, ok, ErrInvalidTransitionMatrix},
		{"negative entry", []float64{0.5, 0.5}, [][]float64{{1.1, -0.1}, {0.5, 0.5}}, ok, ErrInvalidTransitionMatrix},
		{"ragged row", []float64{0.5, 0.5}, [][]float64{{1}, {0.5, 0.5}}, ok, ErrInvalidTransitionMatrix},
		{"too few rows", []float64{0.5, 0.5}, [][]float64{{0.5, 0.5}}, ok, ErrInvalidTransitionMatrix},
		{"initial sums to 0.9", []float64{0.5, 0.4}, [][]float64{{0.5, 0.5}, {0.5, 0.5}}, ok, ErrInvalidInitialDistribution},
		{"initial wrong length", []float64{1}, [][]float64{{0.5, 0.5}, {0.5, 0.5}}, ok, ErrInvalidInitialDistribution},
		{"zero scale", []float64{1}, [][]float64{{1}}, []Emission{{Mean: 0, Scale: 0}}, ErrInvalidEmission},
		{"student_t without dof", []float64{1}, [][]float64{{1}}, []Emission{{Mean: 0, Scale: 1, Family: StudentT}}, ErrInvalidEmission},
		{"no states", nil, nil, nil, ErrInvalidEmission},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.initial, tt.transition, tt.emissions)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestNewAcceptsRoundingWithinTolerance(t *testing.T) {
	_, err := New(
		[]float64{1},
		[][]float64{{1 + 5e-7}},
		[]Emission{{Mean: 0, Scale: 1}},
	)
	assert.ErrorIs(t, err, ErrInvalidTransitionMatrix, "entries above 1 are rejected")

	_, err = New(
		[]float64{0.5, 0.5},
		[][]float64{{0.3333333, 0.6666666}, {0.5, 0.5}},
		[]Emission{{Mean: 0, Scale: 1}, {Mean: 1, Scale: 1}},
	)
	assert.NoError(t, err)
}

func TestModelCopiesInputs(t *testing.T) {
	m := twoState(t)
	rows := m.Transition()
	rows[0][0] = 0
	assert.Equal(t, 0.9, m.Transition()[0][0])
	assert.Equal(t, []float64{2.5, -2.0}, m.Means())
}

func TestExpectedDuration(t *testing.T) {
	m := twoState(t)
	assert.InDelta(t, 10, m.ExpectedDuration(0), 1e-9)
	assert.InDelta(t, 5, m.ExpectedDuration(1), 1e-9)

	single, err := New([]float64{1}, [][]float64{{1}}, []Emission{{Mean: 0, Scale: 1}})
	require.NoError(t, err)
	assert.True(t, math.IsInf(single.ExpectedDuration(0), 1))
}

func TestExpected(t *testing.T) {
	m := twoState(t)

	got, err := m.Expected(0, 2)
	require.NoError(t, err)
	// h=1: 0.9*2.5 + 0.1*(-2) = 2.05
	// h=2: dist (0.83, 0.17) -> 0.83*2.5 + 0.17*(-2) = 1.735
	assert.InDeltaSlice(t, []float64{2.05, 1.735}, got, 1e-12)

	// Converges to the stationary mean (2/3)*2.5 + (1/3)*(-2) = 1
	long, err := m.Expected(1, 200)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, long[199], 1e-9)

	_, err = m.Expected(2, 1)
	assert.Error(t, err)
	_, err = m.Expected(0, 0)
	assert.Error(t, err)
}

func TestSimulatorSeedDeterminism(t *testing.T) {
	m := twoState(t)
	sim, err := NewSimulator(m, 0)
	require.NoError(t, err)

	a, err := sim.Run(50, rand.New(rand.NewSource(42)))
	require.NoError(t, err)
	b, err := sim.Run(50, rand.New(rand.NewSource(42)))
	require.NoError(t, err)

	assert.Equal(t, a.States, b.States)
	assert.Equal(t, a.Growth, b.Growth)
	assert.Len(t, a.Growth, 50)

	c, err := sim.Run(50, rand.New(rand.NewSource(7)))
	require.NoError(t, err)
	assert.NotEqual(t, a.Growth, c.Growth)
}

func TestSimulatorStudentTDeterminism(t *testing.T) {
	m, err := New([]float64{1}, [][]float64{{1}}, []Emission{{Mean: 1, Scale: 0.5, Family: StudentT, DoF: 4}})
	require.NoError(t, err)
	sim, err := NewSimulator(m, 0)
	require.NoError(t, err)

	a, err := sim.Run(20, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	b, err := sim.Run(20, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	assert.Equal(t, a.Growth, b.Growth)
	for _, v := range a.Growth {
		assert.False(t, math.IsNaN(v) || math.IsInf(v, 0))
	}
}

func TestSimulatorSingleStateMean(t *testing.T) {
	m, err := New([]float64{1}, [][]float64{{1}}, []Emission{{Mean: 2.0, Scale: 1.0}})
	require.NoError(t, err)
	sim, err := NewSimulator(m, 0)
	require.NoError(t, err)

	p, err := sim.Run(20000, rand.New(rand.NewSource(3)))
	require.NoError(t, err)
	sum := 0.0
	for i, v := range p.Growth {
		sum += v
		assert.Equal(t, 0, p.States[i])
	}
	assert.InDelta(t, 2.0, sum/float64(len(p.Growth)), 0.05)
}

func TestSimulatorAbsorbingState(t *testing.T) {
	m, err := New(
		[]float64{1, 0},
		[][]float64{{0, 1}, {0, 1}},
		[]Emission{{Mean: 5, Scale: 1}, {Mean: -5, Scale: 1}},
	)
	require.NoError(t, err)
	sim, err := NewSimulator(m, 0)
	require.NoError(t, err)

	p, err := sim.Run(10, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	for _, s := range p.States {
		assert.Equal(t, 1, s)
	}
}

func TestSimulatorErrors(t *testing.T) {
	m := twoState(t)
	_, err := NewSimulator(m, 2)
	assert.Error(t, err)
	_, err = NewSimulator(nil, 0)
	assert.Error(t, err)

	sim, err := NewSimulator(m, 0)
	require.NoError(t, err)
	_, err = sim.Run(0, rand.New(rand.NewSource(1)))
	assert.Error(t, err)
	_, err = sim.Run(3, nil)
	assert.Error(t, err)
}

func TestPathSeries(t *testing.T) {
	p := &Path{States: []int{0, 1}, Growth: []float64{1.5, -0.5}}
	s := p.Series("growth", series.Annual, 2024)
	assert.Equal(t, []series.TimePoint{2024, 2025}, s.Times())
	assert.Equal(t, []float64{1.5, -0.5}, s.Values())
}

func TestDecodeClearSequence(t *testing.T) {
	m, err := New(
		[]float64{0.5, 0.5},
		[][]float64{{0.9, 0.1}, {0.1, 0.9}},
		[]Emission{{Mean: 3, Scale: 0.5}, {Mean: -3, Scale: 0.5}},
	)
	require.NoError(t, err)

	obs := []float64{3.1, 2.8, 3.3, -2.9, -3.2, -2.7, 3.0, 2.9}
	states, logProb, err := m.Decode(obs)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0, 0, 1, 1, 1, 0, 0}, states)
	assert.Less(t, logProb, 0.0)

	_, _, err = m.Decode(nil)
	assert.Error(t, err)
}

func TestDecodeRespectsForbiddenTransitions(t *testing.T) {
	// State 1 can never be left or entered from state 0
	m, err := New(
		[]float64{1, 0},
		[][]float64{{1, 0}, {0, 1}},
		[]Emission{{Mean: 0, Scale: 1}, {Mean: 10, Scale: 1}},
	)
	require.NoError(t, err)

	states, _, err := m.Decode([]float64{0, 10, 0})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0, 0}, states)
}

func TestFitSingleStateConverges(t *testing.T) {
	rng := rand.New(rand.NewSource(8))
	values := make([]float64, 400)
	for i := range values {
		values[i] = 2 + 1.5*rng.NormFloat64()
	}
	y := series.Contiguous("growth", series.Annual, 1600, values)

	f, err := Fit(context.Background(), y, FitConfig{NumStates: 1})
	require.NoError(t, err)

	e := f.Model().Emission(0)
	assert.InDelta(t, y.Mean(), e.Mean, 1e-9)
	assert.InDelta(t, 1.5, e.Scale, 0.15)
	assert.Equal(t, "Regime(k=1,normal)", f.Summary())
	assert.Equal(t, 0, f.StartState())
}

func TestFitOrdersStatesByMean(t *testing.T) {
	rng := rand.New(rand.NewSource(21))
	var values []float64
	// Alternating long expansions and short recessions
	for block := 0; block < 8; block++ {
		for i := 0; i < 12; i++ {
			values = append(values, 3+0.5*rng.NormFloat64())
		}
		for i := 0; i < 4; i++ {
			values = append(values, -2+0.5*rng.NormFloat64())
		}
	}
	y := series.Contiguous("growth", series.Annual, 1900, values)

	f, err := Fit(context.Background(), y, FitConfig{NumStates: 2})
	require.NoError(t, err)

	means := f.Model().Means()
	assert.Greater(t, means[0], means[1])
	assert.InDelta(t, 3, means[0], 0.3)
	assert.InDelta(t, -2, means[1], 0.4)

	states := f.HistoricalStates()
	require.Len(t, states, len(values))
	assert.Equal(t, 1, states[len(states)-1], "series ends in a recession block")
	assert.Equal(t, 1, f.StartState())
	assert.Greater(t, f.Iterations(), 0)

	for _, row := range f.Model().Transition() {
		sum := 0.0
		for _, v := range row {
			sum += v
		}
		assert.InDelta(t, 1, sum, Tolerance)
	}
}

func TestFitStudentT(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	values := make([]float64, 200)
	for i := range values {
		values[i] = 1 + rng.NormFloat64()
	}
	values[50] = 25 // outlier
	y := series.Contiguous("growth", series.Annual, 1800, values)

	f, err := Fit(context.Background(), y, FitConfig{NumStates: 1, Family: StudentT, DoF: 3})
	require.NoError(t, err)
	e := f.Model().Emission(0)
	assert.Equal(t, StudentT, e.Family)
	assert.Equal(t, 3.0, e.DoF)
	// The outlier barely moves the robust mean
	assert.InDelta(t, 1, e.Mean, 0.25)
}

func TestFitErrors(t *testing.T) {
	y := series.Contiguous("growth", series.Annual, 2000, []float64{1, 2, 3, 4})
	_, err := Fit(context.Background(), y, FitConfig{NumStates: 2})
	assert.ErrorIs(t, err, series.ErrInsufficientData)

	_, err = Fit(context.Background(), y, FitConfig{NumStates: 0})
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	long := series.Contiguous("growth", series.Annual, 2000, []float64{1, 2, 3, 4, 5, 6, 7})
	_, err = Fit(ctx, long, FitConfig{NumStates: 2})
	assert.ErrorIs(t, err, ErrFitDidNotConverge)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFittedForecastAndSimulate(t *testing.T) {
	m := twoState(t)
	history := series.Contiguous("growth", series.Annual, 2020, []float64{2.4, 2.6, -2.1, -1.9})

	f, err := NewFitted(m, history)
	require.NoError(t, err)
	assert.Equal(t, 1, f.StartState())
	assert.Equal(t, series.TimePoint(2023), f.LastPeriod())

	fc, err := f.Forecast(2, nil)
	require.NoError(t, err)
	assert.Equal(t, series.TimePoint(2024), fc.First())
	want, _ := m.Expected(1, 2)
	assert.InDeltaSlice(t, want, fc.Values(), 1e-12)

	a, err := f.Simulate(3, nil, rand.New(rand.NewSource(42)))
	require.NoError(t, err)
	b, err := f.Simulate(3, nil, rand.New(rand.NewSource(42)))
	require.NoError(t, err)
	assert.Equal(t, a.Values(), b.Values())

	exog, err := series.Align(series.Inner, series.Contiguous("rate", series.Annual, 2024, []float64{1, 2}))
	require.NoError(t, err)
	_, err = f.Forecast(2, exog)
	assert.Error(t, err)
}

func TestIIDBaseline(t *testing.T) {
	history := series.Contiguous("growth", series.Annual, 2000, []float64{1, 2, 3, 4, 5})
	f, err := IID(history)
	require.NoError(t, err)

	assert.Equal(t, "IID(mean=3.000,sd=1.581)", f.Summary())
	fc, err := f.Forecast(3, nil)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{3, 3, 3}, fc.Values(), 1e-12)

	_, err = IID(series.Contiguous("growth", series.Annual, 2000, []float64{1}))
	assert.ErrorIs(t, err, series.ErrInsufficientData)

	// A flat history has nothing to sample from
	_, err = IID(series.Contiguous("flat", series.Annual, 2000, []float64{2.5, 2.5, 2.5, 2.5}))
	assert.ErrorIs(t, err, series.ErrInsufficientData)
	assert.NotErrorIs(t, err, ErrInvalidEmission)
	assert.ErrorContains(t, err, `"flat"`)
}

func TestParseFamily(t *testing.T) {
	f, err := ParseFamily("student_t")
	require.NoError(t, err)
	assert.Equal(t, StudentT, f)
	assert.Equal(t, "student_t", f.String())

	f, err = ParseFamily("")
	require.NoError(t, err)
	assert.Equal(t, Normal, f)

	_, err = ParseFamily("laplace")
	assert.Error(t, err)
}
