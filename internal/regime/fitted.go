package regime

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/asharahmed/us-econ-growth/internal/series"
)

// Fitted binds a Model to the history it describes: the decoded state path
// fixes the start state for forecasts and simulations.
type Fitted struct {
	model      *Model
	label      string
	target     string
	freq       series.Frequency
	last       series.TimePoint
	states     []int
	logLik     float64
	iterations int
}

// NewFitted decodes history under m. The most probable state at the last
// historical period becomes the start state.
func NewFitted(m *Model, history *series.Series) (*Fitted, error) {
	if m == nil {
		return nil, fmt.Errorf("regime: nil model")
	}
	if err := history.RequireComplete(); err != nil {
		return nil, err
	}
	states, logProb, err := m.Decode(history.Values())
	if err != nil {
		return nil, fmt.Errorf("decode %q: %w", history.Name(), err)
	}
	return &Fitted{
		model:  m,
		label:  "Regime",
		target: history.Name(),
		freq:   history.Frequency(),
		last:   history.Last(),
		states: states,
		logLik: logProb,
	}, nil
}

// IID is the single-state baseline: growth drawn independently from a normal
// with the historical mean and standard deviation.
func IID(history *series.Series) (*Fitted, error) {
	if err := history.RequireComplete(); err != nil {
		return nil, err
	}
	if history.Len() < 2 {
		return nil, fmt.Errorf("%w: iid baseline on %q needs 2 observations", series.ErrInsufficientData, history.Name())
	}
	sd := history.StdDev()
	if !(sd > 0) {
		return nil, fmt.Errorf("%w: iid baseline on %q needs variation, every observation is %g",
			series.ErrInsufficientData, history.Name(), history.Mean())
	}
	m, err := New([]float64{1}, [][]float64{{1}}, []Emission{{
		Mean:   history.Mean(),
		Scale:  sd,
		Family: Normal,
	}})
	if err != nil {
		return nil, fmt.Errorf("iid baseline on %q: %w", history.Name(), err)
	}
	f, err := NewFitted(m, history)
	if err != nil {
		return nil, err
	}
	f.label = "IID"
	return f, nil
}

func (f *Fitted) Model() *Model                { return f.model }
func (f *Fitted) Target() string               { return f.target }
func (f *Fitted) LastPeriod() series.TimePoint { return f.last }
func (f *Fitted) LogLikelihood() float64       { return f.logLik }
func (f *Fitted) Iterations() int              { return f.iterations }

// Covariates is always empty; regime models take none.
func (f *Fitted) Covariates() []string { return nil }

// StartState is the decoded state at the last historical period.
func (f *Fitted) StartState() int { return f.states[len(f.states)-1] }

// HistoricalStates returns the decoded path over the training data.
func (f *Fitted) HistoricalStates() []int { return append([]int(nil), f.states...) }

// Summary renders e.g. Regime(k=2,normal).
func (f *Fitted) Summary() string {
	e := f.model.Emission(0)
	if f.label == "IID" {
		return fmt.Sprintf("IID(mean=%.3f,sd=%.3f)", e.Mean, e.Scale)
	}
	return fmt.Sprintf("%s(k=%d,%s)", f.label, f.model.NumStates(), e.Family)
}

// Describe renders the model parameters and the decoded start state.
func (f *Fitted) Describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s on %s, start state %d at %s\n", f.Summary(), f.target, f.StartState(), f.freq.Format(f.last))
	b.WriteString(f.model.Describe())
	return b.String()
}

func (f *Fitted) checkExog(exog *series.MultiSeries) error {
	if exog != nil && len(exog.Names()) > 0 {
		return fmt.Errorf("%s takes no covariates, got %s", f.Summary(), strings.Join(exog.Names(), ", "))
	}
	return nil
}

// Forecast returns the expected growth over the horizon, weighting the state
// means by the state distribution reached from the start state.
func (f *Fitted) Forecast(horizon int, exog *series.MultiSeries) (*series.Series, error) {
	if err := f.checkExog(exog); err != nil {
		return nil, err
	}
	expected, err := f.model.Expected(f.StartState(), horizon)
	if err != nil {
		return nil, err
	}
	return series.Contiguous(f.target, f.freq, f.last+1, expected), nil
}

// Simulate draws one growth path over the horizon.
func (f *Fitted) Simulate(horizon int, exog *series.MultiSeries, rng *rand.Rand) (*series.Series, error) {
	if err := f.checkExog(exog); err != nil {
		return nil, err
	}
	path, err := f.SimulatePath(horizon, rng)
	if err != nil {
		return nil, err
	}
	return path.Series(f.target, f.freq, f.last+1), nil
}

// SimulatePath is Simulate keeping the state sequence for diagnostics.
func (f *Fitted) SimulatePath(horizon int, rng *rand.Rand) (*Path, error) {
	sim, err := NewSimulator(f.model, f.StartState())
	if err != nil {
		return nil, err
	}
	return sim.Run(horizon, rng)
}
