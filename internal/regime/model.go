package regime

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"
)

var (
	ErrInvalidTransitionMatrix    = errors.New("invalid transition matrix")
	ErrInvalidInitialDistribution = errors.New("invalid initial distribution")
	ErrInvalidEmission            = errors.New("invalid emission parameters")
	ErrFitDidNotConverge          = errors.New("em did not converge")
)

// Tolerance for probability vectors summing to one.
const Tolerance = 1e-6

// Family of the per-state emission distribution
type Family int

const (
	Normal Family = iota
	StudentT
)

// ParseFamily accepts "normal"/"gaussian" and "student_t"/"t".
func ParseFamily(s string) (Family, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "normal", "gaussian":
		return Normal, nil
	case "student_t", "studentt", "student-t", "t":
		return StudentT, nil
	}
	return 0, fmt.Errorf("unknown emission family %q", s)
}

func (f Family) String() string {
	if f == StudentT {
		return "student_t"
	}
	return "normal"
}

// Emission parameters of one state. Scale is the standard deviation for
// Normal and the scale parameter for StudentT (DoF degrees of freedom).
type Emission struct {
	Mean   float64
	Scale  float64
	Family Family
	DoF    float64
}

func (e Emission) validate() error {
	if math.IsNaN(e.Mean) || math.IsInf(e.Mean, 0) {
		return fmt.Errorf("mean %v is not finite", e.Mean)
	}
	if !(e.Scale > 0) || math.IsInf(e.Scale, 0) {
		return fmt.Errorf("scale must be > 0, got %v", e.Scale)
	}
	switch e.Family {
	case Normal:
	case StudentT:
		if !(e.DoF > 0) || math.IsInf(e.DoF, 0) {
			return fmt.Errorf("student_t needs dof > 0, got %v", e.DoF)
		}
	default:
		return fmt.Errorf("unknown family %d", e.Family)
	}
	return nil
}

// Model is a hidden Markov model over growth rates. It is immutable once
// built by New.
type Model struct {
	initial    []float64
	transition *mat.Dense
	emissions  []Emission
}

// New validates and builds a Model. The number of states is len(emissions);
// a single state is allowed and reduces to i.i.d. sampling.
func New(initial []float64, transition [][]float64, emissions []Emission) (*Model, error) {
	k := len(emissions)
	if k < 1 {
		return nil, fmt.Errorf("%w: numStates must be >= 1", ErrInvalidEmission)
	}
	for i, e := range emissions {
		if err := e.validate(); err != nil {
			return nil, fmt.Errorf("%w: state %d: %v", ErrInvalidEmission, i, err)
		}
	}

	if len(initial) != k {
		return nil, fmt.Errorf("%w: %d entries for %d states", ErrInvalidInitialDistribution, len(initial), k)
	}
	if err := checkProbabilities(initial); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInitialDistribution, err)
	}

	if len(transition) != k {
		return nil, fmt.Errorf("%w: %d rows for %d states", ErrInvalidTransitionMatrix, len(transition), k)
	}
	P := mat.NewDense(k, k, nil)
	for i, row := range transition {
		if len(row) != k {
			return nil, fmt.Errorf("%w: row %d has %d entries for %d states", ErrInvalidTransitionMatrix, i, len(row), k)
		}
		if err := checkProbabilities(row); err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", ErrInvalidTransitionMatrix, i, err)
		}
		P.SetRow(i, row)
	}

	return &Model{
		initial:    append([]float64(nil), initial...),
		transition: P,
		emissions:  append([]Emission(nil), emissions...),
	}, nil
}

// checkProbabilities requires entries in [0,1] summing to 1 within Tolerance.
func checkProbabilities(p []float64) error {
	sum := 0.0
	for j, v := range p {
		if math.IsNaN(v) || v < 0 || v > 1 {
			return fmt.Errorf("entry %d = %v is outside [0, 1]", j, v)
		}
		sum += v
	}
	if math.Abs(sum-1) > Tolerance {
		return fmt.Errorf("sums to %.9f, want 1 +/- %g", sum, Tolerance)
	}
	return nil
}

func (m *Model) NumStates() int { return len(m.emissions) }

// Initial returns a copy of the initial distribution.
func (m *Model) Initial() []float64 { return append([]float64(nil), m.initial...) }

// Transition returns a copy of the transition matrix as rows.
func (m *Model) Transition() [][]float64 {
	k := m.NumStates()
	out := make([][]float64, k)
	for i := range out {
		out[i] = mat.Row(nil, i, m.transition)
	}
	return out
}

// Emission returns the parameters of state i.
func (m *Model) Emission(i int) Emission { return m.emissions[i] }

// Emissions returns a copy of every state's parameters.
func (m *Model) Emissions() []Emission { return append([]Emission(nil), m.emissions...) }

// Means returns the emission mean of every state.
func (m *Model) Means() []float64 {
	out := make([]float64, len(m.emissions))
	for i, e := range m.emissions {
		out[i] = e.Mean
	}
	return out
}

// ExpectedDuration is the mean number of consecutive periods spent in state
// i, 1/(1-P_ii). An absorbing state returns +Inf.
func (m *Model) ExpectedDuration(i int) float64 {
	stay := m.transition.At(i, i)
	if stay >= 1 {
		return math.Inf(1)
	}
	return 1 / (1 - stay)
}

// Expected returns E[growth] for each of the next horizon steps starting
// from state start: (e_start P^h) . mu.
func (m *Model) Expected(start, horizon int) ([]float64, error) {
	k := m.NumStates()
	if start < 0 || start >= k {
		return nil, fmt.Errorf("start state %d out of range [0, %d)", start, k)
	}
	if horizon <= 0 {
		return nil, fmt.Errorf("horizon must be > 0")
	}

	dist := mat.NewVecDense(k, nil)
	dist.SetVec(start, 1)
	mu := mat.NewVecDense(k, m.Means())

	out := make([]float64, horizon)
	for h := 0; h < horizon; h++ {
		// row vector times P == P' times column vector
		var next mat.VecDense
		next.MulVec(m.transition.T(), dist)
		dist = &next
		out[h] = mat.Dot(dist, mu)
	}
	return out, nil
}

// Describe renders the per-state parameters and the transition matrix.
func (m *Model) Describe() string {
	var b strings.Builder
	for i, e := range m.emissions {
		fmt.Fprintf(&b, "state %d: mean=% .4f scale=%.4f %s", i, e.Mean, e.Scale, e.Family)
		if e.Family == StudentT {
			fmt.Fprintf(&b, "(dof=%g)", e.DoF)
		}
		fmt.Fprintf(&b, " duration=%.2f\n", m.ExpectedDuration(i))
	}
	b.WriteString("transition:\n")
	for i := 0; i < m.NumStates(); i++ {
		b.WriteString(" ")
		for _, v := range mat.Row(nil, i, m.transition) {
			fmt.Fprintf(&b, " %.4f", v)
		}
		b.WriteString("\n")
	}
	return b.String()
}
