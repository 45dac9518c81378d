package regime

import (
	"fmt"
	"math/rand"

	"github.com/asharahmed/us-econ-growth/internal/series"
)

// Simulator generates sample paths from a Model starting at a fixed state.
// It holds no random state of its own; every Run draws from the rng it is
// handed, so concurrent runs with separate sources are independent.
type Simulator struct {
	model *Model
	start int
}

// NewSimulator returns a simulator whose paths start from state start.
func NewSimulator(m *Model, start int) (*Simulator, error) {
	if m == nil {
		return nil, fmt.Errorf("simulator needs a model")
	}
	if start < 0 || start >= m.NumStates() {
		return nil, fmt.Errorf("start state %d out of range [0, %d)", start, m.NumStates())
	}
	return &Simulator{model: m, start: start}, nil
}

func (s *Simulator) Start() int { return s.start }

// Path is one simulated realization.
type Path struct {
	States []int
	Growth []float64
}

// Run simulates exactly numSteps steps. At each step the state moves by one
// draw from the transition row of the previous state, then growth is drawn
// from the new state's emission.
func (s *Simulator) Run(numSteps int, rng *rand.Rand) (*Path, error) {
	if numSteps <= 0 {
		return nil, fmt.Errorf("numSteps must be > 0")
	}
	if rng == nil {
		return nil, fmt.Errorf("simulate: random source is required")
	}

	rows := s.model.Transition()
	path := &Path{
		States: make([]int, numSteps),
		Growth: make([]float64, numSteps),
	}
	state := s.start
	for t := 0; t < numSteps; t++ {
		state = categorical(rows[state], rng)
		path.States[t] = state
		path.Growth[t] = s.model.emissions[state].sample(rng)
	}
	return path, nil
}

// Series places the simulated growth on consecutive periods starting at first.
func (p *Path) Series(name string, freq series.Frequency, first series.TimePoint) *series.Series {
	return series.Contiguous(name, freq, first, p.Growth)
}
