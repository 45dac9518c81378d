package regime

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/stat/distuv"
)

// logProb is the log density of x under e.
func (e Emission) logProb(x float64) float64 {
	switch e.Family {
	case StudentT:
		return distuv.StudentsT{Mu: e.Mean, Sigma: e.Scale, Nu: e.DoF}.LogProb(x)
	default:
		return distuv.Normal{Mu: e.Mean, Sigma: e.Scale}.LogProb(x)
	}
}

// sample draws one value from e using only rng.
func (e Emission) sample(rng *rand.Rand) float64 {
	switch e.Family {
	case StudentT:
		// inverse CDF keeps every draw on the caller's source
		return distuv.StudentsT{Mu: e.Mean, Sigma: e.Scale, Nu: e.DoF}.Quantile(openUniform(rng))
	default:
		return e.Mean + e.Scale*rng.NormFloat64()
	}
}

// openUniform draws from (0, 1).
func openUniform(rng *rand.Rand) float64 {
	for {
		if u := rng.Float64(); u > 0 {
			return u
		}
	}
}

// categorical draws an index with the given probabilities.
func categorical(probs []float64, rng *rand.Rand) int {
	u := rng.Float64()
	acc := 0.0
	last := 0
	for i, p := range probs {
		if p <= 0 {
			continue
		}
		acc += p
		last = i
		if u < acc {
			return i
		}
	}
	// rounding can leave acc a hair under 1
	return last
}

func logOf(p float64) float64 {
	if p <= 0 {
		return math.Inf(-1)
	}
	return math.Log(p)
}
