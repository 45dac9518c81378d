package regime

import (
	"fmt"
	"math"
)

// Decode returns the most probable state sequence for obs (Viterbi, in log
// space) and its joint log probability. The last entry is the state the
// simulator starts from.
func (m *Model) Decode(obs []float64) ([]int, float64, error) {
	n := len(obs)
	if n == 0 {
		return nil, 0, fmt.Errorf("decode: no observations")
	}
	k := m.NumStates()

	logP := make([][]float64, k)
	for i := range logP {
		logP[i] = make([]float64, k)
		for j := range logP[i] {
			logP[i][j] = logOf(m.transition.At(i, j))
		}
	}

	delta := make([]float64, k)
	for j := 0; j < k; j++ {
		delta[j] = logOf(m.initial[j]) + m.emissions[j].logProb(obs[0])
	}

	back := make([][]int, n)
	next := make([]float64, k)
	for t := 1; t < n; t++ {
		back[t] = make([]int, k)
		for j := 0; j < k; j++ {
			best, arg := math.Inf(-1), 0
			for i := 0; i < k; i++ {
				if v := delta[i] + logP[i][j]; v > best {
					best, arg = v, i
				}
			}
			next[j] = best + m.emissions[j].logProb(obs[t])
			back[t][j] = arg
		}
		delta, next = next, delta
	}

	best, last := math.Inf(-1), 0
	for j, v := range delta {
		if v > best {
			best, last = v, j
		}
	}
	if math.IsInf(best, -1) {
		return nil, best, fmt.Errorf("decode: observations have zero probability under the model")
	}

	path := make([]int, n)
	path[n-1] = last
	for t := n - 1; t > 0; t-- {
		path[t-1] = back[t][path[t]]
	}
	return path, best, nil
}
