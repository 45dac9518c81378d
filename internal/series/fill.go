package series

import (
	"fmt"
	"math"
	"strings"
)

// FillMethod selects how FillMissing imputes NaN values.
type FillMethod int

const (
	InterpolateLinear FillMethod = iota
	ForwardFill
)

func ParseFillMethod(s string) (FillMethod, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "linear", "interpolate", "interpolate_linear":
		return InterpolateLinear, nil
	case "ffill", "forward", "forward_fill":
		return ForwardFill, nil
	}
	return 0, fmt.Errorf("unknown fill method %q", s)
}

func (m FillMethod) String() string {
	if m == ForwardFill {
		return "forward_fill"
	}
	return "interpolate_linear"
}

// Regularize inserts a NaN observation at every skipped period so gaps in the
// timepoint axis become explicit missing values for FillMissing.
func Regularize(s *Series) *Series {
	if s.Len() == 0 || s.IsContiguous() {
		return s
	}
	first, last := s.First(), s.Last()
	n := int(last-first) + 1
	times := make([]TimePoint, n)
	values := make([]float64, n)
	for i := range values {
		times[i] = first + TimePoint(i)
		values[i] = math.NaN()
	}
	for i, t := range s.times {
		values[int(t-first)] = s.values[i]
	}
	out, _ := New(s.name, s.freq, times, values)
	return out
}

// FillMissing returns a copy of s without missing values. Linear interpolation
// weighs neighbours by timepoint distance. With either method, leading and
// trailing gaps take the nearest observed value, so the result is always
// complete.
func FillMissing(s *Series, method FillMethod) (*Series, error) {
	observed := make([]int, 0, s.Len())
	for i, v := range s.values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			observed = append(observed, i)
		}
	}
	if len(observed) < 2 {
		return nil, fmt.Errorf("%w: fill %q needs at least 2 observed points, got %d",
			ErrInsufficientData, s.name, len(observed))
	}

	values := s.Values()
	firstObs, lastObs := observed[0], observed[len(observed)-1]

	for i := 0; i < firstObs; i++ {
		values[i] = s.values[firstObs]
	}
	for i := lastObs + 1; i < len(values); i++ {
		values[i] = s.values[lastObs]
	}

	for k := 1; k < len(observed); k++ {
		left, right := observed[k-1], observed[k]
		if right-left == 1 {
			continue
		}
		for i := left + 1; i < right; i++ {
			switch method {
			case ForwardFill:
				values[i] = s.values[left]
			default:
				span := float64(s.times[right] - s.times[left])
				w := float64(s.times[i]-s.times[left]) / span
				values[i] = s.values[left]*(1-w) + s.values[right]*w
			}
		}
	}

	return New(s.name, s.freq, s.times, values)
}
