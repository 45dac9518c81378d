package series

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

var (
	ErrAlignment        = errors.New("alignment error")
	ErrInsufficientData = errors.New("insufficient data")
	ErrMissingValues    = errors.New("series contains missing values")
)

// Series is one named quantity over strictly increasing timepoints.
// Missing observations are stored as NaN. A Series is never mutated after
// construction; every transformation returns a new value.
type Series struct {
	name   string
	freq   Frequency
	times  []TimePoint
	values []float64
}

// New builds a Series, copying times and values.
func New(name string, freq Frequency, times []TimePoint, values []float64) (*Series, error) {
	if len(times) != len(values) {
		return nil, fmt.Errorf("series %q: %d timepoints but %d values", name, len(times), len(values))
	}
	for i := 1; i < len(times); i++ {
		if times[i] <= times[i-1] {
			return nil, fmt.Errorf("series %q: timepoints must be strictly increasing (%s after %s)",
				name, freq.Format(times[i]), freq.Format(times[i-1]))
		}
	}

	s := &Series{
		name:   name,
		freq:   freq,
		times:  make([]TimePoint, len(times)),
		values: make([]float64, len(values)),
	}
	copy(s.times, times)
	copy(s.values, values)
	return s, nil
}

// Contiguous builds a Series over len(values) consecutive periods starting at start.
func Contiguous(name string, freq Frequency, start TimePoint, values []float64) *Series {
	times := make([]TimePoint, len(values))
	for i := range times {
		times[i] = start + TimePoint(i)
	}
	s, _ := New(name, freq, times, values)
	return s
}

func (s *Series) Name() string         { return s.name }
func (s *Series) Frequency() Frequency { return s.freq }
func (s *Series) Len() int             { return len(s.values) }

// Times returns a copy of the timepoints.
func (s *Series) Times() []TimePoint {
	out := make([]TimePoint, len(s.times))
	copy(out, s.times)
	return out
}

// Values returns a copy of the values.
func (s *Series) Values() []float64 {
	out := make([]float64, len(s.values))
	copy(out, s.values)
	return out
}

// At returns the i-th observation.
func (s *Series) At(i int) (TimePoint, float64) {
	return s.times[i], s.values[i]
}

// First returns the first timepoint. Panics on an empty series.
func (s *Series) First() TimePoint { return s.times[0] }

// Last returns the last timepoint. Panics on an empty series.
func (s *Series) Last() TimePoint { return s.times[len(s.times)-1] }

// LastValue returns the last observation.
func (s *Series) LastValue() float64 { return s.values[len(s.values)-1] }

// Lookup returns the value at tp.
func (s *Series) Lookup(tp TimePoint) (float64, bool) {
	lo, hi := 0, len(s.times)
	for lo < hi {
		mid := (lo + hi) / 2
		if s.times[mid] < tp {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < len(s.times) && s.times[lo] == tp {
		return s.values[lo], true
	}
	return 0, false
}

// Rename returns a copy of s under a new name.
func (s *Series) Rename(name string) *Series {
	out, _ := New(name, s.freq, s.times, s.values)
	return out
}

// IsContiguous reports whether consecutive timepoints are one period apart.
func (s *Series) IsContiguous() bool {
	for i := 1; i < len(s.times); i++ {
		if s.times[i] != s.times[i-1]+1 {
			return false
		}
	}
	return true
}

// HasMissing reports whether any value is NaN or infinite.
func (s *Series) HasMissing() bool {
	for _, v := range s.values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return true
		}
	}
	return false
}

// RequireComplete fails when the series is empty or still holds missing values.
// Every model fit goes through it.
func (s *Series) RequireComplete() error {
	if s == nil || len(s.values) == 0 {
		return fmt.Errorf("%w: series is empty", ErrInsufficientData)
	}
	for i, v := range s.values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %q at %s", ErrMissingValues, s.name, s.freq.Format(s.times[i]))
		}
	}
	return nil
}

// Window returns the observations with from <= t <= to.
func (s *Series) Window(from, to TimePoint) *Series {
	var times []TimePoint
	var values []float64
	for i, t := range s.times {
		if t >= from && t <= to {
			times = append(times, t)
			values = append(values, s.values[i])
		}
	}
	out, _ := New(s.name, s.freq, times, values)
	return out
}

// Tail returns the last n observations.
func (s *Series) Tail(n int) *Series {
	if n > len(s.values) {
		n = len(s.values)
	}
	if n < 0 {
		n = 0
	}
	start := len(s.values) - n
	out, _ := New(s.name, s.freq, s.times[start:], s.values[start:])
	return out
}

// FutureAxis returns the horizon timepoints immediately following the series.
func (s *Series) FutureAxis(horizon int) []TimePoint {
	if horizon <= 0 {
		return nil
	}
	next := s.Last() + 1
	out := make([]TimePoint, horizon)
	for i := range out {
		out[i] = next + TimePoint(i)
	}
	return out
}

// Mean of the non-missing values.
func (s *Series) Mean() float64 {
	return stat.Mean(s.observed(), nil)
}

// StdDev is the sample standard deviation of the non-missing values.
func (s *Series) StdDev() float64 {
	obs := s.observed()
	if len(obs) < 2 {
		return 0
	}
	return stat.StdDev(obs, nil)
}

func (s *Series) observed() []float64 {
	out := make([]float64, 0, len(s.values))
	for _, v := range s.values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out = append(out, v)
		}
	}
	return out
}

// GrowthRate computes (v[t]/v[t-periods] - 1) * 100. The first periods
// observations have no base value and are dropped from the result.
// Offsets are positional, so the level series should be contiguous.
func GrowthRate(level *Series, periods int) (*Series, error) {
	if periods < 1 {
		return nil, fmt.Errorf("growth rate of %q: periods must be >= 1, got %d", level.name, periods)
	}
	if level.Len() <= periods {
		return nil, fmt.Errorf("%w: growth rate of %q needs more than %d points, got %d",
			ErrInsufficientData, level.name, periods, level.Len())
	}

	n := level.Len() - periods
	times := make([]TimePoint, n)
	values := make([]float64, n)
	for i := 0; i < n; i++ {
		base := level.values[i]
		cur := level.values[i+periods]
		times[i] = level.times[i+periods]
		if math.IsNaN(base) || math.IsNaN(cur) {
			values[i] = math.NaN()
			continue
		}
		if base == 0 {
			return nil, fmt.Errorf("growth rate of %q: zero level at %s", level.name, level.freq.Format(level.times[i]))
		}
		values[i] = (cur/base - 1) * 100
	}
	return New(level.name+"_growth_rate", level.freq, times, values)
}
