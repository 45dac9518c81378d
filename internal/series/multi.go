package series

import (
	"fmt"
	"math"
	"sort"
)

// JoinMode controls how Align combines timepoint axes.
type JoinMode int

const (
	Inner JoinMode = iota
	Left
)

// MultiSeries holds several named columns over one shared timepoint axis.
type MultiSeries struct {
	freq  Frequency
	times []TimePoint
	names []string
	cols  map[string][]float64
}

// NewMulti builds a MultiSeries from columns that already share times.
// Column order follows names.
func NewMulti(freq Frequency, times []TimePoint, names []string, cols map[string][]float64) (*MultiSeries, error) {
	for i := 1; i < len(times); i++ {
		if times[i] <= times[i-1] {
			return nil, fmt.Errorf("multiseries: timepoints must be strictly increasing")
		}
	}
	ms := &MultiSeries{
		freq:  freq,
		times: append([]TimePoint(nil), times...),
		names: make([]string, 0, len(names)),
		cols:  make(map[string][]float64, len(names)),
	}
	for _, name := range names {
		col, ok := cols[name]
		if !ok {
			return nil, fmt.Errorf("multiseries: column %q not provided", name)
		}
		if len(col) != len(times) {
			return nil, fmt.Errorf("multiseries: column %q has %d values for %d timepoints", name, len(col), len(times))
		}
		if _, dup := ms.cols[name]; dup {
			return nil, fmt.Errorf("multiseries: duplicate column %q", name)
		}
		ms.names = append(ms.names, name)
		ms.cols[name] = append([]float64(nil), col...)
	}
	return ms, nil
}

// Align joins series on their timepoints. Inner keeps the timepoints present
// in every series; Left keeps the axis of the first series and fills the
// others with NaN where they have no observation.
func Align(mode JoinMode, in ...*Series) (*MultiSeries, error) {
	if len(in) == 0 {
		return nil, fmt.Errorf("%w: no series to align", ErrAlignment)
	}
	freq := in[0].freq
	for _, s := range in[1:] {
		if s.freq != freq {
			return nil, fmt.Errorf("%w: %q is %s but %q is %s", ErrAlignment, s.name, s.freq, in[0].name, freq)
		}
	}

	var axis []TimePoint
	switch mode {
	case Left:
		axis = in[0].Times()
	default:
		counts := make(map[TimePoint]int)
		for _, s := range in {
			for _, t := range s.times {
				counts[t]++
			}
		}
		for t, c := range counts {
			if c == len(in) {
				axis = append(axis, t)
			}
		}
		sort.Slice(axis, func(i, j int) bool { return axis[i] < axis[j] })
	}

	if len(axis) == 0 {
		names := make([]string, len(in))
		for i, s := range in {
			names[i] = s.name
		}
		return nil, fmt.Errorf("%w: join of %v has no common timepoints", ErrAlignment, names)
	}

	names := make([]string, 0, len(in))
	cols := make(map[string][]float64, len(in))
	for _, s := range in {
		col := make([]float64, len(axis))
		for i, t := range axis {
			v, ok := s.Lookup(t)
			if !ok {
				v = math.NaN()
			}
			col[i] = v
		}
		names = append(names, s.name)
		cols[s.name] = col
	}
	return NewMulti(freq, axis, names, cols)
}

func (m *MultiSeries) Frequency() Frequency { return m.freq }
func (m *MultiSeries) Len() int             { return len(m.times) }

// Names returns the column names in insertion order.
func (m *MultiSeries) Names() []string { return append([]string(nil), m.names...) }

// Times returns a copy of the shared axis.
func (m *MultiSeries) Times() []TimePoint { return append([]TimePoint(nil), m.times...) }

// Has reports whether the column exists.
func (m *MultiSeries) Has(name string) bool {
	_, ok := m.cols[name]
	return ok
}

// Column returns a copy of one column.
func (m *MultiSeries) Column(name string) ([]float64, bool) {
	col, ok := m.cols[name]
	if !ok {
		return nil, false
	}
	return append([]float64(nil), col...), true
}

// Series returns one column as a Series.
func (m *MultiSeries) Series(name string) (*Series, bool) {
	col, ok := m.cols[name]
	if !ok {
		return nil, false
	}
	s, _ := New(name, m.freq, m.times, col)
	return s, true
}

// Select keeps only the given columns, in the given order.
func (m *MultiSeries) Select(names ...string) (*MultiSeries, error) {
	cols := make(map[string][]float64, len(names))
	for _, name := range names {
		col, ok := m.cols[name]
		if !ok {
			return nil, fmt.Errorf("multiseries: no column %q", name)
		}
		cols[name] = col
	}
	return NewMulti(m.freq, m.times, names, cols)
}

// Window keeps the rows with from <= t <= to.
func (m *MultiSeries) Window(from, to TimePoint) *MultiSeries {
	var times []TimePoint
	var idx []int
	for i, t := range m.times {
		if t >= from && t <= to {
			times = append(times, t)
			idx = append(idx, i)
		}
	}
	cols := make(map[string][]float64, len(m.names))
	for _, name := range m.names {
		col := make([]float64, len(idx))
		for j, i := range idx {
			col[j] = m.cols[name][i]
		}
		cols[name] = col
	}
	out, _ := NewMulti(m.freq, times, m.names, cols)
	return out
}

// Rows returns the matrix of values for the given timepoints, one row per
// timepoint and one column per name. Fails when a timepoint or column is absent.
func (m *MultiSeries) Rows(times []TimePoint, names []string) ([][]float64, error) {
	pos := make(map[TimePoint]int, len(m.times))
	for i, t := range m.times {
		pos[t] = i
	}
	out := make([][]float64, len(times))
	for r, t := range times {
		i, ok := pos[t]
		if !ok {
			return nil, fmt.Errorf("%w: no row at %s", ErrAlignment, m.freq.Format(t))
		}
		row := make([]float64, len(names))
		for c, name := range names {
			col, ok := m.cols[name]
			if !ok {
				return nil, fmt.Errorf("%w: no column %q", ErrAlignment, name)
			}
			row[c] = col[i]
		}
		out[r] = row
	}
	return out, nil
}

// RequireComplete fails on the first column holding a missing value.
func (m *MultiSeries) RequireComplete() error {
	if m == nil {
		return nil
	}
	for _, name := range m.names {
		s, _ := m.Series(name)
		if err := s.RequireComplete(); err != nil {
			return err
		}
	}
	return nil
}

// FillMissing applies FillMissing to every column.
func (m *MultiSeries) FillMissing(method FillMethod) (*MultiSeries, error) {
	cols := make(map[string][]float64, len(m.names))
	for _, name := range m.names {
		s, _ := m.Series(name)
		filled, err := FillMissing(s, method)
		if err != nil {
			return nil, err
		}
		cols[name] = filled.values
	}
	return NewMulti(m.freq, m.times, m.names, cols)
}
