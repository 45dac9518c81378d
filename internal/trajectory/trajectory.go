// Package trajectory splices projected growth onto history and converts
// growth paths to levels.
package trajectory

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"

	"github.com/asharahmed/us-econ-growth/internal/exog"
	"github.com/asharahmed/us-econ-growth/internal/series"
)

var ErrDiscontinuity = errors.New("discontinuity at splice")

// Historical is the authoritative part of a trajectory. Growth and Level
// must end on the same period. Growth holds Periods-period rates (0 means
// 1), so the last Periods levels seed the projected levels.
type Historical struct {
	Growth  *series.Series
	Level   *series.Series
	Periods int
}

func (h Historical) lag() int {
	if h.Periods < 1 {
		return 1
	}
	return h.Periods
}

// seed returns the last lag() historical levels, oldest first.
func (h Historical) seed() ([]float64, error) {
	k := h.lag()
	if h.Level.Len() < k {
		return nil, fmt.Errorf("%w: %d-period growth needs %d historical levels of %q, got %d",
			series.ErrInsufficientData, k, k, h.Level.Name(), h.Level.Len())
	}
	return h.Level.Tail(k).Values(), nil
}

// Trajectory is a historical prefix and a projected suffix of growth rates
// and levels. Splice is the first projected period.
type Trajectory struct {
	RunID     string
	Model     string
	Frequency series.Frequency
	Splice    series.TimePoint

	HistoricalGrowth *series.Series
	HistoricalLevel  *series.Series
	ProjectedGrowth  *series.Series
	ProjectedLevel   *series.Series

	// Simulated regime per projected period, when the projection came from
	// a regime model
	StatePath []int
	Quality   []exog.QualityFlag
}

// Option customizes Compose.
type Option func(*Trajectory)

func WithRunID(id string) Option { return func(t *Trajectory) { t.RunID = id } }

func WithModel(summary string) Option { return func(t *Trajectory) { t.Model = summary } }

func WithStatePath(states []int) Option {
	return func(t *Trajectory) { t.StatePath = append([]int(nil), states...) }
}

func WithQuality(flags ...exog.QualityFlag) Option {
	return func(t *Trajectory) { t.Quality = append(t.Quality, flags...) }
}

// Compose splices projected growth onto hist. The first projected period
// must immediately follow the last historical one at the same frequency.
// Projected levels are folded from the last historical level.
func Compose(hist Historical, projected *series.Series, opts ...Option) (*Trajectory, error) {
	if err := checkHistorical(hist); err != nil {
		return nil, err
	}
	if err := projected.RequireComplete(); err != nil {
		return nil, fmt.Errorf("projected growth: %w", err)
	}
	freq := hist.Growth.Frequency()
	if projected.Frequency() != freq {
		return nil, fmt.Errorf("%w: projected %q is %s but history is %s",
			ErrDiscontinuity, projected.Name(), projected.Frequency(), freq)
	}
	if want := hist.Growth.Last() + 1; projected.First() != want {
		return nil, fmt.Errorf("%w: history %q ends at %s so projection must start at %s, got %s",
			ErrDiscontinuity, hist.Growth.Name(), freq.Format(hist.Growth.Last()),
			freq.Format(want), freq.Format(projected.First()))
	}
	if !projected.IsContiguous() {
		return nil, fmt.Errorf("%w: projected %q skips periods", ErrDiscontinuity, projected.Name())
	}

	seed, err := hist.seed()
	if err != nil {
		return nil, err
	}
	levels, err := LevelsFromLaggedGrowth(seed, projected)
	if err != nil {
		return nil, err
	}
	levels = levels.Rename(hist.Level.Name())

	t := &Trajectory{
		Frequency:        freq,
		Splice:           projected.First(),
		HistoricalGrowth: hist.Growth,
		HistoricalLevel:  hist.Level,
		ProjectedGrowth:  projected.Rename(hist.Growth.Name()),
		ProjectedLevel:   levels,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.RunID == "" {
		t.RunID = uuid.NewString()
	}
	if t.StatePath != nil && len(t.StatePath) != projected.Len() {
		return nil, fmt.Errorf("state path has %d entries for %d projected periods", len(t.StatePath), projected.Len())
	}
	return t, nil
}

// ComposeLevels is Compose for projections made on the level scale: the
// projected growth is derived from the levels with the same lag as the
// historical growth.
func ComposeLevels(hist Historical, projectedLevels *series.Series, opts ...Option) (*Trajectory, error) {
	if err := checkHistorical(hist); err != nil {
		return nil, err
	}
	seed, err := hist.seed()
	if err != nil {
		return nil, err
	}
	growth, err := GrowthFromLaggedLevels(seed, projectedLevels)
	if err != nil {
		return nil, err
	}
	return Compose(hist, growth, opts...)
}

func checkHistorical(hist Historical) error {
	if hist.Growth == nil || hist.Level == nil {
		return fmt.Errorf("%w: history needs both growth and level", series.ErrInsufficientData)
	}
	if err := hist.Growth.RequireComplete(); err != nil {
		return fmt.Errorf("historical growth: %w", err)
	}
	if err := hist.Level.RequireComplete(); err != nil {
		return fmt.Errorf("historical level: %w", err)
	}
	if hist.Level.Frequency() != hist.Growth.Frequency() {
		return fmt.Errorf("%w: level is %s but growth is %s",
			ErrDiscontinuity, hist.Level.Frequency(), hist.Growth.Frequency())
	}
	if hist.Level.Last() != hist.Growth.Last() {
		f := hist.Growth.Frequency()
		return fmt.Errorf("%w: level %q ends at %s but growth %q ends at %s",
			ErrDiscontinuity, hist.Level.Name(), f.Format(hist.Level.Last()),
			hist.Growth.Name(), f.Format(hist.Growth.Last()))
	}
	return nil
}

// LevelsFromGrowth folds growth rates (percent) into levels:
// level[0] = initial*(1+g[0]/100), level[t] = level[t-1]*(1+g[t]/100).
// The result shares the timepoints of growth.
func LevelsFromGrowth(initialLevel float64, growth *series.Series) (*series.Series, error) {
	return LevelsFromLaggedGrowth([]float64{initialLevel}, growth)
}

// LevelsFromLaggedGrowth folds k-period growth rates into levels, where k
// is len(seed): level[t] = level[t-k]*(1+g[t]/100). seed holds the k levels
// before the first growth period, oldest first.
func LevelsFromLaggedGrowth(seed []float64, growth *series.Series) (*series.Series, error) {
	if len(seed) == 0 {
		return nil, fmt.Errorf("levels of %q: no seed levels", growth.Name())
	}
	for _, v := range seed {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("initial level %v is not finite", v)
		}
	}
	if err := growth.RequireComplete(); err != nil {
		return nil, err
	}

	k := len(seed)
	all := append(append(make([]float64, 0, k+growth.Len()), seed...), growth.Values()...)
	for t := k; t < len(all); t++ {
		all[t] = all[t-k] * (1 + all[t]/100)
	}
	return series.New(levelName(growth.Name()), growth.Frequency(), growth.Times(), all[k:])
}

// GrowthFromLevels inverts LevelsFromGrowth.
func GrowthFromLevels(initialLevel float64, levels *series.Series) (*series.Series, error) {
	return GrowthFromLaggedLevels([]float64{initialLevel}, levels)
}

// GrowthFromLaggedLevels inverts LevelsFromLaggedGrowth.
func GrowthFromLaggedLevels(seed []float64, levels *series.Series) (*series.Series, error) {
	if len(seed) == 0 {
		return nil, fmt.Errorf("growth of %q: no seed levels", levels.Name())
	}
	if err := levels.RequireComplete(); err != nil {
		return nil, err
	}
	k := len(seed)
	all := append(append(make([]float64, 0, k+levels.Len()), seed...), levels.Values()...)
	growth := make([]float64, levels.Len())
	for i := range growth {
		base := all[i]
		if base == 0 {
			return nil, fmt.Errorf("growth of %q: zero level %d periods before %s", levels.Name(), k,
				levels.Frequency().Format(levels.Times()[i]))
		}
		growth[i] = (all[i+k]/base - 1) * 100
	}
	return series.New(levels.Name()+"_growth_rate", levels.Frequency(), levels.Times(), growth)
}

func levelName(growthName string) string {
	if base := strings.TrimSuffix(growthName, "_growth_rate"); base != growthName && base != "" {
		return base
	}
	return growthName + "_level"
}

// Growth returns the historical and projected growth as one series.
func (t *Trajectory) Growth() *series.Series {
	return join(t.HistoricalGrowth, t.ProjectedGrowth)
}

// Level returns the historical and projected levels as one series.
func (t *Trajectory) Level() *series.Series {
	return join(t.HistoricalLevel, t.ProjectedLevel)
}

// Horizon is the number of projected periods.
func (t *Trajectory) Horizon() int { return t.ProjectedGrowth.Len() }

// IsProjected reports whether tp lies on or after the splice.
func (t *Trajectory) IsProjected(tp series.TimePoint) bool { return tp >= t.Splice }

func join(a, b *series.Series) *series.Series {
	times := append(a.Times(), b.Times()...)
	values := append(a.Values(), b.Values()...)
	out, _ := series.New(a.Name(), a.Frequency(), times, values)
	return out
}
