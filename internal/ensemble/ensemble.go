// Package ensemble runs independent simulated trajectories in parallel and
// summarizes them as per-period quantile bands.
package ensemble

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"github.com/asharahmed/us-econ-growth/internal/model"
	"github.com/asharahmed/us-econ-growth/internal/series"
	"github.com/asharahmed/us-econ-growth/internal/trajectory"
)

// Options for Run. Zero values take the defaults noted per field.
type Options struct {
	// Number of simulated paths; default 500
	Paths int
	// Concurrent workers; default runtime.NumCPU(), never more than Paths
	Workers int
	// Master seed for the per-path seeds; 0 seeds from the clock
	Seed int64
	// Two-sided band width, e.g. 0.1 for a 5%-95% band; default 0.1
	Alpha float64
}

func (o *Options) setDefaults() {
	if o.Paths <= 0 {
		o.Paths = 500
	}
	if o.Workers <= 0 {
		o.Workers = runtime.NumCPU()
	}
	if o.Workers > o.Paths {
		o.Workers = o.Paths
	}
	if o.Alpha <= 0 || o.Alpha >= 1 {
		o.Alpha = 0.1
	}
}

// Band is a per-period summary of the simulated paths.
type Band struct {
	Name   string
	Times  []series.TimePoint
	Lower  []float64
	Median []float64
	Upper  []float64
	Mean   []float64
}

// Result of an ensemble run.
type Result struct {
	RunID     string
	Model     string
	Frequency series.Frequency
	Splice    series.TimePoint
	Paths     int
	Seed      int64
	Alpha     float64
	Growth    Band
	Level     Band
}

// Run simulates opts.Paths trajectories of horizon periods from m and
// splices each onto hist. Per-path seeds are drawn from one master source
// before any worker starts, so the result depends on the seed only, not on
// scheduling. The first failing path cancels the rest and its error is
// returned.
func Run(ctx context.Context, hist trajectory.Historical, m model.FittedModel, exog *series.MultiSeries, horizon int, opts Options) (*Result, error) {
	if m == nil {
		return nil, fmt.Errorf("ensemble needs a fitted model")
	}
	if horizon <= 0 {
		return nil, fmt.Errorf("horizon must be > 0")
	}
	opts.setDefaults()

	// 1. Per-path seeds so paths never share a source
	masterSeed := opts.Seed
	if masterSeed == 0 {
		masterSeed = time.Now().UnixNano()
	}
	masterRng := rand.New(rand.NewSource(masterSeed))
	seeds := make([]int64, opts.Paths)
	for i := range seeds {
		seeds[i] = masterRng.Int63()
	}

	runID := uuid.NewString()
	growth := make([][]float64, opts.Paths)
	level := make([][]float64, opts.Paths)
	var first *trajectory.Trajectory

	// 2. Bounded worker pool; each path writes only its own slot
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for i := 0; i < opts.Paths; i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewSource(seeds[i]))
			proj, err := m.Simulate(horizon, exog, rng)
			if err != nil {
				return fmt.Errorf("path %d: %w", i, err)
			}
			t, err := trajectory.Compose(hist, proj, trajectory.WithRunID(runID))
			if err != nil {
				return fmt.Errorf("path %d: %w", i, err)
			}
			growth[i] = t.ProjectedGrowth.Values()
			level[i] = t.ProjectedLevel.Values()
			if i == 0 {
				first = t
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// 3. Bands from the per-period cross sections
	times := first.ProjectedGrowth.Times()
	return &Result{
		RunID:     runID,
		Model:     m.Summary(),
		Frequency: first.Frequency,
		Splice:    first.Splice,
		Paths:     opts.Paths,
		Seed:      masterSeed,
		Alpha:     opts.Alpha,
		Growth:    summarize(first.ProjectedGrowth.Name(), times, growth, opts.Alpha),
		Level:     summarize(first.ProjectedLevel.Name(), times, level, opts.Alpha),
	}, nil
}

func summarize(name string, times []series.TimePoint, paths [][]float64, alpha float64) Band {
	H := len(times)
	b := Band{
		Name:   name,
		Times:  append([]series.TimePoint(nil), times...),
		Lower:  make([]float64, H),
		Median: make([]float64, H),
		Upper:  make([]float64, H),
		Mean:   make([]float64, H),
	}
	cross := make([]float64, len(paths))
	for h := 0; h < H; h++ {
		for p, path := range paths {
			cross[p] = path[h]
		}
		b.Mean[h] = stat.Mean(cross, nil)
		sort.Float64s(cross)
		b.Lower[h] = quantileSorted(cross, alpha/2)
		b.Median[h] = quantileSorted(cross, 0.5)
		b.Upper[h] = quantileSorted(cross, 1-alpha/2)
	}
	return b
}

// Quantile returns the empirical q-quantile of samples (0 <= q <= 1)
// using linear interpolation between order statistics. samples is not
// reordered.
func Quantile(samples []float64, q float64) float64 {
	if len(samples) == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)
	return quantileSorted(sorted, q)
}

// quantileSorted is Quantile on an already ascending, non-empty slice.
func quantileSorted(sorted []float64, q float64) float64 {
	last := len(sorted) - 1
	switch {
	case q <= 0:
		return sorted[0]
	case q >= 1:
		return sorted[last]
	}
	lo, frac := math.Modf(q * float64(last))
	i := int(lo)
	if frac == 0 {
		return sorted[i]
	}
	return sorted[i] + frac*(sorted[i+1]-sorted[i])
}
