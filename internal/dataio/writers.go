package dataio

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/asharahmed/us-econ-growth/internal/ensemble"
	"github.com/asharahmed/us-econ-growth/internal/exog"
	"github.com/asharahmed/us-econ-growth/internal/model"
	"github.com/asharahmed/us-econ-growth/internal/trajectory"
)

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'f', 6, 64) }

// writeFile creates path and hands it to write.
func writeFile(path string, write func(io.Writer) error) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(file); err != nil {
		file.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return file.Close()
}

// WriteTrajectory writes a trajectory in long format.
// Columns: period, segment, growth, level, state
// The first historical level has no growth rate and gets an empty growth cell.
func WriteTrajectory(w io.Writer, t *trajectory.Trajectory) error {
	writer := csv.NewWriter(w)

	header := []string{"period", "segment", "growth", "level", "state"}
	if err := writer.Write(header); err != nil {
		return err
	}

	f := t.Frequency
	for _, tp := range t.HistoricalLevel.Times() {
		level, _ := t.HistoricalLevel.Lookup(tp)
		growth := ""
		if g, ok := t.HistoricalGrowth.Lookup(tp); ok {
			growth = formatFloat(g)
		}
		if err := writer.Write([]string{f.Format(tp), "historical", growth, formatFloat(level), ""}); err != nil {
			return err
		}
	}

	growth := t.ProjectedGrowth.Values()
	levels := t.ProjectedLevel.Values()
	for i, tp := range t.ProjectedGrowth.Times() {
		state := ""
		if t.StatePath != nil {
			state = strconv.Itoa(t.StatePath[i])
		}
		record := []string{f.Format(tp), "projected", formatFloat(growth[i]), formatFloat(levels[i]), state}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

// WriteTrajectoryCSV writes t to path.
func WriteTrajectoryCSV(path string, t *trajectory.Trajectory) error {
	return writeFile(path, func(w io.Writer) error { return WriteTrajectory(w, t) })
}

// WriteBands writes ensemble bands in long format.
// Columns: period, quantity, lower, median, upper, mean
func WriteBands(w io.Writer, res *ensemble.Result) error {
	writer := csv.NewWriter(w)

	header := []string{"period", "quantity", "lower", "median", "upper", "mean"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, band := range []ensemble.Band{res.Growth, res.Level} {
		for h, tp := range band.Times {
			record := []string{
				res.Frequency.Format(tp),
				band.Name,
				formatFloat(band.Lower[h]),
				formatFloat(band.Median[h]),
				formatFloat(band.Upper[h]),
				formatFloat(band.Mean[h]),
			}
			if err := writer.Write(record); err != nil {
				return err
			}
		}
	}

	writer.Flush()
	return writer.Error()
}

// WriteBandsCSV writes res to path.
func WriteBandsCSV(path string, res *ensemble.Result) error {
	return writeFile(path, func(w io.Writer) error { return WriteBands(w, res) })
}

// Report is the YAML summary of one projection run.
type Report struct {
	RunID           string             `yaml:"run_id"`
	Model           string             `yaml:"model"`
	Frequency       string             `yaml:"frequency"`
	Splice          string             `yaml:"splice"`
	Horizon         int                `yaml:"horizon"`
	Seed            int64              `yaml:"seed"`
	Stochastic      bool               `yaml:"stochastic"`
	CovariateModels map[string]string  `yaml:"covariate_models,omitempty"`
	Quality         []exog.QualityFlag `yaml:"quality,omitempty"`
	IntervalLevel   float64            `yaml:"interval_level,omitempty"`
	Projected       []ReportRow        `yaml:"projected"`
	Ensemble        *EnsembleSummary   `yaml:"ensemble,omitempty"`
}

// ReportRow is one projected period.
type ReportRow struct {
	Period string  `yaml:"period"`
	Growth float64 `yaml:"growth"`
	Level  float64 `yaml:"level"`
	State  *int    `yaml:"state,omitempty"`
	// Forecast band of the growth rate, when one was computed
	GrowthLower *float64 `yaml:"growth_lower,omitempty"`
	GrowthUpper *float64 `yaml:"growth_upper,omitempty"`
}

// EnsembleSummary describes the ensemble that produced bands, if any.
type EnsembleSummary struct {
	Paths int     `yaml:"paths"`
	Seed  int64   `yaml:"seed"`
	Alpha float64 `yaml:"alpha"`
}

// NewReport summarizes a trajectory.
func NewReport(t *trajectory.Trajectory, seed int64, stochastic bool, covariateModels map[string]string) *Report {
	r := &Report{
		RunID:           t.RunID,
		Model:           t.Model,
		Frequency:       t.Frequency.String(),
		Splice:          t.Frequency.Format(t.Splice),
		Horizon:         t.Horizon(),
		Seed:            seed,
		Stochastic:      stochastic,
		CovariateModels: covariateModels,
		Quality:         t.Quality,
	}
	growth := t.ProjectedGrowth.Values()
	levels := t.ProjectedLevel.Values()
	for i, tp := range t.ProjectedGrowth.Times() {
		row := ReportRow{
			Period: t.Frequency.Format(tp),
			Growth: growth[i],
			Level:  levels[i],
		}
		if t.StatePath != nil {
			s := t.StatePath[i]
			row.State = &s
		}
		r.Projected = append(r.Projected, row)
	}
	return r
}

// WithEnsemble attaches the ensemble parameters to the report.
func (r *Report) WithEnsemble(res *ensemble.Result) *Report {
	r.Ensemble = &EnsembleSummary{Paths: res.Paths, Seed: res.Seed, Alpha: res.Alpha}
	return r
}

// WithInterval attaches a growth forecast band to the projected rows. A nil
// interval leaves the report unchanged.
func (r *Report) WithInterval(iv *model.Interval) *Report {
	if iv == nil {
		return r
	}
	lower := iv.Lower.Values()
	upper := iv.Upper.Values()
	for i := range r.Projected {
		if i >= len(lower) {
			break
		}
		lo, hi := lower[i], upper[i]
		r.Projected[i].GrowthLower = &lo
		r.Projected[i].GrowthUpper = &hi
	}
	r.IntervalLevel = iv.Level
	return r
}

// WriteReport encodes r as YAML.
func WriteReport(w io.Writer, r *Report) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return err
	}
	return enc.Close()
}

// WriteReportYAML writes r to path.
func WriteReportYAML(path string, r *Report) error {
	return writeFile(path, func(w io.Writer) error { return WriteReport(w, r) })
}
