// Package dataio loads historical series from CSV files and writes
// trajectories, ensemble bands and run reports.
package dataio

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/asharahmed/us-econ-growth/internal/series"
)

var ErrSeriesNotFound = errors.New("series not found")

// Provider supplies historical series by identifier, e.g. a FRED series id.
type Provider interface {
	FetchSeries(ctx context.Context, id string) (*series.Series, error)
}

// CSVProvider reads <Dir>/<id>.csv files in the FRED download layout: a
// header row, then one period and one value per row. A value of "." or an
// empty cell is a missing observation.
type CSVProvider struct {
	Dir       string
	Frequency series.Frequency
}

func NewCSVProvider(dir string, freq series.Frequency) *CSVProvider {
	return &CSVProvider{Dir: dir, Frequency: freq}
}

// FetchSeries loads one series; the series is named after id.
func (p *CSVProvider) FetchSeries(ctx context.Context, id string) (*series.Series, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if id == "" || strings.ContainsAny(id, `/\`) {
		return nil, fmt.Errorf("invalid series id %q", id)
	}
	path := filepath.Join(p.Dir, id+".csv")
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s (looked for %s)", ErrSeriesNotFound, id, path)
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	s, err := ReadSeries(f, id, p.Frequency)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// ReadSeries parses a two-column CSV (period, value) into a Series.
// Rows may come in any order; they are sorted by period.
func ReadSeries(r io.Reader, name string, freq series.Frequency) (*series.Series, error) {
	// 1. Make CSV reader
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	// 2. Read header row
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) < 2 {
		return nil, fmt.Errorf("header has %d columns, want period and value", len(header))
	}

	type obs struct {
		t series.TimePoint
		v float64
	}
	var rows []obs
	seen := make(map[series.TimePoint]int)

	// 3. Read each data row
	for line := 2; ; line++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", line, err)
		}

		// Skip completely empty lines
		if len(record) == 1 && strings.TrimSpace(record[0]) == "" {
			continue
		}
		if len(record) < 2 {
			return nil, fmt.Errorf("row %d: expected 2 columns, got %d", line, len(record))
		}

		t, err := freq.Parse(record[0])
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", line, err)
		}
		if prev, dup := seen[t]; dup {
			return nil, fmt.Errorf("row %d: period %s already given on row %d (resample to %s first)",
				line, freq.Format(t), prev, freq)
		}
		seen[t] = line

		v, err := parseValue(record[1])
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", line, err)
		}
		rows = append(rows, obs{t: t, v: v})
	}

	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no data rows", series.ErrInsufficientData)
	}

	// 4. Order by period
	sort.Slice(rows, func(i, j int) bool { return rows[i].t < rows[j].t })

	times := make([]series.TimePoint, len(rows))
	values := make([]float64, len(rows))
	for i, o := range rows {
		times[i] = o.t
		values[i] = o.v
	}
	return series.New(name, freq, times, values)
}

func parseValue(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "." || strings.EqualFold(s, "nan") || strings.EqualFold(s, "na") {
		return math.NaN(), nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse float %q: %w", s, err)
	}
	return v, nil
}
