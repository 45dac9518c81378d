package ensemble

import (
	"bufio"
	"context"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asharahmed/us-econ-growth/internal/regime"
	"github.com/asharahmed/us-econ-growth/internal/series"
	"github.com/asharahmed/us-econ-growth/internal/trajectory"
)

// ============================================================================
// HELPER FUNCTIONS
// ============================================================================

func readDirectory(directory string) []os.DirEntry {
	files, err := os.ReadDir(directory)
	if err != nil {
		panic(fmt.Sprintf("Error reading directory %s: %v", directory, err))
	}
	return files
}

func skipComments(scanner *bufio.Scanner) string {
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" && !strings.HasPrefix(line, "#") {
			return line
		}
	}
	return ""
}

func history() trajectory.Historical {
	return trajectory.Historical{
		Growth: series.Contiguous("GDPA_growth_rate", series.Annual, 2020, []float64{2, -1, 3, 2.5}),
		Level:  series.Contiguous("GDPA", series.Annual, 2019, []float64{90, 91.8, 90.9, 93.6, 100}),
	}
}

func twoStateFit(t *testing.T) *regime.Fitted {
	t.Helper()
	m, err := regime.New(
		[]float64{0.5, 0.5},
		[][]float64{{0.9, 0.1}, {0.2, 0.8}},
		[]regime.Emission{
			{Mean: 2.5, Scale: 1.0, Family: regime.Normal},
			{Mean: -2.0, Scale: 1.5, Family: regime.Normal},
		},
	)
	require.NoError(t, err)
	f, err := regime.NewFitted(m, history().Growth)
	require.NoError(t, err)
	return f
}

// ============================================================================
// QUANTILE TESTS
// ============================================================================

type QuantileTest struct {
	Samples []float64
	Q       float64
	Result  float64
}

func ReadQuantileTests(directory string) []QuantileTest {
	inputFiles := readDirectory(directory + "input")
	outputFiles := readDirectory(directory + "output")

	if len(inputFiles) != len(outputFiles) {
		panic("Error: number of input and output files do not match!")
	}

	tests := make([]QuantileTest, len(inputFiles))
	for i, inputFile := range inputFiles {
		tests[i].Samples, tests[i].Q = ReadQuantileInput(directory + "input/" + inputFile.Name())
	}
	for i, outputFile := range outputFiles {
		tests[i].Result = ReadQuantileOutput(directory + "output/" + outputFile.Name())
	}
	return tests
}

func ReadQuantileInput(file string) ([]float64, float64) {
	f, err := os.Open(file)
	if err != nil {
		panic(err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)

	n, err := strconv.Atoi(skipComments(scanner))
	if err != nil {
		panic(fmt.Sprintf("Error parsing N: %v", err))
	}
	samples := make([]float64, n)
	for i := range samples {
		samples[i], err = strconv.ParseFloat(skipComments(scanner), 64)
		if err != nil {
			panic(fmt.Sprintf("Error parsing sample %d: %v", i, err))
		}
	}

	q, err := strconv.ParseFloat(skipComments(scanner), 64)
	if err != nil {
		panic(fmt.Sprintf("Error parsing Q: %v", err))
	}
	return samples, q
}

func ReadQuantileOutput(file string) float64 {
	f, err := os.Open(file)
	if err != nil {
		panic(err)
	}
	defer f.Close()

	result, err := strconv.ParseFloat(skipComments(bufio.NewScanner(f)), 64)
	if err != nil {
		panic(fmt.Sprintf("Error parsing result: %v", err))
	}
	return result
}

func TestQuantile(t *testing.T) {
	tests := ReadQuantileTests("testdata/Quantile/")
	require.NotEmpty(t, tests)
	for i, test := range tests {
		got := Quantile(test.Samples, test.Q)
		assert.InDelta(t, test.Result, got, 1e-9, "test %d: Quantile(%v, %v)", i+1, test.Samples, test.Q)
	}
}

func TestQuantileDoesNotReorderInput(t *testing.T) {
	samples := []float64{3, 1, 2}
	Quantile(samples, 0.5)
	assert.Equal(t, []float64{3, 1, 2}, samples)
	assert.True(t, math.IsNaN(Quantile(nil, 0.5)))
}

func TestSummarizeMatchesQuantile(t *testing.T) {
	paths := [][]float64{{4, -1}, {1, 3}, {3, 0.5}, {2, 2}, {5, -2}}
	b := summarize("g", []series.TimePoint{2024, 2025}, paths, 0.2)

	for h := 0; h < 2; h++ {
		cross := []float64{paths[0][h], paths[1][h], paths[2][h], paths[3][h], paths[4][h]}
		assert.InDelta(t, Quantile(cross, 0.1), b.Lower[h], 1e-12)
		assert.InDelta(t, Quantile(cross, 0.5), b.Median[h], 1e-12)
		assert.InDelta(t, Quantile(cross, 0.9), b.Upper[h], 1e-12)
	}
	assert.InDelta(t, 3.0, b.Mean[0], 1e-12)
	assert.InDelta(t, 1.4, b.Lower[0], 1e-12)
	// Paths themselves are left alone
	assert.Equal(t, []float64{4, -1}, paths[0])
}

// ============================================================================
// RUN TESTS
// ============================================================================

func TestRunIsIndependentOfWorkerCount(t *testing.T) {
	f := twoStateFit(t)

	serial, err := Run(context.Background(), history(), f, nil, 4, Options{Paths: 200, Workers: 1, Seed: 7})
	require.NoError(t, err)
	parallel, err := Run(context.Background(), history(), f, nil, 4, Options{Paths: 200, Workers: 4, Seed: 7})
	require.NoError(t, err)

	assert.Equal(t, serial.Growth, parallel.Growth)
	assert.Equal(t, serial.Level, parallel.Level)
	assert.Equal(t, int64(7), serial.Seed)
	assert.NotEqual(t, serial.RunID, parallel.RunID)

	other, err := Run(context.Background(), history(), f, nil, 4, Options{Paths: 200, Workers: 4, Seed: 8})
	require.NoError(t, err)
	assert.NotEqual(t, serial.Growth.Median, other.Growth.Median)
}

func TestRunBands(t *testing.T) {
	f := twoStateFit(t)

	res, err := Run(context.Background(), history(), f, nil, 5, Options{Paths: 300, Workers: 3, Seed: 11, Alpha: 0.2})
	require.NoError(t, err)

	assert.Equal(t, 300, res.Paths)
	assert.Equal(t, 0.2, res.Alpha)
	assert.Equal(t, series.TimePoint(2024), res.Splice)
	assert.Equal(t, series.Annual, res.Frequency)
	assert.Equal(t, f.Summary(), res.Model)
	assert.Equal(t, "GDPA_growth_rate", res.Growth.Name)
	assert.Equal(t, "GDPA", res.Level.Name)
	assert.Equal(t, []series.TimePoint{2024, 2025, 2026, 2027, 2028}, res.Growth.Times)

	for _, b := range []Band{res.Growth, res.Level} {
		for h := range b.Times {
			assert.LessOrEqual(t, b.Lower[h], b.Median[h])
			assert.LessOrEqual(t, b.Median[h], b.Upper[h])
			assert.Less(t, b.Lower[h], b.Upper[h])
		}
	}

	// First projected level is affine in the first growth rate
	assert.InDelta(t, 100+res.Growth.Median[0], res.Level.Median[0], 1e-9)
	assert.InDelta(t, 100+res.Growth.Mean[0], res.Level.Mean[0], 1e-9)
}

func TestRunErrors(t *testing.T) {
	f := twoStateFit(t)

	_, err := Run(context.Background(), history(), nil, nil, 3, Options{})
	assert.Error(t, err)

	_, err = Run(context.Background(), history(), f, nil, 0, Options{})
	assert.Error(t, err)

	// The regime model takes no covariates, so every path fails
	exog, err := series.Align(series.Inner, series.Contiguous("rate", series.Annual, 2024, []float64{1, 2, 3}))
	require.NoError(t, err)
	_, err = Run(context.Background(), history(), f, exog, 3, Options{Paths: 10, Workers: 2, Seed: 1})
	assert.ErrorContains(t, err, "takes no covariates")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Run(ctx, history(), f, nil, 3, Options{Paths: 10, Seed: 1})
	assert.ErrorIs(t, err, context.Canceled)
}
