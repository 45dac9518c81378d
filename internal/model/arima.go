package model

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strings"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/asharahmed/us-econ-growth/internal/series"
)

// unitRootBand is how close to 1 the largest inverse AR root must be for an
// exhausted fit to be reported as ErrNonStationarity.
const unitRootBand = 0.02

// penalty returned by the objective outside the stationary/invertible region
const penalty = 1e10

// Params are the estimated ARIMA coefficients.
type Params struct {
	Constant   float64
	Beta       []float64 // one per covariate, on differenced covariates
	AR         []float64
	MA         []float64
	SeasonalAR []float64
	SeasonalMA []float64
}

// layout maps Params to and from the optimizer's flat vector:
// [constant] beta... ar... ma... sar... sma...
type layout struct {
	constant        bool
	k, p, q, sp, sq int
	period          int
}

func (l layout) size() int {
	n := l.k + l.p + l.q + l.sp + l.sq
	if l.constant {
		n++
	}
	return n
}

func (l layout) armaSize() int { return l.p + l.q + l.sp + l.sq }

// maxARLag is the highest lag of the expanded AR polynomial.
func (l layout) maxARLag() int { return l.p + l.sp*l.period }
func (l layout) maxMALag() int { return l.q + l.sq*l.period }

func (l layout) unpack(x []float64) Params {
	var p Params
	i := 0
	if l.constant {
		p.Constant = x[0]
		i++
	}
	take := func(n int) []float64 {
		out := append([]float64(nil), x[i:i+n]...)
		i += n
		return out
	}
	p.Beta = take(l.k)
	p.AR = take(l.p)
	p.MA = take(l.q)
	p.SeasonalAR = take(l.sp)
	p.SeasonalMA = take(l.sq)
	return p
}

func (l layout) pack(p Params) []float64 {
	x := make([]float64, 0, l.size())
	if l.constant {
		x = append(x, p.Constant)
	}
	x = append(x, p.Beta...)
	x = append(x, p.AR...)
	x = append(x, p.MA...)
	x = append(x, p.SeasonalAR...)
	x = append(x, p.SeasonalMA...)
	return x
}

// ARIMA is a fitted (seasonal) ARIMA model with optional exogenous
// regressors. The covariates enter the differenced equation
//
//	z_t = c + beta'x~_t + sum a_i z_{t-i} + e_t + sum b_j e_{t-j}
//
// where z and x~ are the target and covariates passed through the same
// differencing polynomial (1-B)^d (1-B^s)^D.
type ARIMA struct {
	spec       Spec
	target     string
	freq       series.Frequency
	times      []series.TimePoint
	y          []float64
	covariates []string
	x          [][]float64

	diff   []float64
	z      []float64
	xd     [][]float64
	start  int
	params Params
	ar     []float64
	ma     []float64
	resid  []float64

	sse        float64
	sigma2     float64
	nobs       int
	aic        float64
	iterations int
}

// fitARIMA estimates spec by conditional sum of squares. Start values come
// from a Hannan-Rissanen regression and are refined with Nelder-Mead, capped
// at spec.MaxIterations major iterations.
func fitARIMA(ctx context.Context, spec Spec, y *series.Series, exog *series.MultiSeries) (*ARIMA, error) {
	log := zerolog.Ctx(ctx)

	if err := y.RequireComplete(); err != nil {
		return nil, err
	}
	if !y.IsContiguous() {
		return nil, fmt.Errorf("%w: %q has gaps, regularize and fill it before fitting", series.ErrMissingValues, y.Name())
	}

	m := &ARIMA{
		spec:   spec,
		target: y.Name(),
		freq:   y.Frequency(),
		times:  y.Times(),
		y:      y.Values(),
	}

	if exog != nil && len(exog.Names()) > 0 {
		m.covariates = exog.Names()
		rows, err := exog.Rows(m.times, m.covariates)
		if err != nil {
			return nil, fmt.Errorf("covariates for %q: %w", y.Name(), err)
		}
		for r, row := range rows {
			for c, v := range row {
				if math.IsNaN(v) || math.IsInf(v, 0) {
					return nil, fmt.Errorf("%w: covariate %q at %s", series.ErrMissingValues,
						m.covariates[c], m.freq.Format(m.times[r]))
				}
			}
		}
		m.x = rows
	}

	o := spec.Orders
	period := o.Seasonal.Period
	if !o.Seasonal.active() {
		period = 0
	}
	lay := layout{
		constant: spec.IncludeConstant,
		k:        len(m.covariates),
		p:        o.P,
		q:        o.Q,
		period:   period,
	}
	if period > 1 {
		lay.sp, lay.sq = o.Seasonal.P, o.Seasonal.Q
		m.diff = differencingPoly(o.D, o.Seasonal.D, period)
	} else {
		m.diff = differencingPoly(o.D, 0, 0)
	}

	m.z = applyDiff(m.diff, m.y)
	if m.x != nil {
		m.xd = applyDiffRows(m.diff, m.x)
	}
	m.start = lay.maxARLag()

	nEff := len(m.z) - m.start
	if nEff < lay.size()+2 {
		return nil, fmt.Errorf("%w: %s on %q needs more than %d usable observations, got %d",
			series.ErrInsufficientData, summaryFor(spec, lay.k), y.Name(), lay.size()+1, nEff)
	}

	prob := &cssProblem{lay: lay, z: m.z, xd: m.xd, start: m.start}
	x0 := prob.startValues()

	xHat := x0
	if lay.armaSize() > 0 {
		settings := &optimize.Settings{
			MajorIterations: spec.maxIterations(),
			Converger: &optimize.FunctionConverge{
				Absolute:   1e-10,
				Relative:   1e-10,
				Iterations: 100,
			},
			Recorder: &ctxRecorder{ctx: ctx},
		}
		res, err := optimize.Minimize(optimize.Problem{Func: prob.objective}, x0, settings, &optimize.NelderMead{})

		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: %s on %q: %w", ErrFitDidNotConverge, summaryFor(spec, lay.k), y.Name(), ctxErr)
		}
		if res == nil {
			return nil, fmt.Errorf("%w: %s on %q: %v", ErrFitDidNotConverge, summaryFor(spec, lay.k), y.Name(), err)
		}
		if res.Status == optimize.IterationLimit || res.Status == optimize.FunctionEvaluationLimit {
			params := lay.unpack(res.X)
			root := maxInverseRoot(lagCoefficients(arPoly(params.AR, params.SeasonalAR, lay.period)))
			if root >= 1-unitRootBand {
				return nil, fmt.Errorf("%w: %s on %q stopped after %d iterations with an AR root at %.4f; try a higher differencing order",
					ErrNonStationarity, summaryFor(spec, lay.k), y.Name(), res.Stats.MajorIterations, root)
			}
			return nil, fmt.Errorf("%w: %s on %q stopped after %d iterations",
				ErrFitDidNotConverge, summaryFor(spec, lay.k), y.Name(), res.Stats.MajorIterations)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s on %q: %v", ErrFitDidNotConverge, summaryFor(spec, lay.k), y.Name(), err)
		}
		if prob.objective(res.X) >= penalty {
			return nil, fmt.Errorf("%w: %s on %q has no stationary, invertible solution",
				ErrFitDidNotConverge, summaryFor(spec, lay.k), y.Name())
		}
		xHat = res.X
		m.iterations = res.Stats.MajorIterations
	}

	m.params = lay.unpack(xHat)
	m.ar = lagCoefficients(arPoly(m.params.AR, m.params.SeasonalAR, lay.period))
	m.ma = maPoly(m.params.MA, m.params.SeasonalMA, lay.period)[1:]
	m.sse, m.resid = prob.conditionalSSE(m.params.Constant, m.params.Beta, m.ar, m.ma)

	m.nobs = nEff
	dof := nEff - lay.size()
	if dof < 1 {
		dof = 1
	}
	m.sigma2 = m.sse / float64(dof)
	mle := math.Max(m.sse/float64(nEff), 1e-300)
	m.aic = float64(nEff)*math.Log(mle) + 2*float64(lay.size()+1)

	log.Debug().
		Str("model", m.Summary()).
		Str("series", m.target).
		Int("iterations", m.iterations).
		Float64("sigma2", m.sigma2).
		Float64("aic", m.aic).
		Msg("arima fitted")

	return m, nil
}

// applyDiff returns z_t = sum_k poly[k] * y_{t-k} for every t with a full
// set of lags, so len(z) = len(y) - (len(poly)-1).
func applyDiff(poly, y []float64) []float64 {
	K := len(poly) - 1
	if len(y) <= K {
		return nil
	}
	z := make([]float64, len(y)-K)
	for t := K; t < len(y); t++ {
		v := 0.0
		for k, c := range poly {
			v += c * y[t-k]
		}
		z[t-K] = v
	}
	return z
}

func applyDiffRows(poly []float64, x [][]float64) [][]float64 {
	K := len(poly) - 1
	if len(x) <= K {
		return nil
	}
	cols := len(x[0])
	out := make([][]float64, len(x)-K)
	for t := K; t < len(x); t++ {
		row := make([]float64, cols)
		for j := 0; j < cols; j++ {
			for k, c := range poly {
				row[j] += c * x[t-k][j]
			}
		}
		out[t-K] = row
	}
	return out
}

// cssProblem holds the differenced data for the CSS objective.
type cssProblem struct {
	lay   layout
	z     []float64
	xd    [][]float64
	start int
}

func (p *cssProblem) objective(x []float64) float64 {
	params := p.lay.unpack(x)
	ar := lagCoefficients(arPoly(params.AR, params.SeasonalAR, p.lay.period))
	if r := maxInverseRoot(ar); r >= 1 {
		return penalty * (1 + r)
	}
	ma := maPoly(params.MA, params.SeasonalMA, p.lay.period)[1:]
	if r := maxInverseRoot(negate(ma)); r >= 1 {
		return penalty * (1 + r)
	}
	sse, _ := p.conditionalSSE(params.Constant, params.Beta, ar, ma)
	if math.IsNaN(sse) || math.IsInf(sse, 0) {
		return penalty
	}
	return sse
}

// conditionalSSE runs the ARMAX recursion with pre-sample innovations set to
// zero and returns the sum of squared innovations from p.start on.
func (p *cssProblem) conditionalSSE(c float64, beta, ar, ma []float64) (float64, []float64) {
	resid := make([]float64, len(p.z))
	sse := 0.0
	for t := p.start; t < len(p.z); t++ {
		pred := c
		for j, b := range beta {
			pred += b * p.xd[t][j]
		}
		for i, a := range ar {
			pred += a * p.z[t-i-1]
		}
		for j, b := range ma {
			if t-j-1 < 0 {
				break
			}
			pred += b * resid[t-j-1]
		}
		e := p.z[t] - pred
		resid[t] = e
		sse += e * e
	}
	return sse, resid
}

// startValues runs the two Hannan-Rissanen regressions: a long autoregression
// to estimate innovations, then z on its own lags, the lagged innovations and
// the covariates. Seasonal coefficients start at zero. The result is pulled
// inside the stationary and invertible region.
func (p *cssProblem) startValues() []float64 {
	lay := p.lay
	n := len(p.z)
	innov := make([]float64, n)

	longLag := 0
	if lay.q > 0 || lay.sq > 0 {
		longLag = lay.maxARLag() + lay.maxMALag() + 2
		if limit := n / 3; longLag > limit {
			longLag = limit
		}
		if longLag >= 1 {
			rows := n - longLag
			X := mat.NewDense(rows, longLag+1, nil)
			yy := make([]float64, rows)
			for r := 0; r < rows; r++ {
				t := r + longLag
				X.Set(r, 0, 1)
				for l := 1; l <= longLag; l++ {
					X.Set(r, l, p.z[t-l])
				}
				yy[r] = p.z[t]
			}
			if beta, err := leastSquares(X, yy); err == nil {
				for r := 0; r < rows; r++ {
					fit := 0.0
					for l := range beta {
						fit += beta[l] * X.At(r, l)
					}
					innov[r+longLag] = yy[r] - fit
				}
			}
		}
	}

	var params Params
	params.Beta = make([]float64, lay.k)
	params.AR = make([]float64, lay.p)
	params.MA = make([]float64, lay.q)
	params.SeasonalAR = make([]float64, lay.sp)
	params.SeasonalMA = make([]float64, lay.sq)
	if lay.constant {
		params.Constant = stat.Mean(p.z, nil)
	}

	first := lay.p
	if v := longLag + lay.q; v > first {
		first = v
	}
	cols := lay.k + lay.p + lay.q
	if lay.constant {
		cols++
	}
	rows := n - first
	if cols > 0 && rows > cols {
		X := mat.NewDense(rows, cols, nil)
		yy := make([]float64, rows)
		for r := 0; r < rows; r++ {
			t := r + first
			c := 0
			if lay.constant {
				X.Set(r, c, 1)
				c++
			}
			for j := 0; j < lay.k; j++ {
				X.Set(r, c, p.xd[t][j])
				c++
			}
			for i := 1; i <= lay.p; i++ {
				X.Set(r, c, p.z[t-i])
				c++
			}
			for j := 1; j <= lay.q; j++ {
				X.Set(r, c, innov[t-j])
				c++
			}
			yy[r] = p.z[t]
		}
		if beta, err := leastSquares(X, yy); err == nil {
			c := 0
			if lay.constant {
				params.Constant = beta[c]
				c++
			}
			c += copy(params.Beta, beta[c:c+lay.k])
			c += copy(params.AR, beta[c:c+lay.p])
			copy(params.MA, beta[c:c+lay.q])
		}
	}

	for i := 0; i < 500; i++ {
		ar := lagCoefficients(arPoly(params.AR, params.SeasonalAR, lay.period))
		if maxInverseRoot(ar) < 1 {
			break
		}
		scale(params.AR, 0.99)
		scale(params.SeasonalAR, 0.99)
	}
	for i := 0; i < 500; i++ {
		ma := maPoly(params.MA, params.SeasonalMA, lay.period)[1:]
		if maxInverseRoot(negate(ma)) < 1 {
			break
		}
		scale(params.MA, 0.99)
		scale(params.SeasonalMA, 0.99)
	}

	return lay.pack(params)
}

func scale(v []float64, f float64) {
	for i := range v {
		v[i] *= f
	}
}

func negate(v []float64) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = -x
	}
	return out
}

// ctxRecorder aborts the optimizer once ctx is done.
type ctxRecorder struct {
	ctx context.Context
}

func (r *ctxRecorder) Init() error { return r.ctx.Err() }

func (r *ctxRecorder) Record(_ *optimize.Location, _ optimize.Operation, _ *optimize.Stats) error {
	return r.ctx.Err()
}

func summaryFor(spec Spec, covariates int) string {
	name := "ARIMA"
	if spec.Kind == KindSARIMAX {
		name = "SARIMAX"
	}
	s := name + spec.Orders.String()
	if covariates > 0 {
		s += fmt.Sprintf(" with %d covariates", covariates)
	}
	return s
}

// Summary renders the model, e.g. ARIMA(1,1,0) or SARIMAX(1,1,1)(0,1,1)[4].
func (m *ARIMA) Summary() string { return summaryFor(m.spec, len(m.covariates)) }

func (m *ARIMA) Spec() Spec                   { return m.spec }
func (m *ARIMA) Target() string               { return m.target }
func (m *ARIMA) Covariates() []string         { return append([]string(nil), m.covariates...) }
func (m *ARIMA) LastPeriod() series.TimePoint { return m.times[len(m.times)-1] }
func (m *ARIMA) Frequency() series.Frequency  { return m.freq }
func (m *ARIMA) Sigma2() float64              { return m.sigma2 }
func (m *ARIMA) AIC() float64                 { return m.aic }
func (m *ARIMA) NumObs() int                  { return m.nobs }
func (m *ARIMA) Iterations() int              { return m.iterations }
func (m *ARIMA) SSE() float64                 { return m.sse }

// Params returns a copy of the estimated coefficients.
func (m *ARIMA) Params() Params {
	cp := func(v []float64) []float64 { return append([]float64(nil), v...) }
	return Params{
		Constant:   m.params.Constant,
		Beta:       cp(m.params.Beta),
		AR:         cp(m.params.AR),
		MA:         cp(m.params.MA),
		SeasonalAR: cp(m.params.SeasonalAR),
		SeasonalMA: cp(m.params.SeasonalMA),
	}
}

// Residuals returns the conditional innovations on the differenced scale.
func (m *ARIMA) Residuals() *series.Series {
	K := len(m.diff) - 1
	s, _ := series.New(m.target+"_residual", m.freq, m.times[K+m.start:], m.resid[m.start:])
	return s
}

// Describe lists the coefficients one per line.
func (m *ARIMA) Describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s on %s, %d obs, sigma2=%.6g, aic=%.4f\n", m.Summary(), m.target, m.nobs, m.sigma2, m.aic)
	if m.spec.IncludeConstant {
		fmt.Fprintf(&b, "  const      % .6f\n", m.params.Constant)
	}
	for i, v := range m.params.Beta {
		fmt.Fprintf(&b, "  %-10s % .6f\n", m.covariates[i], v)
	}
	for i, v := range m.params.AR {
		fmt.Fprintf(&b, "  ar.L%-6d % .6f\n", i+1, v)
	}
	for i, v := range m.params.MA {
		fmt.Fprintf(&b, "  ma.L%-6d % .6f\n", i+1, v)
	}
	s := m.spec.Orders.Seasonal.Period
	for i, v := range m.params.SeasonalAR {
		fmt.Fprintf(&b, "  ar.S.L%-4d % .6f\n", (i+1)*s, v)
	}
	for i, v := range m.params.SeasonalMA {
		fmt.Fprintf(&b, "  ma.S.L%-4d % .6f\n", (i+1)*s, v)
	}
	return b.String()
}

// Forecast returns the conditional expectation for the horizon periods
// following the training data. Models fit with covariates need exog to hold
// exactly those horizon periods for every covariate.
func (m *ARIMA) Forecast(horizon int, exog *series.MultiSeries) (*series.Series, error) {
	if horizon <= 0 {
		return nil, fmt.Errorf("horizon must be > 0")
	}
	xFuture, err := m.futureExog(horizon, exog)
	if err != nil {
		return nil, err
	}
	return m.project(horizon, xFuture, nil), nil
}

// Simulate draws one path by feeding Gaussian innovations with the estimated
// variance through the same recursion Forecast uses.
func (m *ARIMA) Simulate(horizon int, exog *series.MultiSeries, rng *rand.Rand) (*series.Series, error) {
	if horizon <= 0 {
		return nil, fmt.Errorf("horizon must be > 0")
	}
	if rng == nil {
		return nil, fmt.Errorf("simulate %s: random source is required", m.Summary())
	}
	xFuture, err := m.futureExog(horizon, exog)
	if err != nil {
		return nil, err
	}
	sd := math.Sqrt(m.sigma2)
	shocks := make([]float64, horizon)
	for i := range shocks {
		shocks[i] = rng.NormFloat64() * sd
	}
	return m.project(horizon, xFuture, shocks), nil
}

// futureAxis is the horizon periods after the last training period.
func (m *ARIMA) futureAxis(horizon int) []series.TimePoint {
	out := make([]series.TimePoint, horizon)
	for i := range out {
		out[i] = m.LastPeriod() + series.TimePoint(i+1)
	}
	return out
}

func (m *ARIMA) futureExog(horizon int, exog *series.MultiSeries) ([][]float64, error) {
	if len(m.covariates) == 0 {
		return nil, nil
	}
	if exog == nil {
		return nil, fmt.Errorf("%w: %s needs future values for %s",
			ErrMissingExogenousData, m.Summary(), strings.Join(m.covariates, ", "))
	}
	if exog.Frequency() != m.freq {
		return nil, fmt.Errorf("%w: future covariates are %s but %s was fit on %s data",
			ErrMissingExogenousData, exog.Frequency(), m.Summary(), m.freq)
	}
	if exog.Len() != horizon {
		return nil, fmt.Errorf("%w: %s needs %d future periods of %s, got %d",
			ErrMissingExogenousData, m.Summary(), horizon, strings.Join(m.covariates, ", "), exog.Len())
	}
	axis := m.futureAxis(horizon)
	times := exog.Times()
	for i, t := range axis {
		if times[i] != t {
			return nil, fmt.Errorf("%w: future covariates start at %s, expected %s",
				ErrMissingExogenousData, m.freq.Format(times[0]), m.freq.Format(axis[0]))
		}
	}
	for _, name := range m.covariates {
		col, ok := exog.Column(name)
		if !ok {
			return nil, fmt.Errorf("%w: covariate %q", ErrMissingExogenousData, name)
		}
		for i, v := range col {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("%w: covariate %q has no value at %s",
					ErrMissingExogenousData, name, m.freq.Format(axis[i]))
			}
		}
	}
	rows, err := exog.Rows(axis, m.covariates)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingExogenousData, err)
	}
	return rows, nil
}

// project runs the recursion forward. A nil shocks slice gives the point
// forecast; otherwise shocks[h] is the innovation at step h.
func (m *ARIMA) project(horizon int, xFuture [][]float64, shocks []float64) *series.Series {
	n := len(m.y)
	K := len(m.diff) - 1

	// Differenced future covariates need the training rows as lags
	var xdFuture [][]float64
	if xFuture != nil {
		xAll := append(append([][]float64(nil), m.x...), xFuture...)
		xdFuture = make([][]float64, horizon)
		for h := 0; h < horizon; h++ {
			t := n + h
			row := make([]float64, len(m.covariates))
			for j := range row {
				for k, c := range m.diff {
					row[j] += c * xAll[t-k][j]
				}
			}
			xdFuture[h] = row
		}
	}

	nz := len(m.z)
	z := append(append([]float64(nil), m.z...), make([]float64, horizon)...)
	e := append(append([]float64(nil), m.resid...), make([]float64, horizon)...)

	for h := 0; h < horizon; h++ {
		t := nz + h
		val := m.params.Constant
		for j, b := range m.params.Beta {
			val += b * xdFuture[h][j]
		}
		for i, a := range m.ar {
			if t-i-1 < 0 {
				break
			}
			val += a * z[t-i-1]
		}
		for j, b := range m.ma {
			if t-j-1 < 0 {
				break
			}
			val += b * e[t-j-1]
		}
		if shocks != nil {
			e[t] = shocks[h]
			val += shocks[h]
		}
		z[t] = val
	}

	// Undo the differencing: y_t = z_t - sum_{k>=1} poly[k] y_{t-k}
	yExt := append(append([]float64(nil), m.y...), make([]float64, horizon)...)
	for h := 0; h < horizon; h++ {
		t := n + h
		v := z[nz+h]
		for k := 1; k <= K; k++ {
			v -= m.diff[k] * yExt[t-k]
		}
		yExt[t] = v
	}

	out, _ := series.New(m.target, m.freq, m.futureAxis(horizon), yExt[n:])
	return out
}

// Interval is a point forecast with a symmetric Gaussian band.
type Interval struct {
	Point  *series.Series
	Lower  *series.Series
	Upper  *series.Series
	StdErr []float64
	Level  float64
}

// ForecastInterval returns the point forecast with a band at the given
// confidence level (e.g. 0.95). Standard errors come from the psi weights of
// the differenced-and-integrated ARMA polynomial; parameter uncertainty is
// ignored.
func (m *ARIMA) ForecastInterval(horizon int, exog *series.MultiSeries, level float64) (*Interval, error) {
	if level <= 0 || level >= 1 {
		return nil, fmt.Errorf("confidence level must be in (0, 1), got %v", level)
	}
	point, err := m.Forecast(horizon, exog)
	if err != nil {
		return nil, err
	}

	period := 0
	if m.spec.Orders.Seasonal.active() {
		period = m.spec.Orders.Seasonal.Period
	}
	phiStar := polyMul(arPoly(m.params.AR, m.params.SeasonalAR, period), m.diff)
	theta := maPoly(m.params.MA, m.params.SeasonalMA, period)
	psi := psiWeights(phiStar, theta, horizon)

	zq := distuv.UnitNormal.Quantile(0.5 + level/2)
	pv := point.Values()
	se := make([]float64, horizon)
	lo := make([]float64, horizon)
	hi := make([]float64, horizon)
	acc := 0.0
	for h := 0; h < horizon; h++ {
		acc += psi[h] * psi[h]
		se[h] = math.Sqrt(m.sigma2 * acc)
		lo[h] = pv[h] - zq*se[h]
		hi[h] = pv[h] + zq*se[h]
	}

	axis := point.Times()
	lower, _ := series.New(m.target+"_lower", m.freq, axis, lo)
	upper, _ := series.New(m.target+"_upper", m.freq, axis, hi)
	return &Interval{Point: point, Lower: lower, Upper: upper, StdErr: se, Level: level}, nil
}
