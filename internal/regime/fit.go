package regime

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/asharahmed/us-econ-growth/internal/series"
)

// FitConfig controls Baum-Welch estimation.
type FitConfig struct {
	NumStates int
	Family    Family
	// Degrees of freedom for StudentT emissions, held fixed; default 3
	DoF float64
	// EM iteration cap; default 500
	MaxIterations int
	// Relative log-likelihood change treated as converged; default 1e-8
	Tolerance float64
}

func (c *FitConfig) setDefaults() {
	if c.DoF <= 0 {
		c.DoF = 3
	}
	if c.MaxIterations <= 0 {
		c.MaxIterations = 500
	}
	if c.Tolerance <= 0 {
		c.Tolerance = 1e-8
	}
}

// Fit estimates a regime model on y with Baum-Welch EM and decodes the
// historical state path. States are relabelled by descending mean, so state 0
// is the strongest-growth regime. Student-t emissions use the ECM update with
// latent precision weights.
func Fit(ctx context.Context, y *series.Series, cfg FitConfig) (*Fitted, error) {
	cfg.setDefaults()
	if cfg.NumStates < 1 {
		return nil, fmt.Errorf("%w: numStates must be >= 1, got %d", ErrInvalidEmission, cfg.NumStates)
	}
	if err := y.RequireComplete(); err != nil {
		return nil, err
	}
	obs := y.Values()
	k := cfg.NumStates
	n := len(obs)
	if n < 2*k+1 {
		return nil, fmt.Errorf("%w: %d states on %q need at least %d observations, got %d",
			series.ErrInsufficientData, k, y.Name(), 2*k+1, n)
	}

	log := zerolog.Ctx(ctx)

	em := newEM(obs, cfg)
	prev := math.Inf(-1)
	converged := false
	iter := 0
	for iter = 1; iter <= cfg.MaxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %d-state fit on %q: %w", ErrFitDidNotConverge, k, y.Name(), err)
		}
		ll := em.step()
		if math.IsNaN(ll) {
			return nil, fmt.Errorf("%w: %d-state fit on %q: log-likelihood is NaN at iteration %d",
				ErrFitDidNotConverge, k, y.Name(), iter)
		}
		if math.Abs(ll-prev) <= cfg.Tolerance*(1+math.Abs(ll)) {
			converged = true
			break
		}
		prev = ll
	}
	if !converged {
		return nil, fmt.Errorf("%w: %d-state fit on %q after %d iterations",
			ErrFitDidNotConverge, k, y.Name(), cfg.MaxIterations)
	}

	m, err := em.model()
	if err != nil {
		return nil, err
	}
	f, err := NewFitted(m, y)
	if err != nil {
		return nil, err
	}
	f.logLik = em.logLik
	f.iterations = iter

	log.Debug().
		Str("model", f.Summary()).
		Str("series", y.Name()).
		Int("iterations", iter).
		Float64("loglik", em.logLik).
		Msg("regime model fitted")
	return f, nil
}

// em holds the working parameters of one Baum-Welch run.
type em struct {
	obs   []float64
	cfg   FitConfig
	k     int
	pi    []float64
	P     [][]float64
	mu    []float64
	sigma []float64

	minScale float64
	logLik   float64
}

// newEM spreads the initial means over the quantiles of the data and starts
// every state with the overall dispersion and a persistent transition matrix.
func newEM(obs []float64, cfg FitConfig) *em {
	k := cfg.NumStates
	sorted := append([]float64(nil), obs...)
	sort.Float64s(sorted)

	sd := stat.PopStdDev(obs, nil)
	minScale := 1e-6 * math.Max(sd, 1)
	if sd < minScale {
		sd = minScale
	}

	e := &em{
		obs:      obs,
		cfg:      cfg,
		k:        k,
		pi:       make([]float64, k),
		P:        make([][]float64, k),
		mu:       make([]float64, k),
		sigma:    make([]float64, k),
		minScale: minScale,
	}
	for i := 0; i < k; i++ {
		e.pi[i] = 1 / float64(k)
		e.mu[i] = stat.Quantile((float64(i)+0.5)/float64(k), stat.LinInterp, sorted, nil)
		e.sigma[i] = sd
		e.P[i] = make([]float64, k)
		for j := 0; j < k; j++ {
			switch {
			case k == 1:
				e.P[i][j] = 1
			case i == j:
				e.P[i][j] = 0.9
			default:
				e.P[i][j] = 0.1 / float64(k-1)
			}
		}
	}
	return e
}

func (e *em) emission(j int) Emission {
	return Emission{Mean: e.mu[j], Scale: e.sigma[j], Family: e.cfg.Family, DoF: e.cfg.DoF}
}

// step runs one E and M step and returns the log-likelihood of the
// parameters it started from.
func (e *em) step() float64 {
	n, k := len(e.obs), e.k

	// Emission densities, rescaled per t by their max to avoid underflow
	b := make([][]float64, n)
	shift := make([]float64, n)
	for t, x := range e.obs {
		b[t] = make([]float64, k)
		maxLP := math.Inf(-1)
		for j := 0; j < k; j++ {
			b[t][j] = e.emission(j).logProb(x)
			if b[t][j] > maxLP {
				maxLP = b[t][j]
			}
		}
		shift[t] = maxLP
		for j := 0; j < k; j++ {
			b[t][j] = math.Max(math.Exp(b[t][j]-maxLP), 1e-300)
		}
	}

	// Scaled forward pass
	alpha := make([][]float64, n)
	c := make([]float64, n)
	ll := 0.0
	for t := 0; t < n; t++ {
		alpha[t] = make([]float64, k)
		for j := 0; j < k; j++ {
			if t == 0 {
				alpha[t][j] = e.pi[j] * b[t][j]
				continue
			}
			s := 0.0
			for i := 0; i < k; i++ {
				s += alpha[t-1][i] * e.P[i][j]
			}
			alpha[t][j] = s * b[t][j]
		}
		for j := 0; j < k; j++ {
			c[t] += alpha[t][j]
		}
		if c[t] <= 0 {
			c[t] = 1e-300
		}
		for j := 0; j < k; j++ {
			alpha[t][j] /= c[t]
		}
		ll += math.Log(c[t]) + shift[t]
	}
	e.logLik = ll

	// Scaled backward pass
	beta := make([][]float64, n)
	beta[n-1] = make([]float64, k)
	for j := range beta[n-1] {
		beta[n-1][j] = 1
	}
	for t := n - 2; t >= 0; t-- {
		beta[t] = make([]float64, k)
		for i := 0; i < k; i++ {
			s := 0.0
			for j := 0; j < k; j++ {
				s += e.P[i][j] * b[t+1][j] * beta[t+1][j]
			}
			beta[t][i] = s / c[t+1]
		}
	}

	// Posteriors
	gamma := make([][]float64, n)
	for t := 0; t < n; t++ {
		gamma[t] = make([]float64, k)
		total := 0.0
		for j := 0; j < k; j++ {
			gamma[t][j] = alpha[t][j] * beta[t][j]
			total += gamma[t][j]
		}
		for j := 0; j < k; j++ {
			gamma[t][j] /= total
		}
	}
	xi := make([][]float64, k)
	for i := range xi {
		xi[i] = make([]float64, k)
	}
	for t := 0; t < n-1; t++ {
		for i := 0; i < k; i++ {
			for j := 0; j < k; j++ {
				xi[i][j] += alpha[t][i] * e.P[i][j] * b[t+1][j] * beta[t+1][j] / c[t+1]
			}
		}
	}

	// M step
	copy(e.pi, gamma[0])
	for i := 0; i < k; i++ {
		row := 0.0
		for j := 0; j < k; j++ {
			row += xi[i][j]
		}
		if row <= 0 {
			continue
		}
		for j := 0; j < k; j++ {
			e.P[i][j] = xi[i][j] / row
		}
	}

	for j := 0; j < k; j++ {
		w := make([]float64, n)
		mass := 0.0
		for t := 0; t < n; t++ {
			w[t] = gamma[t][j]
			mass += w[t]
		}
		if mass < 1e-10 {
			// state carries no posterior mass; keep its parameters
			continue
		}
		if e.cfg.Family == StudentT {
			// precision weights u = (nu+1)/(nu+d^2) from the current parameters
			nu := e.cfg.DoF
			for t, x := range e.obs {
				d := (x - e.mu[j]) / e.sigma[j]
				w[t] *= (nu + 1) / (nu + d*d)
			}
		}
		mean := stat.Mean(e.obs, w)
		ss := 0.0
		for t, x := range e.obs {
			ss += w[t] * (x - mean) * (x - mean)
		}
		e.mu[j] = mean
		e.sigma[j] = math.Max(math.Sqrt(ss/mass), e.minScale)
	}
	return ll
}

// model relabels states by descending mean and validates the result.
func (e *em) model() (*Model, error) {
	order := make([]int, e.k)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return e.mu[order[a]] > e.mu[order[b]] })

	initial := make([]float64, e.k)
	transition := make([][]float64, e.k)
	emissions := make([]Emission, e.k)
	for a, i := range order {
		initial[a] = e.pi[i]
		emissions[a] = e.emission(i)
		transition[a] = make([]float64, e.k)
		for b, j := range order {
			transition[a][b] = e.P[i][j]
		}
	}
	normalize(initial)
	for _, row := range transition {
		normalize(row)
	}
	return New(initial, transition, emissions)
}

func normalize(p []float64) {
	s := 0.0
	for _, v := range p {
		s += v
	}
	if s <= 0 {
		return
	}
	for i := range p {
		p[i] /= s
	}
}
