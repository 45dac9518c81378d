package model

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/asharahmed/us-econ-growth/internal/series"
)

// Significance is the F-test of whether a covariate's lags add explanatory
// power to an autoregression of the target.
type Significance struct {
	Covariate   string
	FStatistic  float64
	PValue      float64
	Lags        int
	Significant bool
}

// CovariateSignificance tests each covariate separately:
//
//	restricted:   y_t = c + sum_{j=1..lags} a_j y_{t-j}
//	unrestricted: restricted + sum_{j=0..lags} b_j x_{t-j}
//
// The contemporaneous covariate is included because the projection conditions
// on forecast covariates for the same period.
func CovariateSignificance(y *series.Series, exog *series.MultiSeries, lags int) ([]Significance, error) {
	if lags <= 0 {
		return nil, fmt.Errorf("lags must be > 0")
	}
	if err := y.RequireComplete(); err != nil {
		return nil, err
	}
	if exog == nil || len(exog.Names()) == 0 {
		return nil, fmt.Errorf("no covariates to test")
	}

	times := y.Times()
	yv := y.Values()
	names := exog.Names()
	rows, err := exog.Rows(times, names)
	if err != nil {
		return nil, fmt.Errorf("covariates for %q: %w", y.Name(), err)
	}

	// Build response vector y_t for t >= lags
	T := len(yv)
	Treg := T - lags
	if Treg <= 0 {
		return nil, fmt.Errorf("%w: not enough observations for lags = %d, T = %d", series.ErrInsufficientData, lags, T)
	}
	resp := make([]float64, Treg)
	for t := 0; t < Treg; t++ {
		resp[t] = yv[t+lags]
	}

	mRestricted := 1 + lags
	XRestricted := mat.NewDense(Treg, mRestricted, nil)
	for t := 0; t < Treg; t++ {
		XRestricted.Set(t, 0, 1.0)
		for j := 1; j <= lags; j++ {
			XRestricted.Set(t, j, yv[t+lags-j])
		}
	}
	rssRestricted, _, err := regressionRSS(XRestricted, resp)
	if err != nil {
		return nil, err
	}

	out := make([]Significance, 0, len(names))
	for c, name := range names {
		mUnrestricted := mRestricted + lags + 1
		XUnrestricted := mat.NewDense(Treg, mUnrestricted, nil)
		for t := 0; t < Treg; t++ {
			for j := 0; j < mRestricted; j++ {
				XUnrestricted.Set(t, j, XRestricted.At(t, j))
			}
			for j := 0; j <= lags; j++ {
				v := rows[t+lags-j][c]
				if math.IsNaN(v) || math.IsInf(v, 0) {
					return nil, fmt.Errorf("%w: covariate %q at %s", series.ErrMissingValues,
						name, y.Frequency().Format(times[t+lags-j]))
				}
				XUnrestricted.Set(t, mRestricted+j, v)
			}
		}
		rssUnrestricted, _, err := regressionRSS(XUnrestricted, resp)
		if err != nil {
			return nil, fmt.Errorf("covariate %q: %w", name, err)
		}

		q := float64(lags + 1)
		dof := float64(Treg - mUnrestricted)
		if dof <= 0 {
			return nil, fmt.Errorf("%w: insufficient degrees of freedom for %q: %v", series.ErrInsufficientData, name, dof)
		}

		// rssRestricted >= rssUnrestricted in theory; clamp float noise
		num := rssRestricted - rssUnrestricted
		if num < 0 {
			num = 0
		}
		den := rssUnrestricted / dof

		fStatistic, pValue := 0.0, 1.0
		if den > 0 && num > 0 {
			fStatistic = (num / q) / den
			if math.IsNaN(fStatistic) || math.IsInf(fStatistic, 0) {
				fStatistic = 0
			} else {
				pValue = 1.0 - distuv.F{D1: q, D2: dof}.CDF(fStatistic)
			}
		}
		pValue = math.Min(1, math.Max(0, pValue))

		out = append(out, Significance{
			Covariate:   name,
			FStatistic:  fStatistic,
			PValue:      pValue,
			Lags:        lags,
			Significant: pValue < 0.05,
		})
	}
	return out, nil
}
